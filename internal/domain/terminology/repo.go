package terminology

import "context"

// Repository is the term store. Every method is scoped to one code system;
// Namaste reads across all three NAMASTE variants.
type Repository interface {
	// Search returns every term whose display contains query,
	// case-insensitively, ordered by id. There is no limit.
	Search(ctx context.Context, system CodeSystem, query string) ([]*Term, error)
	GetByID(ctx context.Context, system CodeSystem, id int64) (*Term, error)
	// GetByCode returns the lowest-id term carrying code.
	GetByCode(ctx context.Context, system CodeSystem, code string) (*Term, error)
	// List pages through a system, optionally filtered like Search, and
	// reports the filtered total.
	List(ctx context.Context, system CodeSystem, filter string, limit, offset int) ([]*Term, int, error)
	ListAll(ctx context.Context, system CodeSystem) ([]*Term, error)

	Count(ctx context.Context, system CodeSystem) (int, error)
	DeleteAll(ctx context.Context, system CodeSystem) (int64, error)
	Insert(ctx context.Context, system CodeSystem, terms []Term) (int64, error)
}
