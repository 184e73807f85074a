package conceptmap

import (
	"context"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
)

// Repository is the mapping store. Reads return mappings with their source
// and target terms joined at read time.
type Repository interface {
	// List orders by mapping id so equal pages are stable.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Mapping, error)
	Count(ctx context.Context, f Filter) (int, error)
	GetByID(ctx context.Context, id int64) (*Mapping, error)
	// GetBySource returns the lowest-id mapping for a NAMASTE code. The
	// Namaste family matches any variant.
	GetBySource(ctx context.Context, code string, system terminology.CodeSystem) (*Mapping, error)
	// ReverseLookup returns the source terms of every mapping that targets
	// code, in mapping id order.
	ReverseLookup(ctx context.Context, code string) ([]*terminology.Term, error)

	// Update and Delete return ErrNotFound when no row has id.
	Update(ctx context.Context, id int64, rel Relationship, status Status) error
	Delete(ctx context.Context, id int64) error

	DeleteAll(ctx context.Context) (int64, error)
	Insert(ctx context.Context, rows []NewMapping) (int64, error)
}
