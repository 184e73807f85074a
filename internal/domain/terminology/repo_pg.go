package terminology

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayurfhir/ayurfhir/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const termCols = `id, code, term, system`

// scope returns the WHERE clause restricting a query to one partition,
// with placeholders numbered from argN.
func scope(cs CodeSystem, argN int) (string, []interface{}, error) {
	if cs.table() == "" {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownSystem, string(cs))
	}
	if cs.IsNamaste() && cs != Namaste {
		return fmt.Sprintf("system = $%d", argN), []interface{}{string(cs)}, nil
	}
	return "TRUE", nil, nil
}

func (r *repoPG) scanTerm(row pgx.Row) (*Term, error) {
	var t Term
	var system string
	if err := row.Scan(&t.ID, &t.Code, &t.Term, &system); err != nil {
		return nil, err
	}
	t.System = CodeSystem(system)
	return &t, nil
}

func (r *repoPG) collect(rows pgx.Rows) ([]*Term, error) {
	defer rows.Close()
	out := []*Term{}
	for rows.Next() {
		t, err := r.scanTerm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repoPG) Search(ctx context.Context, system CodeSystem, query string) ([]*Term, error) {
	where, args, err := scope(system, 2)
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+termCols+` FROM `+system.table()+`
		 WHERE term ILIKE $1 ESCAPE '\' AND `+where+` ORDER BY id`,
		append([]interface{}{db.ContainsPattern(query)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("search %s terms: %w", system, err)
	}
	return r.collect(rows)
}

func (r *repoPG) GetByID(ctx context.Context, system CodeSystem, id int64) (*Term, error) {
	where, args, err := scope(system, 2)
	if err != nil {
		return nil, err
	}
	t, err := r.scanTerm(r.conn(ctx).QueryRow(ctx,
		`SELECT `+termCols+` FROM `+system.table()+` WHERE id = $1 AND `+where,
		append([]interface{}{id}, args...)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s term %d: %w", system, id, err)
	}
	return t, nil
}

func (r *repoPG) GetByCode(ctx context.Context, system CodeSystem, code string) (*Term, error) {
	where, args, err := scope(system, 2)
	if err != nil {
		return nil, err
	}
	t, err := r.scanTerm(r.conn(ctx).QueryRow(ctx,
		`SELECT `+termCols+` FROM `+system.table()+` WHERE code = $1 AND `+where+`
		 ORDER BY id LIMIT 1`,
		append([]interface{}{code}, args...)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s term %q: %w", system, code, err)
	}
	return t, nil
}

func (r *repoPG) List(ctx context.Context, system CodeSystem, filter string, limit, offset int) ([]*Term, int, error) {
	where, args, err := scope(system, 2)
	if err != nil {
		return nil, 0, err
	}
	base := ` FROM ` + system.table() + ` WHERE term ILIKE $1 ESCAPE '\' AND ` + where
	params := append([]interface{}{db.ContainsPattern(filter)}, args...)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+base, params...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s terms: %w", system, err)
	}

	n := len(params)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+termCols+base+fmt.Sprintf(` ORDER BY id LIMIT $%d OFFSET $%d`, n+1, n+2),
		append(params, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s terms: %w", system, err)
	}
	terms, err := r.collect(rows)
	return terms, total, err
}

func (r *repoPG) ListAll(ctx context.Context, system CodeSystem) ([]*Term, error) {
	where, args, err := scope(system, 1)
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+termCols+` FROM `+system.table()+` WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s terms: %w", system, err)
	}
	return r.collect(rows)
}

func (r *repoPG) Count(ctx context.Context, system CodeSystem) (int, error) {
	where, args, err := scope(system, 1)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM `+system.table()+` WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s terms: %w", system, err)
	}
	return n, nil
}

func (r *repoPG) DeleteAll(ctx context.Context, system CodeSystem) (int64, error) {
	where, args, err := scope(system, 1)
	if err != nil {
		return 0, err
	}
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM `+system.table()+` WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s terms: %w", system, err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) Insert(ctx context.Context, system CodeSystem, terms []Term) (int64, error) {
	if _, _, err := scope(system, 1); err != nil {
		return 0, err
	}
	n, err := r.conn(ctx).CopyFrom(ctx,
		pgx.Identifier{system.table()},
		[]string{"code", "term", "system"},
		pgx.CopyFromSlice(len(terms), func(i int) ([]interface{}, error) {
			return []interface{}{terms[i].Code, terms[i].Term, string(system)}, nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copy %s terms: %w", system, err)
	}
	return n, nil
}
