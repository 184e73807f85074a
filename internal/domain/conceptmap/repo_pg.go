package conceptmap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
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

// The target is whichever of icd/snomed/loinc is set first, looked up in
// its own term table.
const mappingSelect = `
	SELECT m.id, m.namaste_id, m.icd_code, m.snomed_code, m.loinc_code,
	       m.map_relationship, m.status,
	       n.id, n.code, n.term, n.system,
	       t.id, t.code, t.term, t.system
	FROM concept_map m
	JOIN namaste_terms n ON n.id = m.namaste_id
	LEFT JOIN LATERAL (
		(SELECT id, code, term, system FROM icd11_terms
		  WHERE m.icd_code IS NOT NULL AND code = m.icd_code
		 UNION ALL
		 SELECT id, code, term, system FROM snomed_terms
		  WHERE m.icd_code IS NULL AND code = m.snomed_code
		 UNION ALL
		 SELECT id, code, term, system FROM loinc_terms
		  WHERE m.icd_code IS NULL AND m.snomed_code IS NULL AND code = m.loinc_code)
		ORDER BY id LIMIT 1
	) t ON TRUE`

func scanMapping(row pgx.Row) (*Mapping, error) {
	var (
		m                           Mapping
		src                         terminology.Term
		srcSystem, rel, status      string
		tgtID                       *int64
		tgtCode, tgtTerm, tgtSystem *string
	)
	err := row.Scan(&m.ID, &m.NamasteID, &m.ICDCode, &m.SNOMEDCode, &m.LOINCCode,
		&rel, &status,
		&src.ID, &src.Code, &src.Term, &srcSystem,
		&tgtID, &tgtCode, &tgtTerm, &tgtSystem)
	if err != nil {
		return nil, err
	}
	m.Relationship = Relationship(rel)
	m.Status = Status(status)
	src.System = terminology.CodeSystem(srcSystem)
	m.Source = &src
	if tgtID != nil {
		m.Target = &terminology.Term{ID: *tgtID, Code: *tgtCode, Term: *tgtTerm, System: terminology.CodeSystem(*tgtSystem)}
	}
	return &m, nil
}

func filterClause(f Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("m.status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, db.ContainsPattern(f.Search))
		conds = append(conds, fmt.Sprintf(`n.term ILIKE $%d ESCAPE '\'`, len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Mapping, error) {
	where, args := filterClause(f)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		mappingSelect+where+fmt.Sprintf(" ORDER BY m.id LIMIT $%d OFFSET $%d", len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	out := []*Mapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repoPG) Count(ctx context.Context, f Filter) (int, error) {
	where, args := filterClause(f)
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM concept_map m JOIN namaste_terms n ON n.id = m.namaste_id`+where,
		args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count mappings: %w", err)
	}
	return n, nil
}

func (r *repoPG) one(ctx context.Context, sql string, args ...interface{}) (*Mapping, error) {
	m, err := scanMapping(r.conn(ctx).QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Mapping, error) {
	return r.one(ctx, mappingSelect+` WHERE m.id = $1`, id)
}

func (r *repoPG) GetBySource(ctx context.Context, code string, system terminology.CodeSystem) (*Mapping, error) {
	if system == terminology.Namaste {
		return r.one(ctx, mappingSelect+` WHERE n.code = $1 ORDER BY m.id LIMIT 1`, code)
	}
	return r.one(ctx, mappingSelect+` WHERE n.code = $1 AND n.system = $2 ORDER BY m.id LIMIT 1`, code, string(system))
}

func (r *repoPG) ReverseLookup(ctx context.Context, code string) ([]*terminology.Term, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT n.id, n.code, n.term, n.system
		FROM concept_map m JOIN namaste_terms n ON n.id = m.namaste_id
		WHERE m.icd_code = $1 OR m.snomed_code = $1 OR m.loinc_code = $1
		ORDER BY m.id`, code)
	if err != nil {
		return nil, fmt.Errorf("reverse lookup %s: %w", code, err)
	}
	defer rows.Close()

	out := []*terminology.Term{}
	for rows.Next() {
		var t terminology.Term
		var system string
		if err := rows.Scan(&t.ID, &t.Code, &t.Term, &system); err != nil {
			return nil, err
		}
		t.System = terminology.CodeSystem(system)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, id int64, rel Relationship, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE concept_map SET map_relationship = $2, status = $3 WHERE id = $1`,
		id, string(rel), string(status))
	if err != nil {
		return fmt.Errorf("update mapping %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM concept_map WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete mapping %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM concept_map`)
	if err != nil {
		return 0, fmt.Errorf("clear mappings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) Insert(ctx context.Context, rows []NewMapping) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	src := make([][]interface{}, len(rows))
	for i, m := range rows {
		src[i] = []interface{}{m.NamasteID, m.ICDCode, string(m.Relationship), string(m.Status)}
	}
	n, err := r.conn(ctx).CopyFrom(ctx,
		pgx.Identifier{"concept_map"},
		[]string{"namaste_id", "icd_code", "map_relationship", "status"},
		pgx.CopyFromRows(src))
	if err != nil {
		return 0, fmt.Errorf("insert mappings: %w", err)
	}
	return n, nil
}
