// Package postgres implements the catalog.Client contract against a locally
// synced catalog database, as an alternative to calling the remote catalog
// API. The tables are populated out-of-band (catalog sync job, fixtures).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/sakaguchi/ownerstats/internal/catalog"
	"github.com/sakaguchi/ownerstats/internal/entities"
)

// EntityRepository implements catalog.Client using PostgreSQL.
type EntityRepository struct {
	db *sql.DB
}

var _ catalog.Client = (*EntityRepository)(nil)

// NewEntityRepository creates a new PostgreSQL entity repository.
func NewEntityRepository(db *sql.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// EntitiesByRefs implements catalog.Client. The result is aligned with the
// request order; refs without a row come back nil.
func (r *EntityRepository) EntitiesByRefs(ctx context.Context, req catalog.ByRefsRequest) ([]*entities.Entity, error) {
	result := make([]*entities.Entity, len(req.Refs))
	if len(req.Refs) == 0 {
		return result, nil
	}

	keys := make([]string, len(req.Refs))
	for i, ref := range req.Refs {
		keys[i] = ref.String()
	}

	query := `
		SELECT ref, kind, namespace, name, COALESCE(type, '')
		FROM entities
		WHERE ref = ANY($1)
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, &catalog.FetchError{Op: "entities-by-refs", Err: fmt.Errorf("failed to query entities: %w", err)}
	}
	defer rows.Close()

	byRef := make(map[string]*entities.Entity)
	for rows.Next() {
		var ref string
		var e entities.Entity
		if err := rows.Scan(&ref, &e.Kind, &e.Namespace, &e.Name, &e.Type); err != nil {
			return nil, &catalog.FetchError{Op: "entities-by-refs", Err: fmt.Errorf("failed to scan entity: %w", err)}
		}
		byRef[ref] = &e
	}
	if err := rows.Err(); err != nil {
		return nil, &catalog.FetchError{Op: "entities-by-refs", Err: err}
	}

	if wantsRelations(req.Fields) && len(byRef) > 0 {
		if err := r.loadRelations(ctx, byRef); err != nil {
			return nil, err
		}
	}

	for i, key := range keys {
		result[i] = byRef[key]
	}
	return result, nil
}

// Entities implements catalog.Client. Filters are OR'd by running one query
// per filter and deduplicating by reference; matches keep the order in which
// they were first returned.
func (r *EntityRepository) Entities(ctx context.Context, q catalog.Query) ([]entities.Entity, error) {
	seen := make(map[string]bool)
	byRef := make(map[string]*entities.Entity)
	var order []string

	filters := q.Filters
	if len(filters) == 0 {
		filters = []catalog.Filter{{}}
	}

	for _, f := range filters {
		query, args := buildFilterQuery(f)
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, &catalog.FetchError{Op: "entities", Err: fmt.Errorf("failed to query entities: %w", err)}
		}

		for rows.Next() {
			var ref string
			var e entities.Entity
			if err := rows.Scan(&ref, &e.Kind, &e.Namespace, &e.Name, &e.Type); err != nil {
				rows.Close()
				return nil, &catalog.FetchError{Op: "entities", Err: fmt.Errorf("failed to scan entity: %w", err)}
			}
			if !seen[ref] {
				seen[ref] = true
				byRef[ref] = &e
				order = append(order, ref)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, &catalog.FetchError{Op: "entities", Err: err}
		}
		rows.Close()
	}

	if wantsRelations(q.Fields) && len(byRef) > 0 {
		if err := r.loadRelations(ctx, byRef); err != nil {
			return nil, err
		}
	}

	out := make([]entities.Entity, 0, len(order))
	for _, ref := range order {
		out = append(out, *byRef[ref])
	}
	return out, nil
}

// buildFilterQuery renders one filter as a single SELECT with positional
// arguments. Kind lists and relation target lists are any-of matches.
func buildFilterQuery(f catalog.Filter) (string, []interface{}) {
	query := `
		SELECT e.ref, e.kind, e.namespace, e.name, COALESCE(e.type, '')
		FROM entities e
		WHERE 1 = 1
	`
	var args []interface{}
	argIdx := 1

	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = strings.ToLower(k)
		}
		query += fmt.Sprintf(" AND lower(e.kind) = ANY($%d)", argIdx)
		args = append(args, pq.Array(kinds))
		argIdx++
	}

	// Deterministic clause order for the relation terms.
	names := make([]string, 0, len(f.Relations))
	for name := range f.Relations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		query += fmt.Sprintf(`
			AND EXISTS (
				SELECT 1 FROM relations r
				WHERE r.source_ref = e.ref AND r.relation = $%d AND r.target_ref = ANY($%d)
			)`, argIdx, argIdx+1)
		args = append(args, name, pq.Array(f.Relations[name]))
		argIdx += 2
	}

	query += " ORDER BY e.ref"
	return query, args
}

// loadRelations attaches relation rows to the given entities in one query.
func (r *EntityRepository) loadRelations(ctx context.Context, byRef map[string]*entities.Entity) error {
	refs := make([]string, 0, len(byRef))
	for ref := range byRef {
		refs = append(refs, ref)
	}

	query := `
		SELECT source_ref, relation, target_ref
		FROM relations
		WHERE source_ref = ANY($1)
		ORDER BY source_ref, relation, target_ref
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(refs))
	if err != nil {
		return &catalog.FetchError{Op: "entities", Err: fmt.Errorf("failed to query relations: %w", err)}
	}
	defer rows.Close()

	for rows.Next() {
		var source, relation, target string
		if err := rows.Scan(&source, &relation, &target); err != nil {
			return &catalog.FetchError{Op: "entities", Err: fmt.Errorf("failed to scan relation: %w", err)}
		}
		if e, ok := byRef[source]; ok {
			e.Relations = append(e.Relations, entities.Relation{Type: relation, TargetRef: target})
		}
	}
	if err := rows.Err(); err != nil {
		return &catalog.FetchError{Op: "entities", Err: err}
	}
	return nil
}

// UpsertEntity writes an entity and replaces its outgoing relations. Used by
// catalog sync tooling and test fixtures; the serving path never writes.
func (r *EntityRepository) UpsertEntity(ctx context.Context, e *entities.Entity) error {
	if err := e.Ref().Validate(); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ref := e.Ref().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (ref, kind, namespace, name, type, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), now())
		ON CONFLICT (ref) DO UPDATE
		SET kind = EXCLUDED.kind, namespace = EXCLUDED.namespace,
			name = EXCLUDED.name, type = EXCLUDED.type, updated_at = now()
	`, ref, e.Kind, e.Namespace, e.Name, e.Type)
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE source_ref = $1`, ref); err != nil {
		return fmt.Errorf("failed to clear relations: %w", err)
	}
	for _, rel := range e.Relations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO relations (source_ref, relation, target_ref)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, ref, rel.Type, rel.TargetRef)
		if err != nil {
			return fmt.Errorf("failed to insert relation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// wantsRelations reports whether the field projection includes relations.
// An empty projection means full entities.
func wantsRelations(fields []string) bool {
	if len(fields) == 0 {
		return true
	}
	for _, f := range fields {
		if f == "relations" {
			return true
		}
	}
	return false
}
