package catalog

import (
	"context"

	"github.com/sakaguchi/ownerstats/internal/entities"
)

// Standard field projections. Requesting only what a code path consumes keeps
// catalog responses small on large installations.
var (
	// TraversalFields is the projection used while walking the group hierarchy.
	TraversalFields = []string{"kind", "metadata.namespace", "metadata.name", "relations"}

	// OwnedEntityFields additionally carries spec.type for aggregation.
	OwnedEntityFields = []string{"kind", "metadata.namespace", "metadata.name", "spec.type", "relations"}
)

// ByRefsRequest is a batched lookup of entities by reference.
type ByRefsRequest struct {
	Refs   []entities.Ref // references to resolve, order significant
	Fields []string       // field projection; empty = full entities
}

// Filter selects entities matching all of its terms. Kinds and each relation
// target list are any-of matches.
type Filter struct {
	Kinds     []string            // entity kind is one of these
	Relations map[string][]string // relation name -> any-of target refs (canonical form)
}

// Query is a filtered entity search. Filters are OR'd together; the terms
// within a single Filter are AND'd.
type Query struct {
	Filters []Filter
	Fields  []string
}

// Client is the catalog collaborator contract. Implementations: the remote
// HTTP catalog API client and the Postgres-backed catalog store.
type Client interface {
	// EntitiesByRefs resolves a batch of references in a single lookup. The
	// result is aligned with the request order; a nil element marks a
	// reference the catalog could not resolve. Unresolved references are
	// expected absence, not an error.
	EntitiesByRefs(ctx context.Context, req ByRefsRequest) ([]*entities.Entity, error)

	// Entities performs a filtered search and returns all matching entities.
	Entities(ctx context.Context, q Query) ([]entities.Entity, error)
}
