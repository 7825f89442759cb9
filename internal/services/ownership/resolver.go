// Package ownership computes, for a catalog entity, the set of entities it
// owns directly or transitively through group structure, and aggregates the
// owned entities by kind and type.
package ownership

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sakaguchi/ownerstats/internal/catalog"
	"github.com/sakaguchi/ownerstats/internal/entities"
)

// Mode controls whether ownership expands through group structure.
type Mode string

const (
	// ModeAggregated expands ownership transitively: a group owns what its
	// descendant groups own, a user owns what their groups own.
	ModeAggregated Mode = "aggregated"

	// ModeDirect uses only the entity's own reference.
	ModeDirect Mode = "direct"
)

// ParseMode parses a mode string. The empty string defaults to aggregated;
// "none" is accepted as an alias for direct.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", string(ModeAggregated):
		return ModeAggregated, nil
	case string(ModeDirect), "none":
		return ModeDirect, nil
	default:
		return "", fmt.Errorf("unknown aggregation mode %q", s)
	}
}

// DefaultMaxConcurrent bounds in-flight group expansions across the entire
// traversal, shared by all resolutions going through one Resolver.
const DefaultMaxConcurrent = 10

// Resolver computes owner sets by walking the group hierarchy.
type Resolver struct {
	catalog catalog.Client
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// NewResolver creates a Resolver. maxConcurrent bounds concurrent group
// expansions; values below 1 fall back to DefaultMaxConcurrent.
func NewResolver(c catalog.Client, maxConcurrent int64, logger *slog.Logger) *Resolver {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		catalog: c,
		sem:     semaphore.NewWeighted(maxConcurrent),
		logger:  logger,
	}
}

// ResolveOwners returns the set of entity references to treat as owners when
// searching for owned entities. The result always contains the entity's own
// reference and never contains duplicates.
//
// In aggregated mode, a User contributes its direct memberOf groups (one
// level, no transitive ascent) and a Group contributes every group it
// transitively parents. Any other kind resolves to just itself, as does any
// entity in direct mode. A catalog failure propagates as *catalog.FetchError.
func (r *Resolver) ResolveOwners(ctx context.Context, entity *entities.Entity, mode Mode) (*entities.RefSet, error) {
	if entity == nil {
		return nil, fmt.Errorf("entity is required")
	}
	if err := entity.Ref().Validate(); err != nil {
		return nil, fmt.Errorf("invalid entity: %w", err)
	}

	if mode != ModeAggregated {
		return entities.NewRefSet(entity.Ref()), nil
	}

	switch entity.Kind {
	case entities.KindUser:
		owners := entities.NewRefSet(entity.Ref())
		for _, group := range entities.RelationsOf(entity, entities.RelationMemberOf, entities.KindGroup) {
			owners.Add(group)
		}
		return owners, nil
	case entities.KindGroup:
		return r.collectDescendants(ctx, entity)
	default:
		return entities.NewRefSet(entity.Ref()), nil
	}
}

// collectDescendants walks parentOf relations breadth-wise and returns the
// root group plus every transitively parented group.
//
// Each discovered group becomes one expansion task: claim its unvisited
// children, batch-fetch them, spawn a task per resolved child. The shared
// weighted semaphore admits at most maxConcurrent fetches in flight across
// the whole traversal; tokens are held only for the duration of a single
// batch fetch, never across a subtree, so deep hierarchies cannot starve the
// pool. Claiming a child before fetching it means a node reachable through
// two parents is expanded exactly once and a cycle terminates as soon as it
// closes, including a group whose parentOf relation points at itself.
func (r *Resolver) collectDescendants(ctx context.Context, root *entities.Entity) (*entities.RefSet, error) {
	var mu sync.Mutex
	claimed := entities.NewRefSet(root.Ref())
	owners := entities.NewRefSet(root.Ref())

	g, ctx := errgroup.WithContext(ctx)

	var expand func(node *entities.Entity)
	expand = func(node *entities.Entity) {
		g.Go(func() error {
			childRefs := entities.RelationsOf(node, entities.RelationParentOf, entities.KindGroup)
			if len(childRefs) == 0 {
				return nil
			}

			mu.Lock()
			toFetch := childRefs[:0:0]
			for _, ref := range childRefs {
				if claimed.Add(ref) {
					toFetch = append(toFetch, ref)
				}
			}
			mu.Unlock()
			if len(toFetch) == 0 {
				return nil
			}

			if err := r.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			children, err := r.catalog.EntitiesByRefs(ctx, catalog.ByRefsRequest{
				Refs:   toFetch,
				Fields: catalog.TraversalFields,
			})
			r.sem.Release(1)
			if err != nil {
				return fmt.Errorf("failed to fetch child groups of %s: %w", node.Ref(), err)
			}

			for i, child := range children {
				if child == nil {
					// Unresolvable refs are expected absence: dropped from the
					// owner set, not an error.
					r.logger.DebugContext(ctx, "skipping unresolvable child group",
						"parent", node.Ref().String(), "child", toFetch[i].String())
					continue
				}
				mu.Lock()
				owners.Add(child.Ref())
				mu.Unlock()
				expand(child)
			}
			return nil
		})
	}

	expand(root)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "resolved group descendants",
		"root", root.Ref().String(), "owners", owners.Len())
	return owners, nil
}
