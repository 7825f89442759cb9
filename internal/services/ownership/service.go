package ownership

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakaguchi/ownerstats/internal/catalog"
	"github.com/sakaguchi/ownerstats/internal/entities"
)

// DefaultKinds are the owned-entity kinds aggregated when a request does not
// name any.
var DefaultKinds = []string{entities.KindComponent, entities.KindAPI, entities.KindSystem}

// Recorder receives service-level metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordResolution()
	RecordGroupExpansions(n int)
	RecordOwnedFetched(n int)
}

// nopRecorder is used when no Recorder is wired.
type nopRecorder struct{}

func (nopRecorder) RecordResolution()         {}
func (nopRecorder) RecordGroupExpansions(int) {}
func (nopRecorder) RecordOwnedFetched(int)    {}

// ServiceInterface defines the ownership aggregation service contract.
type ServiceInterface interface {
	OwnedEntities(ctx context.Context, req *OwnedEntitiesRequest) (*OwnedEntitiesResponse, error)
}

// Service orchestrates owner resolution, owned-entity retrieval and
// aggregation.
type Service struct {
	resolver *Resolver
	catalog  catalog.Client
	recorder Recorder
	logger   *slog.Logger

	defaultKinds []string
	defaultLimit int
}

// OwnedEntitiesRequest contains the parameters for an aggregation.
type OwnedEntitiesRequest struct {
	Entity *entities.Entity // root entity whose ownership is examined
	Mode   Mode             // aggregation mode
	Kinds  []string         // owned-entity kinds to include; empty = defaults
	Limit  int              // max (kind, type) rows; 0 = default, capped at MaxLimit
}

// OwnedEntityCount is one aggregation row.
type OwnedEntityCount struct {
	Kind        string `json:"kind"`
	Type        string `json:"type,omitempty"`
	Count       int    `json:"count"`
	QueryParams string `json:"queryParams"`
}

// OwnedEntitiesResponse contains the aggregation rows, highest count first.
type OwnedEntitiesResponse struct {
	Counts []OwnedEntityCount `json:"counts"`
}

// NewService creates an ownership Service. recorder and logger may be nil.
func NewService(resolver *Resolver, c catalog.Client, recorder Recorder, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		resolver:     resolver,
		catalog:      c,
		recorder:     recorder,
		logger:       logger,
		defaultKinds: DefaultKinds,
		defaultLimit: DefaultLimit,
	}
}

// SetDefaults overrides the default owned-entity kinds and row limit.
func (s *Service) SetDefaults(kinds []string, limit int) {
	if len(kinds) > 0 {
		s.defaultKinds = kinds
	}
	if limit > 0 && limit <= MaxLimit {
		s.defaultLimit = limit
	}
}

// OwnedEntities resolves the owner set for the request's entity, fetches all
// entities owned by any owner in that set, and returns the top-N (kind, type)
// buckets with catalog-page query params per row.
func (s *Service) OwnedEntities(ctx context.Context, req *OwnedEntitiesRequest) (*OwnedEntitiesResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid owned entities request: %w", err)
	}

	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = s.defaultKinds
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	start := time.Now()
	owners, err := s.resolver.ResolveOwners(ctx, req.Entity, req.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve owners: %w", err)
	}
	s.recorder.RecordResolution()
	s.recorder.RecordGroupExpansions(owners.Len() - 1)

	owned, err := s.fetchOwned(ctx, owners, kinds)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch owned entities: %w", err)
	}
	s.recorder.RecordOwnedFetched(len(owned))

	buckets := aggregateByType(owned, limit)
	counts := make([]OwnedEntityCount, 0, len(buckets))
	for _, b := range buckets {
		counts = append(counts, OwnedEntityCount{
			Kind:        b.Kind,
			Type:        b.Type,
			Count:       b.Count,
			QueryParams: buildQueryParams(owners, b.Kind, b.Type),
		})
	}

	s.logger.DebugContext(ctx, "aggregated owned entities",
		"entity", req.Entity.Ref().String(),
		"mode", string(req.Mode),
		"owners", owners.Len(),
		"owned", len(owned),
		"rows", len(counts),
		"took", time.Since(start))

	return &OwnedEntitiesResponse{Counts: counts}, nil
}

// fetchOwned issues one filtered search: entities whose kind is any of kinds
// AND whose ownedBy relation targets any owner in the set.
func (s *Service) fetchOwned(ctx context.Context, owners *entities.RefSet, kinds []string) ([]entities.Entity, error) {
	return s.catalog.Entities(ctx, catalog.Query{
		Filters: []catalog.Filter{
			{
				Kinds: kinds,
				Relations: map[string][]string{
					entities.RelationOwnedBy: owners.Strings(),
				},
			},
		},
		Fields: catalog.OwnedEntityFields,
	})
}

func (s *Service) validateRequest(req *OwnedEntitiesRequest) error {
	if req == nil || req.Entity == nil {
		return fmt.Errorf("entity is required")
	}
	if err := req.Entity.Ref().Validate(); err != nil {
		return err
	}
	switch req.Mode {
	case ModeAggregated, ModeDirect:
	default:
		return fmt.Errorf("unknown aggregation mode %q", req.Mode)
	}
	if req.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}
