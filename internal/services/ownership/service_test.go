package ownership

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/sakaguchi/ownerstats/internal/catalog"
	"github.com/sakaguchi/ownerstats/internal/entities"
)

// countingRecorder records metric calls for assertions.
type countingRecorder struct {
	resolutions int
	expansions  int
	owned       int
}

func (r *countingRecorder) RecordResolution()           { r.resolutions++ }
func (r *countingRecorder) RecordGroupExpansions(n int) { r.expansions += n }
func (r *countingRecorder) RecordOwnedFetched(n int)    { r.owned += n }

func ownedBy(kind, name, typ, owner string) *entities.Entity {
	return &entities.Entity{
		Kind: kind, Namespace: "default", Name: name, Type: typ,
		Relations: []entities.Relation{
			{Type: entities.RelationOwnedBy, TargetRef: owner},
		},
	}
}

func TestOwnedEntitiesAggregatesAcrossHierarchy(t *testing.T) {
	mock := newMockCatalog(
		group("backend"),
		ownedBy("Component", "checkout", "service", "group:default/platform"),
		ownedBy("Component", "billing", "service", "group:default/backend"),
		ownedBy("API", "payments-api", "openapi", "group:default/backend"),
	)

	recorder := &countingRecorder{}
	svc := NewService(NewResolver(mock, 0, nil), mock, recorder, nil)

	resp, err := svc.OwnedEntities(context.Background(), &OwnedEntitiesRequest{
		Entity: group("platform", "backend"),
		Mode:   ModeAggregated,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Counts) != 2 {
		t.Fatalf("expected 2 rows, got %v", resp.Counts)
	}
	first := resp.Counts[0]
	if first.Kind != "Component" || first.Type != "service" || first.Count != 2 {
		t.Errorf("unexpected first row: %+v", first)
	}
	second := resp.Counts[1]
	if second.Kind != "API" || second.Type != "openapi" || second.Count != 1 {
		t.Errorf("unexpected second row: %+v", second)
	}

	// Query params carry the full owner set regardless of the row.
	params, err := url.ParseQuery(first.QueryParams)
	if err != nil {
		t.Fatalf("query params do not parse: %v", err)
	}
	gotOwners := params["filters[owners]"]
	if len(gotOwners) != 2 {
		t.Errorf("expected 2 owners in query params, got %v", gotOwners)
	}
	if params.Get("filters[kind]") != "component" {
		t.Errorf("filters[kind] = %q", params.Get("filters[kind]"))
	}

	if recorder.resolutions != 1 {
		t.Errorf("expected 1 resolution recorded, got %d", recorder.resolutions)
	}
	if recorder.expansions != 1 {
		t.Errorf("expected 1 descendant recorded, got %d", recorder.expansions)
	}
	if recorder.owned != 3 {
		t.Errorf("expected 3 owned entities recorded, got %d", recorder.owned)
	}
}

func TestOwnedEntitiesDirectModeIgnoresHierarchy(t *testing.T) {
	mock := newMockCatalog(
		group("backend"),
		ownedBy("Component", "checkout", "service", "group:default/platform"),
		ownedBy("Component", "billing", "service", "group:default/backend"),
	)

	svc := NewService(NewResolver(mock, 0, nil), mock, nil, nil)

	resp, err := svc.OwnedEntities(context.Background(), &OwnedEntitiesRequest{
		Entity: group("platform", "backend"),
		Mode:   ModeDirect,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Counts) != 1 || resp.Counts[0].Count != 1 {
		t.Errorf("direct mode must only count directly owned entities, got %v", resp.Counts)
	}
}

func TestOwnedEntitiesHonorsKindFilter(t *testing.T) {
	mock := newMockCatalog(
		ownedBy("Component", "checkout", "service", "group:default/platform"),
		ownedBy("Resource", "db", "database", "group:default/platform"),
	)

	svc := NewService(NewResolver(mock, 0, nil), mock, nil, nil)

	resp, err := svc.OwnedEntities(context.Background(), &OwnedEntitiesRequest{
		Entity: group("platform"),
		Mode:   ModeAggregated,
		Kinds:  []string{"Component"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Counts) != 1 || resp.Counts[0].Kind != "Component" {
		t.Errorf("expected only Component rows, got %v", resp.Counts)
	}
}

func TestOwnedEntitiesAppliesLimit(t *testing.T) {
	mock := newMockCatalog(
		ownedBy("Component", "a", "service", "group:default/platform"),
		ownedBy("Component", "b", "library", "group:default/platform"),
		ownedBy("API", "c", "openapi", "group:default/platform"),
	)

	svc := NewService(NewResolver(mock, 0, nil), mock, nil, nil)

	resp, err := svc.OwnedEntities(context.Background(), &OwnedEntitiesRequest{
		Entity: group("platform"),
		Mode:   ModeAggregated,
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Counts) != 2 {
		t.Errorf("expected limit to cap rows at 2, got %d", len(resp.Counts))
	}
}

func TestOwnedEntitiesValidation(t *testing.T) {
	mock := newMockCatalog()
	svc := NewService(NewResolver(mock, 0, nil), mock, nil, nil)
	ctx := context.Background()

	if _, err := svc.OwnedEntities(ctx, nil); err == nil {
		t.Error("expected error for nil request")
	}
	if _, err := svc.OwnedEntities(ctx, &OwnedEntitiesRequest{Mode: ModeAggregated}); err == nil {
		t.Error("expected error for missing entity")
	}
	if _, err := svc.OwnedEntities(ctx, &OwnedEntitiesRequest{Entity: group("g"), Mode: "bogus"}); err == nil {
		t.Error("expected error for unknown mode")
	}
	if _, err := svc.OwnedEntities(ctx, &OwnedEntitiesRequest{Entity: group("g"), Mode: ModeAggregated, Limit: -1}); err == nil {
		t.Error("expected error for negative limit")
	}
}

func TestOwnedEntitiesPropagatesFetchError(t *testing.T) {
	mock := newMockCatalog()
	mock.failWith = &catalog.FetchError{Op: "entities", Status: 503, Err: errors.New("unavailable")}

	svc := NewService(NewResolver(mock, 0, nil), mock, nil, nil)

	_, err := svc.OwnedEntities(context.Background(), &OwnedEntitiesRequest{
		Entity: group("platform"),
		Mode:   ModeAggregated,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !catalog.IsFetchError(err) {
		t.Errorf("expected FetchError, got %T: %v", err, err)
	}
}
