package ownership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakaguchi/ownerstats/internal/catalog"
	"github.com/sakaguchi/ownerstats/internal/entities"
)

// mockCatalog is an in-memory catalog.Client. It tracks in-flight by-refs
// lookups so tests can assert the concurrency bound.
type mockCatalog struct {
	mu       sync.Mutex
	byRef    map[string]*entities.Entity
	fetchLag time.Duration // artificial latency per by-refs call
	failWith error         // when set, every call fails with this error

	inflight    int
	maxInflight int
	calls       int
}

func newMockCatalog(ents ...*entities.Entity) *mockCatalog {
	m := &mockCatalog{byRef: make(map[string]*entities.Entity)}
	for _, e := range ents {
		m.byRef[e.Ref().String()] = e
	}
	return m
}

func (m *mockCatalog) EntitiesByRefs(ctx context.Context, req catalog.ByRefsRequest) ([]*entities.Entity, error) {
	m.mu.Lock()
	m.calls++
	m.inflight++
	if m.inflight > m.maxInflight {
		m.maxInflight = m.inflight
	}
	lag := m.fetchLag
	failWith := m.failWith
	m.mu.Unlock()

	if lag > 0 {
		time.Sleep(lag)
	}

	defer func() {
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
	}()

	if failWith != nil {
		return nil, failWith
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entities.Entity, len(req.Refs))
	for i, ref := range req.Refs {
		out[i] = m.byRef[ref.String()]
	}
	return out, nil
}

func (m *mockCatalog) Entities(ctx context.Context, q catalog.Query) ([]entities.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return nil, m.failWith
	}

	var out []entities.Entity
	for _, e := range m.byRef {
		for _, f := range q.Filters {
			if matchesFilter(e, f) {
				out = append(out, *e)
				break
			}
		}
	}
	return out, nil
}

func matchesFilter(e *entities.Entity, f catalog.Filter) bool {
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if strings.EqualFold(k, e.Kind) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for name, targets := range f.Relations {
		found := false
		for _, rel := range e.Relations {
			if rel.Type != name {
				continue
			}
			target, err := entities.ParseRef(rel.TargetRef, "")
			if err != nil {
				continue
			}
			for _, t := range targets {
				if target.String() == t {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// group builds a Group entity with parentOf relations to the named groups.
func group(name string, children ...string) *entities.Entity {
	e := &entities.Entity{Kind: entities.KindGroup, Namespace: "default", Name: name}
	for _, child := range children {
		e.Relations = append(e.Relations, entities.Relation{
			Type:      entities.RelationParentOf,
			TargetRef: "group:default/" + child,
		})
	}
	return e
}

func assertOwners(t *testing.T, got *entities.RefSet, want ...string) {
	t.Helper()
	if got.Len() != len(want) {
		t.Fatalf("expected %d owners, got %d: %v", len(want), got.Len(), got.Strings())
	}
	have := make(map[string]bool)
	for _, s := range got.Strings() {
		have[s] = true
	}
	for _, w := range want {
		if !have[w] {
			t.Errorf("expected owner %s, got %v", w, got.Strings())
		}
	}
}

func TestResolveOwnersDirectMode(t *testing.T) {
	r := NewResolver(newMockCatalog(), 0, nil)

	for _, e := range []*entities.Entity{
		group("platform", "backend"),
		{Kind: entities.KindUser, Namespace: "default", Name: "alice"},
		{Kind: entities.KindComponent, Namespace: "default", Name: "checkout"},
	} {
		owners, err := r.ResolveOwners(context.Background(), e, ModeDirect)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertOwners(t, owners, e.Ref().String())
	}
}

func TestResolveOwnersUserOneLevel(t *testing.T) {
	// team-a itself parents team-b; the user's membership must NOT descend
	// into it, nor ascend above the direct memberships.
	mock := newMockCatalog(group("team-a", "team-b"), group("team-b"))

	user := &entities.Entity{
		Kind: entities.KindUser, Namespace: "default", Name: "alice",
		Relations: []entities.Relation{
			{Type: entities.RelationMemberOf, TargetRef: "group:default/team-a"},
			{Type: entities.RelationMemberOf, TargetRef: "group:default/infra"},
			{Type: entities.RelationOwnerOf, TargetRef: "component:default/checkout"},
		},
	}

	r := NewResolver(mock, 0, nil)
	owners, err := r.ResolveOwners(context.Background(), user, ModeAggregated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertOwners(t, owners,
		"user:default/alice", "group:default/team-a", "group:default/infra")

	if mock.calls != 0 {
		t.Errorf("user resolution must not hit the catalog, got %d calls", mock.calls)
	}
}

func TestResolveOwnersGroupWithoutChildren(t *testing.T) {
	r := NewResolver(newMockCatalog(), 0, nil)

	owners, err := r.ResolveOwners(context.Background(), group("solo"), ModeAggregated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertOwners(t, owners, "group:default/solo")
}

func TestResolveOwnersGroupHierarchy(t *testing.T) {
	// platform -> {backend, frontend}; backend -> {payments}.
	mock := newMockCatalog(
		group("backend", "payments"),
		group("frontend"),
		group("payments"),
	)

	r := NewResolver(mock, 0, nil)
	owners, err := r.ResolveOwners(context.Background(), group("platform", "backend", "frontend"), ModeAggregated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertOwners(t, owners,
		"group:default/platform",
		"group:default/backend",
		"group:default/frontend",
		"group:default/payments")
}

func TestResolveOwnersDropsUnresolvableChildren(t *testing.T) {
	// "ghost" has a parentOf relation but no catalog record.
	mock := newMockCatalog(group("backend"))

	r := NewResolver(mock, 0, nil)
	owners, err := r.ResolveOwners(context.Background(), group("platform", "backend", "ghost"), ModeAggregated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertOwners(t, owners, "group:default/platform", "group:default/backend")
}

func TestResolveOwnersCycleTerminates(t *testing.T) {
	// a parentOf b, b parentOf a.
	mock := newMockCatalog(group("a", "b"), group("b", "a"))

	r := NewResolver(mock, 0, nil)
	owners, err := r.ResolveOwners(context.Background(), group("a", "b"), ModeAggregated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertOwners(t, owners, "group:default/a", "group:default/b")
}

func TestResolveOwnersSelfLoopTerminates(t *testing.T) {
	self := group("ouroboros", "ouroboros")
	mock := newMockCatalog(self)

	r := NewResolver(mock, 0, nil)
	owners, err := r.ResolveOwners(context.Background(), self, ModeAggregated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertOwners(t, owners, "group:default/ouroboros")

	// The self reference is filtered before any lookup.
	if mock.calls != 0 {
		t.Errorf("expected no catalog calls for a pure self-loop, got %d", mock.calls)
	}
}

func TestResolveOwnersDiamondExpandsOnce(t *testing.T) {
	// root -> {left, right}; both parent "shared".
	mock := newMockCatalog(
		group("left", "shared"),
		group("right", "shared"),
		group("shared"),
	)

	r := NewResolver(mock, 0, nil)
	owners, err := r.ResolveOwners(context.Background(), group("root", "left", "right"), ModeAggregated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertOwners(t, owners,
		"group:default/root", "group:default/left", "group:default/right", "group:default/shared")
}

func TestResolveOwnersPropagatesFetchError(t *testing.T) {
	mock := newMockCatalog()
	mock.failWith = &catalog.FetchError{Op: "entities-by-refs", Status: 500, Err: errors.New("boom")}

	r := NewResolver(mock, 0, nil)
	_, err := r.ResolveOwners(context.Background(), group("platform", "backend"), ModeAggregated)
	if err == nil {
		t.Fatal("expected error")
	}
	var fe *catalog.FetchError
	if !errors.As(err, &fe) {
		t.Errorf("expected FetchError to propagate, got %T: %v", err, err)
	}
}

func TestResolveOwnersConcurrencyBound(t *testing.T) {
	// A root with 25 children, each with one grandchild: plenty of pending
	// expansions to exercise the limiter.
	var ents []*entities.Entity
	var childNames []string
	for i := 0; i < 25; i++ {
		childNames = append(childNames, fmt.Sprintf("child-%02d", i))
	}
	root := group("root", childNames...)
	for _, name := range childNames {
		ents = append(ents, group(name, name+"-sub"))
		ents = append(ents, group(name+"-sub"))
	}

	mock := newMockCatalog(ents...)
	mock.fetchLag = 5 * time.Millisecond

	r := NewResolver(mock, 10, nil)
	owners, err := r.ResolveOwners(context.Background(), root, ModeAggregated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// root + 25 children + 25 grandchildren
	if owners.Len() != 51 {
		t.Errorf("expected 51 owners, got %d", owners.Len())
	}
	if mock.maxInflight > 10 {
		t.Errorf("concurrency limit violated: observed %d in-flight lookups", mock.maxInflight)
	}
	if mock.maxInflight < 2 {
		t.Errorf("expected parallel lookups, observed max %d", mock.maxInflight)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{input: "", want: ModeAggregated},
		{input: "aggregated", want: ModeAggregated},
		{input: "direct", want: ModeDirect},
		{input: "none", want: ModeDirect},
		{input: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
