package entities

import "testing"

func TestRefSetDeduplicates(t *testing.T) {
	s := NewRefSet()

	a := Ref{Kind: "group", Namespace: "default", Name: "a"}
	if !s.Add(a) {
		t.Error("first add should report newly added")
	}
	// Same entity, different casing.
	if s.Add(Ref{Kind: "Group", Namespace: "Default", Name: "A"}) {
		t.Error("duplicate add should report already present")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 element, got %d", s.Len())
	}
	if !s.Contains(a) {
		t.Error("expected set to contain group:default/a")
	}
}

func TestRefSetPreservesInsertionOrder(t *testing.T) {
	s := NewRefSet(
		Ref{Kind: "group", Namespace: "default", Name: "c"},
		Ref{Kind: "group", Namespace: "default", Name: "a"},
		Ref{Kind: "group", Namespace: "default", Name: "b"},
		Ref{Kind: "group", Namespace: "default", Name: "a"},
	)

	want := []string{"group:default/c", "group:default/a", "group:default/b"}
	got := s.Strings()
	if len(got) != len(want) {
		t.Fatalf("expected %d elements, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRefSetUnion(t *testing.T) {
	a := NewRefSet(Ref{Kind: "group", Name: "a"}, Ref{Kind: "group", Name: "b"})
	b := NewRefSet(Ref{Kind: "group", Name: "b"}, Ref{Kind: "group", Name: "c"})

	a.Union(b)
	if a.Len() != 3 {
		t.Errorf("expected 3 elements after union, got %d", a.Len())
	}
	if !a.Contains(Ref{Kind: "group", Name: "c"}) {
		t.Error("expected union to contain group:default/c")
	}

	// Union with nil is a no-op.
	a.Union(nil)
	if a.Len() != 3 {
		t.Errorf("expected 3 elements, got %d", a.Len())
	}
}
