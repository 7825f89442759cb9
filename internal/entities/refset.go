package entities

// RefSet is an insertion-ordered set of entity references, deduplicated by
// canonical string form. Insertion order is preserved so that anything derived
// from the set (owner filters, query strings) is deterministic.
//
// RefSet is not safe for concurrent use; callers that share one across
// goroutines must synchronize externally.
type RefSet struct {
	index map[string]struct{}
	order []Ref
}

// NewRefSet creates a RefSet containing the given references, in order.
func NewRefSet(refs ...Ref) *RefSet {
	s := &RefSet{index: make(map[string]struct{}, len(refs))}
	for _, r := range refs {
		s.Add(r)
	}
	return s
}

// Add inserts the reference. It reports whether the reference was newly added.
func (s *RefSet) Add(r Ref) bool {
	key := r.String()
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = struct{}{}
	s.order = append(s.order, r)
	return true
}

// Contains reports whether the reference is in the set.
func (s *RefSet) Contains(r Ref) bool {
	_, ok := s.index[r.String()]
	return ok
}

// Len returns the number of references in the set.
func (s *RefSet) Len() int {
	return len(s.order)
}

// Refs returns the references in insertion order. The returned slice is
// shared with the set and must not be modified.
func (s *RefSet) Refs() []Ref {
	return s.order
}

// Strings returns the canonical string form of every reference, in insertion
// order.
func (s *RefSet) Strings() []string {
	out := make([]string, 0, len(s.order))
	for _, r := range s.order {
		out = append(out, r.String())
	}
	return out
}

// Union adds every reference from other and returns the receiver.
func (s *RefSet) Union(other *RefSet) *RefSet {
	if other == nil {
		return s
	}
	for _, r := range other.order {
		s.Add(r)
	}
	return s
}

// Clone returns an independent copy of the set with the same order.
func (s *RefSet) Clone() *RefSet {
	return NewRefSet(s.order...)
}
