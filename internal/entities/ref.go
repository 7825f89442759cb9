package entities

import (
	"fmt"
	"strings"
)

// DefaultNamespace is the namespace assumed when a reference omits one.
const DefaultNamespace = "default"

// Ref identifies a catalog entity by kind, namespace and name.
// Example: group:default/team-platform
type Ref struct {
	Kind      string
	Namespace string
	Name      string
}

// String returns the canonical string form of the reference:
// lowercase(kind):lowercase(namespace)/lowercase(name).
// Two references denote the same entity iff their canonical forms are equal.
func (r Ref) String() string {
	ns := r.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return fmt.Sprintf("%s:%s/%s",
		strings.ToLower(r.Kind), strings.ToLower(ns), strings.ToLower(r.Name))
}

// KindEquals reports whether the reference's kind matches the given kind,
// ignoring case. Kinds are stored case-sensitively on entities but compare
// case-insensitively in references.
func (r Ref) KindEquals(kind string) bool {
	return strings.EqualFold(r.Kind, kind)
}

// Validate checks that the reference has all required parts.
func (r Ref) Validate() error {
	if r.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ParseRef parses a reference string of the form [kind:][namespace/]name.
// Kind falls back to defaultKind when omitted; an empty defaultKind makes the
// kind mandatory. The namespace falls back to "default".
func ParseRef(s string, defaultKind string) (Ref, error) {
	ref := Ref{Kind: defaultKind, Namespace: DefaultNamespace}

	rest := s
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		ref.Kind = rest[:i]
		rest = rest[i+1:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		ref.Namespace = rest[:i]
		rest = rest[i+1:]
	}
	ref.Name = rest

	if ref.Kind == "" {
		return Ref{}, fmt.Errorf("invalid entity reference %q: kind is missing and no default was supplied", s)
	}
	if ref.Namespace == "" {
		return Ref{}, fmt.Errorf("invalid entity reference %q: namespace is empty", s)
	}
	if ref.Name == "" {
		return Ref{}, fmt.Errorf("invalid entity reference %q: name is empty", s)
	}

	ref.Kind = strings.ToLower(ref.Kind)
	ref.Namespace = strings.ToLower(ref.Namespace)
	ref.Name = strings.ToLower(ref.Name)
	return ref, nil
}

// HumanizeRef returns a short display form of the reference: the default
// namespace is dropped, and the kind is dropped when it matches defaultKind.
// The result is lossy and must not be parsed back into a Ref.
func HumanizeRef(r Ref, defaultKind string) string {
	ns := strings.ToLower(r.Namespace)
	name := strings.ToLower(r.Name)
	kind := strings.ToLower(r.Kind)

	out := name
	if ns != "" && ns != DefaultNamespace {
		out = ns + "/" + name
	}
	if kind != strings.ToLower(defaultKind) {
		out = kind + ":" + out
	}
	return out
}
