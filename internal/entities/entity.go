package entities

// Well-known entity kinds. Kinds are case-sensitive domain values; only Group
// and User get special treatment during ownership resolution.
const (
	KindGroup     = "Group"
	KindUser      = "User"
	KindComponent = "Component"
	KindAPI       = "API"
	KindSystem    = "System"
)

// Relation type vocabulary. Direction is source entity -> target reference.
const (
	RelationMemberOf  = "memberOf"
	RelationHasMember = "hasMember"
	RelationParentOf  = "parentOf"
	RelationChildOf   = "childOf"
	RelationOwnedBy   = "ownedBy"
	RelationOwnerOf   = "ownerOf"
)

// Relation is a typed edge from the entity holding it to a target entity.
type Relation struct {
	Type      string `json:"type"`
	TargetRef string `json:"targetRef"`
}

// Entity is a catalog entity record, carrying only the fields this service
// requests from the catalog: identity, the optional spec.type, and relations.
type Entity struct {
	Kind      string     `json:"kind"`
	Namespace string     `json:"namespace"`
	Name      string     `json:"name"`
	Type      string     `json:"type,omitempty"` // spec.type; empty = absent
	Relations []Relation `json:"relations,omitempty"`
}

// Ref returns the entity's own reference.
func (e *Entity) Ref() Ref {
	return Ref{Kind: e.Kind, Namespace: e.Namespace, Name: e.Name}
}

// RelationsOf extracts the target references of all relations of the given
// type whose target is of the given kind. An empty targetKind matches any
// kind. This is a local operation on an already loaded entity, no catalog
// call is made.
func RelationsOf(e *Entity, relationType string, targetKind string) []Ref {
	var refs []Ref
	for _, rel := range e.Relations {
		if rel.Type != relationType {
			continue
		}
		target, err := ParseRef(rel.TargetRef, "")
		if err != nil {
			// Malformed relation targets are skipped, same as unresolvable ones.
			continue
		}
		if targetKind != "" && !target.KindEquals(targetKind) {
			continue
		}
		refs = append(refs, target)
	}
	return refs
}
