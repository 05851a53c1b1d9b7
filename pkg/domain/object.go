// Package domain defines the persistence-oriented object graph, the schema
// catalog describing each entity type, and the issue and error primitives
// shared by the rule engine and its collaborators.
package domain

import (
	"maps"
	"slices"
	"time"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Object is a typed node in the denormalized domain graph. Participation
// players and relationship targets are lazily resolved: a nil Player/Target
// means the host has not loaded the referenced object, and only the key is
// known.
type Object struct {
	Base
	Type           string          `json:"$type"`
	Attributes     map[string]any  `json:"attributes,omitempty"`
	Participations []Participation `json:"participations,omitempty"`
	Relationships  []Relationship  `json:"relationships,omitempty"`
	Tags           map[string]any  `json:"tags,omitempty"`
}

// Participation links an act to another object through a role.
type Participation struct {
	Role      string  `json:"role"`
	PlayerKey string  `json:"player"`
	Player    *Object `json:"-"`
}

// Relationship links two entities through a relationship kind and may carry
// relationship-scoped attributes such as quantity.
type Relationship struct {
	Kind       string         `json:"kind"`
	TargetKey  string         `json:"target"`
	Target     *Object        `json:"-"`
	Quantity   *float64       `json:"quantity,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Resolved reports whether the participation player has been loaded.
func (p Participation) Resolved() bool { return p.Player != nil }

// Resolved reports whether the relationship target has been loaded.
func (r Relationship) Resolved() bool { return r.Target != nil }

// Attribute returns the named scalar attribute.
func (o *Object) Attribute(name string) (any, bool) {
	if o == nil || o.Attributes == nil {
		return nil, false
	}
	v, ok := o.Attributes[name]
	return v, ok
}

// SetAttribute assigns a scalar attribute, allocating the map on demand.
func (o *Object) SetAttribute(name string, value any) {
	if o.Attributes == nil {
		o.Attributes = make(map[string]any)
	}
	o.Attributes[name] = value
}

// Tag returns the value stored under key in the tag bag.
func (o *Object) Tag(key string) (any, bool) {
	if o == nil || o.Tags == nil {
		return nil, false
	}
	v, ok := o.Tags[key]
	return v, ok
}

// SetTag stores a cross-rule tag value.
func (o *Object) SetTag(key string, value any) {
	if o.Tags == nil {
		o.Tags = make(map[string]any)
	}
	o.Tags[key] = value
}

// ParticipationsByRole returns the participations carrying the given role in
// their original order.
func (o *Object) ParticipationsByRole(role string) []Participation {
	var out []Participation
	for _, p := range o.Participations {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// RelationshipsByKind returns the relationships of the given kind in their
// original order.
func (o *Object) RelationshipsByKind(kind string) []Relationship {
	var out []Relationship
	for _, r := range o.Relationships {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Clone returns a deep copy of the object. Referenced players and targets are
// cloned as well; shared references and back-references are preserved as
// shared pointers in the copy so cyclic graphs terminate.
func (o *Object) Clone() *Object {
	return cloneObject(o, make(map[*Object]*Object))
}

// Detach returns a deep copy of the object with every loaded reference
// dropped, keeping only keys. Repositories persist detached objects.
func (o *Object) Detach() *Object {
	if o == nil {
		return nil
	}
	out := &Object{
		Base:       o.Base,
		Type:       o.Type,
		Attributes: cloneValueMap(o.Attributes),
		Tags:       cloneValueMap(o.Tags),
	}
	if o.Participations != nil {
		out.Participations = make([]Participation, len(o.Participations))
		for i, p := range o.Participations {
			out.Participations[i] = Participation{Role: p.Role, PlayerKey: p.key()}
		}
	}
	if o.Relationships != nil {
		out.Relationships = make([]Relationship, len(o.Relationships))
		for i, r := range o.Relationships {
			out.Relationships[i] = Relationship{
				Kind:       r.Kind,
				TargetKey:  r.key(),
				Quantity:   cloneFloat(r.Quantity),
				Attributes: cloneValueMap(r.Attributes),
			}
		}
	}
	return out
}

func (p Participation) key() string {
	if p.PlayerKey == "" && p.Player != nil {
		return p.Player.ID
	}
	return p.PlayerKey
}

func (r Relationship) key() string {
	if r.TargetKey == "" && r.Target != nil {
		return r.Target.ID
	}
	return r.TargetKey
}

func cloneObject(o *Object, seen map[*Object]*Object) *Object {
	if o == nil {
		return nil
	}
	if cp, ok := seen[o]; ok {
		return cp
	}
	out := &Object{
		Base:       o.Base,
		Type:       o.Type,
		Attributes: cloneValueMap(o.Attributes),
		Tags:       cloneValueMap(o.Tags),
	}
	seen[o] = out
	if o.Participations != nil {
		out.Participations = make([]Participation, len(o.Participations))
		for i, p := range o.Participations {
			out.Participations[i] = Participation{
				Role:      p.Role,
				PlayerKey: p.PlayerKey,
				Player:    cloneObject(p.Player, seen),
			}
		}
	}
	if o.Relationships != nil {
		out.Relationships = make([]Relationship, len(o.Relationships))
		for i, r := range o.Relationships {
			out.Relationships[i] = Relationship{
				Kind:       r.Kind,
				TargetKey:  r.TargetKey,
				Target:     cloneObject(r.Target, seen),
				Quantity:   cloneFloat(r.Quantity),
				Attributes: cloneValueMap(r.Attributes),
			}
		}
	}
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// CloneValue deep copies JSON-shaped values (maps, slices, scalars).
func CloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneValueMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(typed)
	case map[string]string:
		return maps.Clone(typed)
	default:
		return v
	}
}

func cloneValueMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = CloneValue(v)
	}
	return out
}
