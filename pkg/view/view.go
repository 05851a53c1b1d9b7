// Package view defines the simplified, acyclic projection of a domain object
// that rule and validator handlers read and mutate. A View is tagged by its
// type discriminator and records the schema lineage it was built from, so
// handlers can test ancestry without a catalog. Participations and
// relationships are indexed by role and kind name; each Link carries both
// the raw key and, when the host loaded it, the materialized nested View.
package view

import (
	"slices"
	"sort"
	"strconv"
	"time"

	"carerules/pkg/domain"
)

// View is a simplified domain object.
type View struct {
	typ            string
	family         domain.Family
	lineage        []string
	id             string
	createdAt      time.Time
	updatedAt      time.Time
	fields         map[string]any
	participations map[string][]*Link
	relationships  map[string][]*Link
	tags           map[string]any
	transient      map[string]any
	nextSeq        uint64
}

// Link is a participation or relationship edge. Key is authoritative for
// identity; Model is nil when the referenced object was not loaded or the
// depth bound was reached.
type Link struct {
	Key        string
	Model      *View
	Quantity   *float64
	Attributes map[string]any

	// seq is the insertion position within the owning view; zero means the
	// link was never added through AddParticipation or AddRelationship.
	seq uint64
}

// Edge pairs a link with the role or kind it is registered under.
type Edge struct {
	Name string
	Link *Link
}

// New constructs an empty view. ancestors lists the parent types nearest
// first; they drive IsA.
func New(typ string, family domain.Family, ancestors ...string) *View {
	return &View{
		typ:     typ,
		family:  family,
		lineage: append([]string{typ}, ancestors...),
	}
}

// Type returns the type discriminator.
func (v *View) Type() string { return v.typ }

// Family returns the entity family.
func (v *View) Family() domain.Family { return v.family }

// Lineage returns the type followed by its ancestors, nearest first.
func (v *View) Lineage() []string { return slices.Clone(v.lineage) }

// IsA reports whether the view's type equals typ or derives from it.
func (v *View) IsA(typ string) bool {
	if v == nil {
		return false
	}
	if v.typ == typ {
		return true
	}
	return slices.Contains(v.lineage, typ)
}

// ID returns the identifier.
func (v *View) ID() string { return v.id }

// SetID assigns the identifier.
func (v *View) SetID(id string) { v.id = id }

// Timestamps returns the creation and last update times.
func (v *View) Timestamps() (created, updated time.Time) { return v.createdAt, v.updatedAt }

// SetTimestamps assigns the creation and last update times.
func (v *View) SetTimestamps(created, updated time.Time) {
	v.createdAt, v.updatedAt = created, updated
}

// Get returns a domain field value.
func (v *View) Get(name string) (any, bool) {
	val, ok := v.fields[name]
	return val, ok
}

// Set assigns a domain field value. Fields the schema does not define for
// the view's type are dropped on expand.
func (v *View) Set(name string, value any) {
	if v.fields == nil {
		v.fields = make(map[string]any)
	}
	v.fields[name] = value
}

// Delete removes a field.
func (v *View) Delete(name string) { delete(v.fields, name) }

// FieldNames returns the populated field names in sorted order.
func (v *View) FieldNames() []string {
	out := make([]string, 0, len(v.fields))
	for k := range v.fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String returns a field as a string, or "" when absent or not textual.
func (v *View) String(name string) string {
	switch val := v.fields[name].(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return ""
	}
}

// Float returns a numeric field as float64.
func (v *View) Float(name string) (float64, bool) {
	return toFloat(v.fields[name])
}

// Time returns a time field. RFC3339 strings and dates (2006-01-02) are
// accepted alongside time.Time values.
func (v *View) Time(name string) (time.Time, bool) {
	switch val := v.fields[name].(type) {
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Bool returns a boolean field.
func (v *View) Bool(name string) bool {
	b, _ := v.fields[name].(bool)
	return b
}

// Participation returns the links registered under role.
func (v *View) Participation(role string) []*Link { return v.participations[role] }

// Participant returns the first non-nil link for role.
func (v *View) Participant(role string) (*Link, bool) {
	for _, link := range v.participations[role] {
		if link != nil {
			return link, true
		}
	}
	return nil, false
}

// Player returns the materialized model of the first participation for role.
func (v *View) Player(role string) (*View, bool) {
	link, ok := v.Participant(role)
	if !ok || link.Model == nil {
		return nil, false
	}
	return link.Model, true
}

// AddParticipation appends a link under role. Nil links are ignored.
func (v *View) AddParticipation(role string, link *Link) {
	if link == nil {
		return
	}
	if v.participations == nil {
		v.participations = make(map[string][]*Link)
	}
	v.stamp(link)
	v.participations[role] = append(v.participations[role], link)
}

// RemoveParticipation drops every link under role.
func (v *View) RemoveParticipation(role string) { delete(v.participations, role) }

// Roles returns the participation roles in sorted order.
func (v *View) Roles() []string { return sortedKeys(v.participations) }

// Relationship returns the links registered under kind.
func (v *View) Relationship(kind string) []*Link { return v.relationships[kind] }

// AddRelationship appends a link under kind. Nil links are ignored.
func (v *View) AddRelationship(kind string, link *Link) {
	if link == nil {
		return
	}
	if v.relationships == nil {
		v.relationships = make(map[string][]*Link)
	}
	v.stamp(link)
	v.relationships[kind] = append(v.relationships[kind], link)
}

// Kinds returns the relationship kinds in sorted order.
func (v *View) Kinds() []string { return sortedKeys(v.relationships) }

// ParticipationEdges returns every non-nil participation in the order it was
// added, across roles. Links placed into a role slice directly come last.
func (v *View) ParticipationEdges() []Edge { return edges(v.participations) }

// RelationshipEdges returns every non-nil relationship in the order it was
// added, across kinds. Links placed into a kind slice directly come last.
func (v *View) RelationshipEdges() []Edge { return edges(v.relationships) }

func (v *View) stamp(link *Link) {
	v.nextSeq++
	link.seq = v.nextSeq
}

func edges(links map[string][]*Link) []Edge {
	var out []Edge
	for _, name := range sortedKeys(links) {
		for _, link := range links[name] {
			if link != nil {
				out = append(out, Edge{Name: name, Link: link})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Link.seq, out[j].Link.seq
		if a == 0 || b == 0 {
			return a != 0 && b == 0
		}
		return a < b
	})
	return out
}

// Tag returns a tag bag value.
func (v *View) Tag(key string) (any, bool) {
	val, ok := v.tags[key]
	return val, ok
}

// SetTag stores a tag bag value. Tags are persisted with the object.
func (v *View) SetTag(key string, value any) {
	if v.tags == nil {
		v.tags = make(map[string]any)
	}
	v.tags[key] = value
}

// Tags returns a copy of the tag bag.
func (v *View) Tags() map[string]any { return cloneMap(v.tags) }

// SetTransient stores a handler convenience value that never reaches
// persistence.
func (v *View) SetTransient(name string, value any) {
	if v.transient == nil {
		v.transient = make(map[string]any)
	}
	v.transient[name] = value
}

// Transient returns a convenience value.
func (v *View) Transient(name string) (any, bool) {
	val, ok := v.transient[name]
	return val, ok
}

// Clone returns a deep copy of the view tree.
func (v *View) Clone() *View {
	if v == nil {
		return nil
	}
	out := &View{
		typ:       v.typ,
		family:    v.family,
		lineage:   slices.Clone(v.lineage),
		id:        v.id,
		createdAt: v.createdAt,
		updatedAt: v.updatedAt,
		fields:    cloneMap(v.fields),
		tags:      cloneMap(v.tags),
		transient: cloneMap(v.transient),
		nextSeq:   v.nextSeq,
	}
	out.participations = cloneLinks(v.participations)
	out.relationships = cloneLinks(v.relationships)
	return out
}

// Clone returns a deep copy of the link.
func (l *Link) Clone() *Link {
	if l == nil {
		return nil
	}
	out := &Link{Key: l.Key, Model: l.Model.Clone(), Attributes: cloneMap(l.Attributes), seq: l.seq}
	if l.Quantity != nil {
		q := *l.Quantity
		out.Quantity = &q
	}
	return out
}

// SetQuantity assigns the relationship-scoped quantity.
func (l *Link) SetQuantity(q float64) { l.Quantity = &q }

func cloneLinks(in map[string][]*Link) map[string][]*Link {
	if in == nil {
		return nil
	}
	out := make(map[string][]*Link, len(in))
	for k, links := range in {
		cp := make([]*Link, len(links))
		for i, l := range links {
			cp[i] = l.Clone()
		}
		out[k] = cp
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = domain.CloneValue(v)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
