// Package transform converts between the persistence-oriented domain graph
// and the simplified views rule handlers operate on.
package transform

import (
	"carerules/pkg/domain"
	"carerules/pkg/view"
)

// DefaultMaxDepth bounds how many edges away from the root the simplifier
// materializes nested models.
const DefaultMaxDepth = 3

// Transformer simplifies and expands objects described by a schema catalog.
type Transformer struct {
	catalog  *domain.Catalog
	maxDepth int
}

// Option customises a Transformer.
type Option func(*Transformer)

// WithMaxDepth overrides the materialization depth. Values below zero are
// clamped to zero (root only).
func WithMaxDepth(depth int) Option {
	return func(t *Transformer) {
		if depth < 0 {
			depth = 0
		}
		t.maxDepth = depth
	}
}

// New constructs a transformer. A nil catalog selects domain.DefaultCatalog.
func New(catalog *domain.Catalog, opts ...Option) *Transformer {
	if catalog == nil {
		catalog = domain.DefaultCatalog()
	}
	t := &Transformer{catalog: catalog, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Catalog returns the schema catalog backing the transformer.
func (t *Transformer) Catalog() *domain.Catalog { return t.catalog }

// MaxDepth returns the materialization depth bound.
func (t *Transformer) MaxDepth() int { return t.maxDepth }

// Simplify projects obj into a view tree. Loaded references within the depth
// bound are materialized; unloaded references, references past the bound,
// and back-references to a node already on the path stay raw keys. The input
// is not mutated.
func (t *Transformer) Simplify(obj *domain.Object) (*view.View, error) {
	if obj == nil {
		return nil, domain.TransformError{Op: "simplify", Reason: "nil object"}
	}
	return t.simplify(obj, 0, make(map[*domain.Object]struct{}), make(map[string]struct{}))
}

func (t *Transformer) simplify(obj *domain.Object, depth int, onPath map[*domain.Object]struct{}, idsOnPath map[string]struct{}) (*view.View, error) {
	schema, err := t.schemaFor("simplify", obj.Type)
	if err != nil {
		return nil, err
	}
	v := view.New(obj.Type, schema.Family, t.catalog.Ancestors(obj.Type)...)
	v.SetID(obj.ID)
	v.SetTimestamps(obj.CreatedAt, obj.UpdatedAt)
	for name, val := range obj.Attributes {
		v.Set(name, domain.CloneValue(val))
	}
	for key, val := range obj.Tags {
		v.SetTag(key, domain.CloneValue(val))
	}

	onPath[obj] = struct{}{}
	if obj.ID != "" {
		idsOnPath[obj.ID] = struct{}{}
	}
	defer func() {
		delete(onPath, obj)
		if obj.ID != "" {
			delete(idsOnPath, obj.ID)
		}
	}()

	for _, p := range obj.Participations {
		link := &view.Link{Key: p.PlayerKey}
		if link.Key == "" && p.Player != nil {
			link.Key = p.Player.ID
		}
		if t.materialize(p.Player, depth, onPath, idsOnPath) {
			model, err := t.simplify(p.Player, depth+1, onPath, idsOnPath)
			if err != nil {
				return nil, err
			}
			link.Model = model
		}
		v.AddParticipation(p.Role, link)
	}
	for _, r := range obj.Relationships {
		link := &view.Link{Key: r.TargetKey}
		if link.Key == "" && r.Target != nil {
			link.Key = r.Target.ID
		}
		if r.Quantity != nil {
			link.SetQuantity(*r.Quantity)
		}
		if r.Attributes != nil {
			link.Attributes = domain.CloneValue(r.Attributes).(map[string]any)
		}
		if t.materialize(r.Target, depth, onPath, idsOnPath) {
			model, err := t.simplify(r.Target, depth+1, onPath, idsOnPath)
			if err != nil {
				return nil, err
			}
			link.Model = model
		}
		v.AddRelationship(r.Kind, link)
	}
	return v, nil
}

func (t *Transformer) materialize(ref *domain.Object, depth int, onPath map[*domain.Object]struct{}, idsOnPath map[string]struct{}) bool {
	if ref == nil || depth >= t.maxDepth {
		return false
	}
	if _, cyclic := onPath[ref]; cyclic {
		return false
	}
	if ref.ID != "" {
		if _, cyclic := idsOnPath[ref.ID]; cyclic {
			return false
		}
	}
	return true
}

func (t *Transformer) schemaFor(op, typ string) (domain.Schema, error) {
	if typ == "" {
		return domain.Schema{}, domain.TransformError{Op: op, Reason: "missing type discriminator"}
	}
	schema, ok := t.catalog.Lookup(typ)
	if !ok {
		return domain.Schema{}, domain.TransformError{Op: op, Type: typ, Reason: "unrecognized type discriminator"}
	}
	return schema, nil
}
