package transform

import (
	"fmt"

	"carerules/pkg/domain"
	"carerules/pkg/view"
)

// Expand reconstitutes a domain object from v. targetType must equal the
// view's type or be one of its schema ancestors; the expanded object keeps
// the view's own type. Fields outside the schema and transient values are
// dropped. A link key is authoritative for identity: when a handler replaced
// a nested model, the expanded player or target takes the link key as its id.
// Participations and relationships are emitted in the order they were added
// to the view, so links a handler appended follow the simplified ones.
func (t *Transformer) Expand(v *view.View, targetType string) (*domain.Object, error) {
	if v == nil {
		return nil, domain.TransformError{Op: "expand", Type: targetType, Reason: "nil view"}
	}
	if _, err := t.schemaFor("expand", targetType); err != nil {
		return nil, err
	}
	if _, err := t.schemaFor("expand", v.Type()); err != nil {
		return nil, err
	}
	if !t.catalog.IsA(v.Type(), targetType) {
		return nil, domain.TransformError{
			Op:     "expand",
			Type:   targetType,
			Reason: fmt.Sprintf("view type %s is not a %s", v.Type(), targetType),
		}
	}
	return t.expand(v, "")
}

func (t *Transformer) expand(v *view.View, keyOverride string) (*domain.Object, error) {
	if _, err := t.schemaFor("expand", v.Type()); err != nil {
		return nil, err
	}
	obj := &domain.Object{Type: v.Type()}
	obj.ID = v.ID()
	if keyOverride != "" {
		obj.ID = keyOverride
	}
	obj.CreatedAt, obj.UpdatedAt = v.Timestamps()

	fields := t.catalog.Fields(v.Type())
	for _, name := range v.FieldNames() {
		if _, ok := fields[name]; !ok {
			continue
		}
		val, _ := v.Get(name)
		obj.SetAttribute(name, domain.CloneValue(val))
	}
	if tags := v.Tags(); len(tags) > 0 {
		obj.Tags = tags
	}

	for _, edge := range v.ParticipationEdges() {
		link := edge.Link
		p := domain.Participation{Role: edge.Name, PlayerKey: linkKey(link)}
		if link.Model != nil {
			player, err := t.expand(link.Model, p.PlayerKey)
			if err != nil {
				return nil, err
			}
			p.Player = player
		}
		obj.Participations = append(obj.Participations, p)
	}
	for _, edge := range v.RelationshipEdges() {
		link := edge.Link
		r := domain.Relationship{Kind: edge.Name, TargetKey: linkKey(link)}
		if link.Quantity != nil {
			q := *link.Quantity
			r.Quantity = &q
		}
		if link.Attributes != nil {
			r.Attributes = domain.CloneValue(link.Attributes).(map[string]any)
		}
		if link.Model != nil {
			target, err := t.expand(link.Model, r.TargetKey)
			if err != nil {
				return nil, err
			}
			r.Target = target
		}
		obj.Relationships = append(obj.Relationships, r)
	}
	return obj, nil
}

func linkKey(link *view.Link) string {
	if link.Key != "" {
		return link.Key
	}
	if link.Model != nil {
		return link.Model.ID()
	}
	return ""
}
