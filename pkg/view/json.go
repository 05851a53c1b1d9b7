package view

import (
	"encoding/json"
	"fmt"
)

// Reserved keys in the serialized view. Every other top-level key is a field.
const (
	keyType          = "$type"
	keyID            = "id"
	keyParticipation = "participation"
	keyRelationship  = "relationship"
	keyTag           = "tag"
	keyTransient     = "$transient"
	keyCreatedAt     = "createdAt"
	keyUpdatedAt     = "updatedAt"
)

type linkJSON struct {
	Player      string         `json:"player,omitempty"`
	PlayerModel *View          `json:"playerModel,omitempty"`
	Target      string         `json:"target,omitempty"`
	TargetModel *View          `json:"targetModel,omitempty"`
	Quantity    *float64       `json:"quantity,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// MarshalJSON encodes the view in its flattened wire shape: fields at the top
// level, participations as role -> [{player, playerModel}], relationships as
// kind -> [{target, targetModel, quantity}].
func (v *View) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.fields)+6)
	for k, val := range v.fields {
		out[k] = val
	}
	out[keyType] = v.typ
	if v.id != "" {
		out[keyID] = v.id
	}
	if !v.createdAt.IsZero() {
		out[keyCreatedAt] = v.createdAt
	}
	if !v.updatedAt.IsZero() {
		out[keyUpdatedAt] = v.updatedAt
	}
	if len(v.participations) > 0 {
		parts := make(map[string][]linkJSON, len(v.participations))
		for role, links := range v.participations {
			for _, l := range links {
				if l == nil {
					continue
				}
				parts[role] = append(parts[role], linkJSON{Player: l.Key, PlayerModel: l.Model, Quantity: l.Quantity, Attributes: l.Attributes})
			}
		}
		out[keyParticipation] = parts
	}
	if len(v.relationships) > 0 {
		rels := make(map[string][]linkJSON, len(v.relationships))
		for kind, links := range v.relationships {
			for _, l := range links {
				if l == nil {
					continue
				}
				rels[kind] = append(rels[kind], linkJSON{Target: l.Key, TargetModel: l.Model, Quantity: l.Quantity, Attributes: l.Attributes})
			}
		}
		out[keyRelationship] = rels
	}
	if len(v.tags) > 0 {
		out[keyTag] = v.tags
	}
	if len(v.transient) > 0 {
		out[keyTransient] = v.transient
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the flattened wire shape. Lineage and family are not
// part of the wire shape; a decoded view matches IsA only on its own type
// until it is rebuilt through the transformer.
func (v *View) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = View{}
	for k, msg := range raw {
		switch k {
		case keyType:
			if err := json.Unmarshal(msg, &v.typ); err != nil {
				return fmt.Errorf("decode %s: %w", keyType, err)
			}
			v.lineage = []string{v.typ}
		case keyID:
			if err := json.Unmarshal(msg, &v.id); err != nil {
				return fmt.Errorf("decode id: %w", err)
			}
		case keyCreatedAt:
			if err := json.Unmarshal(msg, &v.createdAt); err != nil {
				return fmt.Errorf("decode %s: %w", keyCreatedAt, err)
			}
		case keyUpdatedAt:
			if err := json.Unmarshal(msg, &v.updatedAt); err != nil {
				return fmt.Errorf("decode %s: %w", keyUpdatedAt, err)
			}
		case keyParticipation:
			if err := v.decodeLinks(msg, true); err != nil {
				return fmt.Errorf("decode participation: %w", err)
			}
		case keyRelationship:
			if err := v.decodeLinks(msg, false); err != nil {
				return fmt.Errorf("decode relationship: %w", err)
			}
		case keyTag:
			if err := json.Unmarshal(msg, &v.tags); err != nil {
				return fmt.Errorf("decode tag: %w", err)
			}
		case keyTransient:
			if err := json.Unmarshal(msg, &v.transient); err != nil {
				return fmt.Errorf("decode transient: %w", err)
			}
		default:
			var val any
			if err := json.Unmarshal(msg, &val); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			v.Set(k, val)
		}
	}
	if v.typ == "" {
		return fmt.Errorf("view missing %s", keyType)
	}
	return nil
}

// decodeLinks adds the decoded links in sorted name order; the wire shape
// does not carry ordering across roles or kinds.
func (v *View) decodeLinks(msg json.RawMessage, participation bool) error {
	var raw map[string][]linkJSON
	if err := json.Unmarshal(msg, &raw); err != nil {
		return err
	}
	for _, name := range sortedKeys(raw) {
		for _, item := range raw[name] {
			link := &Link{Quantity: item.Quantity, Attributes: item.Attributes}
			if participation {
				link.Key, link.Model = item.Player, item.PlayerModel
				v.AddParticipation(name, link)
			} else {
				link.Key, link.Model = item.Target, item.TargetModel
				v.AddRelationship(name, link)
			}
		}
	}
	return nil
}

// Fingerprint returns a canonical encoding used to detect in-place mutation.
func (v *View) Fingerprint() ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
