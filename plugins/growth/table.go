package growth

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Band is the normal range for one age index.
type Band struct {
	ZMinus2 float64 `yaml:"zMinus2"`
	ZPlus2  float64 `yaml:"zPlus2"`
}

// Interpret maps a value onto the below, normal or above range concept.
func (b Band) Interpret(value float64) string {
	switch {
	case value < b.ZMinus2:
		return ConceptBelowRange
	case value > b.ZPlus2:
		return ConceptAboveRange
	default:
		return ConceptNormal
	}
}

// Table maps an age in whole months to its reference band. Assets may be a
// sequence indexed by month or a mapping keyed by month; JSON documents
// decode through the same path.
type Table map[int]Band

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Table) UnmarshalYAML(node *yaml.Node) error {
	out := make(Table)
	switch node.Kind {
	case yaml.SequenceNode:
		for i, item := range node.Content {
			var b Band
			if err := item.Decode(&b); err != nil {
				return fmt.Errorf("month %d: %w", i, err)
			}
			out[i] = b
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			month, err := strconv.Atoi(key)
			if err != nil {
				return fmt.Errorf("line %d: month key %q is not an integer", node.Content[i].Line, key)
			}
			var b Band
			if err := node.Content[i+1].Decode(&b); err != nil {
				return fmt.Errorf("month %d: %w", month, err)
			}
			out[month] = b
		}
	default:
		return fmt.Errorf("line %d: reference table must be a sequence or mapping", node.Line)
	}
	*t = out
	return nil
}

// ParseTable decodes a reference table asset.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse reference table: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("parse reference table: empty document")
	}
	return t, nil
}
