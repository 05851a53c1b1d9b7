package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/PaesslerAG/jsonpath"
)

// writeResult prints v as JSON, or only the part selected by a JSONPath
// query such as $.object.attributes.interpretationConcept.
func writeResult(w io.Writer, v any, query string) error {
	if query == "" {
		return writeJSON(w, v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	selected, err := jsonpath.Get(query, doc)
	if err != nil {
		return fmt.Errorf("query %s: %w", query, err)
	}
	return writeJSON(w, selected)
}
