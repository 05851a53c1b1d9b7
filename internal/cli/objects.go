package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"carerules/pkg/domain"
)

func hasYAMLExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// readObject loads a domain object from path, or from stdin when path is
// "-" or empty. YAML fixtures are accepted alongside JSON.
func readObject(path string, stdin io.Reader) (*domain.Object, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) // #nosec G304 -- operator-supplied fixture path
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return decodeObject(data, hasYAMLExt(path))
}

func decodeObject(data []byte, isYAML bool) (*domain.Object, error) {
	if isYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml object: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("decode yaml object: %w", err)
		}
		data = converted
	}
	var obj domain.Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	if obj.Type == "" {
		return nil, fmt.Errorf("decode object: missing $type")
	}
	return &obj, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
