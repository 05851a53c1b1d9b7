package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestPluginsDoNotImportInternal enforces that rule packs, including their
// tests, never import carerules/internal packages. Engine and host wiring is
// reached only through the ruleapi capabilities.
func TestPluginsDoNotImportInternal(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("cannot get working dir: %v", err)
	}

	root := wd // this file lives in the plugins directory

	forbidden := "carerules/internal"

	var violations []string

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error { //nolint:wrapcheck
		if err != nil { // propagate filesystem errors
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		// Ignore this test file itself just in case
		if path == filepath.Join(root, "architecture_test.go") {
			return nil
		}

		// #nosec G304 -- path comes from WalkDir over .go files under plugins.
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		lines := strings.Split(string(data), "\n")
		inImport := false
		for _, raw := range lines {
			line := strings.TrimSpace(raw)
			if !inImport {
				if strings.HasPrefix(line, "import (") {
					inImport = true
					continue
				}
				if strings.HasPrefix(line, "import ") { // single import form
					if q := extractQuoted(line); isForbidden(q, forbidden) {
						violations = append(violations, path)
					}
				}
				continue
			}
			// inside import block
			if line == ")" {
				inImport = false
				continue
			}
			if q := extractQuoted(line); isForbidden(q, forbidden) {
				violations = append(violations, path)
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk plugins dir: %v", walkErr)
	}

	if len(violations) > 0 {
		for _, v := range violations {
			t.Errorf("plugin file imports forbidden %s: %s", forbidden, v)
		}
	}
}

func isForbidden(importPath, prefix string) bool {
	return importPath == prefix || strings.HasPrefix(importPath, prefix+"/")
}

// extractQuoted returns the first double-quoted string on line.
func extractQuoted(line string) string {
	start := strings.Index(line, "\"")
	if start == -1 {
		return ""
	}
	end := strings.Index(line[start+1:], "\"")
	if end == -1 {
		return ""
	}
	return line[start+1 : start+1+end]
}
