// Command rulepack-lint reports rule pack code that bypasses the handler
// capabilities or the typed view accessors.
package main

import (
	"fmt"
	"io"
	"os"

	"carerules/internal/validation"
)

func main() {
	os.Exit(run(os.Args, os.Stderr, validation.ValidatePluginDirectory))
}

func run(args []string, stderr io.Writer, validate func(string) []validation.Error) int {
	if len(args) < 2 {
		progName := "rulepack-lint"
		if len(args) > 0 {
			progName = args[0]
		}
		_, _ = fmt.Fprintf(stderr, "Usage: %s <rule-pack-directory>...\n", progName)
		return 1
	}

	var found []validation.Error
	for _, dir := range args[1:] {
		found = append(found, validate(dir)...)
	}
	if len(found) == 0 {
		return 0
	}

	if _, err := fmt.Fprintf(stderr, "Found %d rule pack violations:\n\n", len(found)); err != nil {
		return 1
	}
	for _, e := range found {
		if _, err := fmt.Fprintf(stderr, "%s:%d\n   %s\n   Code: %s\n\n", e.File, e.Line, e.Message, e.Code); err != nil {
			return 1
		}
	}
	return 1
}
