package domain

import (
	"testing"

	"carerules/testutil"
)

// TestDomainDoesNotImportModulePackages keeps the domain layer a leaf: the
// view, rule API, engine and backends all build on it, never the reverse.
func TestDomainDoesNotImportModulePackages(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.PrefixForbidden("carerules"), "domain is the dependency root")
}
