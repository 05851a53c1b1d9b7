package ruleapi

import (
	"testing"

	"carerules/testutil"
)

func TestRuleAPIDependsOnlyOnPublicPackages(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "rule packs build against the public contract")
	testutil.AssertNoTransitiveDependency(t, "carerules/pkg/ruleapi", testutil.PrefixForbidden("carerules/plugins"), "the contract must not depend on rule packs")
}
