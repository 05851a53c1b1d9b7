package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestPrefixForbiddenPredicate(t *testing.T) {
	forbidden := PrefixForbidden("carerules/internal")
	cases := []struct {
		in   string
		want bool
	}{
		{"carerules/internal", true},
		{"carerules/internal/core", true},
		{"carerules/internalize", false},
		{"carerules/pkg/domain", false},
	}
	for _, c := range cases {
		if got := forbidden(c.in); got != c.want {
			t.Fatalf("PrefixForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"example.com/mod/internal/x", true},
		{"example.com/mod/internal", true},
		{"example.com/mod/pkg/x", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func writeGo(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "ok.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n")
	writeGo(t, dir, "bad.go", "package tmp\nimport \"carerules/internal/core\"\nvar _ = core.NewEngine\n")
	writeGo(t, dir, "bad_test.go", "package tmp\nimport \"carerules/internal/cli\"\n")
	writeGo(t, dir, "notes.txt", "import \"carerules/internal/log\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	writeGo(t, filepath.Join(dir, "sub"), "sub.go", "package sub\nimport \"carerules/internal/log\"\n")

	viols, err := directImportViolations(dir, PrefixForbidden("carerules/internal"))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "carerules/internal/core (in bad.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}

	rec := &recordingFatal{}
	failIfDirectViolations(rec, "engine boundary", viols)
	if rec.msg == "" {
		t.Fatalf("expected failure to be reported")
	}

	if _, err := directImportViolations(filepath.Join(dir, "missing"), PrefixForbidden("x")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
	writeGo(t, dir, "broken.go", "package tmp\nimport (\n")
	if _, err := directImportViolations(dir, PrefixForbidden("x")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := loadPackages
	t.Cleanup(func() { loadPackages = orig })

	shared := &packages.Package{PkgPath: "carerules/internal/log"}
	root := &packages.Package{
		PkgPath: "carerules/pkg/view",
		Imports: map[string]*packages.Package{
			"carerules/pkg/domain":   {PkgPath: "carerules/pkg/domain", Imports: map[string]*packages.Package{"carerules/internal/log": shared}},
			"carerules/internal/log": shared,
		},
	}
	loadPackages = func(string) ([]*packages.Package, error) { return []*packages.Package{root}, nil }

	viols, err := transitiveDependencyViolations("carerules/pkg/view", PrefixForbidden("carerules/internal"))
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "carerules/internal/log" {
		t.Fatalf("expected a single deduplicated violation, got %v", viols)
	}
	rec := &recordingFatal{}
	failIfTransitiveViolations(rec, "pkg boundary", viols)
	if rec.msg == "" {
		t.Fatalf("expected failure to be reported")
	}

	loadPackages = func(string) ([]*packages.Package, error) { return nil, nil }
	if _, err := transitiveDependencyViolations("nothing/...", PrefixForbidden("x")); err == nil {
		t.Fatalf("expected error for empty match")
	}
	loadPackages = func(string) ([]*packages.Package, error) { return nil, errors.New("boom") }
	if _, err := transitiveDependencyViolations("x", PrefixForbidden("x")); err == nil {
		t.Fatalf("expected load error")
	}
}

func TestAssertNoTransitiveDependencyOnModule(t *testing.T) {
	AssertNoTransitiveDependency(t, "carerules/pkg/...", InternalImportForbidden, "public API must not depend on internal packages")
}
