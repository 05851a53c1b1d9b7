// Package validation lints rule pack sources for patterns that bypass the
// capabilities and typed accessors handed to rule handlers.
package validation

import (
	"bufio"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Error is a lint finding in rule pack code.
type Error struct {
	File    string
	Line    int
	Message string
	Code    string
}

type antiPattern struct {
	re      *regexp.Regexp
	message string
}

var antiPatterns = []antiPattern{
	{regexp.MustCompile(`\bos\.(ReadFile|Open|OpenFile|Getenv|LookupEnv)\(`), "Load reference data through caps.Assets instead of the filesystem or environment"},
	{regexp.MustCompile(`\bhttp\.(Get|Post|Head|NewRequest|NewRequestWithContext|DefaultClient)\b`), "Rule handlers must not reach the network; expose the data as an asset"},
	{regexp.MustCompile(`\bsql\.Open\(`), "Use caps.Repository instead of opening a database"},
	{regexp.MustCompile(`\.(Get|String|Float|Time)\("(typeConcept|value|unitOfMeasure|actTime|dateOfBirth|genderConcept|interpretationConcept|quantity)"\)`), "Use the typed family accessors in package view"},
	{regexp.MustCompile(`"(RecordTarget|Location|Consumable|Author|Product|Performer)"`), "Use the view.Role* constants instead of raw role names"},
	{regexp.MustCompile(`"(OwnedEntity|Mother|DedicatedServiceDeliveryLocation|ManufacturedProduct)"`), "Use the view.Relationship* constants instead of raw relationship kinds"},
}

// ValidatePluginDirectory lints every non-test Go file below dir.
func ValidatePluginDirectory(dir string) []Error {
	var errs []Error

	err := filepath.Walk(dir, func(path string, _ os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		errs = append(errs, validatePluginFile(path)...)
		return nil
	})
	if err != nil {
		errs = append(errs, Error{File: dir, Message: "Failed to walk directory: " + err.Error()})
	}

	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].File != errs[j].File {
			return errs[i].File < errs[j].File
		}
		return errs[i].Line < errs[j].Line
	})
	return errs
}

func validatePluginFile(filePath string) []Error {
	errs := validateFileText(filePath)
	return append(errs, validateFileAST(filePath)...)
}

func validateFileText(filePath string) []Error {
	file, err := os.Open(filepath.Clean(filePath))
	if err != nil {
		return []Error{{File: filePath, Message: "Failed to open file: " + err.Error()}}
	}
	defer func() {
		_ = file.Close()
	}()

	var errs []Error
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || isCommentLine(line) {
			continue
		}
		for _, p := range antiPatterns {
			if p.re.MatchString(line) {
				errs = append(errs, Error{
					File:    filePath,
					Line:    lineNum,
					Message: p.message,
					Code:    strings.TrimSpace(line),
				})
			}
		}
	}
	return errs
}

func validateFileAST(filePath string) []Error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, nil, 0)
	if err != nil {
		// unparseable files are left to the compiler
		return nil
	}

	var errs []Error
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if ok && fn.Recv == nil && fn.Name.Name == "init" {
			errs = append(errs, errorAt(fset, fn.Pos(), "Register rules from Plugin.Register, not from init", "func init()"))
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		switch {
		case isIdentCall(call, "panic"):
			errs = append(errs, errorAt(fset, call.Pos(), "Return an error instead of panicking inside a handler", "panic(...)"))
		case isSelectorCall(call, "time", "Now"):
			errs = append(errs, errorAt(fset, call.Pos(), "Derive times from the object (actTime) so rules stay repeatable", "time.Now()"))
		}
		return true
	})
	return errs
}

func errorAt(fset *token.FileSet, pos token.Pos, message, code string) Error {
	p := fset.Position(pos)
	return Error{File: p.Filename, Line: p.Line, Message: message, Code: code}
}

func isIdentCall(call *ast.CallExpr, name string) bool {
	ident, ok := call.Fun.(*ast.Ident)
	return ok && ident.Name == name
}

func isSelectorCall(call *ast.CallExpr, pkg, name string) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != name {
		return false
	}
	ident, ok := sel.X.(*ast.Ident)
	return ok && ident.Name == pkg
}

func isCommentLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*")
}
