package testutil

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// AssertExportedDocumented parses the non-test .go files in dir and fails
// when an exported top-level declaration has no doc comment. In a
// parenthesised const or var block the block comment covers every name,
// unless some names carry their own comment: then all exported names must.
func AssertExportedDocumented(t testing.TB, dir string) {
	t.Helper()
	missing, err := undocumented(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	failIf(t, "undocumented exported identifiers", "exported API needs doc comments", missing)
}

func undocumented(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var missing []string
	report := func(name string, pos token.Pos) {
		missing = append(missing, name+" ("+fset.Position(pos).String()+")")
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ParseComments)
		if err != nil {
			return nil, err
		}
		for _, decl := range f.Decls {
			switch d := decl.(type) {
			case *ast.FuncDecl:
				if d.Name.IsExported() && d.Doc == nil {
					report(d.Name.Name, d.Pos())
				}
			case *ast.GenDecl:
				genDeclUndocumented(d, report)
			}
		}
	}
	return missing, nil
}

func genDeclUndocumented(d *ast.GenDecl, report func(string, token.Pos)) {
	if d.Tok == token.IMPORT {
		return
	}
	perSpec := false
	if d.Lparen.IsValid() {
		for _, s := range d.Specs {
			if specDoc(s) {
				perSpec = true
				break
			}
		}
	}
	for _, s := range d.Specs {
		documented := specDoc(s) || (d.Doc != nil && !perSpec)
		if documented {
			continue
		}
		switch s := s.(type) {
		case *ast.TypeSpec:
			if s.Name.IsExported() {
				report(s.Name.Name, s.Pos())
			}
		case *ast.ValueSpec:
			for _, n := range s.Names {
				if n.IsExported() {
					report(n.Name, n.Pos())
				}
			}
		}
	}
}

func specDoc(s ast.Spec) bool {
	switch s := s.(type) {
	case *ast.TypeSpec:
		return s.Doc != nil || s.Comment != nil
	case *ast.ValueSpec:
		return s.Doc != nil || s.Comment != nil
	}
	return false
}
