// Package testutil holds test helpers that keep the package layering honest:
// the domain model stays free of internal packages, the query layer stays pure
// and the store never reaches into persistence drivers.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Predicate reports whether an import path is forbidden.
type Predicate func(importPath string) bool

// AssertNoTransitiveDependency loads pattern (relative to dir) with
// go/packages and fails if any package in its dependency graph matches
// forbidden.
func AssertNoTransitiveDependency(t testing.TB, dir, pattern string, forbidden Predicate, reason string) {
	t.Helper()
	deps, err := loadDeps(dir, pattern)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	failIf(t, "forbidden transitive dependency", reason, matching(deps, forbidden))
}

// AssertNoDirectImports parses the non-test .go files in dir and fails if any
// import matches forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	failIf(t, "forbidden direct imports", reason, viols)
}

// InternalImportForbidden matches any path under an internal/ tree.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// PackageForbidden matches the named package and its subpackages, e.g.
// PackageForbidden("internal/store") matches classledger/internal/store.
func PackageForbidden(suffixes ...string) Predicate {
	return func(path string) bool {
		for _, s := range suffixes {
			if strings.HasSuffix(path, "/"+s) || strings.Contains(path, "/"+s+"/") {
				return true
			}
		}
		return false
	}
}

// AnyOf combines predicates.
func AnyOf(preds ...Predicate) Predicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

var loadDeps = func(dir, pattern string) ([]string, error) {
	cfg := &packages.Config{Dir: dir, Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	roots, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, err
	}
	var (
		paths []string
		errs  []string
	)
	packages.Visit(roots, nil, func(p *packages.Package) {
		paths = append(paths, p.PkgPath)
		for _, e := range p.Errors {
			errs = append(errs, e.Error())
		}
	})
	if len(errs) > 0 {
		return nil, fmt.Errorf("package errors:\n%s", strings.Join(errs, "\n"))
	}
	return paths, nil
}

func matching(paths []string, forbidden Predicate) []string {
	var out []string
	for _, p := range paths {
		if forbidden(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func directImportViolations(dir string, forbidden Predicate) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIf(t fatalLogger, what, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("%s (%s):\n%s", what, reason, strings.Join(viols, "\n"))
	}
}
