// Package testutil provides helpers that enforce import and dependency
// boundaries between packages, used by architecture guard tests.
package testutil

import (
	"bufio"
	"bytes"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoTransitiveDependency resolves `go list -deps` for pattern (e.g.
// "./..." or ".") and fails the test if any dependency path matches the
// forbidden predicate. The reason is included in the failure message.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	viols, out, err := transitiveDependencyViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("go list failed: %v\n%s", err, string(out))
	}
	failIfTransitiveViolations(t, reason, viols)
}

// AssertNoDirectImports parses the imports of every non-test .go file
// directly in dir (no recursion, build tags ignored) and fails if any import
// path matches the forbidden predicate.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfDirectViolations(t, reason, viols)
}

// DomainImportForbidden matches import paths that resolve to the domain package.
func DomainImportForbidden(path string) bool {
	return strings.HasSuffix(path, "/pkg/domain") || strings.Contains(path, "/pkg/domain@")
}

// InternalImportForbidden matches import paths with an /internal/ segment.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// goListDeps is a var so tests can substitute the toolchain invocation.
var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func transitiveDependencyViolations(pattern string, forbidden func(path string) bool) ([]string, []byte, error) {
	out, err := goListDeps(pattern)
	if err != nil {
		return nil, out, err
	}
	var viols []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		path := strings.TrimSpace(sc.Text())
		if path != "" && forbidden(path) {
			viols = append(viols, path)
		}
	}
	return viols, out, nil
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
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
		parsed, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range parsed.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfTransitiveViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden transitive dependency (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

func failIfDirectViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
