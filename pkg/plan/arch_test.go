package plan_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestPlanImportsOnly verifies pkg/plan only imports allowed packages.
// The Golden Rule: pkg/plan imports ONLY the standard library.
func TestPlanImportsOnly(t *testing.T) {
	fset := token.NewFileSet()

	// Find the plan package directory relative to test location
	planDir := "."

	entries, err := os.ReadDir(planDir)
	if err != nil {
		t.Fatalf("Failed to read plan directory: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") {
			continue
		}
		// Skip test files
		if strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		path := filepath.Join(planDir, entry.Name())
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			t.Errorf("Failed to parse %s: %v", path, err)
			continue
		}

		for _, imp := range f.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)

			// Stdlib import paths carry no dot
			if !strings.Contains(importPath, ".") {
				continue
			}

			t.Errorf("%s imports forbidden package: %s", entry.Name(), importPath)
		}
	}
}

// TestPlanDoesNotImportInternal verifies pkg/plan doesn't import any internal packages.
func TestPlanDoesNotImportInternal(t *testing.T) {
	fset := token.NewFileSet()
	planDir := "."

	entries, err := os.ReadDir(planDir)
	if err != nil {
		t.Fatalf("Failed to read plan directory: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") {
			continue
		}
		if strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		path := filepath.Join(planDir, entry.Name())
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			t.Errorf("Failed to parse %s: %v", path, err)
			continue
		}

		for _, imp := range f.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)

			if strings.Contains(importPath, "/internal/") {
				t.Errorf("%s imports internal package: %s (plan must not import internal packages)", entry.Name(), importPath)
			}
		}
	}
}
