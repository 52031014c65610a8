//go:build governance

package plan_test

import (
	"go/types"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

const modulePath = "github.com/leapstack-labs/traceline"

// =============================================================================
// COHESION TEST - Plan types must be shared by multiple packages
// =============================================================================

// TestGovernance_PlanCohesion verifies that types in pkg/plan are genuinely
// shared across multiple packages. Single-use types should be moved to their
// sole consumer to maintain cohesion.
func TestGovernance_PlanCohesion(t *testing.T) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedTypes |
			packages.NeedTypesInfo | packages.NeedDeps,
	}
	pkgs, err := packages.Load(cfg, modulePath+"/...")
	if err != nil {
		t.Fatalf("Failed to load packages: %v", err)
	}

	// Find pkg/plan and collect exported types
	planDefs := make(map[types.Object]string)
	var planPkg *packages.Package

	for _, p := range pkgs {
		if p.PkgPath == modulePath+"/pkg/plan" {
			planPkg = p
			scope := p.Types.Scope()
			for _, name := range scope.Names() {
				obj := scope.Lookup(name)
				if obj.Exported() {
					planDefs[obj] = name
				}
			}
			break
		}
	}

	if planPkg == nil {
		t.Fatal("Could not find pkg/plan")
	}

	// Count usages: PlanTypeName -> set of importing packages
	usageMap := make(map[string]map[string]bool)
	for _, name := range planDefs {
		usageMap[name] = make(map[string]bool)
	}

	base := modulePath + "/"

	for _, p := range pkgs {
		// Skip plan itself and test packages
		if p.PkgPath == planPkg.PkgPath || strings.HasSuffix(p.PkgPath, "_test") {
			continue
		}
		if p.TypesInfo == nil {
			continue
		}

		for _, info := range p.TypesInfo.Uses {
			if name, exists := planDefs[info]; exists {
				importer := strings.TrimPrefix(p.PkgPath, base)
				usageMap[name][importer] = true
			}
		}
	}

	// Report violations
	for typeName, importers := range usageMap {
		if isCohesionAllowlisted(typeName) {
			continue
		}

		if len(importers) == 0 {
			t.Logf("WARNING: Unused Plan Type: %s (consider deleting)", typeName)
		} else if len(importers) == 1 {
			var user string
			for k := range importers {
				user = k
			}
			t.Errorf("COHESION VIOLATION: 'plan.%s' is used ONLY by '%s'.\n"+
				"   Fix: Move type from pkg/plan to %s.",
				typeName, user, user)
		}
	}
}

// isCohesionAllowlisted returns true for types allowed to have single usage.
func isCohesionAllowlisted(name string) bool {
	allowlist := map[string]bool{
		"Command":   true, // Interface - the binder is its sole consumer
		"Allocator": true, // Builders mint IDs in one place per host
	}
	return allowlist[name]
}

// =============================================================================
// PURITY TEST - No type alias re-exports from non-plan packages
// =============================================================================

// TestGovernance_NoTypeAliasReexports ensures packages don't re-export plan
// types as aliases. Consumers should name plan types directly.
func TestGovernance_NoTypeAliasReexports(t *testing.T) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedTypes,
	}
	pkgs, err := packages.Load(cfg, modulePath+"/pkg/...")
	if err != nil {
		t.Fatalf("Failed to load packages: %v", err)
	}

	// Packages that should NOT re-export plan types as aliases
	forbiddenAliasPatterns := map[string][]string{
		modulePath + "/pkg/lineage": {
			"Node", "Expr", "Column", "ColumnID", "QualifiedName",
			"Relation", "CachedRelation", "Project", "Filter", "Aggregate",
			"Join", "SetOp", "Window", "Expand", "SubqueryAlias",
			"ColumnRef", "Literal", "FuncCall", "AggCall", "CaseExpr",
			"ScalarSubquery", "ExistsSubquery", "InSubquery",
		},
		modulePath + "/pkg/catalog": {
			"Node", "QualifiedName", "Relation", "Column",
		},
	}

	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			continue
		}

		forbidden, isForbiddenPkg := forbiddenAliasPatterns[pkg.PkgPath]
		if !isForbiddenPkg {
			continue
		}

		forbiddenSet := make(map[string]bool)
		for _, name := range forbidden {
			forbiddenSet[name] = true
		}

		scope := pkg.Types.Scope()
		for _, name := range scope.Names() {
			obj := scope.Lookup(name)
			if !obj.Exported() {
				continue
			}

			if typeName, ok := obj.(*types.TypeName); ok {
				if typeName.IsAlias() && forbiddenSet[name] {
					t.Errorf("PURITY VIOLATION: Package '%s' re-exports type alias '%s'.\n"+
						"   Fix: Remove the alias. Consumers should use plan.%s directly.",
						strings.TrimPrefix(pkg.PkgPath, modulePath+"/"), name, name)
				}
			}
		}
	}
}
