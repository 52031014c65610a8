// Package plan defines the shared language of the traceline system: the
// typed representation of a resolved, optimized relational query plan.
//
// This package contains:
//   - Operator nodes (Relation, Project, Aggregate, Join, commands, ...)
//   - Expression trees (ColumnRef, FuncCall, AggCall, subqueries, ...)
//   - Column identity (ColumnID, Allocator)
//   - Qualified table names (QualifiedName)
//
// Plans are immutable values: hosts build a tree once (directly or through
// a decoder) and hand it to the lineage extractor. Nothing in this package
// parses SQL; the tree is assumed to come out of an external resolver and
// optimizer with every column reference already bound.
//
// The Golden Rule: pkg/plan imports ONLY the standard library.
// All other packages depend on plan, not the reverse.
package plan
