// Package lineage computes column-level data lineage for a single resolved,
// optimized relational plan.
//
// Extraction is a post-order traversal: every operator's output columns are
// mapped to the set of base table.column pairs they derive from, and the set
// of tables touched is accumulated in first-encounter order. Command roots
// (INSERT, CTAS, CREATE VIEW, MERGE, INSERT directory) additionally bind the
// propagated lineage to the destination schema.
//
// The traversal is pure: it mutates no shared state and performs no I/O
// beyond read-only lookups on the configured catalog.Catalog and
// catalog.CacheRegistry, so extracting lineage for many plans concurrently
// needs no coordination as long as each call owns its plan tree.
package lineage
