// Package planfile decodes plan documents: serialized resolved plans, as
// dumped by an external resolver/optimizer, together with the catalog
// definitions they reference. A document carries an optional catalog
// section (base-table schemas, view definitions, keyed cache definitions)
// and a list of named plans; decoding mints column identities and binds
// every column reference to a column in scope, so a decoded tree is ready
// for extraction as-is.
//
// Documents are YAML. JSON documents parse through the same path since
// JSON is a subset of YAML. Decode failures are surfaced verbatim with
// the path to the offending element; a document never partially decodes.
package planfile
