package plan

import (
	"encoding/json"
	"strings"
)

// DefaultDatabase is assumed for table names that carry no database part.
const DefaultDatabase = "default"

// QualifiedName identifies a table, view, or directory sink in the catalog.
// Names are normalized to lower case at construction so that two names that
// differ only in case compare equal with ==.
type QualifiedName struct {
	Catalog  string // empty unless a non-default catalog is in play
	Database string // empty only for raw (directory) targets
	Table    string
}

// Name builds a QualifiedName from 1 to 3 identifier parts, filling the
// database with DefaultDatabase when absent:
//
//	Name("orders")                 → default.orders
//	Name("sales", "orders")        → sales.orders
//	Name("east", "sales", "orders") → east.sales.orders
//
// Extra leading parts beyond three are folded into the catalog.
func Name(parts ...string) QualifiedName {
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			trimmed = append(trimmed, strings.ToLower(p))
		}
	}
	switch len(trimmed) {
	case 0:
		return QualifiedName{}
	case 1:
		return QualifiedName{Database: DefaultDatabase, Table: trimmed[0]}
	case 2:
		return QualifiedName{Database: trimmed[0], Table: trimmed[1]}
	default:
		n := len(trimmed)
		return QualifiedName{
			Catalog:  strings.Join(trimmed[:n-2], "."),
			Database: trimmed[n-2],
			Table:    trimmed[n-1],
		}
	}
}

// ParseName splits a dotted identifier ("db.table", "catalog.db.table")
// and canonicalizes it via Name.
func ParseName(s string) QualifiedName {
	return Name(strings.Split(s, ".")...)
}

// PathName wraps a filesystem or object-store path as a directory target.
// Directory sinks have no catalog entry; the identifier is the literal path
// in backticks, preserved byte for byte.
func PathName(path string) QualifiedName {
	return QualifiedName{Table: "`" + path + "`"}
}

// String renders the name in its canonical dotted form.
func (q QualifiedName) String() string {
	parts := make([]string, 0, 3)
	if q.Catalog != "" {
		parts = append(parts, q.Catalog)
	}
	if q.Database != "" {
		parts = append(parts, q.Database)
	}
	parts = append(parts, q.Table)
	return strings.Join(parts, ".")
}

// IsZero reports whether the name is empty.
func (q QualifiedName) IsZero() bool {
	return q.Catalog == "" && q.Database == "" && q.Table == ""
}

// MarshalJSON renders the dotted form.
func (q QualifiedName) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON parses the dotted form. Backticked directory targets are
// kept verbatim.
func (q *QualifiedName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if strings.HasPrefix(s, "`") {
		*q = QualifiedName{Table: s}
		return nil
	}
	*q = ParseName(s)
	return nil
}
