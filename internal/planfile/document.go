package planfile

import (
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/traceline/pkg/catalog"
	"github.com/leapstack-labs/traceline/pkg/plan"
)

// Version is the document format version this package decodes.
const Version = 1

// Document is a fully decoded plan document. Catalog holds the view and
// cache definitions from the document's catalog section and satisfies
// both catalog.Catalog and catalog.CacheRegistry.
type Document struct {
	Version int
	Catalog *catalog.Memory
	Plans   []NamedPlan
}

// NamedPlan is one entry of the document's plans list. Name may be empty;
// hosts that need one (the history store does) fill in a default.
type NamedPlan struct {
	Name string
	Root plan.Node
}

// DecodeError reports a malformed document element. Path locates the
// element, e.g. "plans[0].root.child".
type DecodeError struct {
	Path    string
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func errf(path, format string, args ...any) *DecodeError {
	return &DecodeError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// decodeInto maps a raw document fragment onto a spec struct. Unknown
// keys are ignored so documents stay forward compatible.
func decodeInto(raw map[string]any, out any, path string) error {
	if err := mapstructure.Decode(raw, out); err != nil {
		return &DecodeError{Path: path, Message: err.Error()}
	}
	return nil
}

type documentSpec struct {
	Version int         `mapstructure:"version"`
	Catalog catalogSpec `mapstructure:"catalog"`
	Plans   []planSpec  `mapstructure:"plans"`
}

type catalogSpec struct {
	Tables []tableSpec `mapstructure:"tables"`
	Views  []viewSpec  `mapstructure:"views"`
	Caches []cacheSpec `mapstructure:"caches"`
}

type tableSpec struct {
	Name    string   `mapstructure:"name"`
	Columns []string `mapstructure:"columns"`
}

type viewSpec struct {
	Name string         `mapstructure:"name"`
	Plan map[string]any `mapstructure:"plan"`
}

type cacheSpec struct {
	Key  string         `mapstructure:"key"`
	Plan map[string]any `mapstructure:"plan"`
}

type planSpec struct {
	Name string         `mapstructure:"name"`
	Root map[string]any `mapstructure:"root"`
}

// Decode parses a plan document. The returned document owns a fresh
// catalog registry populated from the catalog section.
func Decode(data []byte) (*Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Path: "document", Message: err.Error()}
	}
	var spec documentSpec
	if err := decodeInto(raw, &spec, "document"); err != nil {
		return nil, err
	}
	if spec.Version != Version {
		return nil, errf("version", "unsupported document version %d (want %d)", spec.Version, Version)
	}

	// Declared base-table schemas let relation nodes omit their column
	// lists. Shared across every tree in the document.
	tables := make(map[plan.QualifiedName][]string, len(spec.Catalog.Tables))
	for i, ts := range spec.Catalog.Tables {
		if ts.Name == "" {
			return nil, errf(fmt.Sprintf("catalog.tables[%d]", i), "missing table name")
		}
		tables[plan.ParseName(ts.Name)] = ts.Columns
	}

	cat := catalog.NewMemory()
	doc := &Document{Version: spec.Version, Catalog: cat}

	for i, vs := range spec.Catalog.Views {
		path := fmt.Sprintf("catalog.views[%d]", i)
		if vs.Name == "" {
			return nil, errf(path, "missing view name")
		}
		if vs.Plan == nil {
			return nil, errf(path, "missing defining plan")
		}
		d := &decoder{tables: tables}
		def, err := d.node(vs.Plan, nil, path+".plan")
		if err != nil {
			return nil, err
		}
		cat.RegisterView(plan.ParseName(vs.Name), def)
	}

	for i, cs := range spec.Catalog.Caches {
		path := fmt.Sprintf("catalog.caches[%d]", i)
		if cs.Key == "" {
			return nil, errf(path, "missing cache key")
		}
		if cs.Plan == nil {
			return nil, errf(path, "missing defining plan")
		}
		d := &decoder{tables: tables}
		def, err := d.node(cs.Plan, nil, path+".plan")
		if err != nil {
			return nil, err
		}
		cat.RegisterCache(cs.Key, def)
	}

	doc.Plans = make([]NamedPlan, len(spec.Plans))
	for i, ps := range spec.Plans {
		path := fmt.Sprintf("plans[%d]", i)
		if ps.Root == nil {
			return nil, errf(path, "missing root")
		}
		d := &decoder{tables: tables}
		root, err := d.root(ps.Root, path+".root")
		if err != nil {
			return nil, err
		}
		doc.Plans[i] = NamedPlan{Name: ps.Name, Root: root}
	}
	return doc, nil
}

// DecodeFile reads and decodes a plan document from disk.
func DecodeFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
