// Package output renders extraction results and history listings in the
// formats the CLI offers: human tables, markdown, and JSON.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/traceline/internal/state"
	"github.com/leapstack-labs/traceline/pkg/lineage"
)

// Mode selects the output format.
type Mode string

// Output modes. Auto picks Text on a terminal and JSON otherwise, so
// piping traceline into another tool needs no flag.
const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Extraction is one rendered result: a named lineage record, with its
// store ID when it was saved.
type Extraction struct {
	ID      string           `json:"id,omitempty"`
	Name    string           `json:"name"`
	Lineage *lineage.Lineage `json:"lineage"`
}

// Renderer writes results in a fixed mode.
type Renderer struct {
	out   io.Writer
	mode  Mode
	caser cases.Caser
}

// NewRenderer creates a renderer writing to out.
func NewRenderer(out io.Writer, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{out: out, mode: mode, caser: cases.Title(language.English)}
}

func (r *Renderer) resolved() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if f, ok := r.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return ModeText
	}
	return ModeJSON
}

// Extractions renders a batch of results.
func (r *Renderer) Extractions(results []Extraction) error {
	if r.resolved() == ModeJSON {
		return r.renderJSON(results)
	}
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(r.out)
		}
		if err := r.extraction(res); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) extraction(res Extraction) error {
	fmt.Fprintf(r.out, "Statement: %s\n", res.Name)
	if res.ID != "" {
		fmt.Fprintf(r.out, "Saved as: %s\n", res.ID)
	}
	fmt.Fprintf(r.out, "Sources: %s\n", joinNames(res.Lineage.Sources))
	fmt.Fprintf(r.out, "Targets: %s\n", joinNames(res.Lineage.Targets))

	if len(res.Lineage.Columns) == 0 {
		fmt.Fprintln(r.out, "(no columns)")
		return nil
	}

	t := r.newTable()
	t.AppendHeader(table.Row{r.caser.String("column"), r.caser.String("sources")})
	for _, col := range res.Lineage.Columns {
		srcs := make([]string, len(col.Sources))
		for i, src := range col.Sources {
			srcs[i] = src.String()
		}
		t.AppendRow(table.Row{col.Name, strings.Join(srcs, ", ")})
	}
	r.render(t)
	return nil
}

// History renders the statement list, newest first.
func (r *Renderer) History(recs []state.Record) error {
	if r.resolved() == ModeJSON {
		type item struct {
			ID        string    `json:"id"`
			Name      string    `json:"name"`
			CreatedAt time.Time `json:"created_at"`
			Sources   []string  `json:"sources"`
			Targets   []string  `json:"targets"`
		}
		items := make([]item, len(recs))
		for i, rec := range recs {
			items[i] = item{
				ID:        rec.ID,
				Name:      rec.Name,
				CreatedAt: rec.CreatedAt,
				Sources:   nameStrings(rec.Lineage.Sources),
				Targets:   nameStrings(rec.Lineage.Targets),
			}
		}
		return r.renderJSON(items)
	}

	if len(recs) == 0 {
		fmt.Fprintln(r.out, "(no statements)")
		return nil
	}
	t := r.newTable()
	t.AppendHeader(table.Row{
		r.caser.String("id"),
		r.caser.String("name"),
		r.caser.String("created"),
		r.caser.String("targets"),
	})
	for _, rec := range recs {
		t.AppendRow(table.Row{
			rec.ID,
			rec.Name,
			rec.CreatedAt.Format(time.RFC3339),
			joinNames(rec.Lineage.Targets),
		})
	}
	r.render(t)
	return nil
}

// Record renders one saved statement in full.
func (r *Renderer) Record(rec *state.Record) error {
	return r.Extractions([]Extraction{{ID: rec.ID, Name: rec.Name, Lineage: rec.Lineage}})
}

func (r *Renderer) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	return t
}

func (r *Renderer) render(t table.Writer) {
	if r.resolved() == ModeMarkdown {
		t.RenderMarkdown()
		return
	}
	t.Render()
}

func (r *Renderer) renderJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinNames[T fmt.Stringer](names []T) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(nameStrings(names), ", ")
}

func nameStrings[T fmt.Stringer](names []T) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n.String()
	}
	return out
}

type rendererKey struct{}

// IntoContext stores the renderer on the command context.
func IntoContext(ctx context.Context, r *Renderer) context.Context {
	return context.WithValue(ctx, rendererKey{}, r)
}

// FromContext retrieves the renderer, defaulting to auto mode on stdout.
func FromContext(ctx context.Context) *Renderer {
	if r, ok := ctx.Value(rendererKey{}).(*Renderer); ok {
		return r
	}
	return NewRenderer(os.Stdout, ModeAuto)
}
