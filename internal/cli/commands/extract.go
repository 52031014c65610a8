// Package commands implements the traceline subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/traceline/internal/cli/config"
	"github.com/leapstack-labs/traceline/internal/cli/output"
	"github.com/leapstack-labs/traceline/internal/planfile"
	"github.com/leapstack-labs/traceline/internal/state"
	"github.com/leapstack-labs/traceline/pkg/catalog"
	"github.com/leapstack-labs/traceline/pkg/lineage"
)

// extractConcurrency caps how many documents decode and extract at once.
const extractConcurrency = 4

// ExtractOptions holds options for the extract command.
type ExtractOptions struct {
	Save bool
}

// NewExtractCommand creates the extract command.
func NewExtractCommand() *cobra.Command {
	opts := &ExtractOptions{}

	cmd := &cobra.Command{
		Use:   "extract <document>...",
		Short: "Extract column lineage from plan documents",
		Long: `Decode one or more plan documents and compute column-level lineage
for every plan they contain. Documents may carry their own catalog
section; definitions from --catalog apply to all of them.`,
		Example: `  # Extract lineage from a plan document
  traceline extract etl/daily.yaml

  # Extract several documents and save the records
  traceline extract etl/*.yaml --save

  # Resolve views against a shared catalog document
  traceline extract daily.yaml --catalog warehouse.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Save, "save", false, "Save extracted records to the state database")
	return cmd
}

func runExtract(cmd *cobra.Command, paths []string, opts *ExtractOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)
	renderer := output.FromContext(ctx)

	var base *catalog.Memory
	if cfg.CatalogPath != "" {
		doc, err := planfile.DecodeFile(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
		base = doc.Catalog
		logger.Debug("catalog loaded", "path", cfg.CatalogPath, "definitions", base.Len())
	}

	var store state.Store
	if opts.Save {
		if cfg.StatePath == "" {
			return fmt.Errorf("--save needs a state database; set --state or state_path")
		}
		s, err := state.Open(cfg.StatePath)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	// Documents extract concurrently; output stays in argument order.
	results := make([][]output.Extraction, len(paths))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(extractConcurrency)
	for i, path := range paths {
		eg.Go(func() error {
			res, err := extractDocument(egctx, path, base, cfg, logger, store)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	var flat []output.Extraction
	for _, res := range results {
		flat = append(flat, res...)
	}
	return renderer.Extractions(flat)
}

func extractDocument(ctx context.Context, path string, base *catalog.Memory, cfg *config.Config, logger *slog.Logger, store state.Store) ([]output.Extraction, error) {
	doc, err := planfile.DecodeFile(path)
	if err != nil {
		return nil, err
	}

	opts := lineage.Options{Logger: logger, Strict: cfg.Strict}
	cats := catalog.Chain{doc.Catalog}
	caches := catalog.CacheChain{doc.Catalog}
	if base != nil {
		cats = append(cats, base)
		caches = append(caches, base)
	}
	opts.Catalog = cats
	opts.Caches = caches

	results := make([]output.Extraction, 0, len(doc.Plans))
	for i, p := range doc.Plans {
		lin, err := lineage.ExtractWithOptions(p.Root, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: plans[%d]: %w", path, i, err)
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("%s#%d", filepath.Base(path), i)
		}
		res := output.Extraction{Name: name, Lineage: lin}
		if store != nil {
			rec, err := store.SaveLineage(ctx, name, lin)
			if err != nil {
				return nil, fmt.Errorf("%s: failed to save %s: %w", path, name, err)
			}
			res.ID = rec.ID
		}
		results = append(results, res)
	}
	return results, nil
}
