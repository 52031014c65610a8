package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/traceline/internal/cli/config"
	"github.com/leapstack-labs/traceline/internal/server"
	"github.com/leapstack-labs/traceline/internal/state"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var (
		port  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lineage API over HTTP",
		Long: `Start an HTTP server exposing lineage extraction. Clients POST plan
documents to /api/v1/lineage; saved statements are available under
/api/v1/statements when a state database is configured.`,
		Example: `  # Serve with a shared catalog, reloading it on change
  traceline serve --catalog warehouse.yaml --watch

  # Serve on another port with persistence
  traceline serve --port 9000 --state lineage.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, port, watch)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the catalog document when it changes")
	return cmd
}

func runServe(cmd *cobra.Command, port int, watch bool) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)

	if port == 0 {
		port = cfg.Server.Port
	}
	if !watch {
		watch = cfg.Server.Watch
	}

	var store state.Store
	if cfg.StatePath != "" {
		s, err := state.Open(cfg.StatePath)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	srv, err := server.New(server.Config{
		Port:        port,
		CatalogPath: cfg.CatalogPath,
		Watch:       watch,
		Store:       store,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx)
}
