package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/traceline/internal/cli/config"
	"github.com/leapstack-labs/traceline/internal/cli/output"
	"github.com/leapstack-labs/traceline/internal/state"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved lineage extractions",
		Long:  `List the most recently saved statements, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of statements to list")
	return cmd
}

func runHistory(cmd *cobra.Command, limit int) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	if cfg.StatePath == "" {
		return fmt.Errorf("no state database configured; set --state or state_path")
	}

	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.ListRecords(ctx, limit)
	if err != nil {
		return err
	}
	return output.FromContext(ctx).History(recs)
}
