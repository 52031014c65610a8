package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/traceline/internal/cli/config"
	"github.com/leapstack-labs/traceline/internal/cli/output"
	"github.com/leapstack-labs/traceline/internal/state"
)

// NewShowCommand creates the show command.
func NewShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one saved lineage extraction",
		Long:  `Display a saved statement in full, column lineage included.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, args[0])
		},
	}
}

func runShow(cmd *cobra.Command, id string) error {
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

	rec, err := store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	return output.FromContext(ctx).Record(rec)
}
