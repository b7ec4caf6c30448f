package cli

import (
	"bufio"
	"context"

	"github.com/spf13/cobra"
)

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Write every cached entity as canonical JSON lines",
		Long: `Write every cached entity as one canonical JSON line.

Kinds come in a fixed order and rows in key order, so two caches holding the
same data produce identical output. --format is ignored.

Example:
  chii dump > cache.jsonl`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				w := bufio.NewWriter(cmd.OutOrStdout())
				if err := a.store.Dump(ctx, w); err != nil {
					return err
				}
				return w.Flush()
			})
		},
	}
}
