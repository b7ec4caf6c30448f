package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chii/internal/store"
)

// NewDraftCommand creates the draft command group. Drafts are autosaved
// text buffers keyed by purpose, e.g. "comment:253".
func NewDraftCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Save, show or delete an autosaved draft",
	}

	save := &cobra.Command{
		Use:   "save <purpose> <content>",
		Short: "Save a draft, replacing any previous one",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			purpose, content := args[0], args[1]
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				_, err := a.actor.Submit(ctx, "draft:"+purpose, func(ctx context.Context, b *store.Batch) error {
					return b.SaveDraft(ctx, purpose, content, time.Now())
				})
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Emit(map[string]string{"purpose": purpose}, func(w io.Writer) {
					fmt.Fprintf(w, "draft %q saved\n", purpose)
				})
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <purpose>",
		Short: "Print a draft",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				d, err := a.store.LoadDraft(ctx, args[0])
				if errors.Is(err, store.ErrNotFound) {
					return NewExitError(ExitFailure, fmt.Sprintf("no draft for %q", args[0]))
				}
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Emit(d, func(w io.Writer) {
					fmt.Fprintln(w, d.Content)
				})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <purpose>",
		Short: "Delete a draft",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			purpose := args[0]
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				_, err := a.actor.Submit(ctx, "draft-delete:"+purpose, func(ctx context.Context, b *store.Batch) error {
					return b.DeleteDraft(ctx, purpose)
				})
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Emit(map[string]string{"purpose": purpose}, func(w io.Writer) {
					fmt.Fprintf(w, "draft %q deleted\n", purpose)
				})
			})
		},
	}

	cmd.AddCommand(save, show, del)
	return cmd
}
