package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chii/internal/cascade"
	"github.com/roach88/chii/internal/model"
)

// CollectionOptions holds flags for the collection commands.
type CollectionOptions struct {
	*RootOptions
	Type      string
	Rate      int64
	Comment   string
	Tags      []string
	Private   bool
	EpStatus  int64
	VolStatus int64
}

// NewCollectionCommand creates the collection command group.
func NewCollectionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CollectionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Change the user's collection of a subject",
		Long: `Create, update or remove a collection on the server, then in the cache.

Only the flags given are sent.

Examples:
  chii collection update 253 --type doing
  chii collection update 253 --rate 9 --tag scifi --tag classic
  chii collection remove 253`,
	}

	update := &cobra.Command{
		Use:   "update <subject-id>",
		Short: "Create or update a collection",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollectionUpdate(opts, cmd, args[0])
		},
	}
	update.Flags().StringVar(&opts.Type, "type", "", "wish|done|doing|on_hold|dropped")
	update.Flags().Int64Var(&opts.Rate, "rate", 0, "rating 0..10 (0 clears)")
	update.Flags().StringVar(&opts.Comment, "comment", "", "short comment")
	update.Flags().StringSliceVar(&opts.Tags, "tag", nil, "tag (repeatable)")
	update.Flags().BoolVar(&opts.Private, "private", false, "hide from other users")
	update.Flags().Int64Var(&opts.EpStatus, "ep-status", 0, "episodes watched")
	update.Flags().Int64Var(&opts.VolStatus, "vol-status", 0, "volumes read")

	remove := &cobra.Command{
		Use:   "remove <subject-id>",
		Short: "Remove a collection and reset its episode statuses",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollectionRemove(opts, cmd, args[0])
		},
	}

	cmd.AddCommand(update, remove)
	return cmd
}

// patchFromFlags sends only the flags the user set.
func patchFromFlags(opts *CollectionOptions, cmd *cobra.Command) (cascade.CollectionPatch, error) {
	var p cascade.CollectionPatch
	flags := cmd.Flags()
	if flags.Changed("type") {
		t, err := model.ParseCollectionType(opts.Type)
		if err != nil {
			return p, WrapExitError(ExitCommandError, "invalid --type", err)
		}
		p.Type = &t
	}
	if flags.Changed("rate") {
		p.Rate = &opts.Rate
	}
	if flags.Changed("comment") {
		p.Comment = &opts.Comment
	}
	if flags.Changed("tag") {
		p.Tags = opts.Tags
	}
	if flags.Changed("private") {
		p.Private = &opts.Private
	}
	if flags.Changed("ep-status") {
		p.EpStatus = &opts.EpStatus
	}
	if flags.Changed("vol-status") {
		p.VolStatus = &opts.VolStatus
	}
	return p, nil
}

func runCollectionUpdate(opts *CollectionOptions, cmd *cobra.Command, arg string) error {
	subjectID, err := parseID(arg, "subject id")
	if err != nil {
		return err
	}
	patch, err := patchFromFlags(opts, cmd)
	if err != nil {
		return err
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
		res, err := a.coord.UpdateCollection(ctx, subjectID, patch)
		if err != nil {
			return err
		}
		return opts.formatter(cmd).Emit(res, func(w io.Writer) {
			var fields []string
			for _, c := range res.Commit.Changes {
				fields = append(fields, c.Fields...)
			}
			if len(fields) == 0 {
				fmt.Fprintf(w, "collection %d unchanged\n", subjectID)
				return
			}
			fmt.Fprintf(w, "collection %d updated: %s\n", subjectID, strings.Join(fields, ", "))
		})
	})
}

func runCollectionRemove(opts *CollectionOptions, cmd *cobra.Command, arg string) error {
	subjectID, err := parseID(arg, "subject id")
	if err != nil {
		return err
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
		res, err := a.coord.RemoveCollection(ctx, subjectID)
		if err != nil {
			return err
		}
		return opts.formatter(cmd).Emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "collection %d removed, %d episode statuses reset\n", subjectID, len(res.EpisodeIDs))
		})
	})
}
