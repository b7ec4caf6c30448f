package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/chii/internal/cascade"
	"github.com/roach88/chii/internal/model"
)

// WatchOptions holds flags for the watch commands.
type WatchOptions struct {
	*RootOptions
	Status string
	Types  []string
}

// NewWatchCommand creates the watch command group.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Record episode progress",
		Long: `Record episode progress on the server, then in the cache.

The server is updated first. If it rejects the change, the cache is left
untouched. The subject's episodes must already be cached (see "chii sync
subject").

Examples:
  chii watch through 253 12
  chii watch through 253 3 --type main --status wish
  chii watch episode 8641 --status dropped`,
	}

	through := &cobra.Command{
		Use:   "through <subject-id> <ordinal>",
		Short: "Mark every episode up through an ordinal",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchThrough(opts, cmd, args[0], args[1])
		},
	}
	through.Flags().StringVar(&opts.Status, "status", "done", "status to set (none|wish|done|dropped)")
	through.Flags().StringSliceVar(&opts.Types, "type", nil, "only these episode types (main|sp|op|ed|pv|mad|other)")

	episode := &cobra.Command{
		Use:   "episode <episode-id>",
		Short: "Set the status of one episode",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchEpisode(opts, cmd, args[0])
		},
	}
	episode.Flags().StringVar(&opts.Status, "status", "done", "status to set (none|wish|done|dropped)")

	cmd.AddCommand(through, episode)
	return cmd
}

func runWatchThrough(opts *WatchOptions, cmd *cobra.Command, subjectArg, ordinalArg string) error {
	subjectID, err := parseID(subjectArg, "subject id")
	if err != nil {
		return err
	}
	ordinal, err := strconv.ParseFloat(ordinalArg, 64)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("ordinal must be a number, got %q", ordinalArg))
	}
	status, err := model.ParseEpisodeStatus(opts.Status)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --status", err)
	}
	through := cascade.ThroughOptions{Status: status}
	for _, raw := range opts.Types {
		t, err := model.ParseEpisodeType(raw)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --type", err)
		}
		through.Types = append(through.Types, t)
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
		res, err := a.coord.MarkWatchedThrough(ctx, subjectID, ordinal, through)
		if err != nil {
			return err
		}
		return opts.formatter(cmd).Emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "subject %d: %d episodes marked %s through %g\n",
				res.SubjectID, len(res.EpisodeIDs), status, ordinal)
		})
	})
}

func runWatchEpisode(opts *WatchOptions, cmd *cobra.Command, arg string) error {
	episodeID, err := parseID(arg, "episode id")
	if err != nil {
		return err
	}
	status, err := model.ParseEpisodeStatus(opts.Status)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --status", err)
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
		res, err := a.coord.MarkWatchedSingle(ctx, episodeID, status)
		if err != nil {
			return err
		}
		return opts.formatter(cmd).Emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "episode %d of subject %d marked %s\n", episodeID, res.SubjectID, status)
		})
	})
}

// withApp opens the cache, runs fn, and closes the cache.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(cmd.Context(), a)
}
