package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/chii/internal/model"
	"github.com/roach88/chii/internal/syncer"
)

// SyncOptions holds flags for the sync commands.
type SyncOptions struct {
	*RootOptions
	Username    string
	SubjectType string
	Type        string
	Episodes    bool
	Statuses    bool
}

// NewSyncCommand creates the sync command group.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull remote data into the cache",
		Long: `Pull paginated data from the remote API into the local cache.

Each page is committed as one batch. An interrupted sync keeps the pages it
already committed; running it again is safe.

Examples:
  chii sync collections --subject-type anime --type doing
  chii sync subject 253 --statuses
  chii sync episodes 253`,
	}

	collections := &cobra.Command{
		Use:   "collections",
		Short: "Sync the user's collections",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncCollections(opts, cmd)
		},
	}
	collections.Flags().StringVar(&opts.Username, "username", "", "user to sync (default: config username)")
	collections.Flags().StringVar(&opts.SubjectType, "subject-type", "", "only this subject type (book|anime|music|game|real)")
	collections.Flags().StringVar(&opts.Type, "type", "", "only this collection type (wish|done|doing|on_hold|dropped)")

	subject := &cobra.Command{
		Use:   "subject <id>",
		Short: "Sync one subject with its characters, persons and episodes",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncSubject(opts, cmd, args[0])
		},
	}
	subject.Flags().BoolVar(&opts.Episodes, "episodes", true, "also sync the episode list")
	subject.Flags().BoolVar(&opts.Statuses, "statuses", false, "also sync the user's episode statuses")

	episodes := &cobra.Command{
		Use:   "episodes <subject-id>",
		Short: "Sync the episode list of one subject",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncEpisodes(opts, cmd, args[0])
		},
	}
	episodes.Flags().BoolVar(&opts.Statuses, "statuses", false, "also sync the user's episode statuses")

	cmd.AddCommand(collections, subject, episodes)
	return cmd
}

// SyncReport is the output of a sync command. Keys are the parts synced.
type SyncReport map[string]syncer.Stats

func runSyncCollections(opts *SyncOptions, cmd *cobra.Command) error {
	f := syncer.CollectionFilter{Username: opts.Username}
	if opts.SubjectType != "" {
		t, err := model.ParseSubjectType(opts.SubjectType)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --subject-type", err)
		}
		f.SubjectType = t
	}
	if opts.Type != "" {
		t, err := model.ParseCollectionType(opts.Type)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --type", err)
		}
		f.Type = t
	}
	if f.Username == "" && opts.cfg.Username == "" {
		return NewExitError(ExitCommandError, "no username: pass --username or set username in the config")
	}

	a, err := openApp(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.driver.SyncCollections(cmd.Context(), f)
	report := SyncReport{"collections": stats}
	return finishSync(opts.RootOptions, cmd, report, err)
}

func runSyncSubject(opts *SyncOptions, cmd *cobra.Command, arg string) error {
	id, err := parseID(arg, "subject id")
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	report := SyncReport{}
	report["subject"], err = a.driver.SyncSubject(ctx, id)
	if err == nil && opts.Episodes {
		report["episodes"], err = a.driver.SyncEpisodes(ctx, id)
	}
	if err == nil && opts.Statuses {
		report["statuses"], err = a.driver.SyncEpisodeStatuses(ctx, id)
	}
	return finishSync(opts.RootOptions, cmd, report, err)
}

func runSyncEpisodes(opts *SyncOptions, cmd *cobra.Command, arg string) error {
	id, err := parseID(arg, "subject id")
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	report := SyncReport{}
	report["episodes"], err = a.driver.SyncEpisodes(ctx, id)
	if err == nil && opts.Statuses {
		report["statuses"], err = a.driver.SyncEpisodeStatuses(ctx, id)
	}
	return finishSync(opts.RootOptions, cmd, report, err)
}

// finishSync prints what was committed, even when err ends the run early.
func finishSync(opts *RootOptions, cmd *cobra.Command, report SyncReport, err error) error {
	out := opts.formatter(cmd)
	if err != nil {
		for part, st := range report {
			out.VerboseLog("%s: %d items committed before the failure", part, st.Items)
		}
		return err
	}
	return out.Emit(report, func(w io.Writer) {
		for _, part := range []string{"collections", "subject", "episodes", "statuses"} {
			if st, ok := report[part]; ok {
				writeStats(w, part, st)
			}
		}
	})
}

func writeStats(w io.Writer, part string, st syncer.Stats) {
	fmt.Fprintf(w, "%s: %d items over %d pages, %d changes", part, st.Items, st.Pages, st.Changes)
	if st.Reason != "" {
		fmt.Fprintf(w, " (%s)", st.Reason)
	}
	fmt.Fprintln(w)
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("%s must be a positive integer, got %q", what, s))
	}
	return id, nil
}
