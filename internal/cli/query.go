package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chii/internal/model"
	"github.com/roach88/chii/internal/surface"
)

// QueryOptions holds flags for the query commands.
type QueryOptions struct {
	*RootOptions
	Types       []string
	Statuses    []string
	Desc        bool
	Limit       int
	Offset      int
	SubjectType string
	Type        string
	Search      string
	Order       string
}

// NewQueryCommand creates the query command group. Queries only read the
// cache; they never contact the server.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read from the local cache",
		Long: `Read from the local cache without contacting the server.

Examples:
  chii query episodes 253 --type main
  chii query remaining 253
  chii query collections --subject-type anime --search bebop
  chii query subject 253 --format json`,
	}

	episodes := &cobra.Command{
		Use:   "episodes <subject-id>",
		Short: "List a subject's episodes",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryEpisodes(opts, cmd, args[0])
		},
	}
	episodes.Flags().StringSliceVar(&opts.Types, "type", nil, "only these episode types")
	episodes.Flags().StringSliceVar(&opts.Statuses, "status", nil, "only these statuses")
	episodes.Flags().BoolVar(&opts.Desc, "desc", false, "highest sort first")
	episodes.Flags().IntVar(&opts.Limit, "limit", surface.DefaultLimit, "page size (max 100)")
	episodes.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")

	remaining := &cobra.Command{
		Use:   "remaining <subject-id>",
		Short: "Count episodes not yet watched",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryRemaining(opts, cmd, args[0])
		},
	}
	remaining.Flags().StringSliceVar(&opts.Types, "type", nil, "episode types to count (default main)")

	collections := &cobra.Command{
		Use:   "collections",
		Short: "List the user's collections",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryCollections(opts, cmd)
		},
	}
	collections.Flags().StringVar(&opts.SubjectType, "subject-type", "", "only this subject type")
	collections.Flags().StringVar(&opts.Type, "type", "", "only this collection type")
	collections.Flags().StringVar(&opts.Search, "search", "", "substring of the subject's names")
	collections.Flags().StringVar(&opts.Order, "order", "recent", "recent|rating")
	collections.Flags().IntVar(&opts.Limit, "limit", surface.DefaultLimit, "page size (max 100)")
	collections.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")

	cmd.AddCommand(episodes, remaining, collections)
	for _, kind := range []string{"subject", "episode", "collection", "character", "person"} {
		cmd.AddCommand(newGetCommand(opts, kind))
	}
	return cmd
}

func runQueryEpisodes(opts *QueryOptions, cmd *cobra.Command, arg string) error {
	subjectID, err := parseID(arg, "subject id")
	if err != nil {
		return err
	}
	f := surface.EpisodeFilter{SubjectID: subjectID}
	for _, raw := range opts.Types {
		t, err := model.ParseEpisodeType(raw)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --type", err)
		}
		f.Types = append(f.Types, t)
	}
	for _, raw := range opts.Statuses {
		st, err := model.ParseEpisodeStatus(raw)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --status", err)
		}
		f.Statuses = append(f.Statuses, st)
	}
	order := surface.EpisodesBySort
	if opts.Desc {
		order = surface.EpisodesBySortDesc
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
		items, err := a.surface.Episodes(ctx, f, order, opts.Limit, opts.Offset)
		if err != nil {
			return err
		}
		total, err := a.surface.CountEpisodes(ctx, f)
		if err != nil {
			return err
		}
		page := Page[model.Episode]{Total: total, Limit: surface.ClampLimit(opts.Limit), Offset: opts.Offset, Items: items}
		return opts.formatter(cmd).Emit(page, func(w io.Writer) {
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSORT\tTYPE\tSTATUS\tAIRDATE\tNAME")
			for _, e := range items {
				fmt.Fprintf(tw, "%d\t%g\t%s\t%s\t%s\t%s\n", e.ID, e.Sort, e.Type, e.Status, e.Airdate, displayName(e.Name, e.NameCN))
			}
			tw.Flush()
			fmt.Fprintf(w, "%d of %d\n", len(items), total)
		})
	})
}

func runQueryRemaining(opts *QueryOptions, cmd *cobra.Command, arg string) error {
	subjectID, err := parseID(arg, "subject id")
	if err != nil {
		return err
	}
	var types []model.EpisodeType
	for _, raw := range opts.Types {
		t, err := model.ParseEpisodeType(raw)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --type", err)
		}
		types = append(types, t)
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
		n, err := a.surface.RemainingEpisodes(ctx, subjectID, types...)
		if err != nil {
			return err
		}
		return opts.formatter(cmd).Emit(map[string]int64{"remaining": n}, func(w io.Writer) {
			fmt.Fprintf(w, "%d episodes remaining\n", n)
		})
	})
}

func runQueryCollections(opts *QueryOptions, cmd *cobra.Command) error {
	f := surface.CollectionFilter{Search: opts.Search}
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
	var order surface.CollectionOrder
	switch opts.Order {
	case "recent":
		order = surface.CollectionsByRecency
	case "rating":
		order = surface.CollectionsByRating
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --order %q: must be recent or rating", opts.Order))
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
		items, err := a.surface.Collections(ctx, f, order, opts.Limit, opts.Offset)
		if err != nil {
			return err
		}
		total, err := a.surface.CountCollections(ctx, f)
		if err != nil {
			return err
		}
		page := Page[model.Collection]{Total: total, Limit: surface.ClampLimit(opts.Limit), Offset: opts.Offset, Items: items}
		return opts.formatter(cmd).Emit(page, func(w io.Writer) {
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SUBJECT\tKIND\tTYPE\tRATE\tEPS\tUPDATED")
			for _, c := range items {
				updated := ""
				if !c.UpdatedAt.IsZero() {
					updated = c.UpdatedAt.Format(time.DateOnly)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", c.SubjectID, c.SubjectType, c.Type, c.Rate, c.EpStatus, updated)
			}
			tw.Flush()
			fmt.Fprintf(w, "%d of %d\n", len(items), total)
		})
	})
}

// Page is one window of a list query.
type Page[T any] struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Items  []T   `json:"items"`
}

func newGetCommand(opts *QueryOptions, kind string) *cobra.Command {
	return &cobra.Command{
		Use:   kind + " <id>",
		Short: "Show one cached " + kind,
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], kind+" id")
			if err != nil {
				return err
			}
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				v, err := getEntity(ctx, a.surface, kind, id)
				if err != nil {
					return err
				}
				if v == nil {
					return NewExitError(ExitFailure, fmt.Sprintf("%s %d is not cached", kind, id))
				}
				return opts.formatter(cmd).Emit(v, func(w io.Writer) {
					data, _ := json.MarshalIndent(v, "", "  ")
					fmt.Fprintln(w, string(data))
				})
			})
		},
	}
}

// getEntity returns nil, nil when the entity is not cached.
func getEntity(ctx context.Context, s *surface.Surface, kind string, id int64) (any, error) {
	switch kind {
	case "subject":
		return nilable(s.Subject(ctx, id))
	case "episode":
		return nilable(s.Episode(ctx, id))
	case "collection":
		return nilable(s.Collection(ctx, id))
	case "character":
		return nilable(s.Character(ctx, id))
	case "person":
		return nilable(s.Person(ctx, id))
	}
	return nil, fmt.Errorf("unknown kind %q", kind)
}

// nilable keeps a nil *T from becoming a non-nil interface.
func nilable[T any](v *T, err error) (any, error) {
	if err != nil || v == nil {
		return nil, err
	}
	return v, nil
}

func displayName(name, nameCN string) string {
	if nameCN != "" {
		return nameCN
	}
	return name
}
