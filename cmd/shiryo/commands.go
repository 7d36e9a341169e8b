package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/shiryo/internal/cli"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/progress"
	"github.com/spf13/cobra"
)

func newIngestCmd(opts *globalOptions) *cobra.Command {
	var public bool
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents as the current owner",
		Long: `Ingest parses each file into chunks, embeds them and stores them for the owner.
Re-ingesting a file replaces its previous chunks.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireOwner(); err != nil {
				return err
			}
			format, err := opts.format()
			if err != nil {
				return err
			}
			b, err := opts.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			out := cmd.OutOrStdout()
			var failed int
			for _, path := range args {
				snap, err := b.Ingest(cmd.Context(), path, public, func(s progress.Snapshot) {
					_ = cli.WriteProgress(out, s, format)
				})
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if snap.Stage == progress.StageError {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", path, snap.Error)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d ingestions failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&public, "public", false, "make the documents visible to every owner")
	return cmd
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		mode  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search documents visible to the current owner",
		Long: `Search embeds the query and returns the closest chunks.

Modes:
  summary   match against chunk summaries
  content   match against full chunk text
  dual      both, keeping the best score per chunk (default)
  keyword   full-text match on chunk text and filename

Multi-word queries work with or without quotes.`,
		Example: `  shiryo search quarterly revenue
  shiryo search --mode content --limit 5 "churn by region"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			query := &models.SearchQuery{
				Query: strings.Join(args, " "),
				Limit: limit,
				Mode:  models.SearchMode(mode),
			}
			if err := query.Validate(); err != nil {
				return err
			}
			b, err := opts.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			resp, err := b.Search(cmd.Context(), query)
			if err != nil {
				return err
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), resp, format)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(models.ModeDual), "search mode: summary, content, dual or keyword")
	cmd.Flags().IntVarP(&limit, "limit", "n", models.DefaultLimit, "maximum number of results")
	return cmd
}

func newPagesCmd(opts *globalOptions) *cobra.Command {
	var fields []string
	cmd := &cobra.Command{
		Use:   "pages <filename> <sequence-id>...",
		Short: "Fetch chunks of a document by sequence id",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			ids, err := parseSequenceIDs(args[1:])
			if err != nil {
				return err
			}
			q := &models.PageQuery{Filename: args[0], SequenceIDs: ids, Fields: fields}
			if err := q.Validate(); err != nil {
				return err
			}
			b, err := opts.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			pages, err := b.GetPages(cmd.Context(), q)
			if err != nil {
				return err
			}
			return cli.WritePages(cmd.OutOrStdout(), pages, format)
		},
	}
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "payload fields to return (default all)")
	return cmd
}

// parseSequenceIDs accepts ids as separate arguments or comma-separated lists.
func parseSequenceIDs(args []string) ([]int, error) {
	var ids []int
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid sequence id %q", models.ErrInvalidInput, part)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one sequence id is required", models.ErrInvalidInput)
	}
	return ids, nil
}

func newDocumentsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "documents",
		Aliases: []string{"ls"},
		Short:   "List documents visible to the current owner",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			b, err := opts.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			docs, err := b.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteDocuments(cmd.OutOrStdout(), docs, format)
		},
	}
}

func newVisibilityCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "visibility <filename> <public|private>",
		Short:     "Change who can see one of your documents",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"public", "private"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireOwner(); err != nil {
				return err
			}
			var public bool
			switch strings.ToLower(args[1]) {
			case "public":
				public = true
			case "private":
			default:
				return fmt.Errorf("%w: visibility must be public or private, got %q", models.ErrInvalidInput, args[1])
			}
			b, err := opts.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			n, err := b.UpdateVisibility(cmd.Context(), args[0], public)
			if errors.Is(err, models.ErrDocumentNotFound) {
				return fmt.Errorf("%s: no document owned by %s: %w", args[0], opts.owner, err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s (%d chunks)\n", args[0], strings.ToLower(args[1]), n)
			return nil
		},
	}
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <filename>",
		Aliases: []string{"rm"},
		Short:   "Delete one of your documents",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireOwner(); err != nil {
				return err
			}
			b, err := opts.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			n, err := b.DeleteDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d chunks of %s\n", n, args[0])
			return nil
		},
	}
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show document and chunk counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			b, err := opts.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			s, err := b.Status(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), s, format)
		},
	}
}
