package main

import (
	"context"

	"github.com/hyperjump/shiryo/internal/cli"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/mcp"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// remoteRetriever serves MCP tool calls from a running server.
type remoteRetriever struct {
	client *cli.Client
}

func (r *remoteRetriever) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	return r.client.Search(ctx, query)
}

func (r *remoteRetriever) GetPages(ctx context.Context, q *models.PageQuery) ([]map[string]any, error) {
	return r.client.GetPages(ctx, q)
}

// ListDocuments lists as the client's owner, which is the owner the MCP server is bound to.
func (r *remoteRetriever) ListDocuments(ctx context.Context, _ string) ([]models.DocumentSummary, error) {
	return r.client.ListDocuments(ctx)
}

func newMCPCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve search tools to an agent over MCP stdio",
		Long: `mcp exposes search_knowledge, get_pages and list_documents over stdio.
Every call runs as --owner. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.requireOwner(); err != nil {
				return err
			}
			var (
				retriever mcp.Retriever
				logger    *zap.Logger
				err       error
			)
			if opts.serverURL != "" {
				client := opts.remoteClient()
				if logger, err = utils.NewLogger(opts.debug); err != nil {
					return err
				}
				retriever = &remoteRetriever{client: client}
			} else {
				var cfg *config.Config
				if cfg, _, logger, err = opts.setup(); err != nil {
					return err
				}
				components, err := initializeComponents(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer components.Close()
				retriever = components.Engine
			}
			defer func() { _ = logger.Sync() }()
			srv, err := mcp.NewServer(retriever, opts.owner, logger)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
}
