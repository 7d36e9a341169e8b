// Package mcp exposes the retrieval engine to a conversational agent as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/pkg/utils"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Version is the MCP server version.
const Version = "0.1.0"

// ErrMissingRetriever is returned when the server is created without a retriever.
var ErrMissingRetriever = errors.New("retriever is required")

// Retriever is the read side of the engine the tools call into.
type Retriever interface {
	Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error)
	GetPages(ctx context.Context, q *models.PageQuery) ([]map[string]any, error)
	ListDocuments(ctx context.Context, owner string) ([]models.DocumentSummary, error)
}

// Server is the MCP server. Every tool call runs as the owner bound at construction.
type Server struct {
	retriever Retriever
	owner     string
	server    *mcp.Server
	logger    *zap.Logger
}

// NewServer creates an MCP server acting for owner.
func NewServer(retriever Retriever, owner string, logger *zap.Logger) (*Server, error) {
	if retriever == nil {
		return nil, ErrMissingRetriever
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", models.ErrInvalidInput)
	}
	s := &Server{
		retriever: retriever,
		owner:     owner,
		server:    mcp.NewServer(&mcp.Implementation{Name: "shiryo", Version: Version}, nil),
		logger:    utils.OrNop(logger),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", zap.String("owner", s.owner))
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
