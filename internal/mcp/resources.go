package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const documentsURI = "shiryo://documents"

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         documentsURI,
		Name:        "documents",
		Description: "Documents visible to the current user",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)
}

func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docs, err := s.retriever.ListDocuments(ctx, s.owner)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encoding documents: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
