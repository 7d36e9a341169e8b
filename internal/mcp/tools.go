package mcp

import (
	"context"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// defaultPageFields are returned by get_pages when the agent names no fields.
var defaultPageFields = []string{models.FieldFilename, models.FieldSequenceID, models.FieldContent}

// SearchInput is the input schema for the search_knowledge tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"what to look for in the indexed documents"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results (default 10)"`
	Mode  string `json:"mode,omitempty" jsonschema:"summary, content, dual (default) or keyword"`
}

// SearchOutput is the output schema for the search_knowledge tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput is one ranked chunk.
type SearchResultOutput struct {
	Filename   string  `json:"filename"`
	PageNumber int     `json:"page_number"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// PagesInput is the input schema for the get_pages tool.
type PagesInput struct {
	Filename    string   `json:"filename" jsonschema:"document name as returned by search_knowledge or list_documents"`
	PageNumbers []int    `json:"page_numbers" jsonschema:"page numbers (sequence ids) to fetch, in the order wanted"`
	Fields      []string `json:"fields,omitempty" jsonschema:"payload fields to return: filename, owner, sequence_id, is_public, summary, content"`
}

// PagesOutput is the output schema for the get_pages tool.
type PagesOutput struct {
	Pages []map[string]any `json:"pages"`
	Count int              `json:"count"`
}

// ListDocumentsInput takes no arguments.
type ListDocumentsInput struct{}

// ListDocumentsOutput is the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Documents []models.DocumentSummary `json:"documents"`
	Count     int                      `json:"count"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Semantic search over the documents visible to the current user",
	}, s.handleSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_pages",
		Description: "Fetch specific pages or chunks of one document by number",
	}, s.handleGetPages)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the documents visible to the current user",
	}, s.handleListDocuments)
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	query := &models.SearchQuery{
		Query: input.Query,
		Limit: input.Limit,
		Mode:  models.SearchMode(input.Mode),
		Owner: s.owner,
	}
	resp, err := s.retriever.Search(ctx, query)
	if err != nil {
		s.logger.Debug("search_knowledge failed", zap.Error(err))
		return nil, SearchOutput{}, err
	}
	output := SearchOutput{
		Results: make([]SearchResultOutput, len(resp.Results)),
		Count:   len(resp.Results),
	}
	for i, hit := range resp.Results {
		output.Results[i] = SearchResultOutput{
			Filename:   hit.Filename,
			PageNumber: hit.SequenceID,
			Score:      hit.Score,
			Content:    hit.Content,
		}
	}
	return nil, output, nil
}

func (s *Server) handleGetPages(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input PagesInput,
) (*mcp.CallToolResult, PagesOutput, error) {
	fields := input.Fields
	if len(fields) == 0 {
		fields = defaultPageFields
	}
	pages, err := s.retriever.GetPages(ctx, &models.PageQuery{
		Filename:    input.Filename,
		SequenceIDs: input.PageNumbers,
		Fields:      fields,
		Owner:       s.owner,
	})
	if err != nil {
		return nil, PagesOutput{}, err
	}
	return nil, PagesOutput{Pages: pages, Count: len(pages)}, nil
}

func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	docs, err := s.retriever.ListDocuments(ctx, s.owner)
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}
	return nil, ListDocumentsOutput{Documents: docs, Count: len(docs)}, nil
}
