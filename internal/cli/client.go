package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/progress"
)

// APIError is a non-success response from the server. It unwraps to the matching domain
// error so callers can use errors.Is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return models.ErrInvalidInput
	case http.StatusUnsupportedMediaType:
		return models.ErrUnsupportedType
	case http.StatusNotFound:
		return models.ErrDocumentNotFound
	}
	return nil
}

// Client talks to a running shiryo server on behalf of one owner.
type Client struct {
	BaseURL     string
	Owner       string
	OwnerHeader string
	HTTP        *http.Client
	// PollInterval is how often WaitIngestion polls; defaults to 250ms.
	PollInterval time.Duration
}

// NewClient returns a client for baseURL acting as owner.
func NewClient(baseURL, owner string) *Client {
	return &Client{
		BaseURL:     baseURL,
		Owner:       owner,
		OwnerHeader: "X-Owner",
		HTTP:        &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Owner != "" {
		req.Header.Set(c.OwnerHeader, c.Owner)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		var e struct {
			Error string `json:"error"`
		}
		msg := string(bytes.TrimSpace(b))
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, "application/json", body, out)
}

// Search runs a search. The query's Owner is ignored; the client's owner applies.
func (c *Client) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	var resp models.SearchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/search", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPages fetches chunks of one document by sequence id.
func (c *Client) GetPages(ctx context.Context, q *models.PageQuery) ([]map[string]any, error) {
	var resp struct {
		Pages []map[string]any `json:"pages"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/pages", q, &resp); err != nil {
		return nil, err
	}
	return resp.Pages, nil
}

// ListDocuments lists the documents visible to the client's owner.
func (c *Client) ListDocuments(ctx context.Context) ([]models.DocumentSummary, error) {
	var resp struct {
		Documents []models.DocumentSummary `json:"documents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/documents", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// UpdateVisibility flips is_public on the owner's document.
func (c *Client) UpdateVisibility(ctx context.Context, filename string, isPublic bool) (int, error) {
	var resp struct {
		UpdatedCount int `json:"updated_count"`
	}
	path := "/api/v1/documents/" + url.PathEscape(filename) + "/visibility"
	if err := c.doJSON(ctx, http.MethodPut, path, map[string]bool{"is_public": isPublic}, &resp); err != nil {
		return 0, err
	}
	return resp.UpdatedCount, nil
}

// DeleteDocument deletes the owner's document.
func (c *Client) DeleteDocument(ctx context.Context, filename string) (int, error) {
	var resp struct {
		DeletedCount int `json:"deleted_count"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/api/v1/documents/"+url.PathEscape(filename), nil, &resp); err != nil {
		return 0, err
	}
	return resp.DeletedCount, nil
}

// Status returns the server's engine summary.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Ingest uploads path and returns the initial snapshot of the run.
func (c *Client) Ingest(ctx context.Context, path string, isPublic bool) (progress.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return progress.Snapshot{}, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return progress.Snapshot{}, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return progress.Snapshot{}, err
	}
	if err := mw.WriteField("is_public", strconv.FormatBool(isPublic)); err != nil {
		return progress.Snapshot{}, err
	}
	if err := mw.Close(); err != nil {
		return progress.Snapshot{}, err
	}
	var snap progress.Snapshot
	if err := c.do(ctx, http.MethodPost, "/api/v1/ingestions", mw.FormDataContentType(), &buf, &snap); err != nil {
		return progress.Snapshot{}, err
	}
	return snap, nil
}

// Ingestion returns the current snapshot of a run.
func (c *Client) Ingestion(ctx context.Context, runID string) (progress.Snapshot, error) {
	var snap progress.Snapshot
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/ingestions/"+url.PathEscape(runID), nil, &snap)
	return snap, err
}

// WaitIngestion polls a run until it reaches a terminal stage, calling onUpdate for every
// snapshot that differs from the previous one.
func (c *Client) WaitIngestion(ctx context.Context, runID string, onUpdate func(progress.Snapshot)) (progress.Snapshot, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last time.Time
	for {
		snap, err := c.Ingestion(ctx, runID)
		if err != nil {
			return progress.Snapshot{}, err
		}
		if onUpdate != nil && !snap.UpdatedAt.Equal(last) {
			onUpdate(snap)
			last = snap.UpdatedAt
		}
		if snap.Stage.Terminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WatchDirectories lists the inbox directories of the server.
func (c *Client) WatchDirectories(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/watch/directories", nil, &out); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

// AddWatchDirectory adds an inbox directory and ingests its current files.
func (c *Client) AddWatchDirectory(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/watch/directories", map[string]any{"path": path, "sync": true}, nil)
}

// RemoveWatchDirectory stops watching an inbox directory.
func (c *Client) RemoveWatchDirectory(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(path), nil, nil)
}
