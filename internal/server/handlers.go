package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/shiryo/internal/indexer"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/progress"
	"github.com/hyperjump/shiryo/pkg/utils"
	"go.uber.org/zap"
)

const defaultMaxUploadMB = 100

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	query.Owner = s.owner(r)
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit),
		zap.String("mode", string(query.Mode)), zap.String("owner", query.Owner))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	var query models.PageQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: sequence_ids must be a list of integers")
		return
	}
	query.Owner = s.owner(r)
	pages, err := s.engine.GetPages(r.Context(), &query)
	if err != nil {
		s.logger.Error("page lookup failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"pages": pages})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.engine.ListDocuments(r.Context(), s.owner(r))
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

type visibilityRequest struct {
	IsPublic *bool `json:"is_public"`
}

func (s *Server) handleUpdateVisibility(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsPublic == nil {
		s.respondError(w, http.StatusBadRequest, "is_public is required")
		return
	}
	owner := s.owner(r)
	s.logger.Debug("visibility request", zap.String("filename", filename), zap.String("owner", owner),
		zap.Bool("is_public", *req.IsPublic))
	n, err := s.indexer.UpdateVisibility(r.Context(), filename, owner, *req.IsPublic)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"filename":      filename,
		"is_public":     *req.IsPublic,
		"updated_count": n,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	owner := s.owner(r)
	s.logger.Debug("delete document request", zap.String("filename", filename), zap.String("owner", owner))
	n, err := s.indexer.DeleteDocument(r.Context(), filename, owner)
	if err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"filename": filename, "deleted_count": n})
}

// handleCreateIngestion stores the uploaded file and starts an ingestion run. The upload is
// removed once the run finishes.
func (s *Server) handleCreateIngestion(w http.ResponseWriter, r *http.Request) {
	maxMB := s.config.MaxUploadMB
	if maxMB <= 0 {
		maxMB = defaultMaxUploadMB
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMB<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	isPublic := false
	if v := r.FormValue("is_public"); v != "" {
		isPublic, err = strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "is_public must be a boolean")
			return
		}
	}
	filename := filepath.Base(filepath.Clean("/" + header.Filename))

	path, err := s.saveUpload(file, filename)
	if err != nil {
		s.logger.Error("saving upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	t, err := s.indexer.Start(r.Context(), indexer.Request{
		Path:     path,
		Filename: filename,
		Owner:    s.owner(r),
		IsPublic: isPublic,
	})
	if err != nil {
		_ = os.Remove(path)
		s.respondErr(w, err)
		return
	}
	go func() {
		<-t.Done()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing upload failed", zap.String("path", path), zap.Error(err))
		}
	}()
	s.logger.Info("ingestion started", zap.String("run_id", t.ID()), zap.String("filename", filename))
	s.respondJSON(w, http.StatusAccepted, t.Snapshot())
}

// saveUpload copies the upload into a private file that keeps the original extension.
func (s *Server) saveUpload(src io.Reader, filename string) (string, error) {
	dir := s.config.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dst, err := os.CreateTemp(dir, "upload-*"+filepath.Ext(filename))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func (s *Server) handleGetIngestion(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tracker(r)
	if !ok {
		s.respondError(w, http.StatusNotFound, "ingestion not found")
		return
	}
	s.respondJSON(w, http.StatusOK, t.Snapshot())
}

// handleIngestionEvents streams one server-sent event per progress change until the run
// reaches a terminal stage or the client goes away.
func (s *Server) handleIngestionEvents(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tracker(r)
	if !ok {
		s.respondError(w, http.StatusNotFound, "ingestion not found")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		snap, changed := t.Watch()
		data, err := json.Marshal(snap)
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
		if snap.Stage.Terminal() {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-changed:
		}
	}
}

func (s *Server) tracker(r *http.Request) (*progress.Tracker, bool) {
	if s.registry == nil {
		return nil, false
	}
	return s.registry.Get(chi.URLParam(r, "id"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	points, documents, err := s.engine.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents": documents,
		"chunks":    points,
		"time":      time.Now().UTC(),
	}
	if s.registry != nil {
		resp["active_ingestions"] = s.registry.Active()
	}
	if len(s.dataPaths) > 0 {
		if diskBytes, err := utils.DiskUsageBytes(s.dataPaths...); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrInvalidField):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDocumentNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondError(w, statusFor(err), err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
