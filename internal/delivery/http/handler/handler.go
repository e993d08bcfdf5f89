package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/aiclient"
	"github.com/user/alttext-service/internal/delivery/http/request"
	"github.com/user/alttext-service/internal/delivery/http/response"
	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/usecase"
)

const (
	maxBodyBytes    = 10 << 20
	defaultLogLimit = 50
)

type Renderer interface {
	InjectIntoBuffer(ctx context.Context, html string) string
	ResolveAlts(ctx context.Context, html string) map[string]string
}

type DocumentProcessor interface {
	ProcessDocumentSave(ctx context.Context, documentID string) (usecase.DocumentSummary, error)
}

type BulkOrchestrator interface {
	StartJob(ctx context.Context, scope entity.BulkScope, forceUpdate, dryRun bool) (entity.JobProgress, error)
	ProcessNextChunk(ctx context.Context, jobID string) (entity.JobProgress, error)
	GetProgress(ctx context.Context, jobID string) (entity.JobProgress, error)
	DeleteJob(ctx context.Context, jobID string) error
}

type ChangeLog interface {
	List(ctx context.Context, limit, offset int) ([]*entity.ChangeLogEntry, error)
	Revert(ctx context.Context, logID int64) (*entity.ChangeLogEntry, error)
}

type Previewer interface {
	Preview(ctx context.Context, url string) (*usecase.PreviewResult, error)
}

// Deps are the use cases behind the API. Previewer may be nil when no page
// renderer is available.
type Deps struct {
	Renderer  Renderer
	Documents DocumentProcessor
	Bulk      BulkOrchestrator
	ChangeLog ChangeLog
	Previewer Previewer
	// Health maps a component name to its ping.
	Health map[string]func(context.Context) error
}

type Handler struct {
	deps   Deps
	logger *zap.Logger
}

func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{deps: deps, logger: logger}
}

func (h *Handler) HandleInject(w http.ResponseWriter, r *http.Request) {
	var req request.InjectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeJSON(w, http.StatusOK, response.InjectResponse{
		HTML: h.deps.Renderer.InjectIntoBuffer(r.Context(), req.HTML),
	})
}

func (h *Handler) HandleResolveAlts(w http.ResponseWriter, r *http.Request) {
	var req request.InjectRequest
	if !h.decode(w, r, &req) {
		return
	}
	alts := h.deps.Renderer.ResolveAlts(r.Context(), req.HTML)
	if alts == nil {
		alts = map[string]string{}
	}
	h.writeJSON(w, http.StatusOK, response.AltsResponse{Alts: alts})
}

func (h *Handler) HandleProcessDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := h.deps.Documents.ProcessDocumentSave(r.Context(), id)
	if err != nil {
		h.writeUsecaseError(w, "Failed to process document", err, zap.String("document_id", id))
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleStartBulkJob(w http.ResponseWriter, r *http.Request) {
	var req request.StartBulkJobRequest
	if !h.decode(w, r, &req) {
		return
	}
	var scope entity.BulkScope
	if req.Scope != "" {
		parsed, err := entity.ParseBulkScope(req.Scope)
		if err != nil {
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		scope = parsed
	}

	progress, err := h.deps.Bulk.StartJob(r.Context(), scope, req.ForceUpdate, req.DryRun)
	if err != nil {
		h.writeUsecaseError(w, "Failed to start bulk job", err)
		return
	}
	status := http.StatusAccepted
	if progress.Complete {
		status = http.StatusOK
	}
	h.writeJSON(w, status, progress)
}

func (h *Handler) HandleNextChunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	progress, err := h.deps.Bulk.ProcessNextChunk(r.Context(), id)
	if err != nil {
		h.writeUsecaseError(w, "Failed to process chunk", err, zap.String("job_id", id))
		return
	}
	h.writeJSON(w, http.StatusOK, progress)
}

func (h *Handler) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	progress, err := h.deps.Bulk.GetProgress(r.Context(), id)
	if err != nil {
		h.writeUsecaseError(w, "Failed to get job progress", err, zap.String("job_id", id))
		return
	}
	h.writeJSON(w, http.StatusOK, progress)
}

func (h *Handler) HandleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Bulk.DeleteJob(r.Context(), id); err != nil {
		h.writeUsecaseError(w, "Failed to delete job", err, zap.String("job_id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLogLimit)
	if err != nil {
		h.writeJSONError(w, "limit must be an integer", http.StatusBadRequest)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.writeJSONError(w, "offset must be an integer", http.StatusBadRequest)
		return
	}

	entries, err := h.deps.ChangeLog.List(r.Context(), limit, offset)
	if err != nil {
		h.writeUsecaseError(w, "Failed to list change log", err)
		return
	}
	if entries == nil {
		entries = []*entity.ChangeLogEntry{}
	}
	h.writeJSON(w, http.StatusOK, response.LogListResponse{Entries: entries, Limit: limit, Offset: offset})
}

func (h *Handler) HandleRevert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeJSONError(w, "Invalid log entry id", http.StatusBadRequest)
		return
	}
	entry, err := h.deps.ChangeLog.Revert(r.Context(), id)
	if err != nil {
		h.writeUsecaseError(w, "Failed to revert change", err, zap.Int64("log_id", id))
		return
	}
	h.writeJSON(w, http.StatusOK, response.RevertResponse{Status: "reverted", Entry: entry})
}

func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if h.deps.Previewer == nil {
		h.writeJSONError(w, "Page preview is not available", http.StatusServiceUnavailable)
		return
	}
	var req request.PreviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	if u, err := url.ParseRequestURI(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		h.writeJSONError(w, "Invalid URL format", http.StatusBadRequest)
		return
	}

	result, err := h.deps.Previewer.Preview(r.Context(), req.URL)
	if err != nil {
		h.logger.Error("failed to preview page", zap.String("url", req.URL), zap.Error(err))
		h.writeJSONError(w, "Failed to render page", http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"status": "ok"}
	healthy := true
	for name, ping := range h.deps.Health {
		if err := ping(ctx); err != nil {
			healthStatus[name] = "unhealthy"
			healthy = false
			h.logger.Error("health check failed", zap.String("component", name), zap.Error(err))
			continue
		}
		healthStatus[name] = "healthy"
	}
	if !healthy {
		healthStatus["status"] = "degraded"
		h.writeJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	h.writeJSON(w, http.StatusOK, healthStatus)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// writeUsecaseError maps use case sentinels to status codes and logs
// anything unexpected.
func (h *Handler) writeUsecaseError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	switch {
	case errors.Is(err, usecase.ErrJobNotFound),
		errors.Is(err, usecase.ErrLogEntryNotFound),
		errors.Is(err, usecase.ErrDocumentNotFound):
		h.writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, usecase.ErrJobBusy):
		h.writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, usecase.ErrRevertUnsupported):
		h.writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, aiclient.ErrNotConfigured):
		h.writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
