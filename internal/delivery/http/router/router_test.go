package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/user/alttext-service/internal/delivery/http/handler"
	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/usecase"
	"github.com/user/alttext-service/pkg/metrics"
)

type fakeRenderer struct{}

func (fakeRenderer) InjectIntoBuffer(_ context.Context, html string) string {
	return strings.ReplaceAll(html, `<img src="/a.jpg">`, `<img src="/a.jpg" alt="A">`)
}

func (fakeRenderer) ResolveAlts(context.Context, string) map[string]string {
	return map[string]string{"/a.jpg": "A"}
}

type fakeDocuments struct{}

func (fakeDocuments) ProcessDocumentSave(_ context.Context, id string) (usecase.DocumentSummary, error) {
	if id == "missing" {
		return usecase.DocumentSummary{}, usecase.ErrDocumentNotFound
	}
	return usecase.DocumentSummary{DocumentID: id, Images: 2, Updated: 1, Skipped: 1}, nil
}

type fakeBulk struct {
	scope  entity.BulkScope
	force  bool
	dryRun bool
}

func (f *fakeBulk) StartJob(_ context.Context, scope entity.BulkScope, force, dryRun bool) (entity.JobProgress, error) {
	f.scope, f.force, f.dryRun = scope, force, dryRun
	return entity.JobProgress{JobID: "job-1", Total: 120, Complete: dryRun, DryRun: dryRun}, nil
}

func (f *fakeBulk) ProcessNextChunk(_ context.Context, id string) (entity.JobProgress, error) {
	switch id {
	case "busy":
		return entity.JobProgress{}, usecase.ErrJobBusy
	case "job-1":
		return entity.JobProgress{JobID: id, Total: 120, Processed: 50, Percent: 41}, nil
	}
	return entity.JobProgress{}, usecase.ErrJobNotFound
}

func (f *fakeBulk) GetProgress(_ context.Context, id string) (entity.JobProgress, error) {
	if id != "job-1" {
		return entity.JobProgress{}, usecase.ErrJobNotFound
	}
	return entity.JobProgress{JobID: id, Total: 120, Processed: 50}, nil
}

func (f *fakeBulk) DeleteJob(_ context.Context, id string) error {
	if id != "job-1" {
		return usecase.ErrJobNotFound
	}
	return nil
}

type fakeChangeLog struct {
	limit, offset int
}

func (f *fakeChangeLog) List(_ context.Context, limit, offset int) ([]*entity.ChangeLogEntry, error) {
	f.limit, f.offset = limit, offset
	return []*entity.ChangeLogEntry{{ID: 7, Source: entity.SourceHeuristic, Status: entity.StatusSuccess}}, nil
}

func (f *fakeChangeLog) Revert(_ context.Context, id int64) (*entity.ChangeLogEntry, error) {
	switch id {
	case 7:
		return &entity.ChangeLogEntry{ID: 8, Source: entity.SourceRevert, Status: entity.StatusSuccess}, nil
	case 9:
		return nil, usecase.ErrRevertUnsupported
	}
	return nil, usecase.ErrLogEntryNotFound
}

type testServer struct {
	*httptest.Server
	bulk *fakeBulk
	logs *fakeChangeLog
}

func newTestServer(t *testing.T, health map[string]func(context.Context) error) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	bulk := &fakeBulk{}
	logs := &fakeChangeLog{}
	h := handler.NewHandler(handler.Deps{
		Renderer:  fakeRenderer{},
		Documents: fakeDocuments{},
		Bulk:      bulk,
		ChangeLog: logs,
		Health:    health,
	}, logger)
	srv := httptest.NewServer(New(h, metrics.New(reg), reg, logger))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, bulk: bulk, logs: logs}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp.StatusCode, decoded
}

func TestInjectAndAlts(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, http.MethodPost, "/api/inject", `{"html":"<p><img src=\"/a.jpg\"></p>"}`)
	if status != http.StatusOK || body["html"] != `<p><img src="/a.jpg" alt="A"></p>` {
		t.Fatalf("unexpected inject response %d %v", status, body)
	}

	status, body = srv.do(t, http.MethodPost, "/api/alts", `{"html":"x"}`)
	alts, _ := body["alts"].(map[string]any)
	if status != http.StatusOK || alts["/a.jpg"] != "A" {
		t.Fatalf("unexpected alts response %d %v", status, body)
	}

	if status, _ := srv.do(t, http.MethodPost, "/api/inject", `not json`); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid body, got %d", status)
	}
}

func TestProcessDocument(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, http.MethodPost, "/api/documents/p1/process", "")
	if status != http.StatusOK || body["document_id"] != "p1" || body["updated"] != float64(1) {
		t.Fatalf("unexpected response %d %v", status, body)
	}
	if status, _ := srv.do(t, http.MethodPost, "/api/documents/missing/process", ""); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestBulkRoutes(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, http.MethodPost, "/api/bulk/jobs", `{"scope":"attachedOnly","force_update":true}`)
	if status != http.StatusAccepted || body["job_id"] != "job-1" {
		t.Fatalf("unexpected start response %d %v", status, body)
	}
	if srv.bulk.scope != entity.ScopeAttachedOnly || !srv.bulk.force || srv.bulk.dryRun {
		t.Fatalf("unexpected start arguments %+v", srv.bulk)
	}

	status, body = srv.do(t, http.MethodPost, "/api/bulk/jobs", `{"dry_run":true}`)
	if status != http.StatusOK || body["complete"] != true || srv.bulk.scope != "" {
		t.Fatalf("unexpected dry run response %d %v scope=%q", status, body, srv.bulk.scope)
	}

	if status, _ := srv.do(t, http.MethodPost, "/api/bulk/jobs", `{"scope":"everything"}`); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown scope, got %d", status)
	}

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/api/bulk/jobs/job-1/next", http.StatusOK},
		{http.MethodPost, "/api/bulk/jobs/busy/next", http.StatusConflict},
		{http.MethodPost, "/api/bulk/jobs/gone/next", http.StatusNotFound},
		{http.MethodGet, "/api/bulk/jobs/job-1", http.StatusOK},
		{http.MethodGet, "/api/bulk/jobs/gone", http.StatusNotFound},
		{http.MethodDelete, "/api/bulk/jobs/job-1", http.StatusNoContent},
		{http.MethodDelete, "/api/bulk/jobs/gone", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if status, _ := srv.do(t, tt.method, tt.path, ""); status != tt.want {
				t.Fatalf("got status %d, want %d", status, tt.want)
			}
		})
	}
}

func TestLogRoutes(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, http.MethodGet, "/api/logs?limit=10&offset=20", "")
	entries, _ := body["entries"].([]any)
	if status != http.StatusOK || len(entries) != 1 {
		t.Fatalf("unexpected list response %d %v", status, body)
	}
	if srv.logs.limit != 10 || srv.logs.offset != 20 {
		t.Fatalf("paging not forwarded: %+v", srv.logs)
	}
	if status, _ := srv.do(t, http.MethodGet, "/api/logs?limit=ten", ""); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", status)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/logs/7/revert", http.StatusOK},
		{"/api/logs/9/revert", http.StatusUnprocessableEntity},
		{"/api/logs/404/revert", http.StatusNotFound},
		{"/api/logs/abc/revert", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if status, _ := srv.do(t, http.MethodPost, tt.path, ""); status != tt.want {
				t.Fatalf("got status %d, want %d", status, tt.want)
			}
		})
	}
}

func TestPreviewUnavailable(t *testing.T) {
	srv := newTestServer(t, nil)
	if status, _ := srv.do(t, http.MethodPost, "/api/preview", `{"url":"https://example.com"}`); status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a page renderer, got %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, map[string]func(context.Context) error{
		"storage":   func(context.Context) error { return nil },
		"transient": func(context.Context) error { return errors.New("connection refused") },
	})

	status, body := srv.do(t, http.MethodGet, "/api/health", "")
	if status != http.StatusServiceUnavailable || body["storage"] != "healthy" || body["transient"] != "unhealthy" {
		t.Fatalf("unexpected health response %d %v", status, body)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `http_requests_total{method="GET",path="/api/health",status="503"} 1`) {
		t.Fatalf("request metric missing from exposition:\n%s", raw)
	}
}
