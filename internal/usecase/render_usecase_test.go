package usecase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/user/alttext-service/internal/aiclient"
	"github.com/user/alttext-service/internal/alttext"
	"github.com/user/alttext-service/internal/breaker"
	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/pkg/config"
)

const gardenPage = `<html><head><title>Garden Guide</title></head><body><p>Intro</p><img src="a.jpg"></body></html>`

func newTestRenderer(t *testing.T, settings config.Settings, stores *testStores, gen alttext.Generator) *Renderer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	changelog := NewChangeLog(stores.logs, stores.images, settings, logger)
	return NewRenderer(settings, alttext.NewEngine(gen, logger), stores.images, changelog, nil, logger)
}

func TestInjectIntoBufferHeuristic(t *testing.T) {
	stores := setupStores(t)
	r := newTestRenderer(t, testSettings(), stores, nil)

	out := r.InjectIntoBuffer(context.Background(), gardenPage)
	if !strings.Contains(out, `<img src="a.jpg" alt="Garden Guide">`) {
		t.Fatalf("expected heuristic alt to be injected, got %s", out)
	}
	if again := r.InjectIntoBuffer(context.Background(), out); again != out {
		t.Fatalf("second pass must be a no-op:\nfirst:  %s\nsecond: %s", out, again)
	}
	entries := withStatus(stores.entries(t), entity.StatusSuccess)
	if len(entries) != 1 || entries[0].Source != entity.SourceHeuristic || entries[0].OldAltText != nil {
		t.Fatalf("expected one non-revertible heuristic entry, got %+v", entries)
	}
}

func withStatus(entries []*entity.ChangeLogEntry, status entity.Status) []*entity.ChangeLogEntry {
	var out []*entity.ChangeLogEntry
	for _, e := range entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func TestInjectIntoBufferKeepsExistingAlt(t *testing.T) {
	stores := setupStores(t)
	r := newTestRenderer(t, testSettings(), stores, nil)
	in := `<html><body><img src="a.jpg" alt="existing"></body></html>`
	if out := r.InjectIntoBuffer(context.Background(), in); out != in {
		t.Fatalf("expected unchanged output, got %s", out)
	}
	entries := stores.entries(t)
	if len(entries) != 1 {
		t.Fatalf("expected one skipped entry, got %+v", entries)
	}
	e := entries[0]
	if e.Status != entity.StatusSkipped || e.Severity != entity.SeverityDebug || e.Source != entity.SourceSystem {
		t.Fatalf("unexpected skip entry %+v", e)
	}
	if e.Message == nil || !strings.Contains(*e.Message, alttext.ReasonAlreadyPresent) {
		t.Fatalf("expected already-present reason, got %v", e.Message)
	}
}

func TestInjectIntoBufferSkipBelowLogLevel(t *testing.T) {
	stores := setupStores(t)
	settings := testSettings()
	settings.LogLevel = entity.SeverityInfo
	r := newTestRenderer(t, settings, stores, nil)
	r.InjectIntoBuffer(context.Background(), `<html><body><img src="a.jpg" alt="existing"></body></html>`)
	if entries := stores.entries(t); len(entries) != 0 {
		t.Fatalf("debug skips must be filtered at info level, got %+v", entries)
	}
}

func TestInjectIntoBufferReusesStoredAlt(t *testing.T) {
	stores := setupStores(t)
	stores.seedImage(t, &entity.CanonicalImage{ID: "9", SourceURL: "/up/tulip.jpg", AltText: "A single red tulip", HasAlt: true})
	r := newTestRenderer(t, testSettings(), stores, nil)

	out := r.InjectIntoBuffer(context.Background(), `<title>Garden Guide</title><img src="/up/tulip-300x300.jpg">`)
	if !strings.Contains(out, `alt="A single red tulip"`) {
		t.Fatalf("expected stored alt, got %s", out)
	}
	if skipped := withStatus(stores.entries(t), entity.StatusSkipped); len(skipped) != 0 {
		t.Fatalf("stored reuse is not a skip, got %+v", skipped)
	}
}

func TestInjectIntoBufferAIFailureFallsBack(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	stores := setupStores(t)
	b := breaker.New(stores.transient, zaptest.NewLogger(t))
	client := aiclient.NewClient(aiclient.Config{Endpoint: server.URL}, b, aiclient.WithLogger(zaptest.NewLogger(t)))
	settings := testSettings()
	settings.AltSource = entity.AltSourceAI
	r := newTestRenderer(t, settings, stores, client)

	out := r.InjectIntoBuffer(context.Background(), gardenPage)
	if !strings.Contains(out, `alt="Garden Guide"`) {
		t.Fatalf("expected heuristic fallback, got %s", out)
	}
	if atomic.LoadInt32(&requests) != 1 {
		t.Fatalf("expected one provider call, got %d", requests)
	}
	if n, _ := b.Failures(context.Background(), strings.TrimPrefix(server.URL, "http://")); n != 1 {
		t.Fatalf("expected breaker count 1, got %d", n)
	}
	entries := stores.entries(t)
	if len(entries) != 1 || entries[0].Source != entity.SourceAIFallback || entries[0].Severity != entity.SeverityError {
		t.Fatalf("expected an error-severity fallback entry, got %+v", entries)
	}
}

func TestInjectIntoBufferNotConfiguredReturnsOriginal(t *testing.T) {
	stores := setupStores(t)
	settings := testSettings()
	settings.AltSource = entity.AltSourceAI
	r := newTestRenderer(t, settings, stores, aiclient.NewClient(aiclient.Config{}, nil))
	if out := r.InjectIntoBuffer(context.Background(), gardenPage); out != gardenPage {
		t.Fatalf("expected original html, got %s", out)
	}
}

func TestClientScriptMethod(t *testing.T) {
	stores := setupStores(t)
	settings := testSettings()
	settings.InjectionMethod = config.InjectClientScript
	r := newTestRenderer(t, settings, stores, nil)

	if out := r.InjectIntoBuffer(context.Background(), gardenPage); out != gardenPage {
		t.Fatalf("client script method must leave html untouched")
	}
	alts := r.ResolveAlts(context.Background(), gardenPage)
	if alts["a.jpg"] != "Garden Guide" {
		t.Fatalf("unexpected resolved alts %v", alts)
	}
}

func TestInjectIntoBufferDisabled(t *testing.T) {
	stores := setupStores(t)
	settings := testSettings()
	settings.Enabled = false
	r := newTestRenderer(t, settings, stores, nil)
	if out := r.InjectIntoBuffer(context.Background(), gardenPage); out != gardenPage {
		t.Fatalf("disabled renderer must return input")
	}
}
