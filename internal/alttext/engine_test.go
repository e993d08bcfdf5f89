package alttext

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap/zaptest"

	"github.com/user/alttext-service/internal/aiclient"
	"github.com/user/alttext-service/internal/entity"
)

type fakeGenerator struct {
	batch      aiclient.BatchResult
	one        aiclient.OneResult
	err        error
	batchCalls int
	requested  []entity.ImageReference
}

func (f *fakeGenerator) GenerateBatch(_ context.Context, images []entity.ImageReference, _ entity.PageContext, _ int) (aiclient.BatchResult, error) {
	f.batchCalls++
	f.requested = images
	return f.batch, f.err
}

func (f *fakeGenerator) GenerateOne(_ context.Context, _ entity.ImageReference, _ entity.PageContext, _ int) (aiclient.OneResult, error) {
	return f.one, f.err
}

func TestHeuristicAlt(t *testing.T) {
	page := entity.PageContext{Title: "Garden Guide"}
	tests := []struct {
		name       string
		page       entity.PageContext
		url        string
		position   int
		imageCount int
		maxLength  int
		want       string
	}{
		{name: "single image uses title", page: page, url: "a.jpg", imageCount: 1, maxLength: 125, want: "Garden Guide"},
		{name: "excerpt wins", page: entity.PageContext{Title: "T", Excerpt: "<p>Planting bulbs</p>"}, url: "a.jpg", imageCount: 1, maxLength: 125, want: "Planting bulbs"},
		{name: "filename variation", page: page, url: "/up/red-tulips-300x200.jpg", imageCount: 2, maxLength: 125, want: "Garden Guide - Red Tulips"},
		{name: "position suffix", page: page, url: "/up/red-tulips.jpg", position: 2, imageCount: 3, maxLength: 125, want: "Garden Guide - Red Tulips (Image 3)"},
		{name: "filename does not fit", page: page, url: "/up/an-extremely-long-descriptive-file-name.jpg", imageCount: 2, maxLength: 20, want: "Garden Guide"},
		{name: "filename only", page: entity.PageContext{}, url: "/up/blue_sky.png", imageCount: 1, maxLength: 125, want: "Blue Sky"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HeuristicAlt(tt.page, tt.url, tt.position, tt.imageCount, tt.maxLength)
			if got != tt.want {
				t.Fatalf("HeuristicAlt = %q, want %q", got, tt.want)
			}
			if utf8.RuneCountInString(got) > tt.maxLength {
				t.Fatalf("result exceeds max length: %q", got)
			}
		})
	}
}

func TestDecideReferencesHeuristic(t *testing.T) {
	engine := NewEngine(nil, zaptest.NewLogger(t))
	images := []entity.ImageReference{
		{SourceURL: "a.jpg", Position: 0},
		{SourceURL: "b.jpg", CurrentAltText: "existing", HasAltAttribute: true, Position: 1},
	}
	decisions, err := engine.DecideReferences(context.Background(), images, entity.PageContext{Title: "Garden Guide"},
		entity.GenerationPolicy{Source: entity.AltSourceHeuristic, MaxLength: 125})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decisions))
	}
	if !decisions[0].Changed() || decisions[0].Source != entity.SourceHeuristic {
		t.Fatalf("unexpected first decision %+v", decisions[0])
	}
	if !strings.HasPrefix(decisions[0].NewAlt, "Garden Guide") {
		t.Fatalf("unexpected text %q", decisions[0].NewAlt)
	}
	if decisions[1].Status != entity.StatusSkipped || decisions[1].Reason != ReasonAlreadyPresent {
		t.Fatalf("existing alt must be skipped, got %+v", decisions[1])
	}
}

func TestDecideReferencesForceUpdate(t *testing.T) {
	engine := NewEngine(nil, nil)
	images := []entity.ImageReference{{SourceURL: "b.jpg", CurrentAltText: "existing", HasAltAttribute: true}}
	decisions, err := engine.DecideReferences(context.Background(), images, entity.PageContext{Title: "New"},
		entity.GenerationPolicy{Source: entity.AltSourceHeuristic, ForceUpdate: true, MaxLength: 125})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decisions[0].NewAlt != "New" || decisions[0].OldAlt != "existing" {
		t.Fatalf("unexpected decision %+v", decisions[0])
	}
}

func TestDecideReferencesAIBatch(t *testing.T) {
	gen := &fakeGenerator{batch: aiclient.BatchResult{
		Outcome: aiclient.OutcomeOK,
		Alts:    map[string]string{"a.jpg": "A watering can"},
		Model:   "vision-1",
	}}
	engine := NewEngine(gen, zaptest.NewLogger(t))
	images := []entity.ImageReference{
		{SourceURL: "a.jpg", Position: 0},
		{SourceURL: "b.jpg", Position: 1},
		{SourceURL: "c.jpg", CurrentAltText: "kept", HasAltAttribute: true, Position: 2},
	}
	decisions, err := engine.DecideReferences(context.Background(), images, entity.PageContext{Title: "Garden Guide"},
		entity.GenerationPolicy{Source: entity.AltSourceAI, MaxLength: 125})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.batchCalls != 1 || len(gen.requested) != 2 {
		t.Fatalf("expected one batch call for 2 images, got %d calls with %d images", gen.batchCalls, len(gen.requested))
	}
	if decisions[0].Source != entity.SourceAI || decisions[0].Model != "vision-1" || decisions[0].NewAlt != "A watering can" {
		t.Fatalf("unexpected ai decision %+v", decisions[0])
	}
	if decisions[1].Source != entity.SourceAIFallback || decisions[1].NewAlt == "" {
		t.Fatalf("unmatched image must fall back, got %+v", decisions[1])
	}
	if decisions[2].Status != entity.StatusSkipped {
		t.Fatalf("kept alt must be skipped, got %+v", decisions[2])
	}
}

func TestDecideReferencesProviderFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{batch: aiclient.BatchResult{Outcome: aiclient.OutcomeProviderFailure, Reason: "ai request: http 500"}}
	engine := NewEngine(gen, zaptest.NewLogger(t))
	decisions, err := engine.DecideReferences(context.Background(), []entity.ImageReference{{SourceURL: "a.jpg"}},
		entity.PageContext{Title: "Garden Guide"}, entity.GenerationPolicy{Source: entity.AltSourceAI, MaxLength: 125})
	if err != nil {
		t.Fatalf("provider failure must not surface as error: %v", err)
	}
	d := decisions[0]
	if d.NewAlt != "Garden Guide" || d.Source != entity.SourceAIFallback || d.Severity != entity.SeverityError {
		t.Fatalf("unexpected fallback decision %+v", d)
	}
}

func TestDecideReferencesNotConfigured(t *testing.T) {
	engine := NewEngine(&fakeGenerator{err: aiclient.ErrNotConfigured}, zaptest.NewLogger(t))
	_, err := engine.DecideReferences(context.Background(), []entity.ImageReference{{SourceURL: "a.jpg"}},
		entity.PageContext{Title: "x"}, entity.GenerationPolicy{Source: entity.AltSourceAI, MaxLength: 125})
	if !errors.Is(err, aiclient.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDecideReferencesNoText(t *testing.T) {
	engine := NewEngine(nil, nil)
	decisions, err := engine.DecideReferences(context.Background(), []entity.ImageReference{{SourceURL: ""}},
		entity.PageContext{}, entity.GenerationPolicy{Source: entity.AltSourceHeuristic, MaxLength: 125})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decisions[0].Status != entity.StatusSkipped || decisions[0].Reason != ReasonNoText {
		t.Fatalf("expected no-text skip, got %+v", decisions[0])
	}
}

func TestDecideCanonical(t *testing.T) {
	gen := &fakeGenerator{one: aiclient.OneResult{Outcome: aiclient.OutcomeCircuitOpen}}
	engine := NewEngine(gen, zaptest.NewLogger(t))
	img := &entity.CanonicalImage{ID: "7", SourceURL: "/up/sunflower-field.jpg"}
	d, err := engine.DecideCanonical(context.Background(), img, entity.PageContext{}, entity.GenerationPolicy{Source: entity.AltSourceAI, MaxLength: 125})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ImageID != "7" || d.NewAlt != "Sunflower Field" || d.Source != entity.SourceAIFallback {
		t.Fatalf("unexpected decision %+v", d)
	}

	gen.one = aiclient.OneResult{Outcome: aiclient.OutcomeOK, Text: "Sunflowers at dusk", Model: "m"}
	d, err = engine.DecideCanonical(context.Background(), img, entity.PageContext{}, entity.GenerationPolicy{Source: entity.AltSourceAI, MaxLength: 125})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.NewAlt != "Sunflowers at dusk" || d.Source != entity.SourceAI {
		t.Fatalf("unexpected ai decision %+v", d)
	}

	img.AltText = "stored"
	d, _ = engine.DecideCanonical(context.Background(), img, entity.PageContext{}, entity.GenerationPolicy{Source: entity.AltSourceAI, MaxLength: 125})
	if d.Status != entity.StatusSkipped {
		t.Fatalf("stored alt must be skipped without force, got %+v", d)
	}
}
