// Package alttext decides, per image, whether alt text is generated and
// with which strategy. AI generation always degrades to the heuristic.
package alttext

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/aiclient"
	"github.com/user/alttext-service/internal/entity"
)

const (
	ReasonAlreadyPresent = "alt text already present"
	ReasonNoText         = "no alt text generated"
)

// Generator is the AI capability the engine depends on.
type Generator interface {
	GenerateBatch(ctx context.Context, images []entity.ImageReference, page entity.PageContext, maxLength int) (aiclient.BatchResult, error)
	GenerateOne(ctx context.Context, image entity.ImageReference, page entity.PageContext, maxLength int) (aiclient.OneResult, error)
}

// Decision is the outcome for one image.
type Decision struct {
	ImageID   string
	SourceURL string
	Position  int
	OldAlt    string
	NewAlt    string
	Source    entity.Source
	Status    entity.Status
	Severity  entity.Severity
	Model     string
	// Reason explains skips and AI fallbacks.
	Reason string
}

// Changed reports whether the decision carries new text to write.
func (d Decision) Changed() bool {
	return d.Status == entity.StatusSuccess && d.NewAlt != ""
}

// Engine is stateless apart from its collaborators.
type Engine struct {
	ai     Generator
	logger *zap.Logger
}

// NewEngine creates an engine. ai may be nil when only heuristics are used.
func NewEngine(ai Generator, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{ai: ai, logger: logger}
}

// DecideReferences returns one decision per image, in document order. With
// an AI policy exactly one batch call covers every image that needs text.
// The only error is a provider configuration error.
func (e *Engine) DecideReferences(ctx context.Context, images []entity.ImageReference, page entity.PageContext, policy entity.GenerationPolicy) ([]Decision, error) {
	decisions := make([]Decision, len(images))
	var pending []int
	for i, img := range images {
		decisions[i] = Decision{SourceURL: img.SourceURL, Position: img.Position, OldAlt: img.CurrentAltText}
		if !img.NeedsAlt() && !policy.ForceUpdate {
			decisions[i].skip(ReasonAlreadyPresent)
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return decisions, nil
	}

	var batch aiclient.BatchResult
	useAI := policy.Source == entity.AltSourceAI
	if useAI {
		requested := make([]entity.ImageReference, 0, len(pending))
		for _, i := range pending {
			requested = append(requested, images[i])
		}
		res, err := e.generateBatch(ctx, requested, page, policy.MaxLength)
		if err != nil {
			return nil, err
		}
		batch = res
	}

	for _, i := range pending {
		d := &decisions[i]
		if useAI && batch.OK() {
			if text, ok := batch.Alts[d.SourceURL]; ok {
				d.succeed(text, entity.SourceAI, batch.Model)
				continue
			}
		}
		text := HeuristicAlt(page, d.SourceURL, d.Position, len(images), policy.MaxLength)
		if text == "" {
			d.skip(ReasonNoText)
			continue
		}
		if !useAI {
			d.succeed(text, entity.SourceHeuristic, "")
			continue
		}
		d.succeed(text, entity.SourceAIFallback, "")
		d.Reason, d.Severity = fallbackReason(batch)
	}
	return decisions, nil
}

// DecideCanonical decides for a stored image, using the single-image AI call.
func (e *Engine) DecideCanonical(ctx context.Context, image *entity.CanonicalImage, page entity.PageContext, policy entity.GenerationPolicy) (Decision, error) {
	d := Decision{ImageID: image.ID, SourceURL: image.SourceURL, OldAlt: image.AltText}
	if image.AltText != "" && !policy.ForceUpdate {
		d.skip(ReasonAlreadyPresent)
		return d, nil
	}

	var one aiclient.OneResult
	useAI := policy.Source == entity.AltSourceAI
	if useAI {
		if e.ai == nil {
			return Decision{}, aiclient.ErrNotConfigured
		}
		ref := entity.ImageReference{SourceURL: image.SourceURL, CurrentAltText: image.AltText, HasAltAttribute: image.HasAlt}
		res, err := e.ai.GenerateOne(ctx, ref, page, policy.MaxLength)
		if err != nil {
			return Decision{}, err
		}
		one = res
		if res.Outcome == aiclient.OutcomeOK && res.Text != "" {
			d.succeed(res.Text, entity.SourceAI, res.Model)
			return d, nil
		}
	}

	text := HeuristicAlt(page, image.SourceURL, 0, 1, policy.MaxLength)
	switch {
	case text == "":
		d.skip(ReasonNoText)
	case !useAI:
		d.succeed(text, entity.SourceHeuristic, "")
	default:
		d.succeed(text, entity.SourceAIFallback, "")
		d.Reason, d.Severity = fallbackReason(aiclient.BatchResult{Outcome: one.Outcome, Reason: one.Reason})
	}
	return d, nil
}

func (e *Engine) generateBatch(ctx context.Context, images []entity.ImageReference, page entity.PageContext, maxLength int) (aiclient.BatchResult, error) {
	if e.ai == nil {
		return aiclient.BatchResult{}, aiclient.ErrNotConfigured
	}
	res, err := e.ai.GenerateBatch(ctx, images, page, maxLength)
	if err != nil {
		if errors.Is(err, aiclient.ErrNotConfigured) {
			e.logger.Error("ai generation requested without a configured endpoint")
		}
		return aiclient.BatchResult{}, err
	}
	return res, nil
}

// fallbackReason labels a heuristic fallback. Provider failures are errors;
// a short-circuited call is routine while the breaker is open.
func fallbackReason(res aiclient.BatchResult) (string, entity.Severity) {
	switch res.Outcome {
	case aiclient.OutcomeProviderFailure:
		return "ai provider failure: " + res.Reason, entity.SeverityError
	case aiclient.OutcomeCircuitOpen:
		return "ai circuit open", entity.SeverityInfo
	default:
		return "ai returned no text for image", entity.SeverityInfo
	}
}

func (d *Decision) skip(reason string) {
	d.Status = entity.StatusSkipped
	d.Severity = entity.SeverityDebug
	d.Reason = reason
}

func (d *Decision) succeed(text string, source entity.Source, model string) {
	d.NewAlt = text
	d.Source = source
	d.Model = model
	d.Status = entity.StatusSuccess
	d.Severity = entity.SeverityInfo
}
