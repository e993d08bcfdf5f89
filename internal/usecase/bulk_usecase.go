package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/alttext"
	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/repository"
	"github.com/user/alttext-service/pkg/config"
	"github.com/user/alttext-service/pkg/metrics"
)

const (
	jobStateTTL   = time.Hour
	chunkLockTTL  = 5 * time.Minute
	previewLimit  = 10
	jobKeyPrefix  = "bulk:"
	lockKeySuffix = ":lock"
)

// BulkOrchestrator drives the decision cycle over large candidate sets in
// fixed-size chunks, one chunk per invocation.
type BulkOrchestrator struct {
	docs      repository.DocumentRepository
	transient repository.TransientRepository
	engine    *alttext.Engine
	writer    *altWriter
	newID     func() string
}

// NewBulkOrchestrator creates the bulk use case.
func NewBulkOrchestrator(
	settings config.Settings,
	engine *alttext.Engine,
	images repository.ImageRepository,
	docs repository.DocumentRepository,
	transient repository.TransientRepository,
	changelog *ChangeLog,
	m *metrics.Metrics,
	logger *zap.Logger,
) *BulkOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkOrchestrator{
		docs:      docs,
		transient: transient,
		engine:    engine,
		writer: &altWriter{
			images:    images,
			changelog: changelog,
			settings:  settings,
			metrics:   m,
			logger:    logger,
			now:       time.Now,
		},
		newID: uuid.NewString,
	}
}

// StartJob snapshots the candidate ids for scope. A dry run computes the
// preview right away, writes nothing and is complete on return.
func (o *BulkOrchestrator) StartJob(ctx context.Context, scope entity.BulkScope, forceUpdate, dryRun bool) (entity.JobProgress, error) {
	if scope == "" {
		scope = o.writer.settings.BulkScope
	}
	ids, err := o.writer.images.ListCandidates(ctx, scope, forceUpdate)
	if err != nil {
		return entity.JobProgress{}, fmt.Errorf("list candidates: %w", err)
	}
	job := &entity.BulkJob{
		ID:           o.newID(),
		Total:        len(ids),
		CandidateIDs: ids,
		ChunkSize:    o.writer.settings.BatchSize,
		Scope:        scope,
		ForceUpdate:  forceUpdate,
		DryRun:       dryRun,
		StartedAt:    o.writer.now(),
	}

	if dryRun {
		job.Preview = o.preview(ctx, job)
		return job.Progress(true), nil
	}
	if err := o.save(ctx, job); err != nil {
		return entity.JobProgress{}, err
	}
	o.writer.logger.Info("bulk job started",
		zap.String("job_id", job.ID),
		zap.String("scope", string(scope)),
		zap.Int("total", job.Total),
		zap.Bool("force_update", forceUpdate),
	)
	return job.Progress(false), nil
}

// ProcessNextChunk processes the next slice of the snapshot. Per-image
// errors are counted and do not stop the chunk. The chunk that reaches the
// end of the snapshot completes the job and deletes its state.
func (o *BulkOrchestrator) ProcessNextChunk(ctx context.Context, jobID string) (entity.JobProgress, error) {
	lockKey := jobKeyPrefix + jobID + lockKeySuffix
	locked, err := o.transient.SetNX(ctx, lockKey, "1", chunkLockTTL)
	if err != nil {
		return entity.JobProgress{}, fmt.Errorf("acquire chunk lock: %w", err)
	}
	if !locked {
		return entity.JobProgress{}, ErrJobBusy
	}
	defer func() {
		if err := o.transient.Delete(context.WithoutCancel(ctx), lockKey); err != nil {
			o.writer.logger.Warn("failed to release chunk lock", zap.String("job_id", jobID), zap.Error(err))
		}
	}()

	job, err := o.load(ctx, jobID)
	if err != nil {
		return entity.JobProgress{}, err
	}

	size := job.ChunkSize
	if size <= 0 {
		size = o.writer.settings.BatchSize
	}
	start := job.Cursor * size
	if start >= job.Total {
		return o.complete(ctx, job)
	}
	end := min(start+size, job.Total)

	for _, id := range job.CandidateIDs[start:end] {
		if err := o.processOne(ctx, job, id); err != nil {
			job.ErrorCount++
			o.writer.logger.Warn("bulk image failed", zap.String("job_id", job.ID), zap.String("image_id", id), zap.Error(err))
		}
		job.ProcessedCount++
	}
	job.Cursor++
	o.writer.metrics.IncBulkChunk()

	if end >= job.Total {
		return o.complete(ctx, job)
	}
	if err := o.save(ctx, job); err != nil {
		return entity.JobProgress{}, err
	}
	return job.Progress(false), nil
}

// GetProgress reports a running job. Completed jobs have no state left
// and report ErrJobNotFound.
func (o *BulkOrchestrator) GetProgress(ctx context.Context, jobID string) (entity.JobProgress, error) {
	job, err := o.load(ctx, jobID)
	if err != nil {
		return entity.JobProgress{}, err
	}
	return job.Progress(false), nil
}

// DeleteJob abandons a job.
func (o *BulkOrchestrator) DeleteJob(ctx context.Context, jobID string) error {
	if _, err := o.load(ctx, jobID); err != nil {
		return err
	}
	return o.transient.Delete(ctx, jobKeyPrefix+jobID)
}

func (o *BulkOrchestrator) processOne(ctx context.Context, job *entity.BulkJob, id string) error {
	w := o.writer
	img, err := w.images.GetImage(ctx, id)
	if err != nil {
		return fmt.Errorf("load image: %w", err)
	}
	if w.cachedFresh(img) {
		w.record(ctx, img, alttext.Decision{}, entity.StatusSkipped, entity.SeverityDebug, reasonCached)
		return nil
	}
	d, err := o.engine.DecideCanonical(ctx, img, o.pageFor(ctx, img), o.policy(job))
	if err != nil {
		return err
	}
	_, err = w.apply(ctx, img, d, job.ForceUpdate)
	return err
}

func (o *BulkOrchestrator) preview(ctx context.Context, job *entity.BulkJob) []entity.PreviewItem {
	items := make([]entity.PreviewItem, 0, min(previewLimit, job.Total))
	for _, id := range job.CandidateIDs[:min(previewLimit, job.Total)] {
		img, err := o.writer.images.GetImage(ctx, id)
		if err != nil {
			o.writer.logger.Warn("preview image unavailable", zap.String("image_id", id), zap.Error(err))
			continue
		}
		item := entity.PreviewItem{ImageID: id, OldAlt: img.AltText, NewAlt: img.AltText}
		if !o.writer.cachedFresh(img) {
			d, err := o.engine.DecideCanonical(ctx, img, o.pageFor(ctx, img), o.policy(job))
			if err != nil {
				o.writer.logger.Warn("preview decision failed", zap.String("image_id", id), zap.Error(err))
			} else if d.Changed() {
				item.NewAlt = d.NewAlt
			}
		}
		items = append(items, item)
	}
	return items
}

func (o *BulkOrchestrator) policy(job *entity.BulkJob) entity.GenerationPolicy {
	return entity.GenerationPolicy{
		Source:      o.writer.settings.AltSource,
		ForceUpdate: job.ForceUpdate,
		MaxLength:   o.writer.settings.MaxAltLength,
	}
}

// pageFor returns the parent document context, or an empty one for
// unattached images.
func (o *BulkOrchestrator) pageFor(ctx context.Context, img *entity.CanonicalImage) entity.PageContext {
	if img.ParentID == "" || o.docs == nil {
		return entity.PageContext{}
	}
	page, err := o.docs.GetDocumentContext(ctx, img.ParentID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			o.writer.logger.Warn("failed to load parent document", zap.String("parent_id", img.ParentID), zap.Error(err))
		}
		return entity.PageContext{}
	}
	return *page
}

func (o *BulkOrchestrator) complete(ctx context.Context, job *entity.BulkJob) (entity.JobProgress, error) {
	if err := o.transient.Delete(ctx, jobKeyPrefix+job.ID); err != nil {
		o.writer.logger.Warn("failed to delete job state", zap.String("job_id", job.ID), zap.Error(err))
	}
	o.writer.logger.Info("bulk job complete",
		zap.String("job_id", job.ID),
		zap.Int("processed", job.ProcessedCount),
		zap.Int("errors", job.ErrorCount),
		zap.Duration("elapsed", o.writer.now().Sub(job.StartedAt)),
	)
	return job.Progress(true), nil
}

func (o *BulkOrchestrator) save(ctx context.Context, job *entity.BulkJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := o.transient.Set(ctx, jobKeyPrefix+job.ID, string(raw), jobStateTTL); err != nil {
		return fmt.Errorf("save job state: %w", err)
	}
	return nil
}

func (o *BulkOrchestrator) load(ctx context.Context, jobID string) (*entity.BulkJob, error) {
	raw, ok, err := o.transient.Get(ctx, jobKeyPrefix+jobID)
	if err != nil {
		return nil, fmt.Errorf("load job state: %w", err)
	}
	if !ok {
		return nil, ErrJobNotFound
	}
	var job entity.BulkJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode job state: %w", err)
	}
	return &job, nil
}
