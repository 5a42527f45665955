package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/casadona/deidpipe/constants"
	"github.com/casadona/deidpipe/internal/async"
	"github.com/casadona/deidpipe/internal/blobstore"
	"github.com/casadona/deidpipe/internal/common"
	"github.com/casadona/deidpipe/internal/entity"
	"github.com/casadona/deidpipe/internal/extract"
	"github.com/casadona/deidpipe/internal/metadata"
	"github.com/casadona/deidpipe/internal/redact"
)

// Deps is the dependency context handed to the Orchestrator at construction.
// Every external capability the pipeline touches comes in here, so tests can
// substitute any of them.
type Deps struct {
	Blobs      blobstore.Store
	Sink       metadata.Sink
	Extractors *extract.Registry
	Redactor   redact.Redactor
	Entities   entity.Extractor // optional; EnrichJob fails without it
	Spawner    async.Spawner
	Logger     *slog.Logger

	// EntityCategory filters enrichment results; empty keeps every entity.
	EntityCategory string
}

// Orchestrator drives each uploaded file through
// Extract -> Redact -> Persist -> Enrich. One state machine per job; jobs
// run concurrently, stages within a job sequentially.
type Orchestrator struct {
	deps     Deps
	logger   *slog.Logger
	registry *jobRegistry
}

func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	if deps.Blobs == nil {
		return nil, common.ValidationErrorf("blob store is required")
	}
	if deps.Sink == nil {
		return nil, common.ValidationErrorf("metadata sink is required")
	}
	if deps.Extractors == nil {
		return nil, common.ValidationErrorf("extractor registry is required")
	}
	if deps.Redactor == nil {
		return nil, common.ValidationErrorf("redactor is required")
	}
	if deps.Spawner == nil {
		return nil, common.ValidationErrorf("task spawner is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		deps:     deps,
		logger:   deps.Logger,
		registry: newJobRegistry(),
	}, nil
}

// Submit stores the raw upload, registers a pending job, and schedules an
// asynchronous pipeline run. It returns as soon as the job is registered;
// it never waits on extraction or redaction. Re-submitting the same filename
// creates a new job with a new id.
func (o *Orchestrator) Submit(ctx context.Context, raw []byte, filename, mediaType string) (uuid.UUID, error) {
	if strings.TrimSpace(filename) == "" {
		return uuid.Nil, common.ValidationErrorf("filename is required")
	}
	if !o.deps.Extractors.Supports(mediaType) {
		return uuid.Nil, common.NewAppError("VALIDATION",
			fmt.Sprintf("no extractor registered for %q", mediaType), common.ErrUnsupportedMedia)
	}

	sourceKey := blobstore.RawKey(filename)
	if err := o.deps.Blobs.Put(ctx, sourceKey, raw); err != nil {
		return uuid.Nil, common.WrapError(err, "store raw upload")
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.New(),
		Filename:  filename,
		MediaType: mediaType,
		SizeBytes: int64(len(raw)),
		SourceKey: sourceKey,
		Stage:     constants.StageRegistered,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.registry.add(job)
	o.appendSnapshot(ctx, job)
	o.logger.Info("pipeline.submit.ok", "job_id", job.ID, "filename", filename, "media_type", mediaType, "bytes", len(raw))

	id := job.ID
	if err := o.deps.Spawner.Spawn(func() {
		// Job boundary: errors are recorded on the job and logged, never
		// propagated to the submitter or to sibling jobs.
		if err := o.Run(context.Background(), id); err != nil {
			o.logger.Error("pipeline.run.failed", "job_id", id, "error", err)
		}
	}); err != nil {
		o.logger.Error("pipeline.dispatch.failed", "job_id", id, "error", err)
	}
	return id, nil
}

// Job returns the job for an id.
func (o *Orchestrator) Job(id uuid.UUID) (*Job, error) {
	job, ok := o.registry.get(id)
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	return job, nil
}

// Jobs returns jobs in any of the given stages (all jobs with no filter).
func (o *Orchestrator) Jobs(stages ...constants.JobStage) []*Job {
	return o.registry.list(stages...)
}

// Run executes the stage sequence for one job. Calling it on a Done job is a
// no-op; calling it on a parked job resumes from the stage that failed, not
// from the start.
func (o *Orchestrator) Run(ctx context.Context, id uuid.UUID) error {
	job, err := o.Job(id)
	if err != nil {
		return err
	}
	job.runMu.Lock()
	defer job.runMu.Unlock()

	switch job.CurrentStage() {
	case constants.StageDone:
		o.logger.Info("pipeline.run.noop", "job_id", job.ID, "stage", job.CurrentStage())
		return nil
	case constants.StageRedacted, constants.StageEnriching:
		// Redaction already succeeded; only the terminal transition is left.
		o.setStage(ctx, job, constants.StageDone)
		return nil
	case constants.StageRegistered, constants.StageExtracting, constants.StageExtractFailed:
		if err := o.runExtract(ctx, job); err != nil {
			return err
		}
	}

	if err := o.runRedact(ctx, job); err != nil {
		return err
	}
	o.setStage(ctx, job, constants.StageDone)
	o.logger.Info("pipeline.run.done", "job_id", job.ID, "filename", job.Filename)
	return nil
}

// runExtract advances Registered/Extracting/ExtractFailed -> Extracted.
// Plain-text uploads skip the extractor entirely and use the raw bytes as
// text; this mirrors the documented text-file shortcut, so both paths are
// covered by tests rather than assumed equivalent.
func (o *Orchestrator) runExtract(ctx context.Context, job *Job) error {
	o.setStage(ctx, job, constants.StageExtracting)

	raw, err := o.deps.Blobs.Get(ctx, job.SourceKey)
	if err != nil {
		// Store failure, not an extraction verdict: stay in Extracting so a
		// retry re-attempts the read.
		o.recordError(ctx, job, err)
		return common.WrapError(err, "read raw upload")
	}

	var text, method string
	if constants.IsPlainText(job.MediaType) {
		text, method = string(raw), "plain-text"
	} else {
		ex, ok := o.deps.Extractors.Lookup(job.MediaType)
		if !ok {
			return o.failStage(ctx, job, constants.StageExtractFailed,
				common.NewAppError("EXTRACT", fmt.Sprintf("no extractor for %q", job.MediaType), common.ErrUnsupportedMedia))
		}
		res, err := ex.Extract(ctx, raw, job.MediaType)
		if err != nil {
			return o.failStage(ctx, job, constants.StageExtractFailed,
				common.NewAppError("EXTRACT", err.Error(), common.ErrExtractionEmpty))
		}
		if !res.OK || res.Text == "" {
			return o.failStage(ctx, job, constants.StageExtractFailed,
				common.NewAppError("EXTRACT", "no usable text in document", common.ErrExtractionEmpty))
		}
		text, method = res.Text, res.Method
	}

	key := blobstore.ProcessedKey(job.Filename)
	if err := o.deps.Blobs.Put(ctx, key, []byte(text)); err != nil {
		o.recordError(ctx, job, err)
		return common.WrapError(err, "persist extracted text")
	}

	job.update(func(j *Job) { j.ExtractedTextKey = key })
	o.setStage(ctx, job, constants.StageExtracted)
	o.logger.Info("pipeline.extract.ok", "job_id", job.ID, "method", method, "bytes", len(text))
	return nil
}

// runRedact advances Extracted/Redacting/RedactFailed -> Redacted. On resume
// it reads the persisted extracted text; the extractor is never re-invoked.
func (o *Orchestrator) runRedact(ctx context.Context, job *Job) error {
	o.setStage(ctx, job, constants.StageRedacting)

	extractedKey := job.ExtractedTextKey
	if extractedKey == "" {
		extractedKey = blobstore.ProcessedKey(job.Filename)
	}
	text, err := o.deps.Blobs.Get(ctx, extractedKey)
	if err != nil {
		o.recordError(ctx, job, err)
		return common.WrapError(err, "read extracted text")
	}

	redacted, err := o.deps.Redactor.Redact(ctx, string(text), constants.PIICategories)
	if err != nil {
		return o.failStage(ctx, job, constants.StageRedactFailed, err)
	}

	key := blobstore.DeidentifiedKey(job.Filename)
	if err := o.deps.Blobs.Put(ctx, key, []byte(redacted)); err != nil {
		o.recordError(ctx, job, err)
		return common.WrapError(err, "persist redacted text")
	}

	job.update(func(j *Job) { j.RedactedTextKey = key })
	o.setStage(ctx, job, constants.StageRedacted)
	o.logger.Info("pipeline.redact.ok", "job_id", job.ID, "bytes", len(redacted))
	return nil
}

// EnrichJob runs entity extraction over one job's redacted text and replaces
// its enrichment rows. The job must have redacted text; a job already Done
// keeps its stage (enrichment is derived data, recomputable at any time).
func (o *Orchestrator) EnrichJob(ctx context.Context, id uuid.UUID) error {
	job, err := o.Job(id)
	if err != nil {
		return err
	}
	if o.deps.Entities == nil {
		return common.ValidationErrorf("no entity extractor configured")
	}
	stage := job.CurrentStage()
	if !stage.HasRedactedText() {
		return common.ValidationErrorf("job %s not ready for enrichment (stage %s)", id, stage)
	}

	wasDone := stage == constants.StageDone
	if !wasDone {
		o.setStage(ctx, job, constants.StageEnriching)
	}

	text, err := o.deps.Blobs.Get(ctx, job.RedactedTextKey)
	if err != nil {
		return common.WrapError(err, "read redacted text")
	}
	ents, err := o.deps.Entities.ExtractEntities(ctx, string(text), o.deps.EntityCategory)
	if err != nil {
		return common.WrapError(err, "extract entities")
	}

	now := time.Now().UTC()
	rows := make([]metadata.EnrichmentRecord, 0, len(ents))
	for _, ent := range ents {
		rows = append(rows, metadata.EnrichmentRecord{
			JobID:     job.ID,
			Entity:    ent.Name,
			Category:  ent.Category,
			CreatedAt: now,
		})
	}
	if err := o.deps.Sink.ReplaceEnrichment(ctx, job.ID, rows); err != nil {
		return err
	}
	if !wasDone {
		o.setStage(ctx, job, constants.StageDone)
	}
	o.logger.Info("pipeline.enrich.ok", "job_id", job.ID, "entities", len(rows))
	return nil
}

// EnrichAll runs EnrichJob over every job with redacted text. Failures are
// logged per job; one job's failure never stops the batch.
func (o *Orchestrator) EnrichAll(ctx context.Context) error {
	jobs := o.registry.list(constants.StageRedacted, constants.StageDone)
	var failed int
	for _, job := range jobs {
		if err := o.EnrichJob(ctx, job.ID); err != nil {
			failed++
			o.logger.Error("pipeline.enrich.failed", "job_id", job.ID, "error", err)
		}
	}
	o.logger.Info("pipeline.enrich.batch_done", "jobs", len(jobs), "failed", failed)
	return nil
}

// Restore rebuilds the in-memory job registry from the metadata sink's
// latest snapshot per job. Used on process start so parked jobs can be
// resumed across restarts.
func (o *Orchestrator) Restore(ctx context.Context) (int, error) {
	records, err := o.deps.Sink.Latest(ctx)
	if err != nil {
		return 0, common.WrapError(err, "load job snapshots")
	}
	var restored int
	for _, rec := range records {
		if _, ok := o.registry.get(rec.JobID); ok {
			continue
		}
		o.registry.add(&Job{
			ID:               rec.JobID,
			Filename:         rec.Filename,
			MediaType:        rec.MediaType,
			SizeBytes:        rec.SizeBytes,
			SourceKey:        rec.SourceKey,
			Stage:            rec.Stage,
			ExtractedTextKey: rec.ExtractedTextKey,
			RedactedTextKey:  rec.RedactedTextKey,
			LastError:        rec.LastError,
			CreatedAt:        rec.CreatedAt,
			UpdatedAt:        rec.UpdatedAt,
		})
		restored++
	}
	o.logger.Info("pipeline.restore.ok", "jobs", restored)
	return restored, nil
}

// setStage advances the job and appends a metadata snapshot. A successful
// transition clears lastError.
func (o *Orchestrator) setStage(ctx context.Context, job *Job, stage constants.JobStage) {
	job.update(func(j *Job) {
		j.Stage = stage
		j.LastError = ""
		j.UpdatedAt = time.Now().UTC()
	})
	o.appendSnapshot(ctx, job)
	o.logger.Debug("pipeline.stage", "job_id", job.ID, "stage", stage)
}

// failStage parks the job in a terminal/resumable failure state and returns
// the causing error.
func (o *Orchestrator) failStage(ctx context.Context, job *Job, stage constants.JobStage, cause error) error {
	job.update(func(j *Job) {
		j.Stage = stage
		j.LastError = cause.Error()
		j.UpdatedAt = time.Now().UTC()
	})
	o.appendSnapshot(ctx, job)
	o.logger.Warn("pipeline.stage.failed", "job_id", job.ID, "stage", stage, "error", cause)
	return cause
}

// recordError notes a failure without changing stage (store hiccups that a
// retry of the same stage can clear).
func (o *Orchestrator) recordError(ctx context.Context, job *Job, cause error) {
	job.update(func(j *Job) {
		j.LastError = cause.Error()
		j.UpdatedAt = time.Now().UTC()
	})
	o.appendSnapshot(ctx, job)
}

// appendSnapshot writes the audit record for the job's current state.
// The sink is append-only and reconcilable, so a failed append is logged
// rather than failing the stage.
func (o *Orchestrator) appendSnapshot(ctx context.Context, job *Job) {
	if err := o.deps.Sink.AppendRecord(ctx, job.Snapshot()); err != nil {
		if !errors.Is(err, context.Canceled) {
			o.logger.Warn("pipeline.metadata.append_failed", "job_id", job.ID, "error", err)
		}
	}
}
