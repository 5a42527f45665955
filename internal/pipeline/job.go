package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casadona/deidpipe/constants"
	"github.com/casadona/deidpipe/internal/metadata"
)

// Job tracks one uploaded file through the pipeline. The orchestrator
// exclusively owns stage transitions; everything else reads snapshots.
type Job struct {
	ID               uuid.UUID
	Filename         string
	MediaType        string
	SizeBytes        int64
	SourceKey        string
	Stage            constants.JobStage
	ExtractedTextKey string
	RedactedTextKey  string
	LastError        string
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// runMu serializes Run invocations for this job; stages within a job
	// are strictly sequential even if Run is called twice.
	runMu sync.Mutex
	// mu guards the mutable fields against concurrent snapshot reads.
	mu sync.RWMutex
}

// update applies a mutation under the job's state lock.
func (j *Job) update(fn func(*Job)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(j)
}

// CurrentStage returns the job's stage.
func (j *Job) CurrentStage() constants.JobStage {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Stage
}

// Snapshot returns the job's current state as an append-only metadata record.
func (j *Job) Snapshot() metadata.Record {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return metadata.Record{
		ID:               metadata.NewRecordID(),
		JobID:            j.ID,
		Filename:         j.Filename,
		MediaType:        j.MediaType,
		SizeBytes:        j.SizeBytes,
		Stage:            j.Stage,
		SourceKey:        j.SourceKey,
		ExtractedTextKey: j.ExtractedTextKey,
		RedactedTextKey:  j.RedactedTextKey,
		LastError:        j.LastError,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

// jobRegistry is the in-memory set of known jobs, keyed by id.
type jobRegistry struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[uuid.UUID]*Job)}
}

func (r *jobRegistry) add(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

func (r *jobRegistry) get(id uuid.UUID) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	return job, ok
}

// list returns jobs currently in one of the given stages; with no stages it
// returns everything. Order is unspecified.
func (r *jobRegistry) list(stages ...constants.JobStage) []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Job
	for _, job := range r.jobs {
		if len(stages) == 0 {
			out = append(out, job)
			continue
		}
		for _, s := range stages {
			if job.CurrentStage() == s {
				out = append(out, job)
				break
			}
		}
	}
	return out
}
