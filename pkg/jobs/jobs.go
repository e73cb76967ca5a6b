// Package jobs tracks upload-resolution jobs across their lifecycle.
// Jobs move queued -> running -> one of complete/cancelled/error; the
// ledger on disk survives restarts, and any job caught mid-flight by a
// restart comes back as interrupted. Progress events are held in an
// append-only in-memory log that the SSE handlers tail.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// Status is a job lifecycle state
type Status string

const (
	StatusQueued      Status = "queued"
	StatusRunning     Status = "running"
	StatusComplete    Status = "complete"
	StatusCancelled   Status = "cancelled"
	StatusError       Status = "error"
	StatusInterrupted Status = "interrupted"
)

// Terminal reports whether no further transitions are possible without
// a resume
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusCancelled, StatusError, StatusInterrupted:
		return true
	}
	return false
}

// Messages surfaced to the frontend verbatim
const (
	CancelledMessage   = "Cancelled by user."
	InterruptedMessage = "This job was interrupted because the server restarted. Re-upload the file to run again."
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrNotRunning    = errors.New("job is not running")
	ErrNotResumable  = errors.New("job cannot be resumed")
	ErrUploadMissing = errors.New("original upload file no longer exists")
)

// Job is one upload-resolution run. The exported fields are what the
// ledger persists; the progress log and preview rows live only in
// memory and vanish on restart.
type Job struct {
	ID         string                `json:"job_id"`
	Status     Status                `json:"status"`
	UploadPath string                `json:"upload_path"`
	ResultPath string                `json:"result_path,omitempty"`
	Total      int                   `json:"total"`
	Error      string                `json:"error,omitempty"`
	Summary    *reporting.RunSummary `json:"summary,omitempty"`
	Filename   string                `json:"filename"`
	CreatedAt  time.Time             `json:"created_at"`

	progress []json.RawMessage
	preview  []map[string]string
}

// Manager owns the job map, the cancellation handles, and the ledger.
// All mutation happens under one mutex; snapshots returned to callers
// are copies.
type Manager struct {
	logger  *reporting.Logger
	ledger  *ledger
	uploads string
	results string

	mu      sync.Mutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc
}

// NewManager loads the ledger from dataDir and recovers any job the
// previous process left queued or running
func NewManager(dataDir string, logger *reporting.Logger) (*Manager, error) {
	m := &Manager{
		logger:  logger.WithField("component", "jobs"),
		ledger:  newLedger(filepath.Join(dataDir, "jobs.json"), logger),
		uploads: filepath.Join(dataDir, "uploads"),
		results: filepath.Join(dataDir, "results"),
		cancels: make(map[string]context.CancelFunc),
	}

	for _, dir := range []string{m.uploads, m.results} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	loaded, err := m.ledger.load()
	if err != nil {
		return nil, err
	}
	m.jobs = loaded

	interrupted := 0
	for _, j := range m.jobs {
		if j.Status == StatusQueued || j.Status == StatusRunning {
			j.Status = StatusInterrupted
			j.Error = InterruptedMessage
			interrupted++
		}
	}
	if interrupted > 0 {
		m.logger.Warn("Marked in-flight jobs as interrupted", "count", interrupted)
		m.persistLocked()
	}

	return m, nil
}

// UploadDir returns the directory uploaded input files are stored in
func (m *Manager) UploadDir() string { return m.uploads }

// ResultDir returns the directory result archives are written to
func (m *Manager) ResultDir() string { return m.results }

// Create registers a new queued job for an already-saved upload. The id
// comes from the caller so the upload file can be named after it.
func (m *Manager) Create(id, filename, uploadPath string, total int) Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := &Job{
		ID:         id,
		Status:     StatusQueued,
		UploadPath: uploadPath,
		Total:      total,
		Filename:   filename,
		CreatedAt:  time.Now().UTC(),
	}
	m.jobs[j.ID] = j
	m.persistLocked()
	return *j
}

// Get returns a snapshot of one job
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns snapshots of every job, newest first
func (m *Manager) List() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Begin transitions a queued job to running and returns the context its
// run must observe. Cancelling the job cancels the context.
func (m *Manager) Begin(id string) (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != StatusQueued {
		return nil, fmt.Errorf("job %s is %s, not queued", id, j.Status)
	}

	j.Status = StatusRunning
	ctx, cancel := context.WithCancel(context.Background())
	m.cancels[id] = cancel
	m.persistLocked()
	return ctx, nil
}

// Complete records a successful run. A cancellation that raced the
// finish wins; the terminal state set by Cancel is left untouched.
func (m *Manager) Complete(id, resultPath string, summary *reporting.RunSummary, preview []map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != StatusRunning {
		return nil
	}

	j.Status = StatusComplete
	j.ResultPath = resultPath
	j.Summary = summary
	j.preview = preview
	m.releaseLocked(id)
	m.persistLocked()
	return nil
}

// Fail records a run error
func (m *Manager) Fail(id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != StatusQueued && j.Status != StatusRunning {
		return nil
	}

	j.Status = StatusError
	j.Error = message
	m.releaseLocked(id)
	m.persistLocked()
	return nil
}

// Cancel stops a queued or running job
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != StatusQueued && j.Status != StatusRunning {
		return ErrNotRunning
	}

	j.Status = StatusCancelled
	j.Error = CancelledMessage
	m.releaseLocked(id)
	m.persistLocked()
	return nil
}

// Resume creates a fresh queued job over the same upload file. Rows the
// previous attempt resolved come back from the cache, so the rerun only
// pays for what is still missing.
func (m *Manager) Resume(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	switch old.Status {
	case StatusCancelled, StatusError, StatusInterrupted:
	default:
		return Job{}, ErrNotResumable
	}
	if _, err := os.Stat(old.UploadPath); err != nil {
		return Job{}, ErrUploadMissing
	}

	j := &Job{
		ID:         NewID(),
		Status:     StatusQueued,
		UploadPath: old.UploadPath,
		Total:      old.Total,
		Filename:   old.Filename,
		CreatedAt:  time.Now().UTC(),
	}
	m.jobs[j.ID] = j
	m.persistLocked()
	return *j, nil
}

// Delete cancels the job if it is still moving, removes its files, and
// drops it from the ledger
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}

	m.releaseLocked(id)
	for _, path := range []string{j.UploadPath, j.ResultPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("Failed to remove job file", "path", path, "error", err)
		}
	}
	delete(m.jobs, id)
	m.persistLocked()
	return nil
}

// AppendProgress appends one event to the job's in-memory progress log
func (m *Manager) AppendProgress(id string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		m.logger.Warn("Dropped unmarshalable progress event", "job_id", id, "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.progress = append(j.progress, data)
	}
}

// ProgressSince returns the events appended at or after index from,
// plus the index to resume tailing at
func (m *Manager) ProgressSince(id string, from int) ([]json.RawMessage, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, from
	}
	if from < 0 {
		from = 0
	}
	if from > len(j.progress) {
		from = len(j.progress)
	}
	events := append([]json.RawMessage(nil), j.progress[from:]...)
	return events, len(j.progress)
}

// LastProgress returns the most recent progress event, if any
func (m *Manager) LastProgress(id string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || len(j.progress) == 0 {
		return nil, false
	}
	return j.progress[len(j.progress)-1], true
}

// Preview returns the first result rows captured when the job completed
func (m *Manager) Preview(id string) []map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, ok := m.jobs[id]; ok {
		return j.preview
	}
	return nil
}

// releaseLocked cancels and drops the job's context handle. Caller
// holds the mutex.
func (m *Manager) releaseLocked(id string) {
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
}

// persistLocked writes the ledger best-effort. Caller holds the mutex.
func (m *Manager) persistLocked() {
	if err := m.ledger.save(m.jobs); err != nil {
		m.logger.Warn("Failed to persist job ledger", "error", err)
	}
}

// NewID returns a fresh short job id, the first hex group of a UUID
func NewID() string {
	return uuid.NewString()[:8]
}
