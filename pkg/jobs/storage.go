package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// ledger persists the job map as one JSON file. Only the exported Job
// fields survive; progress logs and preview rows are rebuilt per run.
type ledger struct {
	path   string
	logger *reporting.Logger
}

func newLedger(path string, logger *reporting.Logger) *ledger {
	return &ledger{path: path, logger: logger}
}

// load reads the ledger, returning an empty map when no file exists yet
func (l *ledger) load() (map[string]*Job, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return make(map[string]*Job), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job ledger: %w", err)
	}

	jobs := make(map[string]*Job)
	if err := json.Unmarshal(data, &jobs); err != nil {
		// A corrupt ledger should not brick the server; start fresh
		l.logger.Warn("Job ledger unreadable, starting empty", "path", l.path, "error", err)
		return make(map[string]*Job), nil
	}

	for id, j := range jobs {
		if j.ID == "" {
			j.ID = id
		}
	}
	return jobs, nil
}

// save writes the ledger atomically via a temp file rename
func (l *ledger) save(jobs map[string]*Job) error {
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write job ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace job ledger: %w", err)
	}
	return nil
}
