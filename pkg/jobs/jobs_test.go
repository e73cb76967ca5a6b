package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispodojo/agent-finder/pkg/reporting"
)

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(dir, reporting.Nop())
	require.NoError(t, err)
	return m, dir
}

func testUpload(t *testing.T, m *Manager) string {
	t.Helper()
	path := filepath.Join(m.UploadDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte("address\n123 Desert Rd\n"), 0o644))
	return path
}

func TestCreateAndGet(t *testing.T) {
	m, dir := testManager(t)
	j := m.Create(NewID(), "input.csv", testUpload(t, m), 5)

	assert.Len(t, j.ID, 8)
	assert.Equal(t, StatusQueued, j.Status)
	assert.Equal(t, 5, j.Total)
	assert.False(t, j.CreatedAt.IsZero())

	got, ok := m.Get(j.ID)
	require.True(t, ok)
	assert.Equal(t, "input.csv", got.Filename)

	_, ok = m.Get("nope")
	assert.False(t, ok)

	// Create persists immediately
	_, err := os.Stat(filepath.Join(dir, "jobs.json"))
	assert.NoError(t, err)
}

func TestLifecycleToComplete(t *testing.T) {
	m, _ := testManager(t)
	j := m.Create(NewID(), "input.csv", testUpload(t, m), 2)

	ctx, err := m.Begin(j.ID)
	require.NoError(t, err)
	assert.NoError(t, ctx.Err())

	// Beginning twice is a programming error
	_, err = m.Begin(j.ID)
	assert.Error(t, err)

	m.AppendProgress(j.ID, map[string]any{"completed": 1})
	m.AppendProgress(j.ID, map[string]any{"completed": 2})

	events, next := m.ProgressSince(j.ID, 0)
	require.Len(t, events, 2)
	assert.Equal(t, 2, next)

	// Tailing from the cursor yields nothing new
	events, next = m.ProgressSince(j.ID, next)
	assert.Empty(t, events)
	assert.Equal(t, 2, next)

	last, ok := m.LastProgress(j.ID)
	require.True(t, ok)
	assert.JSONEq(t, `{"completed":2}`, string(last))

	summary := &reporting.RunSummary{Total: 2, Found: 2}
	preview := []map[string]string{{"address": "123 Desert Rd"}}
	require.NoError(t, m.Complete(j.ID, "/tmp/out.zip", summary, preview))

	got, _ := m.Get(j.ID)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, "/tmp/out.zip", got.ResultPath)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 2, got.Summary.Found)
	assert.Equal(t, preview, m.Preview(j.ID))

	// Terminal jobs cannot be cancelled
	assert.ErrorIs(t, m.Cancel(j.ID), ErrNotRunning)
}

func TestCancelStopsContextAndWinsRaces(t *testing.T) {
	m, _ := testManager(t)
	j := m.Create(NewID(), "input.csv", testUpload(t, m), 1)

	ctx, err := m.Begin(j.ID)
	require.NoError(t, err)

	require.NoError(t, m.Cancel(j.ID))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	got, _ := m.Get(j.ID)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, CancelledMessage, got.Error)

	// A finish that raced the cancel does not overwrite it
	require.NoError(t, m.Complete(j.ID, "/tmp/out.zip", nil, nil))
	got, _ = m.Get(j.ID)
	assert.Equal(t, StatusCancelled, got.Status)

	require.NoError(t, m.Fail(j.ID, "late error"))
	got, _ = m.Get(j.ID)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestResume(t *testing.T) {
	m, _ := testManager(t)
	upload := testUpload(t, m)
	j := m.Create(NewID(), "input.csv", upload, 3)

	// Queued jobs are not resumable
	_, err := m.Resume(j.ID)
	assert.ErrorIs(t, err, ErrNotResumable)

	_, err = m.Begin(j.ID)
	require.NoError(t, err)
	require.NoError(t, m.Fail(j.ID, "network down"))

	resumed, err := m.Resume(j.ID)
	require.NoError(t, err)
	assert.NotEqual(t, j.ID, resumed.ID)
	assert.Equal(t, StatusQueued, resumed.Status)
	assert.Equal(t, upload, resumed.UploadPath)
	assert.Equal(t, "input.csv", resumed.Filename)
	assert.Equal(t, 3, resumed.Total)

	require.NoError(t, os.Remove(upload))
	_, err = m.Resume(j.ID)
	assert.ErrorIs(t, err, ErrUploadMissing)

	_, err = m.Resume("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesFiles(t *testing.T) {
	m, _ := testManager(t)
	upload := testUpload(t, m)
	result := filepath.Join(m.ResultDir(), "out.zip")
	require.NoError(t, os.WriteFile(result, []byte("zip"), 0o644))

	j := m.Create(NewID(), "input.csv", upload, 1)
	ctx, err := m.Begin(j.ID)
	require.NoError(t, err)
	require.NoError(t, m.Complete(j.ID, result, nil, nil))

	require.NoError(t, m.Delete(j.ID))
	_, ok := m.Get(j.ID)
	assert.False(t, ok)
	assert.NoFileExists(t, upload)
	assert.NoFileExists(t, result)
	_ = ctx

	assert.ErrorIs(t, m.Delete(j.ID), ErrNotFound)
}

func TestDeleteCancelsRunningJob(t *testing.T) {
	m, _ := testManager(t)
	j := m.Create(NewID(), "input.csv", testUpload(t, m), 1)
	ctx, err := m.Begin(j.ID)
	require.NoError(t, err)

	require.NoError(t, m.Delete(j.ID))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestRestartMarksInFlightJobsInterrupted(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, reporting.Nop())
	require.NoError(t, err)

	queued := m.Create(NewID(), "a.csv", filepath.Join(m.UploadDir(), "a.csv"), 1)
	running := m.Create(NewID(), "b.csv", filepath.Join(m.UploadDir(), "b.csv"), 1)
	_, err = m.Begin(running.ID)
	require.NoError(t, err)
	done := m.Create(NewID(), "c.csv", filepath.Join(m.UploadDir(), "c.csv"), 1)
	_, err = m.Begin(done.ID)
	require.NoError(t, err)
	require.NoError(t, m.Complete(done.ID, "", &reporting.RunSummary{Total: 1}, nil))

	// Simulate a restart by loading the same data directory fresh
	m2, err := NewManager(dir, reporting.Nop())
	require.NoError(t, err)

	for _, id := range []string{queued.ID, running.ID} {
		j, ok := m2.Get(id)
		require.True(t, ok)
		assert.Equal(t, StatusInterrupted, j.Status)
		assert.Equal(t, InterruptedMessage, j.Error)
	}

	j, ok := m2.Get(done.ID)
	require.True(t, ok)
	assert.Equal(t, StatusComplete, j.Status)
	require.NotNil(t, j.Summary)
	assert.Equal(t, 1, j.Summary.Total)

	// Progress logs do not survive restarts
	events, _ := m2.ProgressSince(running.ID, 0)
	assert.Empty(t, events)
}

func TestListNewestFirst(t *testing.T) {
	m, _ := testManager(t)
	first := m.Create(NewID(), "a.csv", "a", 1)
	second := m.Create(NewID(), "b.csv", "b", 1)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestCorruptLedgerStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobs.json"), []byte("{not json"), 0o644))

	m, err := NewManager(dir, reporting.Nop())
	require.NoError(t, err)
	assert.Empty(t, m.List())
}

func TestProgressEventsAreRawJSON(t *testing.T) {
	m, _ := testManager(t)
	j := m.Create(NewID(), "a.csv", "a", 1)

	m.AppendProgress(j.ID, struct {
		Completed int    `json:"completed"`
		Status    string `json:"current_status"`
	}{1, "FOUND"})

	events, _ := m.ProgressSince(j.ID, 0)
	require.Len(t, events, 1)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(events[0], &decoded))
	assert.Equal(t, "FOUND", decoded["current_status"])
}
