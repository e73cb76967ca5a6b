package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dispodojo/agent-finder/pkg/cache"
	"github.com/dispodojo/agent-finder/pkg/engine"
	"github.com/dispodojo/agent-finder/pkg/input"
	"github.com/dispodojo/agent-finder/pkg/jobs"
	"github.com/dispodojo/agent-finder/pkg/output"
)

// progressEvent tags an engine progress update for the SSE stream
type progressEvent struct {
	engine.Progress
	Type string `json:"type"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "Missing file upload.")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".csv", ".xlsx", ".xls":
	default:
		httpError(w, http.StatusBadRequest, "Only .csv, .xlsx, or .xls files are supported.")
		return
	}

	id := jobs.NewID()
	uploadPath := filepath.Join(s.jobs.UploadDir(), id+ext)
	dst, err := os.Create(uploadPath)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to save upload.")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(uploadPath)
		httpError(w, http.StatusInternalServerError, "Failed to save upload.")
		return
	}
	dst.Close()

	properties, err := input.ReadProperties(uploadPath)
	if err != nil {
		os.Remove(uploadPath)
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(properties) == 0 {
		os.Remove(uploadPath)
		httpError(w, http.StatusBadRequest, "No valid addresses found in file.")
		return
	}

	job := s.jobs.Create(id, header.Filename, uploadPath, len(properties))
	s.startJob(job.ID)

	writeJSON(w, http.StatusOK, map[string]any{"job_id": job.ID, "total": job.Total})
}

// startJob moves the job to running and launches its background run
func (s *Server) startJob(id string) {
	ctx, err := s.jobs.Begin(id)
	if err != nil {
		s.logger.Error("Failed to start job", "job_id", id, "error", err)
		return
	}
	go s.runJob(ctx, id)
}

// resolveJob is the background run: read the upload, resolve every row,
// archive the results, and record the terminal state
func (s *Server) resolveJob(ctx context.Context, id string) {
	job, ok := s.jobs.Get(id)
	if !ok {
		return
	}

	properties, err := input.ReadProperties(job.UploadPath)
	if err != nil {
		s.jobs.Fail(id, err.Error())
		return
	}

	eng, err := engine.New(s.cfg, s.logger, s.metrics)
	if err != nil {
		s.jobs.Fail(id, err.Error())
		return
	}
	defer eng.Close()

	eng.OnProgress(func(p engine.Progress) {
		s.jobs.AppendProgress(id, progressEvent{Progress: p, Type: "progress"})
	})

	results, summary, err := eng.Run(ctx, properties)
	if ctx.Err() != nil {
		// The cancel endpoint already set the terminal state
		return
	}
	if err != nil {
		s.jobs.Fail(id, err.Error())
		return
	}

	resultPath := filepath.Join(s.jobs.ResultDir(), id+"_results.zip")
	if _, err := output.ExportZip(results, job.UploadPath, resultPath); err != nil {
		s.jobs.Fail(id, err.Error())
		return
	}

	s.jobs.Complete(id, resultPath, summary, output.Preview(results, 20))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if _, ok := s.jobs.Get(id); !ok {
		httpError(w, http.StatusNotFound, "Job not found.")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "Streaming unsupported.")
		return
	}
	sseHeaders(w)

	last := 0
	for {
		events, next := s.jobs.ProgressSince(id, last)
		last = next
		for _, ev := range events {
			sseWrite(w, flusher, ev)
		}

		job, ok := s.jobs.Get(id)
		if !ok {
			return
		}
		switch job.Status {
		case jobs.StatusComplete:
			payload, _ := json.Marshal(map[string]any{
				"type":         "complete",
				"summary":      job.Summary,
				"preview_rows": s.jobs.Preview(id),
			})
			sseWrite(w, flusher, payload)
			return
		case jobs.StatusError, jobs.StatusInterrupted:
			payload, _ := json.Marshal(map[string]string{
				"type":    "error",
				"message": job.Error,
			})
			sseWrite(w, flusher, payload)
			return
		case jobs.StatusCancelled:
			payload, _ := json.Marshal(map[string]string{
				"type":    "cancelled",
				"message": "Job was cancelled.",
			})
			sseWrite(w, flusher, payload)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-time.After(s.tailEvery):
		}
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, ok := s.jobs.Get(id)
	if !ok {
		httpError(w, http.StatusNotFound, "Job not found.")
		return
	}
	if job.Status != jobs.StatusComplete || job.ResultPath == "" {
		httpError(w, http.StatusBadRequest, "Results not ready yet.")
		return
	}
	if _, err := os.Stat(job.ResultPath); err != nil {
		httpError(w, http.StatusNotFound, "Result file not found.")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="agent_finder_results.zip"`)
	http.ServeFile(w, r, job.ResultPath)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list := s.jobs.List()
	history := make([]map[string]any, 0, len(list))
	for _, job := range list {
		entry := map[string]any{
			"job_id":     job.ID,
			"filename":   job.Filename,
			"created_at": job.CreatedAt,
			"status":     job.Status,
			"total":      job.Total,
			"summary":    job.Summary,
		}
		if last, ok := s.jobs.LastProgress(job.ID); ok {
			entry["last_progress"] = last
		} else {
			entry["last_progress"] = nil
		}
		history = append(history, entry)
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleJobResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, ok := s.jobs.Get(id)
	if !ok || job.Status != jobs.StatusComplete {
		httpError(w, http.StatusNotFound, "Job not found or not complete.")
		return
	}
	if job.ResultPath == "" {
		httpError(w, http.StatusNotFound, "Result file not found.")
		return
	}

	rows, err := output.ReadResultRows(job.ResultPath)
	if err != nil {
		httpError(w, http.StatusNotFound, "Result file not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": rows})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	switch err := s.jobs.Cancel(chi.URLParam(r, "jobID")); {
	case errors.Is(err, jobs.ErrNotFound):
		httpError(w, http.StatusNotFound, "Job not found.")
	case errors.Is(err, jobs.ErrNotRunning):
		httpError(w, http.StatusBadRequest, "Job is not running.")
	case err != nil:
		httpError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Resume(chi.URLParam(r, "jobID"))
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		httpError(w, http.StatusNotFound, "Job not found.")
		return
	case errors.Is(err, jobs.ErrNotResumable):
		httpError(w, http.StatusBadRequest, "Job cannot be resumed.")
		return
	case errors.Is(err, jobs.ErrUploadMissing):
		httpError(w, http.StatusBadRequest, "Original upload file no longer exists.")
		return
	case err != nil:
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.startJob(job.ID)
	writeJSON(w, http.StatusOK, map[string]any{"job_id": job.ID, "total": job.Total})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Delete(chi.URLParam(r, "jobID")); err != nil {
		httpError(w, http.StatusNotFound, "Job not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	store, err := cache.Open(s.cfg.Cache.Path, s.cfg.Cache.TTLDays)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer store.Close()

	stats, err := store.Stats(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
