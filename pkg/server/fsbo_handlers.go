package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dispodojo/agent-finder/pkg/fsbo"
	"github.com/dispodojo/agent-finder/pkg/jobs"
	"github.com/dispodojo/agent-finder/pkg/models"
)

// fsboCSVColumns is the download column order the frontend renders
var fsboCSVColumns = []string{
	"address", "city", "state", "zip_code", "price", "beds", "baths",
	"sqft", "property_type", "days_on_market", "owner_name", "phone",
	"email", "source", "contact_status", "listing_url",
}

func (s *Server) handleFSBOSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		models.FSBOSearchCriteria
		// Display-only fields sent by the frontend; the store derives
		// its own from the criteria
		State   string `json:"state"`
		CityZip string `json:"city_zip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.Location == "" {
		httpError(w, http.StatusBadRequest, "Location is required.")
		return
	}
	if req.LocationType == "" {
		req.LocationType = models.LocationCityState
	}

	id := jobs.NewID()
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.searches[id] = &fsboSearch{status: "running", criteria: req.FSBOSearchCriteria}
	s.cancels[id] = cancel
	s.mu.Unlock()

	if err := s.store.SaveSearch(r.Context(), id, req.FSBOSearchCriteria); err != nil {
		s.logger.Warn("Failed to record FSBO search", "search_id", id, "error", err)
	}

	go s.runFSBO(ctx, id, req.FSBOSearchCriteria)
	writeJSON(w, http.StatusOK, map[string]string{"search_id": id})
}

// aggregateFSBO is the background run for one FSBO search
func (s *Server) aggregateFSBO(ctx context.Context, id string, criteria models.FSBOSearchCriteria) {
	agg := fsbo.New(s.cfg, s.logger, s.metrics)
	agg.OnProgress(func(p fsbo.Progress) {
		data, err := json.Marshal(p)
		if err != nil {
			return
		}
		s.mu.Lock()
		if sr := s.searches[id]; sr != nil {
			sr.progress = append(sr.progress, data)
		}
		s.mu.Unlock()
	})

	listings, err := agg.Run(ctx, criteria)

	bg := context.Background()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, id)

	sr := s.searches[id]
	if sr == nil {
		// Deleted mid-run
		return
	}

	switch {
	case ctx.Err() != nil:
		sr.status = "cancelled"
	case err != nil:
		sr.status = "error"
		sr.err = err.Error()
		if dbErr := s.store.FailSearch(bg, id); dbErr != nil {
			s.logger.Warn("Failed to mark search failed", "search_id", id, "error", dbErr)
		}
	default:
		sr.results = listings
		sr.total = len(listings)
		sr.status = "complete"
		if dbErr := s.store.SaveListings(bg, id, listings); dbErr != nil {
			s.logger.Warn("Failed to persist listings", "search_id", id, "error", dbErr)
		}
		if dbErr := s.store.CompleteSearch(bg, id, len(listings)); dbErr != nil {
			s.logger.Warn("Failed to mark search complete", "search_id", id, "error", dbErr)
		}
	}
}

// fsboSnapshot copies the mutable bits of a search under the lock
func (s *Server) fsboSnapshot(id string) (fsboSearch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.searches[id]
	if !ok {
		return fsboSearch{}, false
	}
	return *sr, true
}

func (s *Server) fsboProgressSince(id string, from int) ([]json.RawMessage, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.searches[id]
	if !ok {
		return nil, from
	}
	if from > len(sr.progress) {
		from = len(sr.progress)
	}
	events := append([]json.RawMessage(nil), sr.progress[from:]...)
	return events, len(sr.progress)
}

func (s *Server) handleFSBOProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "searchID")
	if _, ok := s.fsboSnapshot(id); !ok {
		httpError(w, http.StatusNotFound, "Search not found.")
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
		events, next := s.fsboProgressSince(id, last)
		last = next
		for _, ev := range events {
			sseWrite(w, flusher, ev)
		}

		sr, ok := s.fsboSnapshot(id)
		if !ok {
			return
		}
		switch sr.status {
		case "complete":
			payload, _ := json.Marshal(map[string]any{
				"type":           "complete",
				"total_listings": sr.total,
			})
			sseWrite(w, flusher, payload)
			return
		case "error":
			payload, _ := json.Marshal(map[string]string{
				"type":    "error",
				"message": sr.err,
			})
			sseWrite(w, flusher, payload)
			return
		case "cancelled":
			payload, _ := json.Marshal(map[string]string{
				"type":    "cancelled",
				"message": "Search was cancelled.",
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

func (s *Server) handleFSBOResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "searchID")
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 20)
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	// This session's searches are served from memory, past sessions
	// from SQLite
	if sr, ok := s.fsboSnapshot(id); ok {
		end := offset + perPage
		if offset > len(sr.results) {
			offset = len(sr.results)
		}
		if end > len(sr.results) {
			end = len(sr.results)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"search_id": id,
			"total":     len(sr.results),
			"page":      page,
			"per_page":  perPage,
			"results":   sr.results[offset:end],
		})
		return
	}

	records, total, err := s.store.ListingsPage(r.Context(), id, offset, perPage)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if total == 0 {
		httpError(w, http.StatusNotFound, "Search not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"search_id": id,
		"total":     total,
		"page":      page,
		"per_page":  perPage,
		"results":   records,
	})
}

func (s *Server) handleFSBODownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "searchID")
	if format := r.URL.Query().Get("fmt"); format != "" && format != "csv" {
		httpError(w, http.StatusBadRequest, "Only fmt=csv supported currently.")
		return
	}

	sr, ok := s.fsboSnapshot(id)
	if !ok || sr.status != "complete" {
		httpError(w, http.StatusNotFound, "Search not ready.")
		return
	}
	if len(sr.results) == 0 {
		httpError(w, http.StatusNotFound, "No results to download.")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=fsbo_%s.csv", id))

	cw := csv.NewWriter(w)
	_ = cw.Write(fsboCSVColumns)
	for _, l := range sr.results {
		_ = cw.Write([]string{
			l.Address, l.City, l.State, l.ZipCode,
			intPtrString(l.Price), intPtrString(l.Beds), floatPtrString(l.Baths),
			intPtrString(l.Sqft), l.PropertyType, intPtrString(l.DaysOnMarket),
			l.OwnerName, l.Phone, l.Email, l.Source,
			string(l.ContactStat), l.ListingURL,
		})
	}
	cw.Flush()
}

func (s *Server) handleFSBOSearches(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.Searches(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Overlay live state for searches running in this session
	s.mu.Lock()
	for i := range records {
		sr, ok := s.searches[records[i].SearchID]
		if !ok {
			continue
		}
		switch sr.status {
		case "running", "error", "cancelled":
			records[i].Status = sr.status
			records[i].TotalListings = sr.total
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleFSBODeleteSearch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "searchID")

	_, inMemory := s.fsboSnapshot(id)
	record, err := s.store.Search(r.Context(), id)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !inMemory && record == nil {
		httpError(w, http.StatusNotFound, "Search not found.")
		return
	}

	s.mu.Lock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	delete(s.searches, id)
	s.mu.Unlock()

	if err := s.store.DeleteSearch(r.Context(), id); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func intPtrString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatPtrString(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
