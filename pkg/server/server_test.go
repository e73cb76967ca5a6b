package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispodojo/agent-finder/pkg/config"
	"github.com/dispodojo/agent-finder/pkg/fsbo"
	"github.com/dispodojo/agent-finder/pkg/jobs"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/output"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

const uploadCSV = "address\n" +
	"123 Main St, Springfield, IL 62704\n" +
	"456 Oak Ave, Portland, OR 97201\n"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.DefaultConfig()
	dir := t.TempDir()
	cfg.Server.DataDir = dir
	cfg.Cache.Path = filepath.Join(dir, "cache.db")

	s, err := New(cfg, reporting.Nop(), nil)
	require.NoError(t, err)
	s.tailEvery = 5 * time.Millisecond
	t.Cleanup(func() { s.Close() })

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

// completeImmediately stands in for the resolution run
func completeImmediately(t *testing.T, s *Server) {
	t.Helper()
	s.runJob = func(ctx context.Context, id string) {
		job, ok := s.jobs.Get(id)
		if !ok {
			return
		}

		s.jobs.AppendProgress(id, map[string]any{"type": "progress", "completed": 1, "total": 2})

		results := []models.ScrapeResult{
			{
				Property:  models.Property{RawAddress: "123 Main St", RowIndex: 0},
				AgentInfo: &models.AgentInfo{AgentName: "Jane Smith", Phone: "(555) 111-2222", Source: "redfin"},
				Status:    models.StatusFound,
			},
			{
				Property: models.Property{RawAddress: "456 Oak Ave", RowIndex: 1},
				Status:   models.StatusNotFound,
			},
		}
		resultPath := filepath.Join(s.jobs.ResultDir(), id+"_results.zip")
		if _, err := output.ExportZip(results, job.UploadPath, resultPath); err != nil {
			s.jobs.Fail(id, err.Error())
			return
		}

		summary := &reporting.RunSummary{Total: 2, Found: 1, NotFound: 1}
		s.jobs.Complete(id, resultPath, summary, output.Preview(results, 20))
	}
}

func uploadFile(t *testing.T, srv *httptest.Server, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func waitForStatus(t *testing.T, s *Server, id string, want jobs.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		j, ok := s.jobs.Get(id)
		return ok && j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUploadRunsJobToCompletion(t *testing.T) {
	s, srv := newTestServer(t)
	completeImmediately(t, s)

	resp := uploadFile(t, srv, "list.csv", uploadCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	id := body["job_id"].(string)
	assert.Len(t, id, 8)
	assert.EqualValues(t, 2, body["total"])

	waitForStatus(t, s, id, jobs.StatusComplete)

	// The SSE stream replays progress and ends with the complete event
	stream, err := http.Get(srv.URL + "/api/progress/" + id)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))
	raw, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	events := string(raw)
	assert.Contains(t, events, `"type":"progress"`)
	assert.Contains(t, events, `"type":"complete"`)
	assert.Contains(t, events, `"preview_rows"`)
	assert.True(t, strings.HasSuffix(events, "\n\n"))

	// Download serves the archive with a fixed filename
	dl, err := http.Get(srv.URL + "/api/download/" + id)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Contains(t, dl.Header.Get("Content-Disposition"), "agent_finder_results.zip")

	// Parsed results come back out of the archive
	res, err := http.Get(srv.URL + "/api/jobs/" + id + "/results")
	require.NoError(t, err)
	results := decodeBody(t, res)
	rows := results["results"].([]any)
	require.NotEmpty(t, rows)
	first := rows[0].(map[string]any)
	assert.Equal(t, "Jane Smith", first["agent_name"])

	// And the job shows up in history
	list, err := http.Get(srv.URL + "/api/jobs")
	require.NoError(t, err)
	defer list.Body.Close()
	var history []map[string]any
	require.NoError(t, json.NewDecoder(list.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0]["job_id"])
	assert.Equal(t, "complete", history[0]["status"])
	assert.NotNil(t, history[0]["summary"])
}

func TestUploadRejectsBadFiles(t *testing.T) {
	_, srv := newTestServer(t)

	resp := uploadFile(t, srv, "list.txt", uploadCSV)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Only .csv, .xlsx, or .xls files are supported.", decodeBody(t, resp)["detail"])

	resp = uploadFile(t, srv, "list.csv", "address\n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = uploadFile(t, srv, "list.csv", "address\n\nnan\n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No valid addresses found in file.", decodeBody(t, resp)["detail"])
}

func TestCancelResumeDelete(t *testing.T) {
	s, srv := newTestServer(t)
	s.runJob = func(ctx context.Context, id string) {
		<-ctx.Done() // cancel endpoint owns the state transition
	}

	resp := uploadFile(t, srv, "list.csv", uploadCSV)
	id := decodeBody(t, resp)["job_id"].(string)
	waitForStatus(t, s, id, jobs.StatusRunning)

	cancelResp, err := http.Post(srv.URL+"/api/jobs/"+id+"/cancel", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, cancelResp.StatusCode)
	cancelResp.Body.Close()
	waitForStatus(t, s, id, jobs.StatusCancelled)

	// Cancelling again is a 400
	again, err := http.Post(srv.URL+"/api/jobs/"+id+"/cancel", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, again.StatusCode)
	assert.Equal(t, "Job is not running.", decodeBody(t, again)["detail"])

	// The SSE stream reports the cancellation
	stream, err := http.Get(srv.URL + "/api/progress/" + id)
	require.NoError(t, err)
	raw, err := io.ReadAll(stream.Body)
	stream.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Job was cancelled.")

	// Resume spawns a new job over the same upload
	resumeResp, err := http.Post(srv.URL+"/api/jobs/"+id+"/resume", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resumeResp.StatusCode)
	newID := decodeBody(t, resumeResp)["job_id"].(string)
	assert.NotEqual(t, id, newID)
	waitForStatus(t, s, newID, jobs.StatusRunning)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/jobs/"+newID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, delResp.StatusCode)
	delResp.Body.Close()
	_, ok := s.jobs.Get(newID)
	assert.False(t, ok)
}

func TestDownloadBeforeCompleteIsRejected(t *testing.T) {
	s, srv := newTestServer(t)
	s.runJob = func(ctx context.Context, id string) { <-ctx.Done() }

	resp := uploadFile(t, srv, "list.csv", uploadCSV)
	id := decodeBody(t, resp)["job_id"].(string)

	dl, err := http.Get(srv.URL + "/api/download/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, dl.StatusCode)
	assert.Equal(t, "Results not ready yet.", decodeBody(t, dl)["detail"])

	missing, err := http.Get(srv.URL + "/api/download/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	missing.Body.Close()
}

func TestCacheStats(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/cache/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.EqualValues(t, 0, body["cached_results"])
	assert.EqualValues(t, 0, body["recorded_failures"])
}

// fsboFixtures makes the FSBO run deterministic
func fsboComplete(s *Server) {
	s.runFSBO = func(ctx context.Context, id string, criteria models.FSBOSearchCriteria) {
		listings := []models.FSBOListing{
			{
				Address: "123 Desert Rd", City: "Phoenix", State: "AZ", ZipCode: "85001",
				OwnerName: "John Seller", Phone: "(555) 111-2222",
				ListingURL: "https://example.com/1", Source: "fsbo.com",
				ContactStat: models.ContactPartial,
			},
			{
				Address: "456 Cactus Ln", City: "Phoenix", State: "AZ", ZipCode: "85002",
				Phone: "(555) 333-4444", ListingURL: "https://example.com/2",
				Source: "craigslist", ContactStat: models.ContactPhoneOnly,
			},
		}

		// Persist before exposing "complete", as aggregateFSBO does under
		// its lock, so waiters can't observe completion ahead of the store
		_ = s.store.SaveListings(context.Background(), id, listings)
		_ = s.store.CompleteSearch(context.Background(), id, len(listings))

		s.mu.Lock()
		sr := s.searches[id]
		if sr != nil {
			data, _ := json.Marshal(fsbo.Progress{ScrapersDone: 5, ScrapersTotal: 5, ListingsFound: 2, Status: "complete"})
			sr.progress = append(sr.progress, data)
			sr.results = listings
			sr.total = len(listings)
			sr.status = "complete"
		}
		delete(s.cancels, id)
		s.mu.Unlock()
	}
}

func startFSBOSearch(t *testing.T, s *Server, srv *httptest.Server) string {
	t.Helper()
	body := `{"location":"Phoenix, AZ","location_type":"city_state","radius_miles":10}`
	resp, err := http.Post(srv.URL+"/api/fsbo/search", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := decodeBody(t, resp)["search_id"].(string)

	require.Eventually(t, func() bool {
		sr, ok := s.fsboSnapshot(id)
		return ok && sr.status == "complete"
	}, 2*time.Second, 5*time.Millisecond)
	return id
}

func TestFSBOSearchLifecycle(t *testing.T) {
	s, srv := newTestServer(t)
	fsboComplete(s)
	id := startFSBOSearch(t, s, srv)

	// SSE ends with the total
	stream, err := http.Get(srv.URL + "/api/fsbo/progress/" + id)
	require.NoError(t, err)
	raw, err := io.ReadAll(stream.Body)
	stream.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"scrapers_done":5`)
	assert.Contains(t, string(raw), `"total_listings":2`)

	// Paginated results from memory
	resp, err := http.Get(srv.URL + "/api/fsbo/results/" + id + "?page=2&per_page=1")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 2, body["page"])
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "456 Cactus Ln", results[0].(map[string]any)["address"])

	// CSV download with the fixed column order
	dl, err := http.Get(srv.URL + "/api/fsbo/download/" + id + "?fmt=csv")
	require.NoError(t, err)
	csvBody, err := io.ReadAll(dl.Body)
	dl.Body.Close()
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvBody)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "address,city,state,zip_code,price,beds,baths,sqft,property_type,days_on_market,owner_name,phone,email,source,contact_status,listing_url", lines[0])
	assert.Contains(t, lines[1], "John Seller")

	bad, err := http.Get(srv.URL + "/api/fsbo/download/" + id + "?fmt=xlsx")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	bad.Body.Close()

	// Search history comes from the store
	hist, err := http.Get(srv.URL + "/api/fsbo/searches")
	require.NoError(t, err)
	var searches []map[string]any
	require.NoError(t, json.NewDecoder(hist.Body).Decode(&searches))
	hist.Body.Close()
	require.Len(t, searches, 1)
	assert.Equal(t, id, searches[0]["search_id"])
	assert.Equal(t, "complete", searches[0]["status"])
	assert.EqualValues(t, 2, searches[0]["total_listings"])
}

func TestFSBOResultsSurviveRestart(t *testing.T) {
	s, srv := newTestServer(t)
	fsboComplete(s)
	id := startFSBOSearch(t, s, srv)

	// Drop the in-memory overlay, as a restart would
	s.mu.Lock()
	delete(s.searches, id)
	s.mu.Unlock()

	resp, err := http.Get(srv.URL + "/api/fsbo/results/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.EqualValues(t, 2, body["total"])
	results := body["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "123 Desert Rd", results[0].(map[string]any)["address"])
}

func TestFSBODeleteSearch(t *testing.T) {
	s, srv := newTestServer(t)
	fsboComplete(s)
	id := startFSBOSearch(t, s, srv)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/fsbo/searches/"+id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	_, ok := s.fsboSnapshot(id)
	assert.False(t, ok)

	missing, err := http.Get(srv.URL + "/api/fsbo/results/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	missing.Body.Close()

	again, err := http.DefaultClient.Do(req.Clone(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
	again.Body.Close()
}

func TestFSBOSearchValidation(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/fsbo/search", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Location is required.", decodeBody(t, resp)["detail"])

	resp, err = http.Post(srv.URL+"/api/fsbo/search", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
