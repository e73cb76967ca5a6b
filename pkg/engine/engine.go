// Package engine runs the listing-agent resolution pipeline: cache
// consultation, a merge-based source waterfall per property, confidence
// scoring from cross-source agreement, contact enrichment, and a retry
// pass with simplified address variants for anything still unresolved.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/cache"
	"github.com/dispodojo/agent-finder/pkg/config"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/metrics"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
	"github.com/dispodojo/agent-finder/pkg/scrape"
	"github.com/dispodojo/agent-finder/pkg/scrape/harvest"
)

// Progress is one progress event, emitted after the cache pass and after
// every resolved row. Total counts only non-cached work.
type Progress struct {
	Completed      int    `json:"completed"`
	Total          int    `json:"total"`
	Cached         int    `json:"cached"`
	Found          int    `json:"found"`
	Partial        int    `json:"partial"`
	NotFound       int    `json:"not_found"`
	Errors         int    `json:"errors"`
	CurrentAddress string `json:"current_address"`
	CurrentStatus  string `json:"current_status"`
}

// Engine resolves listing agents for batches of properties
type Engine struct {
	cfg      *config.Config
	logger   *reporting.Logger
	metrics  *metrics.Metrics
	store    *cache.Cache
	scrapers []scrape.Scraper
	gateways map[string]*gateway.Gateway
	enricher *Enricher
	sem      *semaphore.Weighted
	progress func(Progress)

	mu       sync.Mutex
	total    int
	cached   int
	found    int
	partial  int
	notFound int
	errors   int
}

// New wires up an engine from configuration: one gateway per enabled
// source, scrapers in waterfall order, the result cache when enabled.
func New(cfg *config.Config, logger *reporting.Logger, m *metrics.Metrics) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		logger:   logger.WithField("component", "engine"),
		metrics:  m,
		gateways: make(map[string]*gateway.Gateway),
		sem:      semaphore.NewWeighted(int64(cfg.Pipeline.MaxConcurrency)),
	}

	client := gateway.SharedClient()
	e.enricher = NewEnricher(client, logger)

	for _, src := range cfg.Sources.Priority() {
		if !src.Enabled {
			continue
		}
		gw := gateway.New(src, client, logger, m)
		e.gateways[src.Name] = gw

		switch src.Name {
		case "redfin":
			e.scrapers = append(e.scrapers, scrape.NewRedfin(gw, logger))
		case "homeharvest":
			e.scrapers = append(e.scrapers, scrape.NewHomeHarvest(harvest.NewClient(gw), logger))
		case "realtor":
			e.scrapers = append(e.scrapers, scrape.NewRealtor(gw, logger))
		case "zillow":
			e.scrapers = append(e.scrapers, scrape.NewZillow(gw, logger))
		case "google_search":
			gs := scrape.NewGoogle(gw, logger, cfg.Google.APIKey, cfg.Google.CSEID)
			if gs.Configured() {
				e.scrapers = append(e.scrapers, gs)
			}
		}
	}

	if cfg.Cache.Enabled {
		store, err := cache.Open(cfg.Cache.Path, cfg.Cache.TTLDays)
		if err != nil {
			return nil, err
		}
		e.store = store
	}

	return e, nil
}

// Close releases the engine's cache handle
func (e *Engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Cache returns the engine's result cache, or nil when caching is disabled
func (e *Engine) Cache() *cache.Cache {
	return e.store
}

// OnProgress registers the progress callback. Must be set before Run.
func (e *Engine) OnProgress(fn func(Progress)) {
	e.progress = fn
}

// Run resolves every property and returns one result per input, in input
// order, along with the run summary
func (e *Engine) Run(ctx context.Context, properties []models.Property) ([]models.ScrapeResult, *reporting.RunSummary, error) {
	summary := &reporting.RunSummary{StartTime: time.Now()}
	e.resetCounters()

	results := make([]models.ScrapeResult, len(properties))
	var pending []int

	for i, prop := range properties {
		query := searchQuery(prop)
		var cachedInfo *models.AgentInfo
		if e.store != nil {
			info, err := e.store.Get(ctx, query)
			if err != nil {
				return nil, nil, err
			}
			cachedInfo = info
		}
		if cachedInfo != nil {
			e.mu.Lock()
			e.cached++
			e.mu.Unlock()
			if e.metrics != nil {
				e.metrics.CacheHitsTotal.Inc()
			}
			results[i] = models.ScrapeResult{
				Property:  prop,
				AgentInfo: cachedInfo,
				Status:    models.StatusCached,
			}
		} else {
			pending = append(pending, i)
		}
	}

	// Denominator covers pending work only; cached rows report separately
	e.mu.Lock()
	e.total = len(pending)
	e.mu.Unlock()
	e.emit("", string(models.StatusCached))

	if len(pending) == 0 {
		e.logger.Info("all addresses served from cache", "cached", e.cached)
		return results, e.buildSummary(summary, results), nil
	}

	e.logger.Info("processing addresses",
		"pending", len(pending), "cached", e.cached)

	var wg sync.WaitGroup
	for _, idx := range pending {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = e.processOne(ctx, properties[idx])
		}(idx)
	}
	wg.Wait()

	if e.cfg.Pipeline.RetryVariants {
		e.retryNotFound(ctx, results)
	}

	return results, e.buildSummary(summary, results), nil
}

// searchQuery is the canonical lookup string for a property; it doubles
// as the cache key input
func searchQuery(prop models.Property) string {
	return address.Normalize(prop.FullAddress())
}

// processOne runs the merge waterfall for a single property
func (e *Engine) processOne(ctx context.Context, prop models.Property) models.ScrapeResult {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return models.ScrapeResult{
			Property:     prop,
			Status:       models.StatusError,
			ErrorMessage: err.Error(),
		}
	}
	defer e.sem.Release(1)

	var (
		sourcesTried []string
		merged       *models.AgentInfo
		sourceAgents []sourceAgent
	)

	for _, s := range e.scrapers {
		if ctx.Err() != nil {
			break
		}
		info, err := s.Search(ctx, prop)
		if errors.Is(err, gateway.ErrCircuitOpen) {
			// The breaker rejected the call locally; the source was
			// never actually tried
			e.logger.Debug("source skipped",
				"source", s.Name(), "reason", "circuit open")
			continue
		}
		sourcesTried = append(sourcesTried, s.Name())
		if err != nil {
			// Blocks end this source's attempt, not the whole row
			e.logger.Debug("source failed",
				"source", s.Name(), "address", prop.RawAddress, "error", err.Error())
			continue
		}
		if info == nil || info.AgentName == "" {
			continue
		}

		sourceAgents = append(sourceAgents, sourceAgent{source: s.Name(), name: info.AgentName})
		if merged == nil {
			copied := *info
			merged = &copied
		} else {
			m := merged.Merge(*info)
			merged = &m
		}

		// Complete info confirmed by a second source is good enough
		if merged.IsComplete() && len(sourceAgents) >= 2 {
			break
		}
	}

	confidence, verified := computeConfidence(sourceAgents)

	if merged != nil && !merged.IsComplete() && e.cfg.Pipeline.Enrich {
		enriched := e.enricher.Enrich(ctx, *merged)
		merged = &enriched
	}

	status := models.StatusNotFound
	if merged != nil && merged.AgentName != "" {
		if merged.HasContactInfo() {
			status = models.StatusFound
		} else {
			status = models.StatusPartial
		}
		if e.store != nil {
			if err := e.store.Put(ctx, searchQuery(prop), *merged, status); err != nil {
				e.logger.Warn("cache write failed", "address", prop.RawAddress, "error", err.Error())
			}
		}
	} else if e.store != nil {
		if err := e.store.RecordFailure(ctx, searchQuery(prop), sourcesTried, "no agent info found"); err != nil {
			e.logger.Warn("failure record failed", "address", prop.RawAddress, "error", err.Error())
		}
	}

	e.mu.Lock()
	switch status {
	case models.StatusFound:
		e.found++
	case models.StatusPartial:
		e.partial++
	default:
		e.notFound++
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ResultsTotal.WithLabelValues(string(status)).Inc()
	}
	e.emit(prop.RawAddress, string(status))

	matched := make([]string, len(sourceAgents))
	for i, sa := range sourceAgents {
		matched[i] = sa.source
	}

	return models.ScrapeResult{
		Property:       prop,
		AgentInfo:      merged,
		Status:         status,
		SourcesTried:   sourcesTried,
		Confidence:     confidence,
		Verified:       verified,
		SourcesMatched: matched,
	}
}

// retryNotFound reruns unresolved rows with simplified address variants
func (e *Engine) retryNotFound(ctx context.Context, results []models.ScrapeResult) {
	var retryIdx []int
	for i, r := range results {
		if r.Status == models.StatusNotFound {
			retryIdx = append(retryIdx, i)
		}
	}
	if len(retryIdx) == 0 {
		return
	}

	e.logger.Info("retrying unresolved addresses with simplified queries",
		"count", len(retryIdx))
	e.emit("Retrying not-found addresses...", "retrying")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		recovered int
	)
	for _, idx := range retryIdx {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if result := e.retryWithVariants(ctx, results[idx].Property); result != nil {
				mu.Lock()
				results[idx] = *result
				recovered++
				mu.Unlock()
			}
		}(idx)
	}
	wg.Wait()

	if recovered > 0 {
		e.logger.Info("recovered addresses on retry pass", "recovered", recovered)
	}
}

// retryWithVariants walks the address variants for a property until one of
// them resolves. A recovered result keeps the original property and gains
// a "+retry" source tag.
func (e *Engine) retryWithVariants(ctx context.Context, prop models.Property) *models.ScrapeResult {
	for _, variant := range address.Variants(prop) {
		variantProp := prop
		variantProp.AddressLine = variant

		result := e.processOne(ctx, variantProp)
		if result.AgentInfo == nil || result.AgentInfo.AgentName == "" {
			continue
		}

		result.AgentInfo.Source += "+retry"
		result.Property = prop

		// processOne counted the recovery; the first-pass miss no longer
		// stands
		e.mu.Lock()
		e.notFound--
		e.mu.Unlock()

		return &result
	}
	return nil
}

type sourceAgent struct {
	source string
	name   string
}

// computeConfidence scores cross-source agreement: 0 with no sources, 0.5
// for a single unverified source, 0.7 + 0.1 per agreeing source (capped at
// 1.0) when two or more agree, and 0.4 when sources disagree outright.
func computeConfidence(sourceAgents []sourceAgent) (float64, bool) {
	if len(sourceAgents) == 0 {
		return 0.0, false
	}
	if len(sourceAgents) == 1 {
		return 0.5, false
	}

	base := sourceAgents[0].name
	matching := 1
	for _, sa := range sourceAgents[1:] {
		if address.NamesMatch(base, sa.name) {
			matching++
		}
	}

	if matching >= 2 {
		confidence := 0.7 + float64(matching)*0.1
		if confidence > 1.0 {
			confidence = 1.0
		}
		return confidence, true
	}
	return 0.4, false
}

// emit sends a progress event to the registered callback
func (e *Engine) emit(currentAddress, currentStatus string) {
	if e.progress == nil {
		return
	}
	e.mu.Lock()
	p := Progress{
		Completed:      e.found + e.partial + e.notFound + e.errors,
		Total:          e.total,
		Cached:         e.cached,
		Found:          e.found,
		Partial:        e.partial,
		NotFound:       e.notFound,
		Errors:         e.errors,
		CurrentAddress: currentAddress,
		CurrentStatus:  currentStatus,
	}
	e.mu.Unlock()
	e.progress(p)
}

func (e *Engine) resetCounters() {
	e.mu.Lock()
	e.total, e.cached, e.found, e.partial, e.notFound, e.errors = 0, 0, 0, 0, 0, 0
	e.mu.Unlock()
}

// buildSummary finalizes the run summary from the results and the
// per-source gateway counters
func (e *Engine) buildSummary(summary *reporting.RunSummary, results []models.ScrapeResult) *reporting.RunSummary {
	summary.EndTime = time.Now()

	e.mu.Lock()
	summary.Found = e.found
	summary.Partial = e.partial
	summary.Cached = e.cached
	summary.NotFound = e.notFound
	summary.Errors = e.errors
	e.mu.Unlock()
	summary.Total = len(results)

	summary.SourceCounts = make(map[string]int)
	for _, r := range results {
		if r.AgentInfo == nil || r.AgentInfo.Source == "" {
			continue
		}
		summary.SourceCounts[primarySource(r.AgentInfo.Source)]++
	}

	summary.SourceStats = make(map[string]reporting.SourceStats)
	for name, gw := range e.gateways {
		st := gw.Stats()
		summary.SourceStats[name] = reporting.SourceStats{
			Requests:  st.Requests,
			Successes: st.Successes,
			Blocks:    st.Blocks,
		}
	}

	summary.Finalize()
	return summary
}

// primarySource returns the first source in a "+"-joined source tag
func primarySource(source string) string {
	for i := 0; i < len(source); i++ {
		if source[i] == '+' {
			return source[:i]
		}
	}
	return source
}
