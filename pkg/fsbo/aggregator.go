package fsbo

import (
	"context"
	"strings"
	"sync"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/config"
	"github.com/dispodojo/agent-finder/pkg/gateway"
	"github.com/dispodojo/agent-finder/pkg/metrics"
	"github.com/dispodojo/agent-finder/pkg/models"
	"github.com/dispodojo/agent-finder/pkg/reporting"
	"github.com/dispodojo/agent-finder/pkg/scrape/harvest"
)

// Progress is one FSBO search progress event, emitted once per scraper
// completion
type Progress struct {
	ScrapersDone  int    `json:"scrapers_done"`
	ScrapersTotal int    `json:"scrapers_total"`
	ListingsFound int    `json:"listings_found"`
	CurrentSource string `json:"current_source"`
	SourceCount   int    `json:"source_count"`
	Status        string `json:"status"`
}

// Aggregator fans out the FSBO scrapers concurrently and merges their
// results. A seller who posts the same property on several sites comes
// back as one listing carrying the union of the contact details found.
type Aggregator struct {
	cfg      *config.Config
	logger   *reporting.Logger
	metrics  *metrics.Metrics
	scrapers []Scraper

	mu       sync.Mutex
	progress func(Progress)
}

// New wires the five scrapers on per-source gateways sharing one
// connection pool
func New(cfg *config.Config, logger *reporting.Logger, m *metrics.Metrics) *Aggregator {
	client := gateway.SharedClient()
	maxPages := cfg.FSBO.MaxPagesPerSource

	gw := func(name string) *gateway.Gateway {
		return gateway.New(sourceDefaults[name], client, logger, m)
	}

	return &Aggregator{
		cfg:     cfg,
		logger:  logger.WithField("component", "fsbo"),
		metrics: m,
		scrapers: []Scraper{
			NewFSBOCom(gw("fsbo.com"), logger, maxPages),
			NewForSaleByOwner(gw("forsalebyowner.com"), logger, maxPages),
			NewZillowFSBO(gw("zillow_fsbo"), logger),
			NewRealtorFSBO(harvest.NewClient(gw("realtor_fsbo")), logger),
			NewCraigslist(gw("craigslist"), logger, maxPages),
		},
	}
}

// OnProgress registers the progress callback. Events may arrive from
// several goroutines; delivery is serialized.
func (a *Aggregator) OnProgress(fn func(Progress)) {
	a.mu.Lock()
	a.progress = fn
	a.mu.Unlock()
}

// Run fans out every scraper, waits for all of them, and returns the
// deduplicated merge. A scraper failure is logged and contributes nothing;
// the others still count.
func (a *Aggregator) Run(ctx context.Context, criteria models.FSBOSearchCriteria) ([]models.FSBOListing, error) {
	type outcome struct {
		source   string
		listings []models.FSBOListing
	}

	results := make(chan outcome, len(a.scrapers))
	var wg sync.WaitGroup
	for _, scraper := range a.scrapers {
		wg.Add(1)
		go func(s Scraper) {
			defer wg.Done()
			listings, err := s.SearchArea(ctx, criteria)
			if err != nil {
				a.logger.Warn("scraper failed", "source", s.Name(), "error", err.Error())
			}
			results <- outcome{source: s.Name(), listings: listings}
		}(scraper)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var all []models.FSBOListing
	done := 0
	for out := range results {
		done++
		all = append(all, out.listings...)
		if a.metrics != nil && len(out.listings) > 0 {
			a.metrics.FSBOListings.WithLabelValues(out.source).Add(float64(len(out.listings)))
		}

		status := "running"
		if done == len(a.scrapers) {
			status = "complete"
		}
		a.emit(Progress{
			ScrapersDone:  done,
			ScrapersTotal: len(a.scrapers),
			ListingsFound: len(all),
			CurrentSource: out.source,
			SourceCount:   len(out.listings),
			Status:        status,
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := a.deduplicate(all)
	a.logger.Info("aggregation complete", "raw", len(all), "merged", len(merged))
	return merged, nil
}

func (a *Aggregator) emit(p Progress) {
	a.mu.Lock()
	fn := a.progress
	a.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// deduplicate groups listings by street line and merges groups into one
// listing each, preserving first-seen order
func (a *Aggregator) deduplicate(listings []models.FSBOListing) []models.FSBOListing {
	merged := map[string]*models.FSBOListing{}
	var order []string

	for _, listing := range listings {
		key := dedupKey(listing, a.cfg.FSBO.DedupWithLocality)
		if existing, ok := merged[key]; ok {
			*existing = existing.Merge(listing)
			continue
		}
		l := listing
		merged[key] = &l
		order = append(order, key)
	}

	out := make([]models.FSBOListing, 0, len(order))
	for _, key := range order {
		out = append(out, *merged[key])
	}
	return out
}

// dedupKey is the normalized street line (the first comma token) when it
// is long enough to be meaningful, else the listing URL, else the raw
// address. With locality enabled the city and ZIP join the key so the
// same street line in two towns stays two listings.
func dedupKey(l models.FSBOListing, withLocality bool) string {
	key := address.Normalize(strings.Split(l.Address, ",")[0])
	if len(key) < 4 {
		if l.ListingURL != "" {
			return l.ListingURL
		}
		return l.Address
	}
	if withLocality {
		key += "|" + strings.ToUpper(strings.TrimSpace(l.City)) + "|" + l.ZipCode
	}
	return key
}
