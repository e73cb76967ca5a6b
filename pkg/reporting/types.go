package reporting

import "time"

// RunSummary is the aggregate outcome of one batch resolution run
type RunSummary struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  string    `json:"duration"`

	Total    int `json:"total"`
	Found    int `json:"found"`
	Partial  int `json:"partial"`
	Cached   int `json:"cached"`
	NotFound int `json:"not_found"`
	Errors   int `json:"errors"`

	// SuccessRate is found+partial+cached over total, in percent
	SuccessRate float64 `json:"success_rate"`

	// SourceCounts counts which source contributed each resolved row.
	// A row resolved by a merge counts once per contributing source.
	SourceCounts map[string]int `json:"source_counts,omitempty"`

	// SourceStats carries the per-gateway request counters at run end
	SourceStats map[string]SourceStats `json:"source_stats,omitempty"`
}

// SourceStats mirrors the gateway counters for one source
type SourceStats struct {
	Requests  int64 `json:"requests"`
	Successes int64 `json:"successes"`
	Blocks    int64 `json:"blocks"`
}

// Finalize computes the derived fields from the counters
func (s *RunSummary) Finalize() {
	s.Duration = s.EndTime.Sub(s.StartTime).Round(time.Second).String()
	if s.Total > 0 {
		s.SuccessRate = float64(s.Found+s.Partial+s.Cached) / float64(s.Total) * 100
	}
}

// RowEvent is one progress update during a batch run
type RowEvent struct {
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Address   string `json:"address"`
	Status    string `json:"status"`
	Source    string `json:"source,omitempty"`
}
