package runner

import "sync"

// Event reports progress of a run.
type Event struct {
	ProviderID string `json:"providerId"`

	// Attempt is the 1-based position of the provider among Total candidates.
	Attempt int `json:"attempt"`
	Total   int `json:"total"`

	// Percent is the provider's own 0..100 progress.
	Percent float64 `json:"percent"`

	// Overall is 0..100 across the whole run and never decreases.
	Overall float64 `json:"overall"`
}

// ProgressFunc receives progress events. It may be called from adapter goroutines.
type ProgressFunc func(Event)

// tracker maps provider-relative progress onto one monotonic run-wide scale.
type tracker struct {
	mu    sync.Mutex
	total int
	sink  ProgressFunc
	last  float64
}

func newTracker(total int, sink ProgressFunc) *tracker {
	return &tracker{total: total, sink: sink}
}

// start announces attempt k (0-based) and returns the callback handed to the adapter.
func (t *tracker) start(k int, id string) func(float64) {
	report := func(percent float64) {
		t.emit(k, id, percent)
	}
	report(0)
	return report
}

func (t *tracker) emit(k int, id string, percent float64) {
	if t.sink == nil || t.total == 0 {
		return
	}
	percent = min(max(percent, 0), 100)
	overall := (float64(k) + percent/100) / float64(t.total) * 100

	t.mu.Lock()
	defer t.mu.Unlock()
	overall = max(overall, t.last)
	t.last = overall

	t.sink(Event{
		ProviderID: id,
		Attempt:    k + 1,
		Total:      t.total,
		Percent:    percent,
		Overall:    overall,
	})
}
