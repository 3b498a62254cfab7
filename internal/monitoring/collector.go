package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pipeline"
	"github.com/sells-group/invoice-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Documents processed by this instance since start.
	DocumentsStarted int                          `json:"documents_started"`
	DocumentsDone    int                          `json:"documents_done"`
	DocumentsFailed  int                          `json:"documents_failed"`
	FailRate         float64                      `json:"fail_rate"`
	FailuresByKind   map[pipeline.FailureKind]int `json:"failures_by_kind"`

	// Stored invoices within the lookback window.
	StoredTotal      int                      `json:"stored_total"`
	StoredBySource   map[model.TextSource]int `json:"stored_by_source"`
	StoredAIEnhanced int                      `json:"stored_ai_enhanced"`

	// AI provider circuit breakers.
	BreakerStates map[string]string `json:"breaker_states,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// BreakerStater reports circuit breaker states by service.
type BreakerStater interface {
	States() map[string]string
}

// Collector gathers metrics from the recorder, the store and the breakers.
// Any source may be nil.
type Collector struct {
	store    store.Store
	recorder *Recorder
	breakers BreakerStater
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store, rec *Recorder, breakers BreakerStater) *Collector {
	return &Collector{store: st, recorder: rec, breakers: breakers}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	snap := &MetricsSnapshot{
		FailuresByKind: map[pipeline.FailureKind]int{},
		StoredBySource: map[model.TextSource]int{},
		LookbackHours:  lookbackHours,
		CollectedAt:    time.Now().UTC(),
	}

	if c.recorder != nil {
		counts := c.recorder.Counts()
		snap.DocumentsStarted = counts.Started
		snap.DocumentsDone = counts.Done
		snap.DocumentsFailed = counts.Failed
		snap.FailuresByKind = counts.ByKind
		if finished := counts.Done + counts.Failed; finished > 0 {
			snap.FailRate = float64(counts.Failed) / float64(finished)
		}
	}

	if c.store != nil {
		cutoff := snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)
		stats, err := c.store.Stats(ctx, cutoff)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: store stats")
		}
		snap.StoredTotal = stats.Total
		snap.StoredAIEnhanced = stats.AIEnhanced
		for k, v := range stats.BySource {
			snap.StoredBySource[k] = v
		}
	}

	if c.breakers != nil {
		snap.BreakerStates = c.breakers.States()
	}
	return snap, nil
}
