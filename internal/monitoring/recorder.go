package monitoring

import (
	"sync"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pipeline"
)

// Recorder counts document outcomes in memory. It implements
// pipeline.Reporter.
type Recorder struct {
	mu      sync.Mutex
	started int
	done    int
	failed  int
	byKind  map[pipeline.FailureKind]int
	byState map[model.DocumentState]int
}

var _ pipeline.Reporter = (*Recorder)(nil)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		byKind:  make(map[pipeline.FailureKind]int),
		byState: make(map[model.DocumentState]int),
	}
}

// Transition implements pipeline.Reporter.
func (r *Recorder) Transition(_ string, from, to model.DocumentState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byState[to]++
	switch {
	case from == "" && to == model.StateIngesting:
		r.started++
	case to == model.StateDone:
		r.done++
	case to == model.StateFailed:
		r.failed++
	}
}

// Failure implements pipeline.Reporter.
func (r *Recorder) Failure(_ string, f *pipeline.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[f.Kind]++
}

// Counts is a copy of the recorder's counters.
type Counts struct {
	Started int                          `json:"started"`
	Done    int                          `json:"done"`
	Failed  int                          `json:"failed"`
	ByKind  map[pipeline.FailureKind]int `json:"by_kind"`
	ByState map[model.DocumentState]int  `json:"by_state"`
}

// Counts returns a snapshot of the counters.
func (r *Recorder) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := Counts{
		Started: r.started,
		Done:    r.done,
		Failed:  r.failed,
		ByKind:  make(map[pipeline.FailureKind]int, len(r.byKind)),
		ByState: make(map[model.DocumentState]int, len(r.byState)),
	}
	for k, v := range r.byKind {
		c.ByKind[k] = v
	}
	for k, v := range r.byState {
		c.ByState[k] = v
	}
	return c
}
