package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/model"
)

// Reporter observes document state transitions and classified failures.
// Implementations must be safe for concurrent use.
type Reporter interface {
	Transition(docID string, from, to model.DocumentState)
	Failure(docID string, f *Failure)
}

// LogReporter reports through the global zap logger.
type LogReporter struct{}

func (LogReporter) Transition(docID string, from, to model.DocumentState) {
	zap.L().Debug("pipeline: state change",
		zap.String("document_id", docID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

func (LogReporter) Failure(docID string, f *Failure) {
	log := zap.L().With(
		zap.String("document_id", docID),
		zap.String("kind", string(f.Kind)),
		zap.String("stage", string(f.Stage)),
	)
	if f.Kind.Fatal() {
		log.Error("pipeline: document failed", zap.Error(f.Err))
		return
	}
	log.Warn("pipeline: degraded", zap.Error(f.Err))
}

type multiReporter []Reporter

// MultiReporter fans reports out to every non-nil reporter.
func MultiReporter(rs ...Reporter) Reporter {
	var out multiReporter
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiReporter) Transition(docID string, from, to model.DocumentState) {
	for _, r := range m {
		r.Transition(docID, from, to)
	}
}

func (m multiReporter) Failure(docID string, f *Failure) {
	for _, r := range m {
		r.Failure(docID, f)
	}
}
