package pipeline

import (
	"errors"
	"fmt"

	"github.com/sells-group/invoice-cli/internal/model"
)

// FailureKind classifies what went wrong while processing a document.
type FailureKind string

const (
	// KindIngestion means no raw text could be obtained. It is the only
	// fatal kind.
	KindIngestion FailureKind = "ingestion_failure"
	// KindExtractionDegraded means no field rule matched. Informational.
	KindExtractionDegraded FailureKind = "extraction_degraded"
	// KindReconciliationSkipped means the AI pass failed or was unusable;
	// the heuristic record stands.
	KindReconciliationSkipped FailureKind = "reconciliation_skipped"
	// KindPersistence means the invoice could not be stored.
	KindPersistence FailureKind = "persistence_failure"
)

// Fatal reports whether the kind aborts processing.
func (k FailureKind) Fatal() bool {
	return k == KindIngestion
}

// Failure is a classified processing problem.
type Failure struct {
	Kind  FailureKind
	Stage model.DocumentState
	Err   error
}

// NewFailure classifies err as kind at stage.
func NewFailure(kind FailureKind, stage model.DocumentState, err error) *Failure {
	return &Failure{Kind: kind, Stage: stage, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// UserMessage is the text shown to the person who submitted the document.
func (f *Failure) UserMessage() string {
	switch f.Kind {
	case KindIngestion:
		return "Could not read text from the document. Check that the file is a valid PDF and try again."
	case KindExtractionDegraded:
		return "No invoice fields were recognized."
	case KindReconciliationSkipped:
		return "AI enhancement was skipped; showing heuristic results."
	case KindPersistence:
		return "The invoice was processed but could not be saved."
	default:
		return f.Error()
	}
}

// IsKind reports whether err wraps a Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
