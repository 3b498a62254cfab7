package model

// DocumentState is a stage in the per-document processing state machine.
type DocumentState string

const (
	StateIngesting     DocumentState = "ingesting"
	StateExtracting    DocumentState = "extracting"
	StateReconcilingAI DocumentState = "reconciling_ai"
	StateDone          DocumentState = "done"
	StateFailed        DocumentState = "failed"
)

var stateTransitions = map[DocumentState][]DocumentState{
	StateIngesting:     {StateExtracting, StateFailed},
	StateExtracting:    {StateReconcilingAI, StateDone},
	StateReconcilingAI: {StateDone},
}

// CanTransition reports whether moving from s to next is a legal step.
func (s DocumentState) CanTransition(next DocumentState) bool {
	for _, allowed := range stateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s DocumentState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}
