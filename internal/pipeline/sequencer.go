package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrSuperseded is returned when a newer document was started for the same
// session before this one finished.
var ErrSuperseded = eris.New("pipeline: superseded by a newer document")

// Sequencer makes the latest document per session the only one whose result
// counts. Starting a document cancels the previous one for that session.
type Sequencer struct {
	mu      sync.Mutex
	seq     uint64
	current map[string]*Ticket
}

// NewSequencer creates an empty Sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{current: make(map[string]*Ticket)}
}

// Ticket identifies one document run within a session.
type Ticket struct {
	s      *Sequencer
	key    string
	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Begin issues a ticket for session key and supersedes any earlier ticket.
// The ticket's context is cancelled when it is superseded or released.
func (s *Sequencer) Begin(ctx context.Context, key string) *Ticket {
	tctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &Ticket{s: s, key: key, seq: s.seq, ctx: tctx, cancel: cancel}
	if prev, ok := s.current[key]; ok {
		prev.cancel()
	}
	s.current[key] = t
	return t
}

// Context returns the ticket's context.
func (t *Ticket) Context() context.Context { return t.ctx }

// Seq returns the ticket's sequence number.
func (t *Ticket) Seq() uint64 { return t.seq }

// Current reports whether no newer ticket exists for the session.
func (t *Ticket) Current() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.current[t.key] == t
}

// Check returns ErrSuperseded once a newer ticket exists.
func (t *Ticket) Check() error {
	if !t.Current() {
		return ErrSuperseded
	}
	return nil
}

// Release frees the ticket. It is safe to call more than once.
func (t *Ticket) Release() {
	t.s.mu.Lock()
	if t.s.current[t.key] == t {
		delete(t.s.current, t.key)
	}
	t.s.mu.Unlock()
	t.cancel()
}
