package durable

import (
	"sync"

	"github.com/bardlex/powminer/internal/domain"
	"github.com/bardlex/powminer/internal/gate"
)

var _ gate.Store = (*LiveState)(nil)

// LiveState adapts a Store and its replayed State into the mutable view
// the submission gate and dev-fee pool read and write during normal
// operation: AppendReceipt both persists the line and updates the
// in-memory solved-set and counters atomically with respect to
// concurrent reads.
type LiveState struct {
	mu    sync.RWMutex
	store Store
	state *State
}

// NewLiveState wraps store and seeds the in-memory view from state
// (normally the result of store.Replay() at startup).
func NewLiveState(store Store, state *State) *LiveState {
	if state == nil {
		state = NewState()
	}
	return &LiveState{store: store, state: state}
}

// AppendReceipt persists r and updates the solved-set and counters.
func (l *LiveState) AppendReceipt(r domain.Receipt) error {
	if err := l.store.AppendReceipt(r); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.SubmittedHashes[r.Hash] = struct{}{}
	l.state.MarkSolved(r.Address, r.ChallengeID)
	if r.IsDevFee {
		l.state.DevFeeSolutionsCount++
	} else {
		l.state.UserSolutionsCount++
	}
	return nil
}

// AppendError persists e without touching the solved-set or counters.
func (l *LiveState) AppendError(e domain.ErrorRecord) error {
	return l.store.AppendError(e)
}

// MarkSolved records address as solved for challengeID without a
// corresponding append (used by callers that already own the receipt
// write, kept for interface symmetry with gate.Store).
func (l *LiveState) MarkSolved(address, challengeID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.MarkSolved(address, challengeID)
}

// IsSolved reports whether address already has an accepted receipt for challengeID.
func (l *LiveState) IsSolved(address, challengeID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsSolved(address, challengeID)
}

// SubmittedHashes returns a snapshot copy of the dedup set, used to
// seed a new gate.Gate.
func (l *LiveState) SubmittedHashes() map[string]struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]struct{}, len(l.state.SubmittedHashes))
	for h := range l.state.SubmittedHashes {
		out[h] = struct{}{}
	}
	return out
}

// UserSolutions returns the current non-dev-fee solution count.
func (l *LiveState) UserSolutions() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.UserSolutionsCount
}

// DevFeeSolutions returns the current dev-fee solution count.
func (l *LiveState) DevFeeSolutions() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.DevFeeSolutionsCount
}

// Close closes the underlying store.
func (l *LiveState) Close() error {
	return l.store.Close()
}
