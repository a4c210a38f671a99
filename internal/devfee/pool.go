// Package devfee implements the dev-fee address pool: a round-robin
// draw from an externally maintained source, with collision avoidance
// against addresses that already have a receipt for the current
// challenge.
package devfee

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/bardlex/powminer/pkg/errors"
)

// Source returns one candidate dev-fee address per call. It is external
// to this package (pre-warmed with roughly 10 entries at start, per the
// upstream contract).
type Source interface {
	Next(ctx context.Context) (string, error)
}

// SolvedChecker reports whether an address already has a receipt for a
// given challenge, so the pool can skip collisions without blocking
// user mining.
type SolvedChecker interface {
	IsSolved(address, challengeID string) bool
}

// Recorder persists successful draws so the collision history survives
// a restart, not just the in-memory skip cache. Optional: a nil
// Recorder (the default) leaves collision avoidance scoped to the
// current process lifetime.
type Recorder interface {
	RecordAssignment(ctx context.Context, address, challengeID string) error
}

// PersistedChecker is the read side of Recorder: it reports whether an
// address was already drawn for a challenge in a prior process
// lifetime, so a restarted process's skip cache (which starts empty)
// doesn't re-draw an address a previous run already committed to this
// challenge. Optional: a nil PersistedChecker limits collision
// avoidance to the current process's in-memory cache and checker.
type PersistedChecker interface {
	HasAssignment(ctx context.Context, address, challengeID string) (bool, error)
}

const collisionCacheSize = 64

// Pool draws dev-fee addresses round-robin from a Source, skipping any
// address already solved for the current challenge. Skipped draws are
// cached briefly so a pathological source that keeps returning the same
// stale address doesn't spin the pool indefinitely within one obligation.
type Pool struct {
	mu        sync.Mutex
	source    Source
	checker   SolvedChecker
	skipped   *lru.Cache
	maxRetry  int
	recorder  Recorder
	persisted PersistedChecker
}

// SetRecorder attaches a Recorder used to persist future successful
// draws. Passing nil disables persistence.
func (p *Pool) SetRecorder(r Recorder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorder = r
}

// SetPersistedChecker attaches a PersistedChecker consulted after the
// in-memory checks pass, so collision avoidance survives a restart.
// Passing nil scopes collision avoidance back to the current process.
func (p *Pool) SetPersistedChecker(c PersistedChecker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.persisted = c
}

// New creates a Pool drawing from source, consulting checker for
// collisions, retrying up to maxRetry times per draw.
func New(source Source, checker SolvedChecker, maxRetry int) (*Pool, error) {
	cache, err := lru.New(collisionCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "new_devfee_pool", "failed to create collision cache")
	}
	if maxRetry <= 0 {
		maxRetry = 3
	}
	return &Pool{source: source, checker: checker, skipped: cache, maxRetry: maxRetry}, nil
}

// Draw returns the next usable dev-fee address for challengeID, or
// ("", false, nil) if every attempt collided and the caller should skip
// this obligation unit rather than block user mining.
func (p *Pool) Draw(ctx context.Context, challengeID string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for attempt := 0; attempt < p.maxRetry; attempt++ {
		addr, err := p.source.Next(ctx)
		if err != nil {
			return "", false, errors.Wrap(err, errors.ErrorTypeInternal, "devfee_draw", "failed to draw dev-fee address")
		}

		if cid, known := p.skipped.Get(addr); known && cid == challengeID {
			continue
		}

		if p.checker.IsSolved(addr, challengeID) {
			p.skipped.Add(addr, challengeID)
			continue
		}

		if p.persisted != nil {
			// Best-effort: a failed lookup falls through to treating addr
			// as unassigned rather than stalling the draw on a database
			// outage — the in-memory checks above have already cleared it.
			if assigned, err := p.persisted.HasAssignment(ctx, addr, challengeID); err == nil && assigned {
				p.skipped.Add(addr, challengeID)
				continue
			}
		}

		if p.recorder != nil {
			// Best-effort: a failed audit write never blocks a draw that
			// already cleared the in-memory collision check.
			_ = p.recorder.RecordAssignment(ctx, addr, challengeID)
		}

		return addr, true, nil
	}

	return "", false, nil
}
