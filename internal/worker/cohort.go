// Package worker implements the fixed-size pool of parallel hashing
// workers that mine against a single frozen address/challenge snapshot.
package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bardlex/powminer/internal/domain"
	"github.com/bardlex/powminer/internal/events"
	"github.com/bardlex/powminer/internal/gate"
	"github.com/bardlex/powminer/internal/hashengine"
	"github.com/bardlex/powminer/pkg/errors"
	"github.com/bardlex/powminer/pkg/log"
)

// nonceSpacePerWorker is N from the nonce-space partition: worker w
// starts at nonce w*N and exits cleanly after N nonces without a hit.
const nonceSpacePerWorker = 1 << 30

// RunningChecker exposes the Coordinator's process-wide run state and the
// address currently being mined, without handing the worker a pointer to
// the Coordinator itself.
type RunningChecker interface {
	IsRunning() bool
	CurrentMiningAddress() (string, bool)
}

// SolvedChecker reports whether an (address, challenge_id) pair already
// has an accepted receipt.
type SolvedChecker interface {
	IsSolved(address, challengeID string) bool
}

// Submitter is the subset of the submission gate a worker calls into.
type Submitter interface {
	Submit(ctx context.Context, candidate domain.SolutionCandidate, addressIndex int) (gate.Result, error)
	FailureCount(address, challengeID string) int
}

// Cohort is W workers bound to one (address, frozen challenge snapshot)
// pair. It implements gate.SiblingController so the submission gate can
// pause and resume this cohort's other workers without knowing anything
// about worker internals.
type Cohort struct {
	WorkerCount  int
	Address      string
	AddressIndex int
	IsDevFee     bool
	Snapshot     domain.Challenge
	BatchSize    int
	MaxFailures  int

	Engine  hashengine.Engine
	Gate    Submitter
	Live    gate.LiveChallenge
	Running RunningChecker
	Solved  SolvedChecker
	Bus     *events.Bus
	Logger  *log.Logger

	mu      sync.Mutex
	stopped map[domain.WorkerID]bool
	paused  bool
}

var _ gate.SiblingController = (*Cohort)(nil)

// StopSiblings marks every worker in this cohort stopped and pauses the
// (address, challenge_id) pair so no further batches start.
func (c *Cohort) StopSiblings(address, challengeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	for w := domain.WorkerID(0); int(w) < c.WorkerCount; w++ {
		c.stopped[w] = true
	}
}

// ResumeSiblings clears the pause and per-worker stop flags.
func (c *Cohort) ResumeSiblings(address, challengeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	c.stopped = make(map[domain.WorkerID]bool)
}

func (c *Cohort) isStopped(w domain.WorkerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped[w]
}

func (c *Cohort) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Run spawns WorkerCount workers and joins them, returning one
// domain.CohortResult per worker. It never returns an error itself —
// individual worker failures are carried in each CohortResult.
func (c *Cohort) Run(ctx context.Context) []domain.CohortResult {
	if c.stopped == nil {
		c.mu.Lock()
		c.stopped = make(map[domain.WorkerID]bool)
		c.mu.Unlock()
	}

	results := make([]domain.CohortResult, c.WorkerCount)
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < c.WorkerCount; w++ {
		w := w
		g.Go(func() error {
			results[w] = c.runWorker(gctx, domain.WorkerID(w))
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (c *Cohort) runWorker(ctx context.Context, id domain.WorkerID) domain.CohortResult {
	cursor := uint64(id) * nonceSpacePerWorker
	end := cursor + nonceSpacePerWorker
	var hashesComputed uint64
	lastEmit := time.Now()

	for cursor < end {
		if outcome, done := c.checkBarriers(id); done {
			return domain.CohortResult{WorkerID: id, Outcome: outcome}
		}

		batchSize := uint64(c.BatchSize)
		if remaining := end - cursor; remaining < batchSize {
			batchSize = remaining
		}

		nonces := make([]string, batchSize)
		preimages := make([][]byte, batchSize)
		for i := uint64(0); i < batchSize; i++ {
			nonceHex, preimage := domain.SerializeNonce(cursor+i, c.Address, c.Snapshot)
			nonces[i] = nonceHex
			preimages[i] = preimage
		}

		hashes, err := c.hashBatchWithBackoff(ctx, preimages)
		if err != nil {
			if ctx.Err() != nil {
				return domain.CohortResult{WorkerID: id, Outcome: domain.CohortCancelled, Err: ctx.Err()}
			}
			// Non-retriable: move on to the next batch.
			cursor += batchSize
			continue
		}

		// Rotation guard: re-check divergence after the (possibly slow) hash call.
		if c.challengeDiverged() {
			return domain.CohortResult{WorkerID: id, Outcome: domain.CohortRotated}
		}

		hashesComputed += batchSize

		for i, h := range hashes {
			matches, err := domain.MatchesDifficulty(h, c.Snapshot.Difficulty)
			if err != nil || !matches {
				continue
			}

			candidate := domain.SolutionCandidate{
				WorkerID:          id,
				Address:           c.Address,
				ChallengeSnapshot: c.Snapshot,
				Nonce:             nonces[i],
				Preimage:          preimages[i],
				Hash:              h,
				IsDevFee:          c.IsDevFee,
			}

			result, err := c.Gate.Submit(ctx, candidate, c.AddressIndex)
			if err != nil && c.Logger != nil {
				c.Logger.WithError(err).Error("submission gate returned an error")
			}

			switch result.Outcome {
			case gate.OutcomeAccepted:
				return domain.CohortResult{WorkerID: id, Outcome: domain.CohortSolved, Solution: &candidate}
			case gate.OutcomeRejected:
				if c.Gate.FailureCount(c.Address, c.Snapshot.ChallengeID) >= c.MaxFailures {
					return domain.CohortResult{WorkerID: id, Outcome: domain.CohortCapReached}
				}
			}
			// StaleDiscarded, AlreadySubmitting, DuplicateHash: keep mining.
		}

		cursor += batchSize

		if c.Bus != nil && time.Since(lastEmit) > 500*time.Millisecond {
			c.emitProgress(id, hashesComputed)
			lastEmit = time.Now()
		}
	}

	return domain.CohortResult{WorkerID: id, Outcome: domain.CohortCancelled}
}

// checkBarriers implements spec §4.3 step 1: the cheap per-batch checks
// that decide whether this worker should keep mining.
func (c *Cohort) checkBarriers(id domain.WorkerID) (domain.CohortOutcome, bool) {
	if c.Running != nil && !c.Running.IsRunning() {
		return domain.CohortCancelled, true
	}
	if c.Running != nil {
		if addr, ok := c.Running.CurrentMiningAddress(); !ok || addr != c.Address {
			return domain.CohortCancelled, true
		}
	}
	if c.isStopped(id) {
		return domain.CohortCancelled, true
	}
	if c.isPaused() {
		return domain.CohortCancelled, true
	}
	if c.Gate.FailureCount(c.Address, c.Snapshot.ChallengeID) >= c.MaxFailures {
		return domain.CohortCapReached, true
	}
	if c.Solved != nil && c.Solved.IsSolved(c.Address, c.Snapshot.ChallengeID) {
		return domain.CohortSolved, true
	}
	return 0, false
}

// challengeDiverged implements spec §4.3 step 4: the rotation guard.
func (c *Cohort) challengeDiverged() bool {
	if c.Live == nil {
		return false
	}
	live, ok := c.Live.Current(c.Snapshot.ChallengeID)
	if !ok {
		return true
	}
	return live.ChallengeID != c.Snapshot.ChallengeID
}

// hashBatchWithBackoff applies the tuned retry/backoff rules: a
// retriable hash-engine error backs off 2s and retries the same batch;
// a non-retriable error backs off 1s and the caller moves to the next
// nonce range.
func (c *Cohort) hashBatchWithBackoff(ctx context.Context, preimages [][]byte) ([]string, error) {
	for {
		hashes, err := c.Engine.HashBatch(ctx, preimages)
		if err == nil {
			return hashes, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		wrapped := errors.Wrap(err, errors.ErrorTypeHashEngine, "hash_batch", "hash engine call failed")
		delay := time.Second
		retriable := wrapped.IsRetryable()
		if retriable {
			delay = 2 * time.Second
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		if !retriable {
			return nil, wrapped
		}
		// Retriable: loop and retry the same nonce range.
	}
}

func (c *Cohort) emitProgress(id domain.WorkerID, hashesComputed uint64) {
	c.Bus.Publish(events.Event{
		Kind:        events.KindWorkerUpdate,
		Address:     c.Address,
		WorkerID:    int(id),
		ChallengeID: c.Snapshot.ChallengeID,
		Fields: map[string]interface{}{
			"hashes_computed": hashesComputed,
			"status":          string(domain.WorkerMining),
		},
	})
}
