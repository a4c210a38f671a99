// Package gate implements the Submission Gate: the mutual-exclusion
// barrier around solution submission with fresh-challenge revalidation.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/bardlex/powminer/internal/domain"
	"github.com/bardlex/powminer/internal/events"
	"github.com/bardlex/powminer/internal/hashengine"
	"github.com/bardlex/powminer/internal/upstream"
	"github.com/bardlex/powminer/pkg/errors"
	"github.com/bardlex/powminer/pkg/log"
)

// submitLockTTL bounds how long a distributed submit lock mirror
// survives if this process dies mid-submission without releasing it.
const submitLockTTL = 30 * time.Second

// key identifies a submission lock slot.
type key struct {
	address     string
	challengeID string
}

// LiveChallenge exposes the poller's current view of a challenge,
// kept strictly separate from any cohort's frozen snapshot.
type LiveChallenge interface {
	Current(challengeID string) (domain.Challenge, bool)
}

// Outcome describes what happened to a candidate after passing through the gate.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeRejected
	OutcomeStaleDiscarded
	OutcomeAlreadySubmitting
	OutcomeDuplicateHash
)

// Result is returned by Submit.
type Result struct {
	Outcome      Outcome
	Receipt      *domain.Receipt
	ErrorRecord  *domain.ErrorRecord
	FailureCount int
}

// SiblingController lets the gate stop and resume sibling workers for an
// (address, challenge_id) pair without the gate needing to know about
// the worker pool's internals.
type SiblingController interface {
	StopSiblings(address string, challengeID string)
	ResumeSiblings(address string, challengeID string)
}

// DistributedLock mirrors the gate's in-process per-(address,
// challenge_id) lock in Redis, so a second mining process sharing the
// same address set observes an in-flight submission too. Optional: a
// nil DistributedLock (the default) leaves exclusion scoped to this
// process's in-process lock alone, which remains authoritative either
// way — a failed or unavailable mirror never blocks a submission.
type DistributedLock interface {
	TryAcquireSubmitLock(ctx context.Context, address, challengeID string, ttl time.Duration) (bool, error)
	ReleaseSubmitLock(ctx context.Context, address, challengeID string) error
}

// Gate serializes submissions per (address, challenge_id) and performs
// freshness revalidation immediately before submitting to the network.
type Gate struct {
	mu sync.Mutex

	submitting      map[key]struct{}
	submittedHashes map[string]struct{}
	failureCounts   map[key]int

	client      upstream.Client
	engine      hashengine.Engine
	live        LiveChallenge
	siblings    SiblingController
	store       Store
	logger      *log.Logger
	maxFailures int
	bus         *events.Bus
	redisLock   DistributedLock
}

// Store is the minimal durable-state contract the gate needs: appending
// receipts/errors and updating the in-memory solved-set.
type Store interface {
	AppendReceipt(domain.Receipt) error
	AppendError(domain.ErrorRecord) error
	MarkSolved(address, challengeID string)
	IsSolved(address, challengeID string) bool
}

// New creates a Gate. submittedHashes seeds the dedup set from a prior
// Durable State replay. bus may be nil; when set, accepted and rejected
// submissions are published for the metrics and operator-event layers.
func New(client upstream.Client, engine hashengine.Engine, live LiveChallenge, siblings SiblingController, store Store, logger *log.Logger, maxFailures int, submittedHashes map[string]struct{}, bus *events.Bus, redisLock DistributedLock) *Gate {
	if submittedHashes == nil {
		submittedHashes = make(map[string]struct{})
	}
	return &Gate{
		submitting:      make(map[key]struct{}),
		submittedHashes: submittedHashes,
		failureCounts:   make(map[key]int),
		client:          client,
		engine:          engine,
		live:            live,
		siblings:        siblings,
		store:           store,
		logger:          logger,
		maxFailures:     maxFailures,
		bus:             bus,
		redisLock:       redisLock,
	}
}

// SetSiblings replaces the sibling controller. The coordinator calls
// this once per address before running that address's cohort, since a
// fresh Cohort is constructed per address and the Gate otherwise has
// no way to learn about it after New.
func (g *Gate) SetSiblings(s SiblingController) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.siblings = s
}

func (g *Gate) currentSiblings() SiblingController {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.siblings
}

func (g *Gate) publish(kind events.Kind, address, challengeID string, fields map[string]interface{}) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(events.Event{Kind: kind, Address: address, ChallengeID: challengeID, Fields: fields})
}

// Submit runs the full 8-step sequence from candidate discovery to lock
// release. It is safe to call concurrently; only one caller per
// (address, challenge_id) proceeds past the lock acquire step.
func (g *Gate) Submit(ctx context.Context, candidate domain.SolutionCandidate, addressIndex int) (Result, error) {
	k := key{address: candidate.Address, challengeID: candidate.ChallengeSnapshot.ChallengeID}

	// Step 1: deduplicate.
	g.mu.Lock()
	if _, dup := g.submittedHashes[candidate.Hash]; dup {
		g.mu.Unlock()
		return Result{Outcome: OutcomeDuplicateHash}, nil
	}

	// Step 2: acquire lock.
	if _, held := g.submitting[k]; held {
		g.mu.Unlock()
		return Result{Outcome: OutcomeAlreadySubmitting}, nil
	}
	g.submitting[k] = struct{}{}
	// Pre-insert the hash before network acceptance; rolled back on
	// failure. Kept intentionally — see top-level design notes.
	g.submittedHashes[candidate.Hash] = struct{}{}
	g.mu.Unlock()

	defer g.release(ctx, k)

	g.acquireDistributedLock(ctx, k)

	// Step 3: stop siblings.
	if siblings := g.currentSiblings(); siblings != nil {
		siblings.StopSiblings(candidate.Address, k.challengeID)
	}

	// Step 4: pre-submit freshness check.
	fresh := candidate
	if g.live != nil {
		if live, ok := g.live.Current(k.challengeID); ok && challengeFieldsDiffer(candidate.ChallengeSnapshot, live) {
			nonceHex, preimage := candidate.Nonce, domain.Serialize(candidate.Nonce, candidate.Address, live)
			hashes, err := g.engine.HashBatch(ctx, [][]byte{preimage})
			if err != nil {
				g.rollbackHash(candidate.Hash)
				g.resumeSiblings(candidate.Address, k.challengeID)
				return Result{Outcome: OutcomeStaleDiscarded}, errors.Wrap(err, errors.ErrorTypeSubmission, "refresh_hash", "failed to re-hash stale candidate")
			}
			if len(hashes) != 1 {
				g.rollbackHash(candidate.Hash)
				g.resumeSiblings(candidate.Address, k.challengeID)
				return Result{Outcome: OutcomeStaleDiscarded}, errors.New(errors.ErrorTypeSubmission, "refresh_hash", "hash engine returned unexpected batch size")
			}
			fresh.Preimage = preimage
			fresh.Hash = hashes[0]
			fresh.Nonce = nonceHex
			fresh.ChallengeSnapshot = live

			matches, err := domain.MatchesDifficulty(fresh.Hash, live.Difficulty)
			if err != nil {
				g.rollbackHash(candidate.Hash)
				g.resumeSiblings(candidate.Address, k.challengeID)
				return Result{Outcome: OutcomeStaleDiscarded}, err
			}
			if !matches {
				g.rollbackHash(candidate.Hash)
				g.resumeSiblings(candidate.Address, k.challengeID)
				g.logger.LogSubmissionResult(candidate.Address, k.challengeID, false, "stale freshness check failed")
				return Result{Outcome: OutcomeStaleDiscarded}, nil
			}
		}
	}

	// Step 5: submit.
	submitResult, err := g.client.Submit(ctx, candidate.Address, k.challengeID, fresh.Nonce)
	if err != nil {
		return g.handleFailure(candidate, addressIndex, k, err.Error(), nil)
	}

	if !submitResult.Accepted {
		return g.handleFailure(candidate, addressIndex, k, submitResult.RejectMessage, nil)
	}

	// Step 6: on accept.
	receipt := domain.Receipt{
		Address:       candidate.Address,
		AddressIndex:  addressIndex,
		ChallengeID:   k.challengeID,
		Nonce:         fresh.Nonce,
		Hash:          fresh.Hash,
		IsDevFee:      candidate.IsDevFee,
		CryptoReceipt: submitResult.CryptoReceipt,
	}
	if err := g.store.AppendReceipt(receipt); err != nil {
		return Result{}, err
	}
	g.store.MarkSolved(candidate.Address, k.challengeID)

	g.mu.Lock()
	g.failureCounts[k] = 0
	g.mu.Unlock()

	g.logger.LogSubmissionResult(candidate.Address, k.challengeID, true, "")
	g.publish(events.KindSolutionResult, candidate.Address, k.challengeID, map[string]interface{}{
		"accepted":   true,
		"is_dev_fee": candidate.IsDevFee,
	})

	return Result{Outcome: OutcomeAccepted, Receipt: &receipt}, nil
}

func (g *Gate) handleFailure(candidate domain.SolutionCandidate, addressIndex int, k key, reason string, response []byte) (Result, error) {
	errRecord := domain.ErrorRecord{
		Address:      candidate.Address,
		AddressIndex: addressIndex,
		ChallengeID:  k.challengeID,
		Nonce:        candidate.Nonce,
		Hash:         candidate.Hash,
		Error:        reason,
	}
	if err := g.store.AppendError(errRecord); err != nil {
		return Result{}, err
	}

	g.rollbackHash(candidate.Hash)

	g.mu.Lock()
	g.failureCounts[k]++
	count := g.failureCounts[k]
	g.mu.Unlock()

	g.logger.LogSubmissionResult(candidate.Address, k.challengeID, false, reason)
	g.publish(events.KindSolutionResult, candidate.Address, k.challengeID, map[string]interface{}{
		"accepted":      false,
		"is_dev_fee":    candidate.IsDevFee,
		"reason":        reason,
		"failure_count": count,
	})

	if count >= g.maxFailures {
		// Coordinator moves on; siblings stay stopped.
		return Result{Outcome: OutcomeRejected, ErrorRecord: &errRecord, FailureCount: count}, nil
	}

	g.resumeSiblings(candidate.Address, k.challengeID)
	return Result{Outcome: OutcomeRejected, ErrorRecord: &errRecord, FailureCount: count}, nil
}

func (g *Gate) rollbackHash(hash string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.submittedHashes, hash)
}

func (g *Gate) resumeSiblings(address, challengeID string) {
	if siblings := g.currentSiblings(); siblings != nil {
		siblings.ResumeSiblings(address, challengeID)
	}
}

func (g *Gate) release(ctx context.Context, k key) {
	g.mu.Lock()
	delete(g.submitting, k)
	g.mu.Unlock()

	if g.redisLock == nil {
		return
	}
	if err := g.redisLock.ReleaseSubmitLock(ctx, k.address, k.challengeID); err != nil && g.logger != nil {
		g.logger.WithError(err).Warn("failed to release redis submit lock mirror")
	}
}

// acquireDistributedLock mirrors the in-process lock just acquired for
// k into Redis, best-effort: any failure to acquire — a Redis error or
// another process already holding the mirror — only logs a warning.
// The in-process lock already serializes this process's own attempts,
// so a failed mirror never blocks the submission.
func (g *Gate) acquireDistributedLock(ctx context.Context, k key) {
	if g.redisLock == nil {
		return
	}
	acquired, err := g.redisLock.TryAcquireSubmitLock(ctx, k.address, k.challengeID, submitLockTTL)
	if err != nil {
		if g.logger != nil {
			g.logger.WithError(err).Warn("redis submit lock unavailable, proceeding on in-process lock alone")
		}
		return
	}
	if !acquired && g.logger != nil {
		g.logger.Warn("redis submit lock already held by another process, proceeding on in-process lock alone")
	}
}

// ResetFailureCounts clears every tracked submission failure count. The
// coordinator calls this on its hourly reset, alongside killing workers
// and reinitializing the ROM, so an address doesn't carry a stale
// failure tally across the reset boundary.
func (g *Gate) ResetFailureCounts() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failureCounts = make(map[key]int)
}

// FailureCount returns the current submission failure count for (address, challengeID).
func (g *Gate) FailureCount(address, challengeID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failureCounts[key{address: address, challengeID: challengeID}]
}

// IsSubmitting reports whether a submission is currently in flight for (address, challengeID).
func (g *Gate) IsSubmitting(address, challengeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.submitting[key{address: address, challengeID: challengeID}]
	return held
}

func challengeFieldsDiffer(snapshot, live domain.Challenge) bool {
	return snapshot.LatestSubmission != live.LatestSubmission ||
		snapshot.NoPreMineHour != live.NoPreMineHour ||
		snapshot.NoPreMine != live.NoPreMine ||
		snapshot.Difficulty != live.Difficulty
}
