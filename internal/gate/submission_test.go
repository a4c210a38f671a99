package gate

import (
	"context"
	"sync"
	"testing"

	"github.com/bardlex/powminer/internal/domain"
	"github.com/bardlex/powminer/internal/hashengine"
	"github.com/bardlex/powminer/internal/upstream"
	"github.com/bardlex/powminer/pkg/log"
)

type fakeUpstreamClient struct {
	mu        sync.Mutex
	accept    bool
	rejectMsg string
	failErr   error
	calls     int
}

func (f *fakeUpstreamClient) FetchChallenge(ctx context.Context) (domain.ChallengeState, error) {
	return domain.ChallengeState{}, nil
}
func (f *fakeUpstreamClient) FetchTerms(ctx context.Context) (string, error) { return "", nil }
func (f *fakeUpstreamClient) Register(ctx context.Context, address, signature, publicKeyHex string) error {
	return nil
}

func (f *fakeUpstreamClient) Submit(ctx context.Context, address, challengeID, nonce string) (*upstream.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failErr != nil {
		return nil, f.failErr
	}
	return &upstream.SubmitResult{Accepted: f.accept, RejectMessage: f.rejectMsg}, nil
}

func (f *fakeUpstreamClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLiveChallenge struct {
	challenge domain.Challenge
	ok        bool
}

func (f *fakeLiveChallenge) Current(challengeID string) (domain.Challenge, bool) {
	return f.challenge, f.ok
}

type fakeSiblingController struct {
	stopped int
	resumed int
}

func (f *fakeSiblingController) StopSiblings(address, challengeID string)   { f.stopped++ }
func (f *fakeSiblingController) ResumeSiblings(address, challengeID string) { f.resumed++ }

type fakeStore struct {
	mu       sync.Mutex
	receipts []domain.Receipt
	errors   []domain.ErrorRecord
	solved   map[string]map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{solved: make(map[string]map[string]bool)}
}

func (s *fakeStore) AppendReceipt(r domain.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *fakeStore) AppendError(e domain.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, e)
	return nil
}

func (s *fakeStore) MarkSolved(address, challengeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.solved[address] == nil {
		s.solved[address] = make(map[string]bool)
	}
	s.solved[address][challengeID] = true
}

func (s *fakeStore) IsSolved(address, challengeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.solved[address][challengeID]
}

func testLogger() *log.Logger {
	return log.New("test", "dev", "error", "text")
}

func cleanChallenge() domain.Challenge {
	return domain.Challenge{
		ChallengeID:      "C1",
		Difficulty:       "0fffffff",
		NoPreMine:        "deadbeef",
		LatestSubmission: "cafebabe",
		NoPreMineHour:    7,
	}
}

// TestSubmit_CleanSolve covers S1: a fresh, unchanged snapshot accepted by the network.
func TestSubmit_CleanSolve(t *testing.T) {
	c := cleanChallenge()
	candidate := domain.SolutionCandidate{
		Address:           "addrA",
		ChallengeSnapshot: c,
		Nonce:             "0000000040000abc",
		Hash:              "0effffff",
	}

	client := &fakeUpstreamClient{accept: true}
	store := newFakeStore()
	siblings := &fakeSiblingController{}
	live := &fakeLiveChallenge{challenge: c, ok: true} // unchanged snapshot == live

	g := New(client, hashengine.NewFakeEngine(), live, siblings, store, testLogger(), 6, nil, nil, nil)

	result, err := g.Submit(context.Background(), candidate, 0)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Outcome != OutcomeAccepted {
		t.Fatalf("Outcome = %v, want OutcomeAccepted", result.Outcome)
	}
	if len(store.receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(store.receipts))
	}
	if store.receipts[0].IsDevFee {
		t.Fatal("clean user solve should not be tagged dev-fee")
	}
	if !store.IsSolved("addrA", "C1") {
		t.Fatal("address should be marked solved")
	}
	if siblings.stopped != 1 {
		t.Fatalf("expected siblings stopped once, got %d", siblings.stopped)
	}
}

// TestSubmit_StaleFreshnessRejectedLocally covers S2.
func TestSubmit_StaleFreshnessRejectedLocally(t *testing.T) {
	frozen := cleanChallenge()
	live := frozen
	live.LatestSubmission = "changed" // triggers freshness re-check

	candidate := domain.SolutionCandidate{
		Address:           "addrA",
		ChallengeSnapshot: frozen,
		Nonce:             "0000000040000abc",
		Hash:              "0effffff",
	}

	client := &fakeUpstreamClient{accept: true}
	store := newFakeStore()
	siblings := &fakeSiblingController{}
	liveView := &fakeLiveChallenge{challenge: live, ok: true}

	// Use a difficulty that the fake engine's double-SHA256 of the
	// re-serialized preimage will not satisfy (extremely unlikely to
	// pass a near-impossible target), simulating the S2 scenario where
	// re-hashing against live fields fails the difficulty check.
	candidate.ChallengeSnapshot.Difficulty = "00000001"
	live.Difficulty = "00000001"
	liveView.challenge = live

	g := New(client, hashengine.NewFakeEngine(), liveView, siblings, store, testLogger(), 6, nil, nil, nil)

	result, err := g.Submit(context.Background(), candidate, 0)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Outcome != OutcomeStaleDiscarded {
		t.Fatalf("Outcome = %v, want OutcomeStaleDiscarded", result.Outcome)
	}
	if client.callCount() != 0 {
		t.Fatalf("network submit should not be called when stale check fails, calls = %d", client.callCount())
	}
	if siblings.resumed != 1 {
		t.Fatalf("expected siblings resumed once, got %d", siblings.resumed)
	}
}

// TestSubmit_FailureCap covers S4: six consecutive rejections reach the cap.
func TestSubmit_FailureCap(t *testing.T) {
	c := cleanChallenge()
	client := &fakeUpstreamClient{accept: false, rejectMsg: "server error"}
	store := newFakeStore()
	siblings := &fakeSiblingController{}
	live := &fakeLiveChallenge{challenge: c, ok: true}

	g := New(client, hashengine.NewFakeEngine(), live, siblings, store, testLogger(), 6, nil, nil, nil)

	var lastResult Result
	for i := 0; i < 6; i++ {
		candidate := domain.SolutionCandidate{
			Address:           "addrA",
			ChallengeSnapshot: c,
			Nonce:             domain.NonceHex(uint64(i)),
			Hash:              "deadhash" + string(rune('a'+i)),
		}
		result, err := g.Submit(context.Background(), candidate, 0)
		if err != nil {
			t.Fatalf("Submit() error on attempt %d = %v", i, err)
		}
		lastResult = result
	}

	if lastResult.FailureCount != 6 {
		t.Fatalf("FailureCount = %d, want 6", lastResult.FailureCount)
	}
	if len(store.errors) != 6 {
		t.Fatalf("expected 6 ErrorRecords, got %d", len(store.errors))
	}
	if store.IsSolved("addrA", "C1") {
		t.Fatal("address should not be marked solved after failure cap")
	}
}

// TestSubmit_DuplicateHashAbandoned covers invariant 1 (dedup guard).
func TestSubmit_DuplicateHashAbandoned(t *testing.T) {
	c := cleanChallenge()
	client := &fakeUpstreamClient{accept: true}
	store := newFakeStore()
	siblings := &fakeSiblingController{}
	live := &fakeLiveChallenge{challenge: c, ok: true}

	g := New(client, hashengine.NewFakeEngine(), live, siblings, store, testLogger(), 6, map[string]struct{}{
		"already-submitted-hash": {},
	}, nil, nil)

	candidate := domain.SolutionCandidate{
		Address:           "addrA",
		ChallengeSnapshot: c,
		Nonce:             "0000000040000abc",
		Hash:              "already-submitted-hash",
	}

	result, err := g.Submit(context.Background(), candidate, 0)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Outcome != OutcomeDuplicateHash {
		t.Fatalf("Outcome = %v, want OutcomeDuplicateHash", result.Outcome)
	}
	if client.callCount() != 0 {
		t.Fatal("duplicate hash should never reach the network")
	}
}

// TestSubmit_SerializesPerAddressChallenge covers invariant 2: at most
// one submission task holds the lock for a given (address, challenge_id)
// at any instant.
func TestSubmit_SerializesPerAddressChallenge(t *testing.T) {
	c := cleanChallenge()
	client := &fakeUpstreamClient{accept: true}
	store := newFakeStore()
	siblings := &fakeSiblingController{}
	live := &fakeLiveChallenge{challenge: c, ok: true}

	g := New(client, hashengine.NewFakeEngine(), live, siblings, store, testLogger(), 6, nil, nil, nil)

	// Manually hold the lock to simulate an in-flight submission, then
	// attempt a second submission for the same (address, challenge_id).
	g.mu.Lock()
	g.submitting[key{address: "addrA", challengeID: "C1"}] = struct{}{}
	g.mu.Unlock()

	candidate := domain.SolutionCandidate{
		Address:           "addrA",
		ChallengeSnapshot: c,
		Nonce:             "0000000040000abc",
		Hash:              "some-other-hash",
	}

	result, err := g.Submit(context.Background(), candidate, 0)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Outcome != OutcomeAlreadySubmitting {
		t.Fatalf("Outcome = %v, want OutcomeAlreadySubmitting", result.Outcome)
	}
}

// TestSetSiblings_RepointsController covers the case the coordinator
// relies on: a Gate built with one sibling controller must use a
// later one once SetSiblings is called, for the next cohort's address.
func TestSetSiblings_RepointsController(t *testing.T) {
	c := cleanChallenge()
	client := &fakeUpstreamClient{accept: true}
	store := newFakeStore()
	first := &fakeSiblingController{}
	second := &fakeSiblingController{}
	live := &fakeLiveChallenge{challenge: c, ok: true}

	g := New(client, hashengine.NewFakeEngine(), live, first, store, testLogger(), 6, nil, nil, nil)

	g.SetSiblings(second)

	candidate := domain.SolutionCandidate{
		Address:           "addrA",
		ChallengeSnapshot: c,
		Nonce:             "0000000040000abc",
		Hash:              "0effffff",
	}

	if _, err := g.Submit(context.Background(), candidate, 0); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if first.stopped != 0 {
		t.Fatalf("replaced controller should not be notified, stopped = %d", first.stopped)
	}
	if second.stopped != 1 {
		t.Fatalf("expected new controller stopped once, got %d", second.stopped)
	}
}

// TestResetFailureCounts_ClearsTally covers the hourly-reset case: a
// stale failure count from before the reset must not carry forward.
func TestResetFailureCounts_ClearsTally(t *testing.T) {
	c := cleanChallenge()
	client := &fakeUpstreamClient{accept: false, rejectMsg: "server error"}
	store := newFakeStore()
	siblings := &fakeSiblingController{}
	live := &fakeLiveChallenge{challenge: c, ok: true}

	g := New(client, hashengine.NewFakeEngine(), live, siblings, store, testLogger(), 6, nil, nil, nil)

	candidate := domain.SolutionCandidate{
		Address:           "addrA",
		ChallengeSnapshot: c,
		Nonce:             "0000000040000abc",
		Hash:              "0effffff",
	}

	result, err := g.Submit(context.Background(), candidate, 0)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.FailureCount != 1 {
		t.Fatalf("FailureCount = %d, want 1", result.FailureCount)
	}
	if g.FailureCount("addrA", c.ChallengeID) != 1 {
		t.Fatalf("FailureCount() = %d, want 1", g.FailureCount("addrA", c.ChallengeID))
	}

	g.ResetFailureCounts()

	if got := g.FailureCount("addrA", c.ChallengeID); got != 0 {
		t.Fatalf("FailureCount() after reset = %d, want 0", got)
	}
}
