package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bardlex/powminer/internal/domain"
)

type fakeClient struct {
	mu     sync.Mutex
	states []domain.ChallengeState
	errs   []error
	idx    int
}

func (f *fakeClient) FetchChallenge(ctx context.Context) (domain.ChallengeState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.idx
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	f.idx++
	if i < len(f.errs) && f.errs[i] != nil {
		return domain.ChallengeState{}, f.errs[i]
	}
	return f.states[i], nil
}

func challengeState(id, latest string) domain.ChallengeState {
	return domain.ChallengeState{
		Status: domain.ChallengeActive,
		Challenge: &domain.Challenge{
			ChallengeID:      id,
			Difficulty:       "0fffffff",
			NoPreMine:        "ab",
			LatestSubmission: latest,
			NoPreMineHour:    1,
		},
	}
}

func TestPoll_DetectsRotation(t *testing.T) {
	client := &fakeClient{states: []domain.ChallengeState{
		challengeState("C1", "a"),
		challengeState("C2", "a"),
	}}
	p := New(client, time.Hour, nil, nil, nil, 6)
	updates := make(chan Update, 4)

	p.poll(context.Background(), updates)
	first := <-updates
	if first.Kind != ChangeWindowOpened {
		t.Fatalf("first poll Kind = %v, want ChangeWindowOpened", first.Kind)
	}

	p.poll(context.Background(), updates)
	second := <-updates
	if second.Kind != ChangeRotation {
		t.Fatalf("second poll Kind = %v, want ChangeRotation", second.Kind)
	}
}

func TestPoll_DetectsMutationWithoutRotation(t *testing.T) {
	client := &fakeClient{states: []domain.ChallengeState{
		challengeState("C1", "a"),
		challengeState("C1", "b"),
	}}
	p := New(client, time.Hour, nil, nil, nil, 6)
	updates := make(chan Update, 4)

	p.poll(context.Background(), updates)
	<-updates
	p.poll(context.Background(), updates)
	second := <-updates
	if second.Kind != ChangeMutation {
		t.Fatalf("Kind = %v, want ChangeMutation", second.Kind)
	}

	live, ok := p.Current("C1")
	if !ok || live.LatestSubmission != "b" {
		t.Fatalf("Current() = %+v, %v, want latest_submission=b", live, ok)
	}
}

func TestPoll_TransportFailureIsNonFatal(t *testing.T) {
	client := &fakeClient{
		states: []domain.ChallengeState{{}, challengeState("C1", "a")},
		errs:   []error{errors.New("connection refused"), nil},
	}
	p := New(client, time.Hour, nil, nil, nil, 6)
	updates := make(chan Update, 4)

	p.poll(context.Background(), updates)
	failure := <-updates
	if failure.Err == nil {
		t.Fatal("expected an error on the first poll")
	}

	p.poll(context.Background(), updates)
	success := <-updates
	if success.Err != nil {
		t.Fatalf("expected the second poll to succeed, got %v", success.Err)
	}
}

func TestPoll_WindowClosedAfterActive(t *testing.T) {
	client := &fakeClient{states: []domain.ChallengeState{
		challengeState("C1", "a"),
		{Status: domain.ChallengeAfter},
	}}
	p := New(client, time.Hour, nil, nil, nil, 6)
	updates := make(chan Update, 4)

	p.poll(context.Background(), updates)
	<-updates
	p.poll(context.Background(), updates)
	second := <-updates
	if second.Kind != ChangeWindowClosed {
		t.Fatalf("Kind = %v, want ChangeWindowClosed", second.Kind)
	}
}
