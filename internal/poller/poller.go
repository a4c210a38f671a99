// Package poller implements the Challenge Poller: a fixed-cadence task
// that fetches the active challenge and notifies a single subscriber
// of rotations, mutations, and window transitions.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/bardlex/powminer/internal/domain"
	"github.com/bardlex/powminer/internal/events"
	"github.com/bardlex/powminer/internal/upstream"
	"github.com/bardlex/powminer/pkg/errors"
	"github.com/bardlex/powminer/pkg/log"
)

// Client is the subset of upstream.Client the poller depends on.
type Client interface {
	FetchChallenge(ctx context.Context) (domain.ChallengeState, error)
}

// ChangeKind classifies what happened between two consecutive polls.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeRotation
	ChangeMutation
	ChangeWindowOpened
	ChangeWindowClosed
)

// Update is delivered to the single subscriber on every successful poll,
// and on poll failure with Err set.
type Update struct {
	State domain.ChallengeState
	Kind  ChangeKind
	Err   error
}

// Poller fetches the active challenge at a fixed cadence and tracks a
// live, mutable view of it that the submission gate re-reads for
// freshness checks, kept strictly separate from any cohort's frozen
// snapshot (see top-level design notes).
type Poller struct {
	client       Client
	interval     time.Duration
	hint         upstream.RotationHint
	bus          *events.Bus
	logger       *log.Logger
	maxFailures  int

	mu            sync.RWMutex
	live          domain.Challenge
	haveLive      bool
	failureStreak int
}

// New creates a Poller. hint may be nil if no out-of-band rotation
// signal is configured.
func New(client Client, interval time.Duration, hint upstream.RotationHint, bus *events.Bus, logger *log.Logger, maxConsecutiveFailures int) *Poller {
	return &Poller{
		client:      client,
		interval:    interval,
		hint:        hint,
		bus:         bus,
		logger:      logger,
		maxFailures: maxConsecutiveFailures,
	}
}

// Current implements gate.LiveChallenge: it exposes the poller's latest
// view of a challenge by id.
func (p *Poller) Current(challengeID string) (domain.Challenge, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.haveLive || p.live.ChallengeID != challengeID {
		return domain.Challenge{}, false
	}
	return p.live, true
}

// Run polls at the configured cadence until ctx is cancelled, sending
// one Update per tick (and immediately on start) to updates. updates
// must have a single consumer — the Coordinator.
func (p *Poller) Run(ctx context.Context, updates chan<- Update) {
	if p.hint != nil {
		_ = p.hint.Connect()
		go func() {
			_ = p.hint.Listen(ctx, func(challengeID string) {
				p.poll(ctx, updates)
			})
		}()
		defer p.hint.Close()
	}

	p.poll(ctx, updates)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, updates)
		}
	}
}

func (p *Poller) poll(ctx context.Context, updates chan<- Update) {
	state, err := p.client.FetchChallenge(ctx)
	if err != nil {
		p.mu.Lock()
		p.failureStreak++
		streak := p.failureStreak
		p.mu.Unlock()

		wrapped := errors.Wrap(err, errors.ErrorTypeUpstream, "poll_challenge", "failed to fetch active challenge")
		if p.logger != nil {
			p.logger.WithError(wrapped).Warn("challenge poll failed")
		}

		if streak >= p.maxFailures {
			p.emitStatus("network_down")
		}
		p.send(updates, Update{Err: wrapped})
		return
	}

	p.mu.Lock()
	p.failureStreak = 0
	p.mu.Unlock()

	kind := p.classify(state)
	p.send(updates, Update{State: state, Kind: kind})
}

// classify determines the ChangeKind and, for active states, updates
// the poller's live view, logging rotations for visibility.
func (p *Poller) classify(state domain.ChallengeState) ChangeKind {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state.Status != domain.ChallengeActive || state.Challenge == nil {
		wasActive := p.haveLive
		p.haveLive = false
		if wasActive && state.Status == domain.ChallengeAfter {
			return ChangeWindowClosed
		}
		return ChangeNone
	}

	live := *state.Challenge
	if !p.haveLive {
		p.live = live
		p.haveLive = true
		return ChangeWindowOpened
	}

	if live.ChallengeID != p.live.ChallengeID {
		previous := p.live.ChallengeID
		p.live = live
		if p.logger != nil {
			p.logger.LogRotation(previous, live.ChallengeID, "challenge_id changed")
		}
		return ChangeRotation
	}

	if live != p.live {
		p.live = live
		return ChangeMutation
	}

	return ChangeNone
}

func (p *Poller) send(updates chan<- Update, u Update) {
	select {
	case updates <- u:
	default:
		// Single consumer is expected to keep up; a full channel means
		// the Coordinator is wedged, which this poller cannot fix.
	}
}

func (p *Poller) emitStatus(status string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{
		Kind:   events.KindStatus,
		Fields: map[string]interface{}{"status": status},
	})
}
