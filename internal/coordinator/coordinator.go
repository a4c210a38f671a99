// Package coordinator implements the Mining Coordinator: the top-level
// state machine sequencing addresses, launching worker cohorts,
// triggering dev-fee obligations, and scheduling periodic hard resets.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/bardlex/powminer/internal/devfee"
	"github.com/bardlex/powminer/internal/domain"
	"github.com/bardlex/powminer/internal/durable"
	"github.com/bardlex/powminer/internal/events"
	"github.com/bardlex/powminer/internal/gate"
	"github.com/bardlex/powminer/internal/hashengine"
	"github.com/bardlex/powminer/internal/poller"
	"github.com/bardlex/powminer/internal/registration"
	"github.com/bardlex/powminer/internal/worker"
	"github.com/bardlex/powminer/pkg/errors"
	"github.com/bardlex/powminer/pkg/log"
)

// State is one of the four Coordinator lifecycle states.
type State int

const (
	StateIdle State = iota
	StateRegistering
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRegistering:
		return "registering"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Config bundles the mining tunables the Coordinator needs, mirroring
// internal/config.Config's mining-relevant fields.
type Config struct {
	WorkerThreads         int
	BatchSize             int
	MaxSubmissionFailures int
	DevFeeEnabled         bool
	DevFeeRatio           float64
}

// Coordinator is the single long-running state machine described by
// §4.2: it owns no entity by pointer other than its own collaborators —
// addresses and challenges are referenced by identifier throughout.
type Coordinator struct {
	registrar *registration.Registrar
	engine    hashengine.Engine
	gate      *gate.Gate
	live      gate.LiveChallenge
	devPool   *devfee.Pool
	state     *durable.LiveState
	bus       *events.Bus
	logger    *log.Logger
	cfg       Config

	mu               sync.RWMutex
	ratioRecorder    RatioRecorder
	lifecycle        State
	currentAddress   string
	currentChallenge domain.Challenge
	haveChallenge    bool
	closing          bool
	cohortCancel     context.CancelFunc
}

// New constructs a Coordinator. live is normally the *poller.Poller
// instance feeding this process's Submission Gate.
func New(registrar *registration.Registrar, engine hashengine.Engine, g *gate.Gate, live gate.LiveChallenge, devPool *devfee.Pool, state *durable.LiveState, bus *events.Bus, logger *log.Logger, cfg Config) *Coordinator {
	return &Coordinator{
		registrar: registrar,
		engine:    engine,
		gate:      g,
		live:      live,
		devPool:   devPool,
		state:     state,
		bus:       bus,
		logger:    logger,
		cfg:       cfg,
		lifecycle: StateIdle,
	}
}

var _ worker.RunningChecker = (*Coordinator)(nil)

// RatioRecorder observes the dev-fee debt ratio each time it is
// recomputed, so an external time series can track it without polling
// the Coordinator's state directly. Optional: a nil RatioRecorder (the
// default) leaves this purely in-process.
type RatioRecorder interface {
	RecordDevFeeRatio(userSolutions, devFeeSolutions int64, ratio float64)
}

// SetRatioRecorder attaches a RatioRecorder consulted after every
// dev-fee obligation check. Passing nil disables the callback.
func (c *Coordinator) SetRatioRecorder(r RatioRecorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ratioRecorder = r
}

// IsRunning implements worker.RunningChecker.
func (c *Coordinator) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lifecycle == StateRunning
}

// CurrentMiningAddress implements worker.RunningChecker.
func (c *Coordinator) CurrentMiningAddress() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentAddress, c.lifecycle == StateRunning
}

// State reports the current lifecycle state, mostly for tests and metrics.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lifecycle
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.lifecycle = s
	c.mu.Unlock()
	if c.bus != nil {
		c.bus.Publish(events.Event{Kind: events.KindStatus, Fields: map[string]interface{}{"state": s.String()}})
	}
}

// Run drives the full Idle -> Registering -> Running -> Draining -> Idle
// lifecycle until ctx is cancelled or the mining window closes. updates
// is fed by a poller.Poller's Run loop, owned by the caller.
func (c *Coordinator) Run(ctx context.Context, updates <-chan poller.Update, addresses []domain.Address) error {
	c.setState(StateRegistering)
	registered := c.registerAll(ctx, addresses)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.watchUpdates(ctx, updates)
	}()
	defer wg.Wait()

	if err := c.awaitFirstChallenge(ctx); err != nil {
		return err
	}

	if err := c.reinitROM(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeRom, "initial_rom_init", "failed to initialize ROM before mining")
	}

	c.setState(StateRunning)
	if c.bus != nil {
		c.bus.Publish(events.Event{Kind: events.KindMiningStart})
	}

	stopHourly := c.scheduleHourlyReset(ctx)
	defer stopHourly()

	for {
		if c.isClosing() || ctx.Err() != nil {
			break
		}
		c.mineSweep(ctx, registered)
		if c.isClosing() || ctx.Err() != nil {
			break
		}
	}

	c.setState(StateDraining)
	if c.gate != nil {
		_ = c.engine.KillWorkers(ctx)
	}
	c.setState(StateIdle)
	return ctx.Err()
}

func (c *Coordinator) registerAll(ctx context.Context, addresses []domain.Address) []domain.Address {
	results := c.registrar.EnsureRegistered(ctx, addresses)
	byID := make(map[string]domain.Address, len(addresses))
	for _, a := range addresses {
		byID[a.Identifier] = a
	}

	registered := make([]domain.Address, 0, len(addresses))
	for _, r := range results {
		if r.Err != nil {
			if c.logger != nil {
				c.logger.WithAddress(r.Address).WithError(r.Err).Warn("address registration failed, excluding from mining queue")
			}
			continue
		}
		registered = append(registered, byID[r.Address])
	}
	return registered
}

// mineSweep runs one pass over every registered address not yet solved
// for the current challenge.
func (c *Coordinator) mineSweep(ctx context.Context, addresses []domain.Address) {
	for _, addr := range addresses {
		if c.isClosing() || ctx.Err() != nil {
			return
		}

		snapshot := c.snapshotChallenge()
		if c.state.IsSolved(addr.Identifier, snapshot.ChallengeID) {
			continue
		}

		for attempt := 0; attempt < 3; attempt++ {
			outcome := c.runCohort(ctx, addr, snapshot, false)
			if outcome == domain.CohortRotated {
				if err := c.reinitROM(ctx); err != nil && c.logger != nil {
					c.logger.WithError(err).Error("ROM re-initialization failed after rotation")
				}
				snapshot = c.snapshotChallenge()
				continue
			}
			if outcome == domain.CohortSolved {
				c.onUserSolve(ctx)
			}
			break
		}
	}
}

// runCohort spawns and joins one worker cohort, returning the dominant
// outcome across all workers (Solved takes priority, then Rotated, then
// CapReached, else Cancelled).
func (c *Coordinator) runCohort(ctx context.Context, addr domain.Address, snapshot domain.Challenge, isDevFee bool) domain.CohortOutcome {
	c.mu.Lock()
	c.currentAddress = addr.Identifier
	cohortCtx, cancel := context.WithCancel(ctx)
	c.cohortCancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cohortCancel = nil
		c.mu.Unlock()
		cancel()
	}()

	cohort := &worker.Cohort{
		WorkerCount:  c.cfg.WorkerThreads,
		Address:      addr.Identifier,
		AddressIndex: addr.Index,
		IsDevFee:     isDevFee,
		Snapshot:     snapshot,
		BatchSize:    c.cfg.BatchSize,
		MaxFailures:  c.cfg.MaxSubmissionFailures,
		Engine:       c.engine,
		Gate:         c.gate,
		Live:         c.live,
		Running:      c,
		Solved:       c.state,
		Bus:          c.bus,
		Logger:       c.logger,
	}

	// The gate's sibling controller must track the cohort just built:
	// each address gets a fresh Cohort, and the gate otherwise has no
	// way to learn about it after construction.
	c.gate.SetSiblings(cohort)

	results := cohort.Run(cohortCtx)
	return dominantOutcome(results)
}

// dominantOutcome picks the single outcome that best describes a
// cohort's result, preferring the most actionable signal.
func dominantOutcome(results []domain.CohortResult) domain.CohortOutcome {
	seen := map[domain.CohortOutcome]bool{}
	for _, r := range results {
		seen[r.Outcome] = true
	}
	switch {
	case seen[domain.CohortSolved]:
		return domain.CohortSolved
	case seen[domain.CohortRotated]:
		return domain.CohortRotated
	case seen[domain.CohortCapReached]:
		return domain.CohortCapReached
	default:
		return domain.CohortCancelled
	}
}

// onUserSolve implements the dev-fee trigger points from §4.6: fired
// immediately after a user-address cohort solves, which — because
// cohorts run strictly sequentially — is equivalent in effect to firing
// on every user submission that crosses the configured ratio boundary.
func (c *Coordinator) onUserSolve(ctx context.Context) {
	if !c.cfg.DevFeeEnabled {
		return
	}
	userSolutions, devFeeSolutions := c.state.UserSolutions(), c.state.DevFeeSolutions()
	needed := devfee.Obligation(userSolutions, devFeeSolutions, c.cfg.DevFeeRatio)

	c.mu.RLock()
	recorder := c.ratioRecorder
	c.mu.RUnlock()
	if recorder != nil {
		recorder.RecordDevFeeRatio(userSolutions, devFeeSolutions, c.cfg.DevFeeRatio)
	}

	for i := int64(0); i < needed; i++ {
		c.runDevFeeCohort(ctx)
	}
}

func (c *Coordinator) runDevFeeCohort(ctx context.Context) {
	snapshot := c.snapshotChallenge()
	devAddr, ok, err := c.devPool.Draw(ctx, snapshot.ChallengeID)
	if err != nil {
		if c.logger != nil {
			c.logger.WithError(err).Error("dev-fee pool draw failed")
		}
		return
	}
	if !ok {
		if c.logger != nil {
			c.logger.Warn("dev-fee pool exhausted without an uncollided address; skipping this unit")
		}
		return
	}

	if c.logger != nil {
		c.logger.LogDevFeeTrigger(devAddr, c.state.UserSolutions(), c.cfg.DevFeeRatio)
	}

	c.runCohort(ctx, domain.Address{Identifier: devAddr, Index: -1}, snapshot, true)
}

func (c *Coordinator) snapshotChallenge() domain.Challenge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentChallenge
}

func (c *Coordinator) isClosing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closing
}

func (c *Coordinator) awaitFirstChallenge(ctx context.Context) error {
	for {
		c.mu.RLock()
		have := c.haveChallenge
		c.mu.RUnlock()
		if have {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (c *Coordinator) reinitROM(ctx context.Context) error {
	snapshot := c.snapshotChallenge()
	if err := c.engine.InitROM(ctx, snapshot.NoPreMine); err != nil {
		return errors.Wrap(err, errors.ErrorTypeRom, "init_rom", "ROM initialization failed")
	}
	for {
		ready, err := c.engine.IsROMReady(ctx)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeRom, "is_rom_ready", "ROM readiness check failed")
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// watchUpdates consumes poller updates for the lifetime of ctx,
// updating the live challenge view and cancelling the in-flight cohort
// on rotation or window closure.
func (c *Coordinator) watchUpdates(ctx context.Context, updates <-chan poller.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			c.applyUpdate(u)
		}
	}
}

func (c *Coordinator) applyUpdate(u poller.Update) {
	if u.Err != nil {
		return
	}

	switch u.Kind {
	case poller.ChangeWindowOpened, poller.ChangeMutation:
		if u.State.Challenge != nil {
			c.mu.Lock()
			c.currentChallenge = *u.State.Challenge
			c.haveChallenge = true
			c.mu.Unlock()
		}
	case poller.ChangeRotation:
		c.mu.Lock()
		if u.State.Challenge != nil {
			c.currentChallenge = *u.State.Challenge
		}
		c.haveChallenge = true
		cancel := c.cohortCancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	case poller.ChangeWindowClosed:
		c.mu.Lock()
		c.closing = true
		cancel := c.cohortCancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
}
