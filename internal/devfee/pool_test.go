package devfee

import (
	"context"
	"testing"
)

type fakeSolvedChecker struct {
	solved map[string]map[string]bool
}

func (f *fakeSolvedChecker) IsSolved(address, challengeID string) bool {
	return f.solved[address][challengeID]
}

func TestRoundRobinSource_CyclesInOrder(t *testing.T) {
	ctx := context.Background()
	src, err := NewRoundRobinSource(ctx, []string{"devA", "devB", "devC"}, nil)
	if err != nil {
		t.Fatalf("NewRoundRobinSource() error = %v", err)
	}

	want := []string{"devA", "devB", "devC", "devA"}
	for i, w := range want {
		got, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if got != w {
			t.Errorf("Next() call %d = %s, want %s", i, got, w)
		}
	}
}

func TestPool_SkipsCollidingAddress(t *testing.T) {
	ctx := context.Background()
	src, err := NewRoundRobinSource(ctx, []string{"devA", "devB", "devC"}, nil)
	if err != nil {
		t.Fatalf("NewRoundRobinSource() error = %v", err)
	}

	checker := &fakeSolvedChecker{solved: map[string]map[string]bool{
		"devA": {"C1": true},
	}}

	pool, err := New(src, checker, 3)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	addr, ok, err := pool.Draw(ctx, "C1")
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if !ok {
		t.Fatal("expected Draw to succeed by skipping the collision")
	}
	if addr != "devB" {
		t.Fatalf("Draw() = %s, want devB (devA should be skipped)", addr)
	}
}

func TestPool_SkipsWithoutBlockingWhenAllCollide(t *testing.T) {
	ctx := context.Background()
	src, err := NewRoundRobinSource(ctx, []string{"devA", "devB"}, nil)
	if err != nil {
		t.Fatalf("NewRoundRobinSource() error = %v", err)
	}

	checker := &fakeSolvedChecker{solved: map[string]map[string]bool{
		"devA": {"C1": true},
		"devB": {"C1": true},
	}}

	pool, err := New(src, checker, 2)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, ok, err := pool.Draw(ctx, "C1")
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if ok {
		t.Fatal("expected Draw to report no usable address when all candidates collide")
	}
}

// TestPool_SkipCacheShortCircuitsRepeatCollision covers the case the
// skip cache exists for: a round-robin source keeps returning the same
// small set of addresses, so once one is known to collide with the
// current challenge, a later draw must skip it via the cache rather
// than asking the checker again.
func TestPool_SkipCacheShortCircuitsRepeatCollision(t *testing.T) {
	ctx := context.Background()
	src, err := NewRoundRobinSource(ctx, []string{"devA", "devB"}, nil)
	if err != nil {
		t.Fatalf("NewRoundRobinSource() error = %v", err)
	}

	checker := &countingSolvedChecker{solved: map[string]map[string]bool{
		"devA": {"C1": true},
	}}

	pool, err := New(src, checker, 2)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// First draw: devA collides (consults the checker, populates the
	// skip cache), devB is returned.
	addr, ok, err := pool.Draw(ctx, "C1")
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if !ok || addr != "devB" {
		t.Fatalf("Draw() = (%s, %v), want (devB, true)", addr, ok)
	}
	checksAfterFirst := checker.checks["devA"]
	if checksAfterFirst != 1 {
		t.Fatalf("expected one checker call for devA, got %d", checksAfterFirst)
	}

	// Second draw: the cycle comes back around to devA for the same
	// challenge; the skip cache should short-circuit it without a
	// second checker call.
	addr, ok, err = pool.Draw(ctx, "C1")
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if !ok || addr != "devB" {
		t.Fatalf("Draw() = (%s, %v), want (devB, true)", addr, ok)
	}
	if checker.checks["devA"] != checksAfterFirst {
		t.Fatalf("expected no additional checker call for devA, got %d", checker.checks["devA"])
	}
}

type countingSolvedChecker struct {
	solved map[string]map[string]bool
	checks map[string]int
}

func (c *countingSolvedChecker) IsSolved(address, challengeID string) bool {
	if c.checks == nil {
		c.checks = make(map[string]int)
	}
	c.checks[address]++
	return c.solved[address][challengeID]
}

func TestRoundRobinSource_RestoresCursorFromStore(t *testing.T) {
	ctx := context.Background()
	store := &memoryCursorStore{cursor: 2}

	src, err := NewRoundRobinSource(ctx, []string{"devA", "devB", "devC"}, store)
	if err != nil {
		t.Fatalf("NewRoundRobinSource() error = %v", err)
	}

	got, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if got != "devC" {
		t.Fatalf("Next() = %s, want devC (cursor restored at index 2)", got)
	}
	if store.cursor != 0 {
		t.Fatalf("store.cursor = %d, want 0 after wraparound", store.cursor)
	}
}

func TestPool_PersistedCheckerSkipsRestartCollision(t *testing.T) {
	ctx := context.Background()
	src, err := NewRoundRobinSource(ctx, []string{"devA", "devB"}, nil)
	if err != nil {
		t.Fatalf("NewRoundRobinSource() error = %v", err)
	}

	checker := &fakeSolvedChecker{solved: map[string]map[string]bool{}}
	pool, err := New(src, checker, 2)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	pool.SetPersistedChecker(&fakePersistedChecker{assigned: map[string]map[string]bool{
		"devA": {"C1": true},
	}})

	addr, ok, err := pool.Draw(ctx, "C1")
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if !ok || addr != "devB" {
		t.Fatalf("Draw() = (%s, %v), want (devB, true) (devA was assigned in a prior process lifetime)", addr, ok)
	}
}

type fakePersistedChecker struct {
	assigned map[string]map[string]bool
}

func (f *fakePersistedChecker) HasAssignment(ctx context.Context, address, challengeID string) (bool, error) {
	return f.assigned[address][challengeID], nil
}

type memoryCursorStore struct {
	cursor int
}

func (m *memoryCursorStore) LoadCursor(ctx context.Context) (int, error) {
	return m.cursor, nil
}

func (m *memoryCursorStore) SaveCursor(ctx context.Context, cursor int) error {
	m.cursor = cursor
	return nil
}
