package devfee

import (
	"context"
	"sync"

	"github.com/bardlex/powminer/pkg/errors"
)

// CursorStore persists the round-robin position across restarts, keeping
// the dev-fee pool from always starting at the same address after every
// redeploy.
type CursorStore interface {
	LoadCursor(ctx context.Context) (int, error)
	SaveCursor(ctx context.Context, cursor int) error
}

// RoundRobinSource cycles through a fixed, pre-warmed list of addresses
// (refilled externally), persisting its position via CursorStore.
type RoundRobinSource struct {
	mu        sync.Mutex
	addresses []string
	cursor    int
	store     CursorStore
}

var _ Source = (*RoundRobinSource)(nil)

// NewRoundRobinSource creates a source over addresses, restoring the
// cursor position from store if available.
func NewRoundRobinSource(ctx context.Context, addresses []string, store CursorStore) (*RoundRobinSource, error) {
	if len(addresses) == 0 {
		return nil, errors.New(errors.ErrorTypeInternal, "new_devfee_source", "dev-fee address pool must not be empty")
	}

	cursor := 0
	if store != nil {
		loaded, err := store.LoadCursor(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "load_devfee_cursor", "failed to load dev-fee cursor")
		}
		cursor = loaded % len(addresses)
	}

	return &RoundRobinSource{addresses: addresses, cursor: cursor, store: store}, nil
}

// Next returns the next address in round-robin order, persisting the
// advanced cursor.
func (s *RoundRobinSource) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := s.addresses[s.cursor]
	s.cursor = (s.cursor + 1) % len(s.addresses)

	if s.store != nil {
		if err := s.store.SaveCursor(ctx, s.cursor); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeDatabase, "save_devfee_cursor", "failed to persist dev-fee cursor")
		}
	}

	return addr, nil
}

// Refill replaces the address list, e.g. when the pool's refill source
// produces a fresh batch. The cursor is clamped into the new range.
func (s *RoundRobinSource) Refill(addresses []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(addresses) == 0 {
		return
	}
	s.addresses = addresses
	s.cursor = s.cursor % len(addresses)
}
