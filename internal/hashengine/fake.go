package hashengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// FakeEngine is a deterministic double-SHA256 reference implementation of
// Engine, used by tests across this module and by cmd/miner's --dry-run
// mode. It exists because the real hash engine is an opaque external
// collaborator (see top-level design notes) and no production hashing
// implementation ships in this repo.
type FakeEngine struct {
	mu       sync.Mutex
	romReady bool
	killed   bool
}

var _ Engine = (*FakeEngine)(nil)

// NewFakeEngine returns a FakeEngine with no ROM initialized.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{}
}

// InitROM marks the ROM ready for noPreMine. Idempotent.
func (f *FakeEngine) InitROM(ctx context.Context, noPreMine string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.romReady = true
	f.killed = false
	return nil
}

// IsROMReady reports whether InitROM has completed.
func (f *FakeEngine) IsROMReady(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.romReady, nil
}

// HashBatch computes double-SHA256 over each preimage, in order.
func (f *FakeEngine) HashBatch(ctx context.Context, preimages [][]byte) ([]string, error) {
	f.mu.Lock()
	killed := f.killed
	f.mu.Unlock()
	if killed {
		return nil, context.Canceled
	}

	hashes := make([]string, len(preimages))
	for i, p := range preimages {
		first := sha256.Sum256(p)
		second := sha256.Sum256(first[:])
		hashes[i] = hex.EncodeToString(second[:])
	}
	return hashes, nil
}

// KillWorkers cancels any subsequent HashBatch call until InitROM runs again.
func (f *FakeEngine) KillWorkers(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = true
	return nil
}
