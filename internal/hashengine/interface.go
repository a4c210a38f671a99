// Package hashengine defines the contract for the opaque batch hashing
// service the worker pool delegates to. The real engine is an external
// collaborator (see top-level design notes); this package only fixes the
// interface shape and a deterministic test double, never a production
// implementation.
package hashengine

import "context"

// Engine is the contract a worker cohort hashes through. InitROM must
// complete (observed via IsROMReady) before HashBatch is called for a
// given challenge's no_pre_mine value; KillWorkers cancels in-flight
// batches on rotation or shutdown.
type Engine interface {
	InitROM(ctx context.Context, noPreMine string) error
	IsROMReady(ctx context.Context) (bool, error)
	HashBatch(ctx context.Context, preimages [][]byte) ([]string, error)
	KillWorkers(ctx context.Context) error
}
