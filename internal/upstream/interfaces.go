// Package upstream provides the HTTP client for the challenge/response
// network API and an optional ZMQ-based rotation hint subscriber.
package upstream

import (
	"context"

	"github.com/bardlex/powminer/internal/domain"
)

// Client defines the contract for the upstream challenge/submission API.
// It allows the coordinator, poller, and submission gate to be tested
// against a mock without a live network endpoint.
type Client interface {
	// FetchChallenge polls the active challenge.
	FetchChallenge(ctx context.Context) (domain.ChallengeState, error)

	// FetchTerms retrieves the registration terms message.
	FetchTerms(ctx context.Context) (string, error)

	// Register ensures an address is registered with the network.
	Register(ctx context.Context, address, signature, publicKeyHex string) error

	// Submit posts a candidate solution for acceptance.
	Submit(ctx context.Context, address, challengeID, nonce string) (*SubmitResult, error)
}

// RotationHint defines the contract for an optional out-of-band channel
// that shortens poll latency by pushing a signal the moment a rotation
// happens upstream, instead of waiting for the next poll tick.
type RotationHint interface {
	Connect() error
	Listen(ctx context.Context, handler func(challengeID string)) error
	Close() error
}

var (
	_ Client       = (*HTTPClient)(nil)
	_ RotationHint = (*ZMQRotationHint)(nil)
)
