// Package registration ensures addresses are registered with the
// upstream network before a cohort is allowed to mine on their behalf.
package registration

import (
	"context"

	"github.com/bardlex/powminer/internal/domain"
	"github.com/bardlex/powminer/internal/events"
	"github.com/bardlex/powminer/pkg/errors"
	"github.com/bardlex/powminer/pkg/log"
)

// Client is the subset of upstream.Client registration depends on.
type Client interface {
	FetchTerms(ctx context.Context) (string, error)
	Register(ctx context.Context, address, signature, publicKeyHex string) error
}

// Signer produces a registration signature for an address over the
// terms message; the wallet/signing layer is an external collaborator
// (see top-level design notes), so this is an interface, never a
// concrete crypto implementation here.
type Signer interface {
	Sign(address string, publicKey []byte, terms string) (signature string, publicKeyHex string, err error)
}

// Registrar ensures every address in a batch is registered, skipping
// ones already marked Registered.
type Registrar struct {
	client Client
	signer Signer
	bus    *events.Bus
	logger *log.Logger
}

// New creates a Registrar.
func New(client Client, signer Signer, bus *events.Bus, logger *log.Logger) *Registrar {
	return &Registrar{client: client, signer: signer, bus: bus, logger: logger}
}

// EnsureRegistered registers every not-yet-registered address in
// addresses, returning one RegistrationResult per address in input order.
// A failure on one address does not stop registration of the others.
func (r *Registrar) EnsureRegistered(ctx context.Context, addresses []domain.Address) []domain.RegistrationResult {
	results := make([]domain.RegistrationResult, len(addresses))

	terms, err := r.client.FetchTerms(ctx)
	if err != nil {
		wrapped := errors.Wrap(err, errors.ErrorTypeUpstream, "fetch_terms", "failed to fetch registration terms")
		for i, a := range addresses {
			results[i] = domain.RegistrationResult{Address: a.Identifier, Err: wrapped}
		}
		return results
	}

	for i, a := range addresses {
		if a.Registered {
			results[i] = domain.RegistrationResult{Address: a.Identifier, Registered: true, AlreadyDone: true}
			continue
		}

		results[i] = r.registerOne(ctx, a, terms)

		if r.bus != nil {
			r.bus.Publish(events.Event{
				Kind:    events.KindRegistrationProgress,
				Address: a.Identifier,
				Fields: map[string]interface{}{
					"index":      i + 1,
					"total":      len(addresses),
					"registered": results[i].Registered,
				},
			})
		}
	}

	return results
}

func (r *Registrar) registerOne(ctx context.Context, a domain.Address, terms string) domain.RegistrationResult {
	signature, publicKeyHex, err := r.signer.Sign(a.Identifier, a.PublicKey, terms)
	if err != nil {
		return domain.RegistrationResult{
			Address: a.Identifier,
			Err:     errors.Wrap(err, errors.ErrorTypeSubmission, "sign_registration", "failed to sign registration terms"),
		}
	}

	if err := r.client.Register(ctx, a.Identifier, signature, publicKeyHex); err != nil {
		if r.logger != nil {
			r.logger.WithAddress(a.Identifier).WithError(err).Warn("address registration failed")
		}
		return domain.RegistrationResult{
			Address: a.Identifier,
			Err:     errors.Wrap(err, errors.ErrorTypeUpstream, "register", "registration request failed"),
		}
	}

	return domain.RegistrationResult{Address: a.Identifier, Registered: true}
}
