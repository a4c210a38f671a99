// Package wallet loads the ready-to-mine address list handed to this
// process by the external wallet store: address identities and their
// pre-signed registration payloads. Key derivation, encryption, and
// signing live entirely outside this repository — this package only
// parses what the wallet store already produced.
package wallet

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bardlex/powminer/internal/domain"
)

// record is one entry in the addresses file: an address identity plus
// the signature the external wallet store already computed over the
// network's current registration terms.
type record struct {
	Identifier      string `json:"identifier"`
	PublicKeyHex    string `json:"public_key_hex"`
	RegistrationSig string `json:"registration_signature"`
}

// Load reads the addresses file at path, returning the domain.Address
// list for the Coordinator plus a Signer that replays the pre-signed
// registration payload for each address rather than computing one.
func Load(path string) ([]domain.Address, *PresignedSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read addresses file: %w", err)
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil, fmt.Errorf("failed to parse addresses file: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("addresses file %s contains no addresses", path)
	}

	addresses := make([]domain.Address, 0, len(records))
	signer := &PresignedSigner{signatures: make(map[string]signedPayload, len(records))}

	for i, rec := range records {
		if rec.Identifier == "" {
			return nil, nil, fmt.Errorf("addresses file %s: entry %d missing identifier", path, i)
		}

		publicKey, err := hex.DecodeString(rec.PublicKeyHex)
		if err != nil {
			return nil, nil, fmt.Errorf("addresses file %s: entry %d has invalid public_key_hex: %w", path, i, err)
		}

		addresses = append(addresses, domain.Address{
			Index:      i,
			Identifier: rec.Identifier,
			PublicKey:  publicKey,
		})

		signer.signatures[rec.Identifier] = signedPayload{
			signature:    rec.RegistrationSig,
			publicKeyHex: rec.PublicKeyHex,
		}
	}

	return addresses, signer, nil
}

type signedPayload struct {
	signature    string
	publicKeyHex string
}

// PresignedSigner satisfies registration.Signer by returning the
// signature the external wallet store already computed for each
// address, rather than signing anything itself.
type PresignedSigner struct {
	signatures map[string]signedPayload
}

// Sign returns the pre-computed registration signature for address.
// terms and publicKey are accepted only to satisfy registration.Signer's
// shape; this implementation never inspects them, since the external
// wallet store already bound the signature to the current terms.
func (s *PresignedSigner) Sign(address string, _ []byte, _ string) (string, string, error) {
	payload, ok := s.signatures[address]
	if !ok {
		return "", "", fmt.Errorf("no pre-signed registration payload for address %s", address)
	}
	return payload.signature, payload.publicKeyHex, nil
}
