package domain

import (
	"encoding/hex"
	"fmt"
	"math/bits"
)

// ParseDifficulty decodes an 8-hex-character difficulty string into its
// 32-bit big-endian unsigned value.
func ParseDifficulty(difficultyHex string) (uint32, error) {
	if len(difficultyHex) != 8 {
		return 0, fmt.Errorf("difficulty must be 8 hex characters, got %d", len(difficultyHex))
	}
	raw, err := hex.DecodeString(difficultyHex)
	if err != nil {
		return 0, fmt.Errorf("decode difficulty: %w", err)
	}
	return uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3]), nil
}

// LeadingZeroBits returns the number of leading zero bits in the 32-bit
// big-endian representation of value.
func LeadingZeroBits(value uint32) int {
	return bits.LeadingZeros32(value)
}

// hashLeadingZeroBits counts the leading zero bits across the full hash
// byte slice, stopping at the first nonzero byte.
func hashLeadingZeroBits(hash []byte) int {
	total := 0
	for _, b := range hash {
		if b == 0 {
			total += 8
			continue
		}
		total += bits.LeadingZeros8(b)
		break
	}
	return total
}

// first32 returns the first 4 bytes of hash as a big-endian uint32,
// zero-padding if the hash is shorter than 4 bytes.
func first32(hash []byte) uint32 {
	var b [4]byte
	n := copy(b[:], hash)
	_ = n
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// MatchesDifficulty evaluates the dual difficulty predicate: the hash
// (hex-encoded) must satisfy both the leading-zero-bits check and the
// mask check against the difficulty target. Both are required; a hash
// that only satisfies one does not qualify.
func MatchesDifficulty(hashHex string, difficultyHex string) (bool, error) {
	hash, err := hex.DecodeString(hashHex)
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}
	m32, err := ParseDifficulty(difficultyHex)
	if err != nil {
		return false, err
	}

	z := LeadingZeroBits(m32)
	if hashLeadingZeroBits(hash) < z {
		return false, nil
	}

	h32 := first32(hash)
	if (h32 | m32) != m32 {
		return false, nil
	}

	return true, nil
}
