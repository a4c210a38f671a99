package domain

import (
	"fmt"
	"strconv"
)

// NonceHex formats a 64-bit nonce as 16 lowercase hex characters,
// big-endian (i.e. the natural fixed-width hex rendering of the value).
func NonceHex(nonce uint64) string {
	return fmt.Sprintf("%016x", nonce)
}

// Serialize builds the preimage bytes for a candidate nonce against a
// challenge snapshot. It is a pure function: the same inputs always
// produce the same bytes, with no separators, padding, or trimming.
//
// Order: nonce (16 hex) ++ address ++ challenge_id ++ difficulty (8 hex)
// ++ no_pre_mine ++ latest_submission ++ no_pre_mine_hour (decimal ASCII).
func Serialize(nonceHex string, address string, c Challenge) []byte {
	buf := make([]byte, 0, len(nonceHex)+len(address)+len(c.ChallengeID)+len(c.Difficulty)+len(c.NoPreMine)+len(c.LatestSubmission)+8)
	buf = append(buf, nonceHex...)
	buf = append(buf, address...)
	buf = append(buf, c.ChallengeID...)
	buf = append(buf, c.Difficulty...)
	buf = append(buf, c.NoPreMine...)
	buf = append(buf, c.LatestSubmission...)
	buf = append(buf, strconv.Itoa(c.NoPreMineHour)...)
	return buf
}

// SerializeNonce is a convenience wrapper that formats the nonce before
// delegating to Serialize.
func SerializeNonce(nonce uint64, address string, c Challenge) (string, []byte) {
	nh := NonceHex(nonce)
	return nh, Serialize(nh, address, c)
}
