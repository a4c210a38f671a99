// Package domain holds the core data model and pure functions (preimage
// serialization, difficulty predicate) that the rest of the mining client
// is built around.
package domain

import (
	"encoding/json"
	"time"
)

// Challenge is an immutable-per-rotation record published by the network.
// A snapshot captured at cohort start is logically immutable for the
// duration of that cohort; the poller tracks the live, mutable copy
// separately.
type Challenge struct {
	ChallengeID      string `json:"challenge_id"`
	Difficulty       string `json:"difficulty"`
	NoPreMine        string `json:"no_pre_mine"`
	NoPreMineHour    int    `json:"no_pre_mine_hour"`
	LatestSubmission string `json:"latest_submission"`
}

// ChallengeStatus is the observed mining-window status returned by the
// upstream challenge endpoint.
type ChallengeStatus string

const (
	ChallengeBefore ChallengeStatus = "before"
	ChallengeActive ChallengeStatus = "active"
	ChallengeAfter  ChallengeStatus = "after"
)

// ChallengeState wraps the status with the embedded Challenge when active.
type ChallengeState struct {
	Status    ChallengeStatus
	StartsAt  time.Time
	Challenge *Challenge
}

// Address is a derived wallet identity competing for solutions.
type Address struct {
	Index      int
	Identifier string
	PublicKey  []byte
	Registered bool
}

// WorkerID identifies a worker within a cohort, in [0, W).
type WorkerID int

// WorkerStatus is the lifecycle state of a single worker.
type WorkerStatus string

const (
	WorkerIdle       WorkerStatus = "idle"
	WorkerMining     WorkerStatus = "mining"
	WorkerSubmitting WorkerStatus = "submitting"
	WorkerCompleted  WorkerStatus = "completed"
)

// WorkerState is the externally observable snapshot of one worker's progress.
type WorkerState struct {
	ID               WorkerID
	TargetAddress    string
	HashesComputed   uint64
	HashRate         float64
	SolutionsFound   uint32
	Status           WorkerStatus
	CurrentChallenge string
	StartedAt        time.Time
}

// SolutionCandidate is a nonce/preimage/hash triple that satisfied the
// dual difficulty predicate against a worker's frozen challenge snapshot.
type SolutionCandidate struct {
	WorkerID          WorkerID
	Address           string
	ChallengeSnapshot Challenge
	Nonce             string
	Preimage          []byte
	Hash              string
	IsDevFee          bool
}

// Receipt is an append-only record of an accepted solution.
type Receipt struct {
	Timestamp     time.Time       `json:"timestamp"`
	Address       string          `json:"address"`
	AddressIndex  int             `json:"address_index"`
	ChallengeID   string          `json:"challenge_id"`
	Nonce         string          `json:"nonce"`
	Hash          string          `json:"hash"`
	IsDevFee      bool            `json:"is_dev_fee"`
	CryptoReceipt json.RawMessage `json:"crypto_receipt,omitempty"`
}

// ErrorRecord mirrors Receipt but for rejected or failed submissions.
type ErrorRecord struct {
	Timestamp    time.Time       `json:"timestamp"`
	Address      string          `json:"address"`
	AddressIndex int             `json:"address_index"`
	ChallengeID  string          `json:"challenge_id"`
	Nonce        string          `json:"nonce"`
	Hash         string          `json:"hash"`
	IsDevFee     bool            `json:"is_dev_fee"`
	Error        string          `json:"error"`
	Response     json.RawMessage `json:"response,omitempty"`
}

// RegistrationResult reports the outcome of ensuring an address is
// registered with the upstream network before it can mine.
type RegistrationResult struct {
	Address    string
	Registered bool
	AlreadyDone bool
	Err        error
}

// CohortOutcome is the sum-typed result a worker task returns when its
// cohort loop exits, replacing ad-hoc boolean/flag signaling.
type CohortOutcome int

const (
	CohortSolved CohortOutcome = iota
	CohortCapReached
	CohortRotated
	CohortCancelled
)

func (o CohortOutcome) String() string {
	switch o {
	case CohortSolved:
		return "solved"
	case CohortCapReached:
		return "cap_reached"
	case CohortRotated:
		return "rotated"
	case CohortCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CohortResult is what a single worker contributes to a cohort join.
type CohortResult struct {
	WorkerID WorkerID
	Outcome  CohortOutcome
	Solution *SolutionCandidate
	Err      error
}
