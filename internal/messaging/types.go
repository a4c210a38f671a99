package messaging

import "time"

// SolutionResultMessage mirrors a gate.Result's accepted/rejected
// outcome for external consumers of TopicSolutions.
type SolutionResultMessage struct {
	Address     string    `json:"address"`
	ChallengeID string    `json:"challenge_id"`
	Accepted    bool      `json:"accepted"`
	IsDevFee    bool      `json:"is_dev_fee"`
	Reason      string    `json:"reason,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// RegistrationProgressMessage mirrors one registration.EnsureRegistered
// step for external consumers of TopicRegistration.
type RegistrationProgressMessage struct {
	Address    string    `json:"address"`
	Index      int       `json:"index"`
	Total      int       `json:"total"`
	Registered bool      `json:"registered"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WorkerStatsMessage mirrors one worker.Cohort progress tick for
// external consumers of TopicWorkerStats.
type WorkerStatsMessage struct {
	Address        string    `json:"address"`
	WorkerID       int       `json:"worker_id"`
	ChallengeID    string    `json:"challenge_id"`
	HashesComputed uint64    `json:"hashes_computed"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DevFeeTriggerMessage mirrors one devfee.Pool draw for external
// consumers of TopicDevFee.
type DevFeeTriggerMessage struct {
	Address         string    `json:"address"`
	UserSolutions   int64     `json:"user_solutions"`
	DevFeeSolutions int64     `json:"dev_fee_solutions"`
	Ratio           float64   `json:"ratio"`
	TriggeredAt     time.Time `json:"triggered_at"`
}

// StatusMessage mirrors one coordinator.Coordinator lifecycle
// transition for external consumers of TopicStatus.
type StatusMessage struct {
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}
