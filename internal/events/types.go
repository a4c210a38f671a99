package events

import "time"

// Kind identifies the type of an emitted event.
type Kind string

const (
	KindStatus               Kind = "status"
	KindStats                Kind = "stats"
	KindRegistrationProgress Kind = "registration_progress"
	KindMiningStart          Kind = "mining_start"
	KindHashProgress         Kind = "hash_progress"
	KindSolutionSubmit       Kind = "solution_submit"
	KindSolutionResult       Kind = "solution_result"
	KindWorkerUpdate         Kind = "worker_update"
	KindSolution             Kind = "solution"
	KindError                Kind = "error"
)

// Event is the envelope carried on the broadcast bus. Address is left
// unmasked here; the operator-facing transport layer is responsible for
// redacting it before it reaches any external subscriber (see §6).
type Event struct {
	ID          string
	Kind        Kind
	Timestamp   time.Time
	Address     string
	WorkerID    int
	ChallengeID string
	Fields      map[string]interface{}
}
