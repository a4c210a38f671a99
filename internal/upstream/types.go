package upstream

import "github.com/bardlex/powminer/internal/domain"

// ChallengeResponse is the wire shape of GET /challenge.
type ChallengeResponse struct {
	Code      string         `json:"code"`
	StartsAt  string         `json:"starts_at,omitempty"`
	Challenge *ChallengeWire `json:"challenge,omitempty"`
}

// ChallengeWire is the wire shape of an embedded challenge.
type ChallengeWire struct {
	ChallengeID      string `json:"challenge_id"`
	Difficulty       string `json:"difficulty"`
	NoPreMine        string `json:"no_pre_mine"`
	NoPreMineHour    int    `json:"no_pre_mine_hour"`
	LatestSubmission string `json:"latest_submission"`
}

func (w *ChallengeWire) toDomain() domain.Challenge {
	return domain.Challenge{
		ChallengeID:      w.ChallengeID,
		Difficulty:       w.Difficulty,
		NoPreMine:        w.NoPreMine,
		NoPreMineHour:    w.NoPreMineHour,
		LatestSubmission: w.LatestSubmission,
	}
}

// TermsResponse is the wire shape of GET /TandC.
type TermsResponse struct {
	Message string `json:"message"`
}

// SolutionRejection is the 4xx body of POST /solution/...
type SolutionRejection struct {
	Message string `json:"message"`
}

// SolutionAccepted is the optional 2xx body of POST /solution/...
type SolutionAccepted struct {
	CryptoReceipt interface{} `json:"crypto_receipt,omitempty"`
}
