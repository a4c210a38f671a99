package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bardlex/powminer/internal/domain"
	"github.com/bardlex/powminer/pkg/circuit"
	"github.com/bardlex/powminer/pkg/errors"
	"github.com/bardlex/powminer/pkg/retry"
)

// SubmitResult is the outcome of a submission attempt.
type SubmitResult struct {
	Accepted      bool
	CryptoReceipt json.RawMessage
	RejectMessage string
}

// HTTPClient talks to the upstream challenge/submission network API over
// plain HTTPS JSON, wrapped in a circuit breaker and retry policy the
// same way the teacher wraps Bitcoin Core RPC calls.
type HTTPClient struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// NewHTTPClient creates a client bound to baseURL with the given request
// timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	cbConfig := &circuit.Config{
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         10 * time.Second,
		ResetTimeout:    30 * time.Second,
	}

	return &HTTPClient{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: timeout},
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.NetworkConfig(),
	}
}

// FetchChallenge calls GET /challenge.
func (c *HTTPClient) FetchChallenge(ctx context.Context) (domain.ChallengeState, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (domain.ChallengeState, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (domain.ChallengeState, error) {
			var wire ChallengeResponse
			if err := c.get(ctx, "/challenge", &wire); err != nil {
				return domain.ChallengeState{}, errors.Wrap(err, errors.ErrorTypeUpstream, "fetch_challenge",
					"failed to fetch active challenge")
			}

			state := domain.ChallengeState{Status: domain.ChallengeStatus(wire.Code)}
			if wire.StartsAt != "" {
				if t, err := time.Parse(time.RFC3339, wire.StartsAt); err == nil {
					state.StartsAt = t
				}
			}
			if wire.Challenge != nil {
				ch := wire.Challenge.toDomain()
				state.Challenge = &ch
			}
			return state, nil
		})
	})
}

// FetchTerms calls GET /TandC.
func (c *HTTPClient) FetchTerms(ctx context.Context) (string, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (string, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (string, error) {
			var wire TermsResponse
			if err := c.get(ctx, "/TandC", &wire); err != nil {
				return "", errors.Wrap(err, errors.ErrorTypeUpstream, "fetch_terms", "failed to fetch terms")
			}
			return wire.Message, nil
		})
	})
}

// Register calls POST /register/{address}/{signature}/{public_key_hex}.
func (c *HTTPClient) Register(ctx context.Context, address, signature, publicKeyHex string) error {
	_, err := circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (struct{}, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (struct{}, error) {
			path := fmt.Sprintf("/register/%s/%s/%s", address, signature, publicKeyHex)
			if err := c.post(ctx, path, nil); err != nil {
				return struct{}{}, errors.Wrap(err, errors.ErrorTypeUpstream, "register",
					"failed to register address").WithContext("address", address)
			}
			return struct{}{}, nil
		})
	})
	return err
}

// Submit calls POST /solution/{address}/{challenge_id}/{nonce}. Unlike the
// other endpoints, it goes through neither the circuit breaker nor the
// retry policy: a single request is made, and the submission gate decides
// whether to try a different nonce, not this transport layer.
func (c *HTTPClient) Submit(ctx context.Context, address, challengeID, nonce string) (*SubmitResult, error) {
	path := fmt.Sprintf("/solution/%s/%s/%s", address, challengeID, nonce)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstream, "submit_request", "failed to build submit request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstream, "submit", "submission request failed").
			WithContext("address", address).WithContext("challenge_id", challengeID)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result := &SubmitResult{Accepted: true}
		if len(body) > 0 {
			var accepted SolutionAccepted
			if err := json.Unmarshal(body, &accepted); err == nil && accepted.CryptoReceipt != nil {
				result.CryptoReceipt = body
			}
		}
		return result, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var rejection SolutionRejection
		_ = json.Unmarshal(body, &rejection)
		return &SubmitResult{Accepted: false, RejectMessage: rejection.Message}, nil
	default:
		return nil, errors.New(errors.ErrorTypeUpstream, "submit",
			fmt.Sprintf("submission failed with status %d", resp.StatusCode)).
			WithContext("status_code", resp.StatusCode)
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, into interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s failed: %s - %s", path, resp.Status, string(body))
	}
	if into != nil {
		if err := json.Unmarshal(body, into); err != nil {
			return fmt.Errorf("unmarshal %s: %w", path, err)
		}
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s failed: %s - %s", path, resp.Status, string(respBody))
	}
	return nil
}
