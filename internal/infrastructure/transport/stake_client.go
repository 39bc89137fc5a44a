package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	appErrors "arbiter-backend/internal/errors"
	"arbiter-backend/internal/ports"
)

// StakeClient resolves verifier stakes from the stake ledger over HTTP.
// A verifier the ledger has never seen resolves to zero stake, matching
// the in-memory registry; commit admission then rejects it against the
// studio minimum rather than failing the lookup.
type StakeClient struct {
	base    string
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewStakeClient creates a stake ledger client for the given base URL.
func NewStakeClient(baseURL string, timeout time.Duration, cfg BreakerConfig, logger *zap.Logger) *StakeClient {
	return &StakeClient{
		base:    strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		breaker: newBreaker(cfg, logger),
		logger:  logger,
	}
}

var _ ports.StakeRegistry = (*StakeClient)(nil)

// Stake implements ports.StakeRegistry.
func (c *StakeClient) Stake(ctx context.Context, verifierID string) (float64, error) {
	if verifierID == "" {
		return 0, appErrors.Input("VERIFIER_ID_EMPTY", "verifier id is required").Build()
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.lookup(ctx, verifierID)
	})
	if err != nil {
		if isBreakerOpen(err) {
			return 0, appErrors.External("STAKE_LEDGER_UNAVAILABLE", "stake ledger circuit open").
				WithOperation("Stake").
				WithCause(err).
				WithRetryable(true).
				Build()
		}
		return 0, err
	}
	return result.(float64), nil
}

func (c *StakeClient) lookup(ctx context.Context, verifierID string) (float64, error) {
	endpoint := fmt.Sprintf("%s/stakes/%s", c.base, url.PathEscape(verifierID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, appErrors.Internal("STAKE_REQUEST", "build stake request").WithCause(err).Build()
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, appErrors.External("STAKE_FETCH_FAILED", "stake ledger request failed").
			WithCause(err).
			WithRetryable(true).
			Build()
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// No ledger entry means no stake, not a failure.
		return 0, nil
	case resp.StatusCode != http.StatusOK:
		return 0, appErrors.External("STAKE_FETCH_FAILED",
			fmt.Sprintf("stake ledger returned status %d", resp.StatusCode)).
			WithRetryable(resp.StatusCode >= http.StatusInternalServerError).
			Build()
	}

	var body struct {
		Stake float64 `json:"stake"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, appErrors.External("STAKE_DECODING", "decode stake payload").WithCause(err).Build()
	}
	if body.Stake < 0 {
		return 0, appErrors.Integrity("STAKE_NEGATIVE",
			fmt.Sprintf("ledger reports negative stake for %s", verifierID)).
			WithDetails(map[string]interface{}{"stake": body.Stake}).
			Build()
	}
	return body.Stake, nil
}
