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

	"arbiter-backend/internal/domain/dkg"
	appErrors "arbiter-backend/internal/errors"
	"arbiter-backend/internal/ports"
)

// ThreadClient fetches collaboration threads from the thread service
// over HTTP.
type ThreadClient struct {
	base    string
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewThreadClient creates a thread service client for the given base
// URL.
func NewThreadClient(baseURL string, timeout time.Duration, cfg BreakerConfig, logger *zap.Logger) *ThreadClient {
	return &ThreadClient{
		base:    strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		breaker: newBreaker(cfg, logger),
		logger:  logger,
	}
}

var _ ports.ThreadFetcher = (*ThreadClient)(nil)

// FetchThread implements ports.ThreadFetcher.
func (c *ThreadClient) FetchThread(ctx context.Context, threadID string) ([]dkg.Message, error) {
	if threadID == "" {
		return nil, appErrors.Input("THREAD_ID_EMPTY", "thread id is required").Build()
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, threadID)
	})
	if err != nil {
		if isBreakerOpen(err) {
			return nil, appErrors.External("THREAD_SERVICE_UNAVAILABLE", "thread service circuit open").
				WithOperation("FetchThread").
				WithCause(err).
				WithRetryable(true).
				Build()
		}
		return nil, err
	}
	return result.([]dkg.Message), nil
}

func (c *ThreadClient) fetch(ctx context.Context, threadID string) ([]dkg.Message, error) {
	endpoint := fmt.Sprintf("%s/threads/%s", c.base, url.PathEscape(threadID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, appErrors.Internal("THREAD_REQUEST", "build thread request").WithCause(err).Build()
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, appErrors.External("THREAD_FETCH_FAILED", "thread service request failed").
			WithCause(err).
			WithRetryable(true).
			Build()
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, appErrors.NotFound("THREAD_NOT_FOUND", fmt.Sprintf("thread %s not found", threadID)).Build()
	case resp.StatusCode != http.StatusOK:
		return nil, appErrors.External("THREAD_FETCH_FAILED",
			fmt.Sprintf("thread service returned status %d", resp.StatusCode)).
			WithRetryable(resp.StatusCode >= http.StatusInternalServerError).
			Build()
	}

	var messages []dkg.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, appErrors.External("THREAD_DECODING", "decode thread payload").WithCause(err).Build()
	}
	return messages, nil
}
