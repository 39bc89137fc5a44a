package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
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

// BlobClient reads and writes evidence payloads through a
// content-addressed blob gateway. Reads verify that the returned bytes
// hash back to the requested CID.
type BlobClient struct {
	base    string
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewBlobClient creates a blob gateway client for the given base URL.
func NewBlobClient(baseURL string, timeout time.Duration, cfg BreakerConfig, logger *zap.Logger) *BlobClient {
	return &BlobClient{
		base:    strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		breaker: newBreaker(cfg, logger),
		logger:  logger,
	}
}

var _ ports.BlobStore = (*BlobClient)(nil)

// Get implements ports.BlobStore.
func (c *BlobClient) Get(ctx context.Context, cid string) ([]byte, error) {
	if cid == "" {
		return nil, appErrors.Input("CID_EMPTY", "blob cid is required").Build()
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, cid)
	})
	if err != nil {
		if isBreakerOpen(err) {
			return nil, appErrors.External("BLOB_SERVICE_UNAVAILABLE", "blob gateway circuit open").
				WithOperation("Get").
				WithCause(err).
				WithRetryable(true).
				Build()
		}
		return nil, err
	}
	return result.([]byte), nil
}

// Put implements ports.BlobStore. The CID is computed locally and the
// gateway stores the payload under it.
func (c *BlobClient) Put(ctx context.Context, data []byte) (string, error) {
	cid := dkg.HashPayload(data).String()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.put(ctx, cid, data)
	})
	if err != nil {
		if isBreakerOpen(err) {
			return "", appErrors.External("BLOB_SERVICE_UNAVAILABLE", "blob gateway circuit open").
				WithOperation("Put").
				WithCause(err).
				WithRetryable(true).
				Build()
		}
		return "", err
	}
	return cid, nil
}

func (c *BlobClient) get(ctx context.Context, cid string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, cid, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, appErrors.NotFound("BLOB_NOT_FOUND", fmt.Sprintf("blob %s not found", cid)).Build()
	case resp.StatusCode != http.StatusOK:
		return nil, appErrors.External("BLOB_FETCH_FAILED",
			fmt.Sprintf("blob gateway returned status %d", resp.StatusCode)).
			WithRetryable(resp.StatusCode >= http.StatusInternalServerError).
			Build()
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErrors.External("BLOB_READ_FAILED", "read blob payload").WithCause(err).Build()
	}
	if got := dkg.HashPayload(data).String(); got != cid {
		return nil, appErrors.Integrity("BLOB_HASH_MISMATCH", "blob payload does not hash to its cid").
			WithDetails(map[string]interface{}{"cid": cid, "computed": got}).
			Build()
	}
	return data, nil
}

func (c *BlobClient) put(ctx context.Context, cid string, data []byte) error {
	resp, err := c.do(ctx, http.MethodPut, cid, bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return appErrors.External("BLOB_STORE_FAILED",
			fmt.Sprintf("blob gateway returned status %d", resp.StatusCode)).
			WithRetryable(resp.StatusCode >= http.StatusInternalServerError).
			Build()
	}
	return nil
}

func (c *BlobClient) do(ctx context.Context, method, cid string, body io.Reader) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/blobs/%s", c.base, url.PathEscape(cid))
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, appErrors.Internal("BLOB_REQUEST", "build blob request").WithCause(err).Build()
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, appErrors.External("BLOB_GATEWAY_FAILED", "blob gateway request failed").
			WithCause(err).
			WithRetryable(true).
			Build()
	}
	return resp, nil
}
