package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/goflowspace/goflow-sync/internal/schema"
)

// batchPath is the remote batch-accept endpoint, relative to the base URL.
const batchPath = "/api/sync/batch"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// Client transmits operation batches over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (used by tests and
// hosts that need custom transports or auth).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger overrides the default stderr logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a batch transport client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.New(os.Stderr, "[transport] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// batchRequest is the wire shape of a batch submission.
type batchRequest struct {
	DeviceID   string                   `json:"device_id"`
	Operations []*schema.QueuedOperation `json:"operations"`
}

// SendOperations transmits a batch and returns the per-operation verdict.
//
// Classification:
//   - 2xx: BatchResult parsed from the body.
//   - 4xx with a parseable body: BatchResult with the server's rejections;
//     operations named in neither list stay queued for a later tick.
//   - 4xx without a parseable body: every operation in the batch is
//     rejected (the payload the server refused is the batch itself).
//   - 5xx or transport failure: *SendError, retryable.
//
// Safe to call again with the same batch: the server deduplicates by
// operation id.
func (c *Client) SendOperations(ctx context.Context, deviceID string, batch []*schema.QueuedOperation) (*BatchResult, error) {
	body, err := json.Marshal(batchRequest{
		DeviceID:   deviceID,
		Operations: batch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+batchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &SendError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &SendError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result BatchResult
		if err := json.Unmarshal(data, &result); err != nil {
			// A success status with an unreadable body gives no verdict;
			// treat it like a lost response and resend later.
			return nil, &SendError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
		}
		return &result, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var result BatchResult
		if err := json.Unmarshal(data, &result); err == nil && (len(result.Rejected) > 0 || len(result.Accepted) > 0) {
			c.logger.Printf("Server rejected %d operation(s) (HTTP %d)", len(result.Rejected), resp.StatusCode)
			return &result, nil
		}

		// No per-operation detail: the whole batch is the refused payload.
		reason := fmt.Sprintf("rejected by server (HTTP %d)", resp.StatusCode)
		rejected := make([]Rejection, len(batch))
		for i, op := range batch {
			rejected[i] = Rejection{ID: op.ID, Reason: reason}
		}
		c.logger.Printf("Server rejected entire batch of %d operation(s) (HTTP %d)", len(batch), resp.StatusCode)
		return &BatchResult{Rejected: rejected}, nil

	default:
		return nil, &SendError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server error: %s", http.StatusText(resp.StatusCode)),
		}
	}
}
