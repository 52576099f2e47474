package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/jnana/internal/adapters/http/api"
	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/internal/domain/types"
)

const maxRateLimitRetries = 20

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func isCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// client speaks the HTTP API for one worker.
type client struct {
	http     *http.Client
	base     string
	workerID string
	// limited counts 429 answers that were retried.
	limited int
}

func newClient(base string, timeout time.Duration) *client {
	return &client{http: &http.Client{Timeout: timeout}, base: base}
}

func (c *client) as(workerID string) *client {
	return &client{http: c.http, base: c.base, workerID: workerID}
}

// do sends a JSON request and decodes a JSON answer into out. 429 answers
// are retried after a short pause.
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = b
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.workerID != "" {
			req.Header.Set(api.WorkerHeader, c.workerID)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRateLimitRetries {
			c.limited++
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
			}
			continue
		}
		if resp.StatusCode >= http.StatusBadRequest {
			apiErr := &APIError{Status: resp.StatusCode}
			_ = json.Unmarshal(data, apiErr)
			return apiErr
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
		}
		return nil
	}
}

func (c *client) health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *client) idOptions(ctx context.Context, first, last string) ([]string, error) {
	var opts types.IDOptions
	q := url.Values{"first": {first}, "last": {last}}
	err := c.do(ctx, http.MethodGet, "/api/workers/id-options?"+q.Encode(), nil, &opts)
	return opts.Options, err
}

func (c *client) onboard(ctx context.Context, req types.OnboardRequest) (model.Worker, error) {
	var w model.Worker
	err := c.do(ctx, http.MethodPost, "/api/workers", req, &w)
	return w, err
}

func (c *client) next(ctx context.Context) (types.WorkView, error) {
	var v types.WorkView
	err := c.do(ctx, http.MethodPost, "/api/work/next", struct{}{}, &v)
	return v, err
}

func (c *client) submit(ctx context.Context, req types.SubmitRequest) (types.SubmitResult, error) {
	var res types.SubmitResult
	err := c.do(ctx, http.MethodPost, "/api/work/submit", req, &res)
	return res, err
}

func (c *client) skip(ctx context.Context, req types.SkipRequest) error {
	return c.do(ctx, http.MethodPost, "/api/work/skip", req, nil)
}

func (c *client) signOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/workers/me/sign-out", struct{}{}, nil)
}

func (c *client) report(ctx context.Context) (types.Report, error) {
	var rep types.Report
	err := c.do(ctx, http.MethodGet, "/api/admin/report", nil, &rep)
	return rep, err
}
