package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ff-monheim/ams-console/pkg/types"
)

const retryDelay = 200 * time.Millisecond

// APIError is returned for any non-2xx response from the AMS API.
type APIError struct {
	StatusCode int
	Problem    types.ProblemDetail
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Problem.Detail)
	if msg == "" {
		msg = strings.TrimSpace(e.Problem.Title)
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, msg)
}

// Message returns the most specific human-readable text of the error.
func (e *APIError) Message() string {
	if d := strings.TrimSpace(e.Problem.Detail); d != "" {
		return d
	}
	if t := strings.TrimSpace(e.Problem.Title); t != "" {
		return t
	}
	return http.StatusText(e.StatusCode)
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// transport performs JSON requests with bearer auth and bounded retries.
type transport struct {
	httpClient   *http.Client
	baseURL      string
	token        string
	tokenRefresh func(ctx context.Context) (string, error)
	maxRetries   int
}

func (t *transport) get(ctx context.Context, path string, out any) error {
	return t.do(ctx, http.MethodGet, path, nil, out)
}

func (t *transport) post(ctx context.Context, path string, body, out any) error {
	return t.do(ctx, http.MethodPost, path, body, out)
}

func (t *transport) put(ctx context.Context, path string, body, out any) error {
	return t.do(ctx, http.MethodPut, path, body, out)
}

func (t *transport) delete(ctx context.Context, path string) error {
	return t.do(ctx, http.MethodDelete, path, nil, nil)
}

func (t *transport) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		payload = encoded
	}

	token, err := t.resolveToken(ctx)
	if err != nil {
		return fmt.Errorf("resolving api token: %w", err)
	}

	attempts := t.maxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = t.once(ctx, method, path, token, payload, out)
		if lastErr == nil || !retryable(method, lastErr) || attempt == attempts {
			return lastErr
		}

		timer := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return lastErr
}

func (t *transport) once(ctx context.Context, method, path, token string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeProblem(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (t *transport) resolveToken(ctx context.Context) (string, error) {
	if t.token != "" {
		return t.token, nil
	}
	if t.tokenRefresh != nil {
		return t.tokenRefresh(ctx)
	}
	return "", nil
}

func decodeProblem(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &apiErr.Problem); err != nil {
			apiErr.Problem.Detail = strings.TrimSpace(string(raw))
		}
	}
	if apiErr.Problem.Status == 0 {
		apiErr.Problem.Status = resp.StatusCode
	}
	return apiErr
}

// retryable reports whether a failed request may be repeated. Only
// idempotent methods are retried, and only on transport errors or 5xx.
func retryable(method string, err error) bool {
	if method == http.MethodPost {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return true
}
