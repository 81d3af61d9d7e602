package circuit

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

	pkgError "github.com/govconnect/channel-gateway/pkg/error"
	"github.com/sirupsen/logrus"
)

// Client is a JSON-over-HTTP client guarded by a circuit breaker. The retry
// policy lives outside the breaker: 4xx is never retried, 5xx and transport
// errors are retried up to Retries with delay RetryDelay*2^(attempt-1), and
// an open breaker fails fast without consuming retries.
type Client struct {
	Name       string
	BaseURL    string
	Headers    map[string]string
	Retries    int
	RetryDelay time.Duration

	breaker    *Breaker
	httpClient *http.Client
}

type Options struct {
	Timeout          time.Duration
	Retries          int
	RetryDelay       time.Duration
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
	Headers          map[string]string
}

func NewClient(name, baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Client{
		Name:       name,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Headers:    opts.Headers,
		Retries:    opts.Retries,
		RetryDelay: opts.RetryDelay,
		breaker:    NewBreaker(name, opts.FailureThreshold, opts.SuccessThreshold, opts.ResetTimeout),
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

// BreakerState exposes the breaker for health reporting.
func (c *Client) BreakerState() State { return c.breaker.State() }

// DoJSON performs a request with a JSON body (may be nil) and decodes a JSON
// response into out (may be nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= c.Retries+1; attempt++ {
		if !c.breaker.Allow() {
			return pkgError.CircuitOpenError(fmt.Sprintf("%s: circuit open, failing fast", c.Name))
		}

		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			c.breaker.RecordSuccess()
			return nil
		}
		lastErr = err

		var ge pkgError.GenericError
		if errors.As(err, &ge) && ge.StatusCode() >= 400 && ge.StatusCode() < 500 {
			// Client errors are deterministic, retrying cannot help.
			c.breaker.RecordSuccess()
			return err
		}
		c.breaker.RecordFailure()

		if attempt <= c.Retries {
			delay := c.RetryDelay * time.Duration(1<<(attempt-1))
			logrus.WithError(err).Warnf("[CIRCUIT] %s attempt %d/%d failed, retrying in %s",
				c.Name, attempt, c.Retries+1, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return pkgError.TimeoutError(fmt.Sprintf("%s: %v", c.Name, ctx.Err()))
			}
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgError.InternalServerError(fmt.Sprintf("%s: encode request: %v", c.Name, err))
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return pkgError.InternalServerError(fmt.Sprintf("%s: build request: %v", c.Name, err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return pkgError.TimeoutError(fmt.Sprintf("%s: request timed out", c.Name))
		}
		return pkgError.NetworkError(fmt.Sprintf("%s: %v", c.Name, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgError.NetworkError(fmt.Sprintf("%s: read response: %v", c.Name, err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return pkgError.AuthError(fmt.Sprintf("%s: upstream returned %d", c.Name, resp.StatusCode))
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return pkgError.ValidationError(fmt.Sprintf("%s: upstream returned %d: %s", c.Name, resp.StatusCode, truncate(raw, 200)))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return pkgError.ValidationError(fmt.Sprintf("%s: upstream returned %d", c.Name, resp.StatusCode))
	case resp.StatusCode >= 500:
		return pkgError.ServerError(fmt.Sprintf("%s: upstream returned %d", c.Name, resp.StatusCode))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgError.ServerError(fmt.Sprintf("%s: decode response: %v", c.Name, err))
		}
	}
	return nil
}

func truncate(raw []byte, n int) string {
	s := string(raw)
	if len(s) > n {
		return s[:n]
	}
	return s
}
