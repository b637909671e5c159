package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Client is a thin authenticated HTTP client shared by both provider
// packages. One Client (and one breaker) exists per provider, independent
// of which upstream key is used for a given call — a provider-wide outage
// should trip the breaker regardless of which key hit it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient builds a Client for baseURL with a circuit breaker named for
// logging/metrics purposes.
func NewClient(baseURL string, timeout time.Duration, breakerName string) *Client {
	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

// Response is the decoded-or-not outcome of a request through the breaker.
type Response struct {
	Kind    Kind
	Status  int
	Body    []byte
	Headers http.Header
}

// Do issues req through the circuit breaker, attaching a correlation ID
// header and structured logging around the call. A tripped breaker
// surfaces as KindProviderError without making a network call.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	correlationID := uuid.NewString()
	req.Header.Set("X-Correlation-ID", correlationID)

	logger := log.With().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("correlationId", correlationID).
		Logger()

	// errServerStatus makes the breaker count a 5xx response as a failure;
	// it is cleared again below so the caller still gets the Response.
	errServerStatus := fmt.Errorf("upstream: server error status")

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		r := &Response{
			Kind:    ClassifyStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Body:    body,
			Headers: resp.Header,
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return r, errServerStatus
		}
		return r, nil
	})
	if err == errServerStatus {
		err = nil
	}

	duration := time.Since(start)
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			logger.Warn().Dur("duration", duration).Msg("circuit breaker open, request rejected")
			return &Response{Kind: KindProviderError}, nil
		}
		logger.Error().Err(err).Dur("duration", duration).Msg("upstream request failed")
		return nil, fmt.Errorf("upstream: %w", err)
	}

	resp := result.(*Response)
	logger.Debug().Int("status", resp.Status).Dur("duration", duration).Msg("upstream request completed")
	return resp, nil
}

// NewJSONRequest builds a POST/GET request with a JSON body (nil for GET)
// and the Content-Type/Accept headers upstream JSON APIs expect.
func NewJSONRequest(ctx context.Context, method, url string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("upstream: encoding request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("upstream: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
