// Package upstream holds behavior shared by the Tavily and Brave clients:
// response classification, the circuit breaker wrapper, and correlation-ID
// plumbing, grounded on the same retrying HTTP client idiom used elsewhere
// in this codebase.
package upstream

import (
	"net/http"
)

// Kind classifies an upstream HTTP response (or transport failure) into
// the handful of outcomes the rest of the system branches on.
type Kind string

const (
	KindOK              Kind = "ok"
	KindAuthFailed      Kind = "auth_failed"
	KindRateLimited     Kind = "rate_limited"
	KindProviderError   Kind = "provider_error"
	KindInvalidResponse Kind = "invalid_response"
)

// ClassifyStatus maps an HTTP status code to a Kind. Body-shape failures
// (non-JSON where JSON was expected) are classified separately by callers
// that attempt to decode the body, via KindInvalidResponse.
func ClassifyStatus(status int) Kind {
	switch {
	case status >= 200 && status < 300:
		return KindOK
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthFailed
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindProviderError
	default:
		return KindProviderError
	}
}

// ClassifiedError carries a Kind alongside the upstream message, when one
// was present in the response body.
type ClassifiedError struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}
