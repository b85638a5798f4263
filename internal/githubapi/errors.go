package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v75/github"
)

// EndpointStatus represents a normalized GitHub API endpoint outcome.
type EndpointStatus string

const (
	// EndpointStatusOK indicates a successful response.
	EndpointStatusOK EndpointStatus = "ok"
	// EndpointStatusUnauthorized indicates the credential was rejected.
	EndpointStatusUnauthorized EndpointStatus = "unauthorized"
	// EndpointStatusForbidden indicates authorization failure or restricted access.
	EndpointStatusForbidden EndpointStatus = "forbidden"
	// EndpointStatusRateLimited indicates a primary or secondary rate limit rejection.
	EndpointStatusRateLimited EndpointStatus = "rate_limited"
	// EndpointStatusNotFound indicates the resource does not exist or is hidden.
	EndpointStatusNotFound EndpointStatus = "not_found"
	// EndpointStatusConflict indicates a state conflict, like listing commits of an empty repository.
	EndpointStatusConflict EndpointStatus = "conflict"
	// EndpointStatusUnprocessable indicates request validation/processing failure.
	EndpointStatusUnprocessable EndpointStatus = "unprocessable"
	// EndpointStatusUnavailable indicates a temporary service-side failure.
	EndpointStatusUnavailable EndpointStatus = "unavailable"
	// EndpointStatusTransport indicates the request never produced a response.
	EndpointStatusTransport EndpointStatus = "transport"
	// EndpointStatusUnknown indicates an unclassified non-success status.
	EndpointStatusUnknown EndpointStatus = "unknown"
)

// APIError is a classified provider failure.
type APIError struct {
	Op         string
	Status     EndpointStatus
	StatusCode int
	Err        error
}

// Error implements error.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (http %d): %v", e.Op, e.Status, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Status, e.Err)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error { return e.Err }

// StatusOf returns the endpoint status carried by err.
func StatusOf(err error) EndpointStatus {
	if err == nil {
		return EndpointStatusOK
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return EndpointStatusUnknown
}

func classifyError(op string, resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	statusCode := 0
	if resp != nil && resp.Response != nil {
		statusCode = resp.StatusCode
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var errResp *github.ErrorResponse
	status := EndpointStatusTransport
	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		status = EndpointStatusRateLimited
	case errors.As(err, &errResp) && errResp.Response != nil:
		statusCode = errResp.Response.StatusCode
		status = endpointStatusFromHTTP(statusCode)
	case statusCode != 0:
		status = endpointStatusFromHTTP(statusCode)
	}

	return &APIError{
		Op:         op,
		Status:     status,
		StatusCode: statusCode,
		Err:        err,
	}
}

func endpointStatusFromHTTP(statusCode int) EndpointStatus {
	switch statusCode {
	case http.StatusUnauthorized:
		return EndpointStatusUnauthorized
	case http.StatusForbidden:
		return EndpointStatusForbidden
	case http.StatusTooManyRequests:
		return EndpointStatusRateLimited
	case http.StatusNotFound:
		return EndpointStatusNotFound
	case http.StatusConflict:
		return EndpointStatusConflict
	case http.StatusUnprocessableEntity:
		return EndpointStatusUnprocessable
	}
	if statusCode >= 200 && statusCode <= 299 {
		return EndpointStatusOK
	}
	if statusCode >= 500 {
		return EndpointStatusUnavailable
	}
	return EndpointStatusUnknown
}
