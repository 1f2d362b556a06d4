// Package adrive provides an HTTP client for the drive open API
// with optional retry, error classification, and typed request dispatch.
package adrive

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, adrive.ErrNotFound) to check.
var (
	ErrBadRequest          = errors.New("adrive: bad request")
	ErrUnauthorized        = errors.New("adrive: unauthorized")
	ErrForbidden           = errors.New("adrive: forbidden")
	ErrNotFound            = errors.New("adrive: not found")
	ErrConflict            = errors.New("adrive: conflict")
	ErrRangeNotSatisfiable = errors.New("adrive: range not satisfiable")
	ErrThrottled           = errors.New("adrive: throttled")
	ErrServerError         = errors.New("adrive: server error")
	ErrUnexpectedStatus    = errors.New("adrive: unexpected status")
	ErrMalformedResponse   = errors.New("adrive: malformed response")
)

// Error codes carried in the JSON error body.
const (
	CodePreHashMatched = "PreHashMatched"
	CodeNotFound       = "NotFound.File"
)

// APIError wraps a sentinel error with the HTTP status code, the service's
// error code and request ID, and the error message for debugging.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "adrive: HTTP %d", e.StatusCode)

	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}

	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request-id: %s)", e.RequestID)
	}

	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}

	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorBody is the JSON shape of a non-2xx response from the open API.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// newAPIError builds an APIError from a failed response. Bodies that are
// not JSON are kept verbatim as the message.
func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("x-ca-request-id"),
		Err:        classifyStatus(resp.StatusCode),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && (eb.Code != "" || eb.Message != "") {
		apiErr.Code = eb.Code
		apiErr.Message = eb.Message

		if eb.RequestID != "" {
			apiErr.RequestID = eb.RequestID
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	return apiErr
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusRequestedRangeNotSatisfiable:
		return ErrRangeNotSatisfiable
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		if code >= http.StatusOK && code < http.StatusMultipleChoices {
			return nil
		}

		return ErrUnexpectedStatus
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
