package httpclient

import (
	"fmt"
	"net/http"
)

// NetworkError is a failure below HTTP: dial, TLS, reset or timeout. Op names
// the step that failed.
type NetworkError struct {
	URL string
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new NetworkError.
func NewNetworkError(url, op string, err error) error {
	return &NetworkError{URL: url, Op: op, Err: err}
}

// HTTPError is a non-2xx response to a stream request. Body is truncated by
// the client.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	URL        string
}

func (e *HTTPError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Body == "" {
		return fmt.Sprintf("%s: %s", e.URL, status)
	}
	return fmt.Sprintf("%s: %s: %s", e.URL, status, e.Body)
}

// NewHTTPErrorWithURL creates a new HTTPError.
func NewHTTPErrorWithURL(statusCode int, status, body, url string) error {
	return &HTTPError{StatusCode: statusCode, Status: status, Body: body, URL: url}
}
