package harvester

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an unknown ticker or a company with no identifier
// on record. Caller-correctable; never retried automatically.
var ErrNotFound = errors.New("not found")

// UpstreamError wraps a remote API or site failure: transport error,
// non-2xx status, or a malformed body. Transient; a later pass may
// succeed where this one failed.
type UpstreamError struct {
	URL        string
	StatusCode int
	// Body holds a truncated response excerpt for logging.
	Body string
	Err  error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError builds an UpstreamError, truncating body to a
// log-friendly length.
func NewUpstreamError(url string, status int, body []byte, err error) *UpstreamError {
	const maxBody = 200
	excerpt := string(body)
	if len(excerpt) > maxBody {
		excerpt = excerpt[:maxBody]
	}
	return &UpstreamError{URL: url, StatusCode: status, Body: excerpt, Err: err}
}
