package ollama

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// UnavailableError reports that the daemon could not be reached at all
// (connection refused, DNS failure, connect or header timeout, canceled call).
type UnavailableError struct {
	Op  string
	URL string
	Err error
}

func (e *UnavailableError) Error() string {
	// *url.Error repeats the method and URL; keep only its cause.
	cause := e.Err
	var ue *url.Error
	if errors.As(cause, &ue) && ue.Err != nil {
		cause = ue.Err
	}
	return fmt.Sprintf("failed to connect to upstream at %s: %v", e.URL, cause)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx answer from the daemon.
type StatusError struct {
	Op         string
	URL        string
	StatusCode int
	Status     string
	// Body holds at most the first 4KiB of the upstream response.
	Body []byte
}

func (e *StatusError) Error() string {
	msg := upstreamMessage(e.Body)
	if msg == "" {
		return fmt.Sprintf("upstream %s returned %s", e.Op, e.Status)
	}
	return fmt.Sprintf("upstream %s returned %s: %s", e.Op, e.Status, msg)
}

// upstreamMessage extracts {"error": "..."} from a daemon error body, falling back to
// the trimmed raw text.
func upstreamMessage(b []byte) string {
	var v struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &v); err == nil && v.Error != "" {
		return v.Error
	}
	return strings.TrimSpace(string(b))
}

// IsUnavailable reports whether err means the daemon is unreachable or erroring.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se)
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
