package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoResponse means the service could not be reached, or it kept
	// answering with a retryable status until retries ran out.
	ErrNoResponse = errors.New("inference: no response")
	// ErrMalformedResponse means a success status carried a body that is not
	// a predictions envelope.
	ErrMalformedResponse = errors.New("inference: malformed response")
)

const noDetails = "No details provided by server"

// StatusError reports a non-success HTTP status from the inference service.
type StatusError struct {
	Task       Task
	StatusCode int
	Body       string
	// Exhausted is set when the status was retryable and every retry failed.
	Exhausted bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference: task %s returned status %d", e.Task, e.StatusCode)
}

// Unwrap lets callers treat an exhausted retryable status as ErrNoResponse.
func (e *StatusError) Unwrap() error {
	if e.Exhausted {
		return ErrNoResponse
	}
	return nil
}

// Detail extracts a short, user-surfaceable explanation from err: the JSON
// "message" field of an error body, or its first 100 characters.
func Detail(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		body := strings.TrimSpace(statusErr.Body)
		if body == "" {
			return noDetails
		}
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal([]byte(body), &payload) == nil && payload.Message != "" {
			return payload.Message
		}
		return truncate(body, 100)
	}
	if errors.Is(err, ErrNoResponse) {
		return "No response from server"
	}
	return noDetails
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
