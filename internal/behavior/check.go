package behavior

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Health thresholds applied to every response.
const (
	ExpectedStatus = http.StatusOK
	MaxLatency     = 500 * time.Millisecond
)

// HealthCriteria is the pass/fail rule for a response.
type HealthCriteria struct {
	ExpectedStatus int
	MaxLatency     time.Duration
}

// DefaultCriteria returns the fixed health criteria.
func DefaultCriteria() HealthCriteria {
	return HealthCriteria{ExpectedStatus: ExpectedStatus, MaxLatency: MaxLatency}
}

// FailureKind classifies a failed check.
type FailureKind int

const (
	// None means the check passed.
	None FailureKind = iota
	// UnexpectedStatus means the status code was not the expected one.
	UnexpectedStatus
	// SlowResponse means the response exceeded the latency threshold.
	SlowResponse
	// RequestError means no response arrived at all. Check never returns
	// it; the engine uses it when the HTTP client fails.
	RequestError
)

func (k FailureKind) String() string {
	switch k {
	case None:
		return "none"
	case UnexpectedStatus:
		return "unexpected_status"
	case SlowResponse:
		return "slow_response"
	case RequestError:
		return "request_error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the verdict for one request.
type Outcome struct {
	Path       string        `json:"path"`
	StatusCode int           `json:"statusCode"`
	Elapsed    time.Duration `json:"elapsed"`
	Passed     bool          `json:"passed"`
	Kind       FailureKind   `json:"kind"`
	Reason     string        `json:"reason,omitempty"`
	Bytes      int64         `json:"bytes"`
}

// Check evaluates a response against the criteria. The status check runs
// first, so a slow non-200 response is reported as UnexpectedStatus only.
func (c HealthCriteria) Check(path string, status int, elapsed time.Duration) Outcome {
	out := Outcome{Path: path, StatusCode: status, Elapsed: elapsed}

	switch {
	case status != c.ExpectedStatus:
		out.Kind = UnexpectedStatus
		out.Reason = fmt.Sprintf("Unexpected status code: %d", status)
	case elapsed > c.MaxLatency:
		out.Kind = SlowResponse
		out.Reason = fmt.Sprintf("Response time too high: %sms", formatMillis(elapsed))
	default:
		out.Passed = true
	}
	return out
}

// Check evaluates a response against DefaultCriteria.
func Check(path string, status int, elapsed time.Duration) Outcome {
	return DefaultCriteria().Check(path, status, elapsed)
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// formatMillis renders milliseconds as a float that always carries a
// fractional part, e.g. 900.0 or 512.25.
func formatMillis(d time.Duration) string {
	s := strconv.FormatFloat(Millis(d), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
