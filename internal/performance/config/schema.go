// Package config provides configuration parsing and validation for a
// website load test.
package config

import (
	"time"
)

// TestConfig is the root configuration for a load test.
//
// Example YAML:
//
//	name: "Marketing Website"
//	host: "http://localhost:3000"
//	executor: ramping-vus
//	stages:
//	  - duration: 30s
//	    target: 20
//	  - duration: 1m
//	    target: 20
//	  - duration: 30s
//	    target: 0
//	thinkTime:
//	  min: 1s
//	  max: 3s
//	weights:
//	  index: 1
//	  features: 2
//	  pricing: 2
//	  about: 1
//	  contact: 1
//	thresholds:
//	  http_req_duration: ["p95 < 500ms"]
//	  http_req_failed: ["rate < 0.01"]
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name" yaml:"name"`

	// Host is the base URL of the website under test
	Host string `json:"host" yaml:"host"`

	// Executor is the load profile: "constant-vus" or "ramping-vus"
	Executor string `json:"executor,omitempty" yaml:"executor,omitempty"`

	// VUs is the number of virtual users (constant-vus)
	VUs int `json:"vus,omitempty" yaml:"vus,omitempty"`

	// Duration is how long to run (constant-vus)
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Stages defines the ramping profile (ramping-vus)
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// ThinkTime bounds the random pause after every page visit
	ThinkTime *ThinkTimeConfig `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// Weights maps page names to relative selection weights
	Weights map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`

	// Timeout is the HTTP client timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxRPS caps the request rate across all VUs (0 = unlimited)
	MaxRPS int `json:"maxRPS,omitempty" yaml:"maxRPS,omitempty"`

	// GracefulStop is how long to wait for in-flight cycles on shutdown
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// HeaderChecks enables advisory response header inspection
	HeaderChecks bool `json:"headerChecks,omitempty" yaml:"headerChecks,omitempty"`

	// Thresholds define pass/fail criteria for the run
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// StageConfig defines a single stage of a ramping profile.
type StageConfig struct {
	// Duration of this stage
	Duration Duration `json:"duration" yaml:"duration"`

	// Target VU count at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// ThinkTimeConfig bounds the uniform think time.
type ThinkTimeConfig struct {
	Min Duration `json:"min" yaml:"min"`
	Max Duration `json:"max" yaml:"max"`
}

// ThresholdsConfig defines pass/fail criteria for the test.
type ThresholdsConfig struct {
	// HTTPReqDuration thresholds for request duration
	// e.g., ["p95 < 500ms", "avg < 200ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// HTTPReqFailed thresholds for failure rate
	// e.g., ["rate < 0.01"] (less than 1% failures)
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// HTTPReqs thresholds for request count/rate
	// e.g., ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
