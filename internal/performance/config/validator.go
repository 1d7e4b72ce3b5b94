package config

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/faithtech/sitewalk/internal/behavior"
	"github.com/faithtech/sitewalk/internal/performance/executor"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire test configuration. Call ApplyDefaults first
// when partial configs should be accepted.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	validateHost(c.Host, errs)
	validateLoadShape(c, errs)

	if c.ThinkTime != nil {
		if c.ThinkTime.Min < 0 || c.ThinkTime.Max < 0 {
			errs.Add("thinkTime", "bounds must be non-negative")
		} else if c.ThinkTime.Min > c.ThinkTime.Max {
			errs.Add("thinkTime", fmt.Sprintf("min %s exceeds max %s", c.ThinkTime.Min, c.ThinkTime.Max))
		}
	}

	seen := make(map[behavior.Action]string, len(c.Weights))
	for _, name := range sortedKeys(c.Weights) {
		w := c.Weights[name]
		a, err := behavior.ParseAction(name)
		if err != nil {
			errs.Add("weights."+name, "unknown page")
			continue
		}
		if prev, dup := seen[a]; dup {
			errs.Add("weights."+name, fmt.Sprintf("duplicate of weights.%s", prev))
			continue
		}
		seen[a] = name
		if !(w > 0) {
			errs.Add("weights."+name, "weight must be > 0")
		}
	}

	if c.Timeout < 0 {
		errs.Add("timeout", "timeout must be >= 0")
	}
	if c.MaxRPS < 0 {
		errs.Add("maxRPS", "maxRPS must be >= 0")
	}

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateHost(host string, errs *ValidationErrors) {
	if host == "" {
		errs.Add("host", "host is required")
		return
	}
	u, err := url.Parse(host)
	if err != nil {
		errs.Add("host", fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("host", "host must be an http or https URL")
	}
	if u.Host == "" {
		errs.Add("host", "host must include a hostname")
	}
}

func validateLoadShape(c *TestConfig, errs *ValidationErrors) {
	switch executor.Type(c.Executor) {
	case executor.TypeConstantVUs:
		if c.VUs <= 0 {
			errs.Add("vus", "vus must be > 0 for constant-vus")
		}
		if c.Duration <= 0 {
			errs.Add("duration", "duration must be > 0 for constant-vus")
		}
	case executor.TypeRampingVUs:
		if len(c.Stages) == 0 {
			errs.Add("stages", "at least one stage is required for ramping-vus")
		}
		for i, s := range c.Stages {
			prefix := fmt.Sprintf("stages[%d]", i)
			if s.Duration <= 0 {
				errs.Add(prefix+".duration", "duration must be > 0")
			}
			if s.Target < 0 {
				errs.Add(prefix+".target", "target must be >= 0")
			}
		}
	case "":
		errs.Add("executor", "executor is required")
	default:
		errs.Add("executor", fmt.Sprintf("unknown executor: %s", c.Executor))
	}
}

func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	for i, expr := range t.HTTPReqDuration {
		metric, _, value, err := ParseThreshold(expr)
		field := fmt.Sprintf("thresholds.http_req_duration[%d]", i)
		if err != nil {
			errs.Add(field, err.Error())
			continue
		}
		switch metric {
		case "min", "max", "avg", "med", "p50", "p90", "p95", "p99":
		default:
			errs.Add(field, fmt.Sprintf("unknown metric: %s", metric))
		}
		if _, err := time.ParseDuration(value); err != nil {
			errs.Add(field, fmt.Sprintf("invalid duration value: %s", value))
		}
	}

	for i, expr := range t.HTTPReqFailed {
		metric, _, value, err := ParseThreshold(expr)
		field := fmt.Sprintf("thresholds.http_req_failed[%d]", i)
		if err != nil {
			errs.Add(field, err.Error())
			continue
		}
		if metric != "rate" {
			errs.Add(field, "only 'rate' is supported")
		}
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			errs.Add(field, fmt.Sprintf("invalid numeric value: %s", value))
		}
	}

	for i, expr := range t.HTTPReqs {
		metric, _, value, err := ParseThreshold(expr)
		field := fmt.Sprintf("thresholds.http_reqs[%d]", i)
		if err != nil {
			errs.Add(field, err.Error())
			continue
		}
		if metric != "count" && metric != "rate" {
			errs.Add(field, "only 'count' or 'rate' are supported")
		}
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			errs.Add(field, fmt.Sprintf("invalid numeric value: %s", value))
		}
	}
}

var thresholdRe = regexp.MustCompile(`^(\w+)\s*(<=|>=|==|!=|<>|<|>|=)\s*(.+)$`)

// ParseThreshold splits an expression like "p95 < 500ms" into its parts.
func ParseThreshold(expr string) (metric, op, value string, err error) {
	matches := thresholdRe.FindStringSubmatch(strings.TrimSpace(expr))
	if len(matches) != 4 {
		return "", "", "", fmt.Errorf("invalid expression format: %s", expr)
	}
	return matches[1], matches[2], strings.TrimSpace(matches[3]), nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
