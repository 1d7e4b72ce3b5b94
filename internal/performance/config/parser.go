package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/faithtech/sitewalk/internal/behavior"
	"github.com/faithtech/sitewalk/internal/performance/executor"
)

// Defaults.
const (
	DefaultName         = "marketing-website"
	DefaultTimeout      = 30 * time.Second
	DefaultGracefulStop = 30 * time.Second
)

// DefaultStages is the ramp profile used when no load shape is configured:
// up to 20 VUs over 30s, hold for a minute, back to zero over 30s.
func DefaultStages() []StageConfig {
	return []StageConfig{
		{Duration: Duration(30 * time.Second), Target: 20, Name: "ramp-up"},
		{Duration: Duration(time.Minute), Target: 20, Name: "steady"},
		{Duration: Duration(30 * time.Second), Target: 0, Name: "ramp-down"},
	}
}

// DefaultThresholds mirrors the site's performance budget.
func DefaultThresholds() *ThresholdsConfig {
	return &ThresholdsConfig{
		HTTPReqDuration: []string{"p95 < 500ms"},
		HTTPReqFailed:   []string{"rate < 0.01"},
	}
}

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data. The format is chosen from the
// extension of path and defaults to YAML.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var cfg TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &cfg, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ParseStages parses the compact "30s:20,1m:20,30s:0" stage syntax.
func ParseStages(s string) ([]StageConfig, error) {
	var stages []StageConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		durStr, targetStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid stage %q: want duration:target", part)
		}
		d, err := ParseDurationString(durStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stage %q: %w", part, err)
		}
		target, err := strconv.Atoi(strings.TrimSpace(targetStr))
		if err != nil {
			return nil, fmt.Errorf("invalid stage %q: target must be an integer", part)
		}
		stages = append(stages, StageConfig{Duration: Duration(d), Target: target})
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("no stages in %q", s)
	}
	return stages, nil
}

// ApplyDefaults fills unset fields.
//
// With no executor, constant-vus is chosen when vus or duration is set
// without stages, so a missing half is reported by Validate; otherwise
// ramping-vus, which gets DefaultStages when it has none. A nil Thresholds
// gets DefaultThresholds; an empty one disables them.
func ApplyDefaults(cfg *TestConfig) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}

	if cfg.Executor == "" {
		if (cfg.VUs > 0 || cfg.Duration > 0) && len(cfg.Stages) == 0 {
			cfg.Executor = string(executor.TypeConstantVUs)
		} else {
			cfg.Executor = string(executor.TypeRampingVUs)
		}
	}
	if cfg.Executor == string(executor.TypeRampingVUs) && len(cfg.Stages) == 0 {
		cfg.Stages = DefaultStages()
	}

	if cfg.ThinkTime == nil {
		cfg.ThinkTime = &ThinkTimeConfig{
			Min: Duration(behavior.DefaultThinkMin),
			Max: Duration(behavior.DefaultThinkMax),
		}
	}

	if len(cfg.Weights) == 0 {
		cfg.Weights = make(map[string]float64, len(behavior.DefaultActions))
		for _, wa := range behavior.DefaultActions {
			cfg.Weights[wa.Action.String()] = wa.Weight
		}
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = Duration(DefaultTimeout)
	}
	if cfg.GracefulStop == 0 {
		cfg.GracefulStop = Duration(DefaultGracefulStop)
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = DefaultThresholds()
	}
}

// Actions returns the weighted page mix in declaration order. Pages missing
// from Weights are not visited.
func (c *TestConfig) Actions() ([]behavior.WeightedAction, error) {
	if len(c.Weights) == 0 {
		return behavior.DefaultActions, nil
	}

	byAction := make(map[behavior.Action]float64, len(c.Weights))
	for name, w := range c.Weights {
		a, err := behavior.ParseAction(name)
		if err != nil {
			return nil, err
		}
		byAction[a] = w
	}

	actions := make([]behavior.WeightedAction, 0, len(byAction))
	for _, a := range behavior.AllActions {
		if w, ok := byAction[a]; ok {
			actions = append(actions, behavior.WeightedAction{Action: a, Weight: w})
		}
	}
	return actions, nil
}

// ToExecutorConfig converts the load shape into an executor configuration.
func (c *TestConfig) ToExecutorConfig() *executor.Config {
	ec := &executor.Config{
		Name:         c.Name,
		Type:         executor.Type(c.Executor),
		VUs:          c.VUs,
		Duration:     time.Duration(c.Duration),
		GracefulStop: time.Duration(c.GracefulStop),
	}
	for _, s := range c.Stages {
		ec.Stages = append(ec.Stages, executor.Stage{
			Duration: time.Duration(s.Duration),
			Target:   s.Target,
			Name:     s.Name,
		})
	}
	return ec
}

// TotalDuration returns the planned run time.
func (c *TestConfig) TotalDuration() time.Duration {
	return c.ToExecutorConfig().TotalDuration()
}
