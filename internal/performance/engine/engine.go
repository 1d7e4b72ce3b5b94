// Package engine runs a website load test end to end.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/faithtech/sitewalk/internal/behavior"
	"github.com/faithtech/sitewalk/internal/performance"
	"github.com/faithtech/sitewalk/internal/performance/config"
	"github.com/faithtech/sitewalk/internal/performance/executor"
	"github.com/faithtech/sitewalk/internal/performance/metrics"
)

// Engine is the main orchestrator of a load test.
//
// It coordinates:
//   - Configuration defaults and validation
//   - The executor that shapes the load
//   - Metrics and failure aggregation
//   - Threshold evaluation
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("site.yaml")
//	eng, _ := engine.NewEngine(cfg)
//	result, _ := eng.Run(context.Background())
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	config *config.TestConfig

	metricsEngine *metrics.Engine
	failures      *metrics.FailureTally
	executor      executor.Executor

	reporters []behavior.Reporter
	observer  performance.RequestObserver
	logger    *zap.Logger

	mu        sync.RWMutex
	startTime time.Time
	running   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithReporter adds a failure sink next to the built-in tally.
func WithReporter(r behavior.Reporter) Option {
	return func(e *Engine) {
		if r != nil {
			e.reporters = append(e.reporters, r)
		}
	}
}

// WithObserver sets a per-request observer.
func WithObserver(o performance.RequestObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// TestResult contains the complete test results.
type TestResult struct {
	Name      string        `json:"name"`
	Host      string        `json:"host"`
	Executor  string        `json:"executor"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	Iterations int64 `json:"iterations"`
	SpawnedVUs int   `json:"spawnedVUs"`

	Metrics  *metrics.Snapshot      `json:"metrics"`
	Pages    []metrics.RequestStats `json:"pages"`
	Failures []metrics.FailureGroup `json:"failures"`
	Phases   []metrics.PhaseChange  `json:"phases,omitempty"`

	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
}

// NewEngine applies defaults to cfg, validates it and prepares the executor.
func NewEngine(cfg *config.TestConfig, opts ...Option) (*Engine, error) {
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	exec, err := executor.NewFromConfig(context.Background(), cfg.ToExecutorConfig())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:        cfg,
		metricsEngine: metrics.NewEngine(),
		failures:      metrics.NewFailureTally(),
		executor:      exec,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes the test and returns its results. Cancelling ctx ends the
// run early; VUs finish the request they are on.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	actions, err := e.config.Actions()
	if err != nil {
		return nil, err
	}

	reporters := append(behavior.MultiReporter{e.failures}, e.reporters...)
	scheduler, err := performance.NewVUScheduler(performance.SchedulerConfig{
		BaseURL:      e.config.Host,
		Actions:      actions,
		ThinkMin:     time.Duration(e.config.ThinkTime.Min),
		ThinkMax:     time.Duration(e.config.ThinkTime.Max),
		HeaderChecks: e.config.HeaderChecks,
		HTTP: performance.HTTPClientConfig{
			Timeout:             time.Duration(e.config.Timeout),
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
		MaxRPS:   e.config.MaxRPS,
		Reporter: reporters,
		Observer: e.observer,
		Logger:   e.logger,
	}, e.metricsEngine)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	e.mu.Lock()
	e.startTime = time.Now()
	e.running = true
	e.mu.Unlock()

	e.logger.Info("load test started",
		zap.String("name", e.config.Name),
		zap.String("host", e.config.Host),
		zap.String("executor", e.config.Executor),
		zap.Duration("planned", e.config.TotalDuration()))

	runErr := e.executor.Run(ctx, scheduler, e.metricsEngine)

	e.metricsEngine.Stop()
	e.mu.Lock()
	e.running = false
	start := e.startTime
	e.mu.Unlock()

	end := time.Now()
	snapshot := e.metricsEngine.GetSnapshot()
	result := &TestResult{
		Name:       e.config.Name,
		Host:       e.config.Host,
		Executor:   e.config.Executor,
		StartTime:  start,
		EndTime:    end,
		Duration:   end.Sub(start),
		Iterations: e.executor.GetStats().Iterations,
		SpawnedVUs: scheduler.SpawnedVUs(),
		Metrics:    snapshot,
		Pages:      e.metricsEngine.GetRequestStats(),
		Failures:   e.failures.Groups(),
		Phases:     e.metricsEngine.GetPhaseHistory(),
	}
	result.Thresholds = EvaluateThresholds(e.config.Thresholds, snapshot)
	result.Passed = runErr == nil
	for _, t := range result.Thresholds {
		if !t.Passed {
			result.Passed = false
		}
	}

	e.logger.Info("load test finished",
		zap.Int64("requests", snapshot.TotalRequests),
		zap.Int64("failed", snapshot.FailedRequests),
		zap.Int64("http_failed", snapshot.HTTPFailed),
		zap.Bool("passed", result.Passed))

	if runErr != nil {
		return result, fmt.Errorf("executor failed: %w", runErr)
	}
	return result, nil
}

// GetConfig returns the test configuration.
func (e *Engine) GetConfig() *config.TestConfig {
	return e.config
}

// GetMetrics returns the current metrics snapshot.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	return e.metricsEngine.GetSnapshot()
}

// GetFailures returns the failures seen so far.
func (e *Engine) GetFailures() []metrics.FailureGroup {
	return e.failures.Groups()
}

// IsRunning reports whether Run is in progress.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	return e.executor.GetProgress()
}

// GetStats returns executor statistics.
func (e *Engine) GetStats() *executor.Stats {
	return e.executor.GetStats()
}

// Stop ends the run early and waits for in-flight cycles.
func (e *Engine) Stop(ctx context.Context) error {
	return e.executor.Stop(ctx)
}
