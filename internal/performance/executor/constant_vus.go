package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faithtech/sitewalk/internal/performance"
	"github.com/faithtech/sitewalk/internal/performance/metrics"
)

// ConstantVUs runs a fixed number of VUs for a specified duration.
//
// Every VU loops through visit and think until the duration expires.
type ConstantVUs struct {
	config    *Config
	scheduler *performance.VUScheduler
	metrics   *metrics.Engine

	startTime  time.Time
	activeVUs  atomic.Int32
	iterations atomic.Int64
	running    atomic.Bool

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	mu sync.RWMutex
}

// NewConstantVUs creates a new constant VUs executor.
func NewConstantVUs() *ConstantVUs {
	return &ConstantVUs{}
}

// Type returns the executor type.
func (e *ConstantVUs) Type() Type {
	return TypeConstantVUs
}

// Init initializes the executor with configuration.
func (e *ConstantVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeConstantVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run starts the executor and blocks until completion.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) error {
	e.scheduler = scheduler
	e.metrics = metricsEngine
	e.running.Store(true)
	defer e.running.Store(false)

	e.mu.Lock()
	e.startTime = time.Now()
	e.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	e.mu.Lock()
	e.cancelFunc = cancel
	e.mu.Unlock()
	defer cancel()

	e.metrics.SetPhase(metrics.PhaseSteady)

	var spawnErr error
	for i := 0; i < e.config.VUs; i++ {
		vu, err := scheduler.SpawnVU()
		if err != nil {
			spawnErr = err
			cancel()
			break
		}
		e.wg.Add(1)
		go e.runVU(runCtx, vu)
	}

	<-runCtx.Done()
	if !waitTimeout(&e.wg, e.config.gracefulStop()) {
		scheduler.StopAll()
	}

	e.metrics.SetPhase(metrics.PhaseDone)
	return spawnErr
}

// runVU runs a single VU until the context is cancelled.
func (e *ConstantVUs) runVU(ctx context.Context, vu *performance.VirtualUser) {
	defer e.wg.Done()
	defer e.scheduler.Release(vu)
	defer vu.MarkStopped()

	e.metrics.SetActiveVUs(int(e.activeVUs.Add(1)))
	defer func() {
		e.metrics.SetActiveVUs(int(e.activeVUs.Add(-1)))
	}()

	vu.Loop(ctx, func() { e.iterations.Add(1) })
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantVUs) GetProgress() float64 {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	if !e.running.Load() {
		if start.IsZero() {
			return 0.0
		}
		return 1.0
	}

	progress := float64(time.Since(start)) / float64(e.config.Duration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetActiveVUs returns current active VU count.
func (e *ConstantVUs) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

// GetStats returns executor statistics.
func (e *ConstantVUs) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var elapsed time.Duration
	if !e.startTime.IsZero() {
		elapsed = time.Since(e.startTime)
	}

	return &Stats{
		StartTime:     e.startTime,
		CurrentTime:   time.Now(),
		Elapsed:       elapsed,
		TotalDuration: e.config.Duration,
		ActiveVUs:     int(e.activeVUs.Load()),
		TargetVUs:     e.config.VUs,
		Iterations:    e.iterations.Load(),
	}
}

// Stop cancels the run and waits for in-flight cycles, bounded by the
// graceful stop timeout.
func (e *ConstantVUs) Stop(ctx context.Context) error {
	e.mu.RLock()
	cancel := e.cancelFunc
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	return waitContext(ctx, &e.wg, e.config.gracefulStop())
}

// Ensure ConstantVUs implements Executor
var _ Executor = (*ConstantVUs)(nil)
