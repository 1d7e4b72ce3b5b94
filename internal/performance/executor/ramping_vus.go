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

// RampingVUs ramps VU count up and down according to stages.
//
// The VU count is interpolated linearly within each stage, so a ramp from 0
// to 20 over 30s adds a visitor roughly every 1.5s.
//
// Example stages:
//
//	stages:
//	  - duration: 30s
//	    target: 20     # Ramp from 0 to 20 VUs over 30s
//	  - duration: 1m
//	    target: 20     # Stay at 20 VUs for a minute
//	  - duration: 30s
//	    target: 0      # Ramp down to 0 VUs over 30s
type RampingVUs struct {
	config    *Config
	scheduler *performance.VUScheduler
	metrics   *metrics.Engine

	startTime    time.Time
	activeVUs    atomic.Int32
	targetVUs    atomic.Int32
	iterations   atomic.Int64
	currentStage atomic.Int32
	running      atomic.Bool

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	// live VUs, newest last
	vus      []*performance.VirtualUser
	vusMu    sync.Mutex
	spawnErr error

	mu sync.RWMutex
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{
		vus: make([]*performance.VirtualUser, 0),
	}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeRampingVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeRampingVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run starts the executor and blocks until completion.
func (e *RampingVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) error {
	e.scheduler = scheduler
	e.metrics = metricsEngine
	e.running.Store(true)
	defer e.running.Store(false)

	e.mu.Lock()
	e.startTime = time.Now()
	e.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, e.config.TotalDuration())
	e.mu.Lock()
	e.cancelFunc = cancel
	e.mu.Unlock()
	defer cancel()

	controllerDone := make(chan struct{})
	go func() {
		e.vuController(runCtx, cancel)
		close(controllerDone)
	}()

	<-runCtx.Done()
	<-controllerDone

	e.gracefulShutdown()

	e.metrics.SetPhase(metrics.PhaseDone)

	e.vusMu.Lock()
	defer e.vusMu.Unlock()
	return e.spawnErr
}

// vuController adjusts VU count according to stages.
func (e *RampingVUs) vuController(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	tick := func() bool {
		target := e.calculateTargetVUs(time.Since(e.startTime))
		e.targetVUs.Store(int32(target))
		if err := e.adjustVUs(ctx, target); err != nil {
			cancel()
			return false
		}
		e.updatePhase()
		return true
	}

	if !tick() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !tick() {
				return
			}
		}
	}
}

// calculateTargetVUs returns the interpolated VU count at elapsed.
func (e *RampingVUs) calculateTargetVUs(elapsed time.Duration) int {
	var stageStart time.Duration
	prevTarget := 0

	for i, stage := range e.config.Stages {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			e.currentStage.Store(int32(i))

			stageProgress := float64(elapsed-stageStart) / float64(stage.Duration)
			if stageProgress < 0 {
				stageProgress = 0
			}
			if stageProgress > 1 {
				stageProgress = 1
			}

			targetVUs := float64(prevTarget) + float64(stage.Target-prevTarget)*stageProgress
			return int(targetVUs + 0.5)
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	if len(e.config.Stages) > 0 {
		return e.config.Stages[len(e.config.Stages)-1].Target
	}
	return 0
}

// adjustVUs spawns or stops VUs to match the target. Excess VUs are asked to
// stop and finish their current cycle on their own.
func (e *RampingVUs) adjustVUs(ctx context.Context, targetVUs int) error {
	e.vusMu.Lock()
	defer e.vusMu.Unlock()

	currentVUs := len(e.vus)

	if targetVUs > currentVUs {
		for i := currentVUs; i < targetVUs; i++ {
			vu, err := e.scheduler.SpawnVU()
			if err != nil {
				e.spawnErr = err
				return err
			}
			e.vus = append(e.vus, vu)
			e.wg.Add(1)
			go e.runVU(ctx, vu)
		}
	} else if targetVUs < currentVUs {
		for i := currentVUs - 1; i >= targetVUs; i-- {
			e.vus[i].RequestStop()
		}
		e.vus = e.vus[:targetVUs]
	}

	return nil
}

// updatePhase updates the metrics phase based on current stage.
func (e *RampingVUs) updatePhase() {
	stageIdx := int(e.currentStage.Load())
	if stageIdx >= len(e.config.Stages) {
		return
	}

	stage := e.config.Stages[stageIdx]
	prevTarget := 0
	if stageIdx > 0 {
		prevTarget = e.config.Stages[stageIdx-1].Target
	}

	switch {
	case stage.Target == prevTarget:
		e.metrics.SetPhase(metrics.PhaseSteady)
	case stage.Target > prevTarget:
		e.metrics.SetPhase(metrics.PhaseRampUp)
	default:
		e.metrics.SetPhase(metrics.PhaseRampDown)
	}
}

// runVU runs a single VU until stopped.
func (e *RampingVUs) runVU(ctx context.Context, vu *performance.VirtualUser) {
	defer e.wg.Done()
	defer e.scheduler.Release(vu)
	defer vu.MarkStopped()

	e.metrics.SetActiveVUs(int(e.activeVUs.Add(1)))
	defer func() {
		e.metrics.SetActiveVUs(int(e.activeVUs.Add(-1)))
	}()

	vu.Loop(ctx, func() { e.iterations.Add(1) })
}

// gracefulShutdown stops every VU and waits for their current cycles.
func (e *RampingVUs) gracefulShutdown() {
	e.vusMu.Lock()
	for _, vu := range e.vus {
		vu.RequestStop()
	}
	e.vus = e.vus[:0]
	e.vusMu.Unlock()

	waitTimeout(&e.wg, e.config.gracefulStop())
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	if !e.running.Load() {
		if start.IsZero() {
			return 0.0
		}
		return 1.0
	}

	totalDuration := e.config.TotalDuration()
	if totalDuration == 0 {
		return 1.0
	}

	progress := float64(time.Since(start)) / float64(totalDuration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetActiveVUs returns current active VU count.
func (e *RampingVUs) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var elapsed time.Duration
	if !e.startTime.IsZero() {
		elapsed = time.Since(e.startTime)
	}

	stageIdx := int(e.currentStage.Load())
	stageName := ""
	if stageIdx < len(e.config.Stages) {
		stageName = e.config.Stages[stageIdx].Name
	}

	return &Stats{
		StartTime:        e.startTime,
		CurrentTime:      time.Now(),
		Elapsed:          elapsed,
		TotalDuration:    e.config.TotalDuration(),
		ActiveVUs:        int(e.activeVUs.Load()),
		TargetVUs:        int(e.targetVUs.Load()),
		Iterations:       e.iterations.Load(),
		CurrentStage:     stageIdx,
		CurrentStageName: stageName,
		TotalStages:      len(e.config.Stages),
	}
}

// Stop gracefully stops the executor.
func (e *RampingVUs) Stop(ctx context.Context) error {
	e.mu.RLock()
	cancel := e.cancelFunc
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	return waitContext(ctx, &e.wg, e.config.gracefulStop())
}

// Ensure RampingVUs implements Executor
var _ Executor = (*RampingVUs)(nil)
