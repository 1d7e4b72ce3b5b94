// Package performance runs website visitors as virtual users: it owns their
// lifecycle, HTTP clients and metrics recording. Executors in the executor
// package decide how many run at a time.
package performance

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/faithtech/sitewalk/internal/behavior"
	"github.com/faithtech/sitewalk/internal/performance/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is in the middle of a cycle.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// RequestObserver is notified of every request a VU sends.
type RequestObserver interface {
	ObserveRequest(name string, status int, elapsed time.Duration)
}

// VirtualUser is one simulated visitor session.
//
// Each VU has its own HTTP client, random source and WebsiteUser; nothing
// mutable is shared with other VUs except the thread-safe metrics sinks.
type VirtualUser struct {
	// ID is the sequence number assigned by the scheduler
	ID int

	// SessionID uniquely identifies this session in logs
	SessionID string

	// User performs the page visits
	User *behavior.WebsiteUser

	// HTTPClient is owned by this VU
	HTTPClient *http.Client

	// Metrics engine for recording results
	Metrics *metrics.Engine

	reporter behavior.Reporter
	observer RequestObserver
	limiter  ratelimit.Limiter
	logger   *zap.Logger

	state     atomic.Int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	iteration atomic.Int64
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of cycles started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// RunIteration performs one cycle: pick a page, visit it, record the result,
// then think. A failed check is not an error.
//
// Returns:
//   - nil if the cycle completed or the VU was asked to stop
//   - ctx.Err() if the context ended during the think time
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	currentState := vu.GetState()
	if currentState == VUStateStopping || currentState == VUStateStopped {
		return fmt.Errorf("VU %d is stopping or stopped", vu.ID)
	}

	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
	defer vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	vu.iteration.Add(1)

	if vu.limiter != nil {
		vu.limiter.Take()
	}

	// ctx ends the session between cycles, never mid-request
	action := vu.User.Next()
	outcome, err := vu.User.Execute(context.WithoutCancel(ctx), action)
	if err != nil {
		vu.recordTransportError(action, outcome.Elapsed, err)
	} else {
		vu.Metrics.RecordLatency(outcome.Elapsed, outcome.Path, outcome.Passed, outcome.Bytes)
		if metrics.IsHTTPFailure(outcome.StatusCode) {
			vu.Metrics.RecordHTTPFailure()
		}
		if vu.observer != nil {
			vu.observer.ObserveRequest(outcome.Path, outcome.StatusCode, outcome.Elapsed)
		}
	}

	return vu.think(ctx)
}

// recordTransportError counts a request that produced no response and
// forwards it to the failure sink.
func (vu *VirtualUser) recordTransportError(action behavior.Action, elapsed time.Duration, err error) {
	path := action.Path()
	vu.logger.Warn("request error", zap.String("path", path), zap.Error(err))

	vu.Metrics.RecordLatency(elapsed, path, false, 0)
	vu.Metrics.RecordHTTPFailure()
	if vu.observer != nil {
		vu.observer.ObserveRequest(path, 0, elapsed)
	}
	vu.reporter.ReportFailure(behavior.Failure{
		RequestType:    http.MethodGet,
		Name:           path,
		ResponseTimeMs: behavior.Millis(elapsed),
		Exception:      err.Error(),
		Kind:           behavior.RequestError,
	})
}

// think waits for one think-time sample, a stop request, or ctx.
func (vu *VirtualUser) think(ctx context.Context) error {
	d := vu.User.ThinkTime()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-vu.stopCh:
		return nil
	case <-t.C:
		return nil
	}
}

// RequestStop signals the VU to stop after its current cycle.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-vu.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// MarkStopped marks the VU as fully stopped and releases its connections.
// Called by the executor when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	select {
	case <-vu.doneCh:
		return
	default:
		close(vu.doneCh)
	}
	vu.HTTPClient.CloseIdleConnections()
	vu.logger.Debug("session stopped", zap.Int64("iterations", vu.iteration.Load()))
}

// Loop runs cycles until ctx ends or a stop is requested.
func (vu *VirtualUser) Loop(ctx context.Context, onIteration func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-vu.stopCh:
			return
		default:
		}

		if err := vu.RunIteration(ctx); err != nil {
			if ctx.Err() != nil || vu.GetState() == VUStateStopping || vu.GetState() == VUStateStopped {
				return
			}
		}
		if onIteration != nil {
			onIteration()
		}
	}
}
