package performance_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/faithtech/sitewalk/internal/behavior"
	"github.com/faithtech/sitewalk/internal/performance"
	"github.com/faithtech/sitewalk/internal/performance/metrics"
)

type recorder struct {
	mu       sync.Mutex
	failures []behavior.Failure
	statuses []int
}

func (r *recorder) ReportFailure(f behavior.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

func (r *recorder) ObserveRequest(name string, status int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) snapshot() ([]behavior.Failure, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]behavior.Failure(nil), r.failures...), append([]int(nil), r.statuses...)
}

func statusServer(status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte("<html></html>"))
	}))
}

// onlyIndex visits "/" every time so tests are deterministic.
var onlyIndex = []behavior.WeightedAction{{Action: behavior.Index, Weight: 1}}

func newScheduler(t *testing.T, cfg performance.SchedulerConfig) (*performance.VUScheduler, *metrics.Engine) {
	t.Helper()
	if cfg.Actions == nil {
		cfg.Actions = onlyIndex
	}
	m := metrics.NewEngine()
	s, err := performance.NewVUScheduler(cfg, m)
	if err != nil {
		t.Fatalf("NewVUScheduler() error = %v", err)
	}
	return s, m
}

func spawn(t *testing.T, s *performance.VUScheduler) *performance.VirtualUser {
	t.Helper()
	vu, err := s.SpawnVU()
	if err != nil {
		t.Fatalf("SpawnVU() error = %v", err)
	}
	return vu
}

func TestVUState_String(t *testing.T) {
	tests := []struct {
		state performance.VUState
		want  string
	}{
		{performance.VUStateIdle, "idle"},
		{performance.VUStateRunning, "running"},
		{performance.VUStateStopping, "stopping"},
		{performance.VUStateStopped, "stopped"},
		{performance.VUState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("VUState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestVirtualUser_RunIteration(t *testing.T) {
	server := statusServer(http.StatusOK)
	defer server.Close()

	rec := &recorder{}
	s, m := newScheduler(t, performance.SchedulerConfig{BaseURL: server.URL, Reporter: rec, Observer: rec})
	vu := spawn(t, s)

	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}

	snap := m.GetSnapshot()
	if snap.TotalRequests != 1 || snap.SuccessRequests != 1 {
		t.Errorf("requests = %d total, %d ok; want 1, 1", snap.TotalRequests, snap.SuccessRequests)
	}
	failures, statuses := rec.snapshot()
	if len(failures) != 0 {
		t.Errorf("unexpected failures: %+v", failures)
	}
	if len(statuses) != 1 || statuses[0] != http.StatusOK {
		t.Errorf("observed statuses = %v, want [200]", statuses)
	}
	if vu.GetIteration() != 1 {
		t.Errorf("GetIteration() = %d, want 1", vu.GetIteration())
	}
	if vu.GetState() != performance.VUStateIdle {
		t.Errorf("state after iteration = %v, want idle", vu.GetState())
	}
}

func TestVirtualUser_RunIteration_FailedCheck(t *testing.T) {
	server := statusServer(http.StatusServiceUnavailable)
	defer server.Close()

	rec := &recorder{}
	s, m := newScheduler(t, performance.SchedulerConfig{BaseURL: server.URL, Reporter: rec, Observer: rec})
	vu := spawn(t, s)

	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("a failed check must not be an error, got %v", err)
	}

	if snap := m.GetSnapshot(); snap.FailedRequests != 1 || snap.HTTPFailed != 1 {
		t.Errorf("FailedRequests = %d, HTTPFailed = %d; want 1, 1", snap.FailedRequests, snap.HTTPFailed)
	}
	failures, statuses := rec.snapshot()
	if len(failures) != 1 {
		t.Fatalf("failures = %+v, want one", failures)
	}
	if failures[0].Exception != "Unexpected status code: 503" || failures[0].Name != "/" {
		t.Errorf("failure = %+v", failures[0])
	}
	if len(statuses) != 1 || statuses[0] != http.StatusServiceUnavailable {
		t.Errorf("observed statuses = %v", statuses)
	}
}

func TestVirtualUser_RunIteration_TransportError(t *testing.T) {
	server := statusServer(http.StatusOK)
	url := server.URL
	server.Close()

	rec := &recorder{}
	s, m := newScheduler(t, performance.SchedulerConfig{BaseURL: url, Reporter: rec, Observer: rec})
	vu := spawn(t, s)

	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}

	if snap := m.GetSnapshot(); snap.FailedRequests != 1 || snap.HTTPFailed != 1 {
		t.Errorf("FailedRequests = %d, HTTPFailed = %d; want 1, 1", snap.FailedRequests, snap.HTTPFailed)
	}
	failures, statuses := rec.snapshot()
	if len(failures) != 1 || failures[0].Kind != behavior.RequestError || failures[0].Exception == "" {
		t.Fatalf("failures = %+v, want one request error", failures)
	}
	if failures[0].RequestType != http.MethodGet {
		t.Errorf("RequestType = %q", failures[0].RequestType)
	}
	if len(statuses) != 1 || statuses[0] != 0 {
		t.Errorf("observed statuses = %v, want [0]", statuses)
	}
}

func TestVirtualUser_RunIteration_SlowOKIsNotHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(520 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rec := &recorder{}
	s, m := newScheduler(t, performance.SchedulerConfig{BaseURL: server.URL, Reporter: rec})
	vu := spawn(t, s)

	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}

	snap := m.GetSnapshot()
	if snap.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want the slow check counted", snap.FailedRequests)
	}
	if snap.HTTPFailed != 0 || snap.HTTPFailedRate != 0 {
		t.Errorf("HTTPFailed = %d, rate %v; a slow 200 is not an HTTP failure", snap.HTTPFailed, snap.HTTPFailedRate)
	}
	if failures, _ := rec.snapshot(); len(failures) != 1 || failures[0].Kind != behavior.SlowResponse {
		t.Errorf("failures = %+v, want one slow response", failures)
	}
}

func TestVirtualUser_InFlightRequestSurvivesCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rec := &recorder{}
	s, m := newScheduler(t, performance.SchedulerConfig{BaseURL: server.URL, Reporter: rec})
	vu := spawn(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	vu.RunIteration(ctx)

	snap := m.GetSnapshot()
	if snap.TotalRequests != 1 || snap.SuccessRequests != 1 {
		t.Errorf("requests = %d total, %d ok; want the in-flight request to complete", snap.TotalRequests, snap.SuccessRequests)
	}
	if failures, _ := rec.snapshot(); len(failures) != 0 {
		t.Errorf("unexpected failures: %+v", failures)
	}
}

func TestVirtualUser_StoppedVU(t *testing.T) {
	server := statusServer(http.StatusOK)
	defer server.Close()

	s, m := newScheduler(t, performance.SchedulerConfig{BaseURL: server.URL})
	vu := spawn(t, s)
	vu.RequestStop()

	if vu.GetState() != performance.VUStateStopping {
		t.Errorf("state = %v, want stopping", vu.GetState())
	}
	if err := vu.RunIteration(context.Background()); err == nil {
		t.Error("RunIteration() on a stopping VU should fail")
	}
	if m.GetSnapshot().TotalRequests != 0 {
		t.Error("a stopping VU must not send requests")
	}

	// A second stop request is a no-op.
	vu.RequestStop()
}

func TestVirtualUser_LoopStopsDuringThinkTime(t *testing.T) {
	server := statusServer(http.StatusOK)
	defer server.Close()

	s, m := newScheduler(t, performance.SchedulerConfig{
		BaseURL:  server.URL,
		ThinkMin: 10 * time.Second,
		ThinkMax: 10 * time.Second,
	})
	vu := spawn(t, s)

	var iterations int
	done := make(chan struct{})
	go func() {
		defer close(done)
		vu.Loop(context.Background(), func() { iterations++ })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.GetSnapshot().TotalRequests == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	vu.RequestStop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Loop did not return after RequestStop")
	}
	if iterations != 1 {
		t.Errorf("iterations = %d, want 1", iterations)
	}
}

func TestVirtualUser_LoopStopsOnContext(t *testing.T) {
	server := statusServer(http.StatusOK)
	defer server.Close()

	s, m := newScheduler(t, performance.SchedulerConfig{
		BaseURL:  server.URL,
		ThinkMin: 5 * time.Millisecond,
		ThinkMax: 5 * time.Millisecond,
	})
	vu := spawn(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	vu.Loop(ctx, nil)

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Loop ran for %v after context deadline", elapsed)
	}
	if m.GetSnapshot().TotalRequests < 2 {
		t.Errorf("TotalRequests = %d, want several", m.GetSnapshot().TotalRequests)
	}
}

func TestVirtualUser_MarkStoppedAndWait(t *testing.T) {
	server := statusServer(http.StatusOK)
	defer server.Close()

	s, _ := newScheduler(t, performance.SchedulerConfig{BaseURL: server.URL})
	vu := spawn(t, s)

	if vu.WaitForStop(10 * time.Millisecond) {
		t.Error("WaitForStop() = true before MarkStopped")
	}
	vu.MarkStopped()
	vu.MarkStopped()
	if !vu.WaitForStop(10 * time.Millisecond) {
		t.Error("WaitForStop() = false after MarkStopped")
	}
	if vu.GetState() != performance.VUStateStopped {
		t.Errorf("state = %v, want stopped", vu.GetState())
	}
}

func TestVirtualUser_RateLimited(t *testing.T) {
	server := statusServer(http.StatusOK)
	defer server.Close()

	s, m := newScheduler(t, performance.SchedulerConfig{BaseURL: server.URL, MaxRPS: 20})
	vu := spawn(t, s)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := vu.RunIteration(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	// 20 rps spaces requests 50ms apart; the first one is free.
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("5 rate-limited requests took %v, want >= 150ms", elapsed)
	}
	if m.GetSnapshot().TotalRequests != 5 {
		t.Errorf("TotalRequests = %d, want 5", m.GetSnapshot().TotalRequests)
	}
}
