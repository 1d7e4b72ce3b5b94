package executor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/faithtech/sitewalk/internal/behavior"
	"github.com/faithtech/sitewalk/internal/performance"
	"github.com/faithtech/sitewalk/internal/performance/executor"
	"github.com/faithtech/sitewalk/internal/performance/metrics"
)

func createTestServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
}

// createTestScheduler returns a scheduler whose VUs visit serverURL with a
// short fixed think time.
func createTestScheduler(t *testing.T, serverURL string) (*performance.VUScheduler, *metrics.Engine) {
	t.Helper()
	m := metrics.NewEngine()
	s, err := performance.NewVUScheduler(performance.SchedulerConfig{
		BaseURL:  serverURL,
		Actions:  behavior.DefaultActions,
		ThinkMin: 5 * time.Millisecond,
		ThinkMax: 10 * time.Millisecond,
	}, m)
	if err != nil {
		t.Fatalf("NewVUScheduler() error = %v", err)
	}
	return s, m
}

func TestConstantVUs_Type(t *testing.T) {
	e := executor.NewConstantVUs()
	if e.Type() != executor.TypeConstantVUs {
		t.Errorf("Type() = %v, want %v", e.Type(), executor.TypeConstantVUs)
	}
}

func TestConstantVUs_Init_InvalidType(t *testing.T) {
	e := executor.NewConstantVUs()
	err := e.Init(context.Background(), &executor.Config{
		Type:   executor.TypeRampingVUs,
		Stages: []executor.Stage{{Duration: time.Second, Target: 1}},
	})
	if err == nil {
		t.Fatal("Init() expected error for wrong type, got nil")
	}
}

func TestConstantVUs_Run(t *testing.T) {
	server := createTestServer()
	defer server.Close()

	scheduler, m := createTestScheduler(t, server.URL)
	e := executor.NewConstantVUs()
	if err := e.Init(context.Background(), &executor.Config{
		Type:     executor.TypeConstantVUs,
		VUs:      3,
		Duration: 300 * time.Millisecond,
	}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	start := time.Now()
	if err := e.Run(context.Background(), scheduler, m); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 300*time.Millisecond || elapsed > 2*time.Second {
		t.Errorf("Run() took %v, want about 300ms", elapsed)
	}
	if scheduler.SpawnedVUs() != 3 {
		t.Errorf("SpawnedVUs() = %d, want 3", scheduler.SpawnedVUs())
	}
	if scheduler.ActiveVUs() != 0 {
		t.Errorf("ActiveVUs() after Run = %d, want 0", scheduler.ActiveVUs())
	}
	if e.GetActiveVUs() != 0 {
		t.Errorf("GetActiveVUs() after Run = %d, want 0", e.GetActiveVUs())
	}
	if e.GetProgress() != 1.0 {
		t.Errorf("GetProgress() after Run = %v, want 1", e.GetProgress())
	}

	snap := m.GetSnapshot()
	if snap.TotalRequests < 3 {
		t.Errorf("TotalRequests = %d, want at least one per VU", snap.TotalRequests)
	}
	if snap.FailedRequests != 0 {
		t.Errorf("FailedRequests = %d, want 0", snap.FailedRequests)
	}
	if snap.CurrentPhase != metrics.PhaseDone {
		t.Errorf("phase = %v, want done", snap.CurrentPhase)
	}

	stats := e.GetStats()
	if stats.TargetVUs != 3 || stats.TotalDuration != 300*time.Millisecond {
		t.Errorf("stats = %+v", stats)
	}
	// The last cycle of each VU ends in an interrupted think time and is
	// not counted as a completed iteration.
	if stats.Iterations == 0 || stats.Iterations > snap.TotalRequests {
		t.Errorf("Iterations = %d, TotalRequests = %d", stats.Iterations, snap.TotalRequests)
	}
}

func TestConstantVUs_Stop(t *testing.T) {
	server := createTestServer()
	defer server.Close()

	scheduler, m := createTestScheduler(t, server.URL)
	e := executor.NewConstantVUs()
	if err := e.Init(context.Background(), &executor.Config{
		Type:     executor.TypeConstantVUs,
		VUs:      2,
		Duration: time.Minute,
	}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), scheduler, m) }()

	time.Sleep(100 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop()")
	}
}

func TestConstantVUs_ContextCancel(t *testing.T) {
	server := createTestServer()
	defer server.Close()

	scheduler, m := createTestScheduler(t, server.URL)
	e := executor.NewConstantVUs()
	if err := e.Init(context.Background(), &executor.Config{
		Type:     executor.TypeConstantVUs,
		VUs:      2,
		Duration: time.Minute,
	}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := e.Run(ctx, scheduler, m); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run() took %v after cancel", elapsed)
	}
}

func TestConstantVUs_SpawnError(t *testing.T) {
	m := metrics.NewEngine()
	scheduler, err := performance.NewVUScheduler(performance.SchedulerConfig{BaseURL: "ftp://example.com"}, m)
	if err != nil {
		t.Fatalf("NewVUScheduler() error = %v", err)
	}

	e := executor.NewConstantVUs()
	if err := e.Init(context.Background(), &executor.Config{
		Type:     executor.TypeConstantVUs,
		VUs:      2,
		Duration: time.Minute,
	}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	start := time.Now()
	if err := e.Run(context.Background(), scheduler, m); err == nil {
		t.Fatal("Run() expected spawn error, got nil")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run() took %v to fail", elapsed)
	}
}
