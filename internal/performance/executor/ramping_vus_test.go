package executor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/faithtech/sitewalk/internal/performance/executor"
	"github.com/faithtech/sitewalk/internal/performance/metrics"
)

func TestRampingVUs_Type(t *testing.T) {
	e := executor.NewRampingVUs()
	if e.Type() != executor.TypeRampingVUs {
		t.Errorf("Type() = %v, want %v", e.Type(), executor.TypeRampingVUs)
	}
}

func TestRampingVUs_Init(t *testing.T) {
	tests := []struct {
		name    string
		config  *executor.Config
		wantErr bool
	}{
		{"valid", &executor.Config{Type: executor.TypeRampingVUs, Stages: []executor.Stage{
			{Duration: 30 * time.Second, Target: 20},
			{Duration: time.Minute, Target: 20},
			{Duration: 30 * time.Second, Target: 0},
		}}, false},
		{"wrong type", &executor.Config{Type: executor.TypeConstantVUs, VUs: 1, Duration: time.Second}, true},
		{"no stages", &executor.Config{Type: executor.TypeRampingVUs}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := executor.NewRampingVUs().Init(context.Background(), tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Init() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRampingVUs_Run(t *testing.T) {
	server := createTestServer()
	defer server.Close()

	scheduler, m := createTestScheduler(t, server.URL)
	e := executor.NewRampingVUs()
	if err := e.Init(context.Background(), &executor.Config{
		Type: executor.TypeRampingVUs,
		Stages: []executor.Stage{
			{Duration: 300 * time.Millisecond, Target: 4, Name: "up"},
			{Duration: 300 * time.Millisecond, Target: 4, Name: "hold"},
			{Duration: 300 * time.Millisecond, Target: 0, Name: "down"},
		},
	}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	var (
		peak int
		mu   sync.Mutex
	)
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				mu.Lock()
				if n := e.GetActiveVUs(); n > peak {
					peak = n
				}
				mu.Unlock()
			}
		}
	}()

	if err := e.Run(context.Background(), scheduler, m); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(stop)

	mu.Lock()
	defer mu.Unlock()
	if peak < 1 || peak > 4 {
		t.Errorf("peak active VUs = %d, want 1..4", peak)
	}
	if scheduler.SpawnedVUs() < 4 {
		t.Errorf("SpawnedVUs() = %d, want at least 4", scheduler.SpawnedVUs())
	}
	if scheduler.ActiveVUs() != 0 {
		t.Errorf("ActiveVUs() after Run = %d, want 0", scheduler.ActiveVUs())
	}
	if m.GetSnapshot().TotalRequests == 0 {
		t.Error("expected requests during the ramp")
	}

	var phases []metrics.Phase
	for _, p := range m.GetPhaseHistory() {
		phases = append(phases, p.Phase)
	}
	want := []metrics.Phase{metrics.PhaseRampUp, metrics.PhaseSteady, metrics.PhaseRampDown, metrics.PhaseDone}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase[%d] = %v, want %v", i, phases[i], want[i])
		}
	}

	stats := e.GetStats()
	if stats.TotalStages != 3 || stats.TotalDuration != 900*time.Millisecond {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRampingVUs_Stop(t *testing.T) {
	server := createTestServer()
	defer server.Close()

	scheduler, m := createTestScheduler(t, server.URL)
	e := executor.NewRampingVUs()
	if err := e.Init(context.Background(), &executor.Config{
		Type:   executor.TypeRampingVUs,
		Stages: []executor.Stage{{Duration: time.Minute, Target: 3}},
	}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), scheduler, m) }()

	time.Sleep(150 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e.Stop(ctx)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop()")
	}
	if scheduler.ActiveVUs() != 0 {
		t.Errorf("ActiveVUs() after Stop = %d, want 0", scheduler.ActiveVUs())
	}
}
