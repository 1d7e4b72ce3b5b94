package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineRecordLatency(t *testing.T) {
	e := NewEngine()

	e.RecordLatency(100*time.Millisecond, "/", true, 512)
	e.RecordLatency(200*time.Millisecond, "/pricing", false, 128)
	e.RecordLatency(300*time.Millisecond, "/pricing", true, 128)

	snap := e.GetSnapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.SuccessRequests)
	assert.Equal(t, int64(1), snap.FailedRequests)
	assert.Equal(t, int64(768), snap.TotalBytes)
	assert.InDelta(t, 1.0/3.0, snap.ErrorRate, 1e-9)
	assert.Equal(t, int64(3), snap.Latency.Count)
	assert.InDelta(t, float64(100*time.Millisecond), float64(snap.Latency.Min), float64(time.Millisecond))
	assert.InDelta(t, float64(300*time.Millisecond), float64(snap.Latency.Max), float64(time.Millisecond))
}

func TestEngineHTTPFailuresAreSeparate(t *testing.T) {
	e := NewEngine()

	// Two slow 200s fail their checks, one 503 fails on status.
	e.RecordLatency(600*time.Millisecond, "/", false, 0)
	e.RecordLatency(700*time.Millisecond, "/", false, 0)
	e.RecordLatency(10*time.Millisecond, "/pricing", false, 0)
	e.RecordHTTPFailure()
	e.RecordLatency(10*time.Millisecond, "/about", true, 0)

	snap := e.GetSnapshot()
	assert.Equal(t, int64(3), snap.FailedRequests)
	assert.Equal(t, int64(1), snap.HTTPFailed)
	assert.InDelta(t, 0.75, snap.ErrorRate, 1e-9)
	assert.InDelta(t, 0.25, snap.HTTPFailedRate, 1e-9)
}

func TestIsHTTPFailure(t *testing.T) {
	for status, want := range map[int]bool{0: true, 199: true, 200: false, 204: false, 302: false, 399: false, 400: true, 404: true, 503: true} {
		assert.Equal(t, want, IsHTTPFailure(status), "status %d", status)
	}
}

func TestEngineRequestStats(t *testing.T) {
	e := NewEngine()
	e.RecordLatency(10*time.Millisecond, "/pricing", false, 0)
	e.RecordLatency(20*time.Millisecond, "/pricing", true, 0)
	e.RecordLatency(30*time.Millisecond, "/about", true, 0)
	e.RecordLatency(40*time.Millisecond, "", true, 0)

	stats := e.GetRequestStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "/about", stats[0].Name)
	assert.Equal(t, int64(1), stats[0].Count)
	assert.Equal(t, int64(0), stats[0].Failed)
	assert.Equal(t, "/pricing", stats[1].Name)
	assert.Equal(t, int64(2), stats[1].Count)
	assert.Equal(t, int64(1), stats[1].Failed)

	// Unnamed requests still count towards the totals.
	assert.Equal(t, int64(4), e.GetSnapshot().TotalRequests)
}

func TestEngineClampsOutOfRangeLatency(t *testing.T) {
	e := NewEngine()
	e.RecordLatency(0, "/", true, 0)
	e.RecordLatency(2*time.Hour, "/", true, 0)

	snap := e.GetSnapshot()
	assert.Equal(t, int64(2), snap.Latency.Count)
	assert.Equal(t, time.Microsecond, snap.Latency.Min)
	assert.InDelta(t, float64(time.Hour), float64(snap.Latency.Max), float64(5*time.Second))
}

func TestEnginePhases(t *testing.T) {
	e := NewEngine()
	assert.Equal(t, PhaseInit, e.GetPhase())

	e.SetPhase(PhaseRampUp)
	e.SetPhase(PhaseRampUp)
	e.RecordLatency(time.Millisecond, "/", true, 0)
	e.SetPhase(PhaseSteady)

	history := e.GetPhaseHistory()
	require.Len(t, history, 2)
	assert.Equal(t, PhaseRampUp, history[0].Phase)
	assert.Equal(t, PhaseSteady, history[1].Phase)
	assert.Equal(t, int64(1), history[1].Requests)
	assert.Equal(t, PhaseSteady, e.GetSnapshot().CurrentPhase)
}

func TestEngineStopFreezesElapsed(t *testing.T) {
	e := NewEngine()
	e.RecordLatency(time.Millisecond, "/", true, 0)
	e.Stop()

	first := e.GetSnapshot()
	time.Sleep(20 * time.Millisecond)
	second := e.GetSnapshot()

	assert.Equal(t, first.Elapsed, second.Elapsed)
	assert.Equal(t, first.RPS, second.RPS)
}

func TestEngineActiveVUs(t *testing.T) {
	e := NewEngine()
	e.SetActiveVUs(7)
	assert.Equal(t, 7, e.GetActiveVUs())
	assert.Equal(t, 7, e.GetSnapshot().ActiveVUs)
}

func TestEngineConcurrentRecording(t *testing.T) {
	e := NewEngine()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				e.RecordLatency(time.Duration(j)*time.Microsecond, "/features", j%10 != 0, 1)
			}
		}()
	}
	wg.Wait()

	snap := e.GetSnapshot()
	assert.Equal(t, int64(4000), snap.TotalRequests)
	assert.Equal(t, int64(400), snap.FailedRequests)
	assert.Equal(t, int64(4000), e.GetRequestStats()[0].Count)
}
