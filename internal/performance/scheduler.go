package performance

import (
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/faithtech/sitewalk/internal/behavior"
	"github.com/faithtech/sitewalk/internal/performance/metrics"
)

// HTTPClientConfig contains per-VU HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool
}

// DefaultHTTPClientConfig returns sensible defaults for a single visitor.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
}

// SchedulerConfig describes the visitors a scheduler spawns.
type SchedulerConfig struct {
	// BaseURL of the website under test
	BaseURL string

	// Actions is the weighted page mix (default: behavior.DefaultActions)
	Actions []behavior.WeightedAction

	// ThinkMin and ThinkMax bound the pause after each visit; both zero
	// means no pause
	ThinkMin time.Duration
	ThinkMax time.Duration

	// HeaderChecks enables advisory header inspection
	HeaderChecks bool

	// HTTP configures each VU's client
	HTTP HTTPClientConfig

	// MaxRPS caps the request rate across all VUs (0 = unlimited)
	MaxRPS int

	// Reporter receives failure events from every VU
	Reporter behavior.Reporter

	// Observer is notified of every request (optional)
	Observer RequestObserver

	// Logger is the parent logger for VU sessions
	Logger *zap.Logger
}

// VUScheduler creates Virtual Users and tracks the live ones.
//
// Executors ask it for VUs; it wires each one with a fresh HTTP client, a
// private random source, and the shared sinks.
type VUScheduler struct {
	config  SchedulerConfig
	metrics *metrics.Engine
	wait    behavior.WaitTime
	limiter ratelimit.Limiter
	logger  *zap.Logger

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32
	seed     int64
}

// NewVUScheduler validates cfg and returns a scheduler.
func NewVUScheduler(cfg SchedulerConfig, metricsEngine *metrics.Engine) (*VUScheduler, error) {
	if metricsEngine == nil {
		return nil, errors.New("metrics engine is required")
	}
	if len(cfg.Actions) == 0 {
		cfg.Actions = behavior.DefaultActions
	}
	if _, err := behavior.NewSampler(cfg.Actions, nil); err != nil {
		return nil, err
	}
	wait, err := behavior.Between(cfg.ThinkMin, cfg.ThinkMax)
	if err != nil {
		return nil, err
	}
	if cfg.HTTP == (HTTPClientConfig{}) {
		cfg.HTTP = DefaultHTTPClientConfig()
	}
	if cfg.MaxRPS < 0 {
		return nil, fmt.Errorf("max rps must be >= 0, got %d", cfg.MaxRPS)
	}
	if cfg.Reporter == nil {
		cfg.Reporter = behavior.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &VUScheduler{
		config:  cfg,
		metrics: metricsEngine,
		wait:    wait,
		logger:  logger,
		vus:     make(map[int]*VirtualUser),
		seed:    time.Now().UnixNano(),
	}
	if cfg.MaxRPS > 0 {
		s.limiter = ratelimit.New(cfg.MaxRPS)
	}
	return s, nil
}

// createHTTPClient creates an HTTP client with the configured settings.
func (s *VUScheduler) createHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: s.config.HTTP.MaxIdleConnsPerHost,
		IdleConnTimeout:     s.config.HTTP.IdleConnTimeout,
		DisableKeepAlives:   s.config.HTTP.DisableKeepAlives,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   s.config.HTTP.Timeout,
	}
}

// SpawnVU creates and registers a new Virtual User.
//
// The VU is registered with the scheduler but not started.
// The caller is responsible for running it and calling Release when done.
func (s *VUScheduler) SpawnVU() (*VirtualUser, error) {
	id := int(s.nextVUID.Add(1))
	sessionID := uuid.NewString()
	logger := s.logger.With(zap.Int("vu", id), zap.String("session_id", sessionID))
	client := s.createHTTPClient()

	user, err := behavior.NewWebsiteUser(client, s.config.BaseURL, behavior.Options{
		Actions:      s.config.Actions,
		WaitTime:     s.wait,
		Reporter:     s.config.Reporter,
		Logger:       logger,
		Rand:         rand.New(rand.NewSource(s.seed + int64(id))),
		HeaderChecks: s.config.HeaderChecks,
	})
	if err != nil {
		return nil, fmt.Errorf("spawn VU %d: %w", id, err)
	}

	vu := &VirtualUser{
		ID:         id,
		SessionID:  sessionID,
		User:       user,
		HTTPClient: client,
		Metrics:    s.metrics,
		reporter:   s.config.Reporter,
		observer:   s.config.Observer,
		limiter:    s.limiter,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	logger.Debug("session started")
	return vu, nil
}

// Release unregisters a VU.
func (s *VUScheduler) Release(vu *VirtualUser) {
	s.vusMu.Lock()
	delete(s.vus, vu.ID)
	s.vusMu.Unlock()
}

// ActiveVUs returns the number of registered VUs.
func (s *VUScheduler) ActiveVUs() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return len(s.vus)
}

// StopAll requests every registered VU to stop.
func (s *VUScheduler) StopAll() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// SpawnedVUs returns the total number of VUs created so far.
func (s *VUScheduler) SpawnedVUs() int {
	return int(s.nextVUID.Load())
}
