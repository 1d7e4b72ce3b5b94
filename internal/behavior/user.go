package behavior

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Options configures a WebsiteUser. Zero values fall back to the defaults.
type Options struct {
	// Actions is the weighted page mix (default: DefaultActions)
	Actions []WeightedAction

	// WaitTime is the think time after each action (default: 1s..3s)
	WaitTime WaitTime

	// Criteria is the health rule (default: DefaultCriteria)
	Criteria HealthCriteria

	// Reporter receives failure events (default: Discard)
	Reporter Reporter

	// Logger for debug and advisory output (default: no-op)
	Logger *zap.Logger

	// Rand drives action selection and think time (default: time-seeded)
	Rand *rand.Rand

	// HeaderChecks enables advisory header inspection
	HeaderChecks bool
}

// WebsiteUser is one simulated visitor. It is driven sequentially by a
// single goroutine and shares nothing with other users.
type WebsiteUser struct {
	client   *http.Client
	baseURL  string
	sampler  *Sampler
	wait     WaitTime
	criteria HealthCriteria
	reporter Reporter
	advisor  *HeaderAdvisor
	logger   *zap.Logger
	rng      *rand.Rand
}

// NewWebsiteUser creates a visitor sending requests to baseURL with client.
func NewWebsiteUser(client *http.Client, baseURL string, opts Options) (*WebsiteUser, error) {
	if client == nil {
		return nil, errors.New("behavior: http client is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("behavior: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("behavior: base url must be http or https, got %q", baseURL)
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	actions := opts.Actions
	if len(actions) == 0 {
		actions = DefaultActions
	}
	sampler, err := NewSampler(actions, rng)
	if err != nil {
		return nil, err
	}

	wait := opts.WaitTime
	if wait == nil {
		wait, _ = Between(DefaultThinkMin, DefaultThinkMax)
	}

	criteria := opts.Criteria
	if criteria == (HealthCriteria{}) {
		criteria = DefaultCriteria()
	}

	reporter := opts.Reporter
	if reporter == nil {
		reporter = Discard
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	user := &WebsiteUser{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		sampler:  sampler,
		wait:     wait,
		criteria: criteria,
		reporter: reporter,
		logger:   logger,
		rng:      rng,
	}
	if opts.HeaderChecks {
		user.advisor = NewHeaderAdvisor(logger)
	}
	return user, nil
}

// Next selects the next action.
func (u *WebsiteUser) Next() Action {
	return u.sampler.Next()
}

// Execute performs one GET for the action and checks the response. A failed
// check is reported to the Reporter and returned in the Outcome; it is not an
// error. The error is non-nil only when no response was received.
func (u *WebsiteUser) Execute(ctx context.Context, a Action) (Outcome, error) {
	path := a.Path()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+path, nil)
	if err != nil {
		return Outcome{Path: path}, fmt.Errorf("build request for %s: %w", path, err)
	}

	start := time.Now()
	resp, err := u.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Outcome{Path: path, Elapsed: elapsed}, err
	}
	defer resp.Body.Close()

	n, _ := io.Copy(io.Discard, resp.Body)

	out := u.criteria.Check(path, resp.StatusCode, elapsed)
	out.Bytes = n

	if u.advisor != nil {
		u.advisor.Inspect(path, resp)
	}

	if !out.Passed {
		u.logger.Debug("check failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed),
			zap.String("reason", out.Reason))
		u.reporter.ReportFailure(Failure{
			RequestType:    http.MethodGet,
			Name:           path,
			ResponseTimeMs: Millis(elapsed),
			Exception:      out.Reason,
			Kind:           out.Kind,
		})
	}
	return out, nil
}

// ThinkTime samples one think-time duration.
func (u *WebsiteUser) ThinkTime() time.Duration {
	return u.wait(u.rng)
}

// Wait pauses for one think-time sample or until ctx is done.
func (u *WebsiteUser) Wait(ctx context.Context) error {
	d := u.ThinkTime()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run repeats select, execute, wait until ctx is done. Failed checks and
// transport errors never end the loop. Cancellation is observed between
// cycles and during the wait; a request already sent runs to completion.
func (u *WebsiteUser) Run(ctx context.Context) error {
	reqCtx := context.WithoutCancel(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		a := u.Next()
		if _, err := u.Execute(reqCtx, a); err != nil {
			u.logger.Warn("request failed", zap.String("action", a.String()), zap.Error(err))
		}

		if err := u.Wait(ctx); err != nil {
			return err
		}
	}
}
