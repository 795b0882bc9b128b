package crawler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// VisitedChecker reports whether a URL was already attempted in this run.
// *Frontier satisfies it.
type VisitedChecker interface {
	Visited(rawURL string) bool
}

// Governor is the gate in front of every fetch. Consecutive requests to one
// host are spaced by a random delay in [minDelay, maxDelay], never less than
// the host's limiter interval, and a longer courtesy pause follows every
// PauseEvery authorizations to the same host.
//
// Design decision: Callers for one host pass through a per-host gate one at
// a time, from the pause check to the release, so the spacing holds across
// any number of workers. The delay is measured from the previous release,
// not from the previous limiter token.
type Governor struct {
	visited VisitedChecker

	minDelay      time.Duration
	maxDelay      time.Duration
	pauseEvery    int
	pauseDuration time.Duration

	mu    sync.Mutex
	hosts map[string]*hostState

	jitter func() float64
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

type hostState struct {
	// gate admits one caller at a time; it is a channel so waiting for it
	// honours ctx.
	gate chan struct{}

	limiter *rate.Limiter
	count   int

	// last is when the previous request to the host was released.
	last time.Time

	// pausedUntil blocks every caller for the host during a courtesy pause.
	pausedUntil time.Time
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithDelay sets the jitter band. Every request to a host waits at least
// min since the previous one, plus a random extra of up to max-min.
func WithDelay(minDelay, maxDelay time.Duration) GovernorOption {
	return func(g *Governor) {
		if minDelay < 0 {
			minDelay = 0
		}
		if maxDelay < minDelay {
			maxDelay = minDelay
		}
		g.minDelay = minDelay
		g.maxDelay = maxDelay
	}
}

// WithCourtesyPause sets the pause taken after every n authorizations.
// n <= 0 disables pauses.
func WithCourtesyPause(n int, d time.Duration) GovernorOption {
	return func(g *Governor) {
		g.pauseEvery = n
		g.pauseDuration = d
	}
}

// WithVisitedChecker sets the visited set consulted before authorizing.
func WithVisitedChecker(v VisitedChecker) GovernorOption {
	return func(g *Governor) {
		g.visited = v
	}
}

// WithGovernorLogger sets the logger.
func WithGovernorLogger(logger *slog.Logger) GovernorOption {
	return func(g *Governor) {
		g.logger = logger
	}
}

// withJitter replaces the random source; used by tests.
func withJitter(fn func() float64) GovernorOption {
	return func(g *Governor) {
		g.jitter = fn
	}
}

// withSleep replaces the sleep function; used by tests.
func withSleep(fn func(ctx context.Context, d time.Duration) error) GovernorOption {
	return func(g *Governor) {
		g.sleep = fn
	}
}

// NewGovernor creates a Governor. Without options requests are not delayed.
func NewGovernor(opts ...GovernorOption) *Governor {
	g := &Governor{
		hosts:  make(map[string]*hostState),
		jitter: rand.Float64,
		sleep:  sleepContext,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize blocks until a request to rawURL may be sent.
// It returns false without waiting if rawURL was already visited; callers
// skip such entries silently. The error is non-nil only when ctx ends.
func (g *Governor) Authorize(ctx context.Context, rawURL string) (bool, error) {
	if g.visited != nil && g.visited.Visited(rawURL) {
		return false, nil
	}

	host := hostOf(rawURL)
	st := g.host(host)

	select {
	case st.gate <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	defer func() { <-st.gate }()

	if err := g.waitPause(ctx, st); err != nil {
		return false, err
	}
	if err := g.waitSpacing(ctx, st); err != nil {
		return false, err
	}
	if err := st.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, err
	}

	g.countRequest(host, st)
	return true, nil
}

// waitSpacing sleeps until a jittered delay has passed since the previous
// release. The first request to a host is not delayed.
func (g *Governor) waitSpacing(ctx context.Context, st *hostState) error {
	g.mu.Lock()
	last := st.last
	g.mu.Unlock()
	if last.IsZero() {
		return nil
	}

	d := g.minDelay
	if extra := g.maxDelay - g.minDelay; extra > 0 {
		d += time.Duration(g.jitter() * float64(extra))
	}
	if wait := time.Until(last.Add(d)); wait > 0 {
		return g.sleep(ctx, wait)
	}
	return nil
}

// SetHostInterval raises the minimum interval for host, for example to a
// robots.txt Crawl-delay. It never lowers the configured minimum.
func (g *Governor) SetHostInterval(host string, d time.Duration) {
	if d <= g.minDelay {
		return
	}
	st := g.host(strings.ToLower(host))
	st.limiter.SetLimit(rate.Every(d))
}

// Requests returns the number of authorizations granted for host.
func (g *Governor) Requests(host string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.hosts[strings.ToLower(host)]; ok {
		return st.count
	}
	return 0
}

func (g *Governor) host(host string) *hostState {
	g.mu.Lock()
	defer g.mu.Unlock()

	if st, ok := g.hosts[host]; ok {
		return st
	}
	limit := rate.Inf
	if g.minDelay > 0 {
		limit = rate.Every(g.minDelay)
	}
	st := &hostState{
		gate:    make(chan struct{}, 1),
		limiter: rate.NewLimiter(limit, 1),
	}
	g.hosts[host] = st
	return st
}

func (g *Governor) waitPause(ctx context.Context, st *hostState) error {
	g.mu.Lock()
	until := st.pausedUntil
	g.mu.Unlock()

	if d := time.Until(until); d > 0 {
		return g.sleep(ctx, d)
	}
	return nil
}

func (g *Governor) countRequest(host string, st *hostState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st.count++
	st.last = time.Now()
	if g.pauseEvery > 0 && g.pauseDuration > 0 && st.count%g.pauseEvery == 0 {
		st.pausedUntil = time.Now().Add(g.pauseDuration)
		g.logger.Info("courtesy pause", "host", host, "requests", st.count, "duration", g.pauseDuration)
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
