package crawler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"
)

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestGovernorAuthorize_Jitter tests the jittered delay inside the band.
func TestGovernorAuthorize_Jitter(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	g := NewGovernor(
		WithDelay(0, 2*time.Second),
		withJitter(func() float64 { return 0.5 }),
		withSleep(rec.sleep),
		WithGovernorLogger(quietLogger()),
	)
	ctx := context.Background()

	ok, err := g.Authorize(ctx, "https://sacred-texts.com/a.htm")
	if err != nil || !ok {
		t.Fatalf("expected authorization, got %v, %v", ok, err)
	}
	if sleeps := rec.recorded(); len(sleeps) != 0 {
		t.Fatalf("expected the first request to pass without delay, got %v", sleeps)
	}

	if ok, err := g.Authorize(ctx, "https://sacred-texts.com/b.htm"); err != nil || !ok {
		t.Fatalf("expected authorization, got %v, %v", ok, err)
	}
	sleeps := rec.recorded()
	if len(sleeps) != 1 || sleeps[0] < 900*time.Millisecond || sleeps[0] > time.Second {
		t.Errorf("expected one jitter sleep of about 1s, got %v", sleeps)
	}
	if g.Requests("SACRED-TEXTS.COM") != 2 {
		t.Errorf("expected 2 requests counted, got %d", g.Requests("sacred-texts.com"))
	}
}

// releaseTimes runs n concurrent Authorize calls against one host and
// returns the sorted times at which they were released.
func releaseTimes(t *testing.T, g *Governor, n int) []time.Time {
	t.Helper()

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.Authorize(context.Background(), "https://x.example/p")
			if !ok || err != nil {
				t.Errorf("unexpected refusal: %v, %v", ok, err)
				return
			}
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// TestGovernorAuthorize_ConcurrentSpacing tests that concurrent workers
// never get two requests to one host closer than the minimum delay, even
// when a long jitter is followed by a short one.
func TestGovernorAuthorize_ConcurrentSpacing(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		draws = []float64{0.9, 0, 0}
	)
	jitter := func() float64 {
		mu.Lock()
		defer mu.Unlock()
		if len(draws) == 0 {
			return 0
		}
		v := draws[0]
		draws = draws[1:]
		return v
	}
	g := NewGovernor(
		WithDelay(100*time.Millisecond, 400*time.Millisecond),
		withJitter(jitter),
		WithGovernorLogger(quietLogger()),
	)

	times := releaseTimes(t, g, 4)
	if len(times) != 4 {
		t.Fatalf("expected 4 releases, got %d", len(times))
	}
	// Allow a little scheduling slack between release and recording.
	const floor = 90 * time.Millisecond
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < floor {
			t.Errorf("expected gap %d to be at least 100ms, got %v", i, gap)
		}
	}
}

// TestGovernorAuthorize_ConcurrentPause tests that a courtesy pause holds
// back workers that were already queued for the host.
func TestGovernorAuthorize_ConcurrentPause(t *testing.T) {
	t.Parallel()

	g := NewGovernor(
		WithDelay(20*time.Millisecond, 20*time.Millisecond),
		WithCourtesyPause(2, 300*time.Millisecond),
		WithGovernorLogger(quietLogger()),
	)

	times := releaseTimes(t, g, 4)
	if len(times) != 4 {
		t.Fatalf("expected 4 releases, got %d", len(times))
	}
	if gap := times[2].Sub(times[1]); gap < 280*time.Millisecond {
		t.Errorf("expected the third request to wait out the pause, gap was %v", gap)
	}
	if g.Requests("x.example") != 4 {
		t.Errorf("expected 4 requests counted, got %d", g.Requests("x.example"))
	}
}

// TestGovernorAuthorize_CourtesyPause tests the pause after every n
// authorizations to a host.
func TestGovernorAuthorize_CourtesyPause(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	g := NewGovernor(
		WithCourtesyPause(2, time.Minute),
		withSleep(rec.sleep),
		WithGovernorLogger(quietLogger()),
	)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, err := g.Authorize(ctx, "https://x.example/p"); !ok || err != nil {
			t.Fatalf("unexpected refusal: %v", err)
		}
	}
	if len(rec.recorded()) != 0 {
		t.Fatalf("expected no pause before the threshold, got %v", rec.recorded())
	}

	// Another host is not paused.
	if ok, _ := g.Authorize(ctx, "https://other.example/p"); !ok {
		t.Fatal("expected other host to be authorized")
	}
	if len(rec.recorded()) != 0 {
		t.Fatalf("expected no pause for another host, got %v", rec.recorded())
	}

	if ok, _ := g.Authorize(ctx, "https://x.example/q"); !ok {
		t.Fatal("expected authorization after the pause")
	}
	sleeps := rec.recorded()
	if len(sleeps) != 1 || sleeps[0] < 50*time.Second || sleeps[0] > time.Minute {
		t.Errorf("expected one courtesy pause of about a minute, got %v", sleeps)
	}
}

// TestGovernorAuthorize_Visited tests that visited URLs are refused without
// waiting.
func TestGovernorAuthorize_Visited(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	f.MarkVisited("https://x.example/seen")

	rec := &sleepRecorder{}
	g := NewGovernor(WithDelay(time.Second, 2*time.Second), WithVisitedChecker(f), withSleep(rec.sleep))

	ok, err := g.Authorize(context.Background(), "https://x.example/seen#frag")
	if ok || err != nil {
		t.Errorf("expected silent refusal, got %v, %v", ok, err)
	}
	if len(rec.recorded()) != 0 {
		t.Error("expected no wait for a refused URL")
	}
}

// TestGovernorAuthorize_Interval tests the per-host minimum interval.
func TestGovernorAuthorize_Interval(t *testing.T) {
	t.Parallel()

	g := NewGovernor(WithDelay(60*time.Millisecond, 60*time.Millisecond))
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if ok, err := g.Authorize(ctx, "https://x.example/p"); !ok || err != nil {
			t.Fatalf("unexpected refusal: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("expected at least two intervals between three requests, took %v", elapsed)
	}

	// A different host has its own budget.
	start = time.Now()
	if ok, _ := g.Authorize(ctx, "https://other.example/p"); !ok {
		t.Fatal("expected authorization")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("expected first request to another host to pass immediately, took %v", elapsed)
	}
}

// TestGovernorAuthorize_Cancelled tests context cancellation.
func TestGovernorAuthorize_Cancelled(t *testing.T) {
	t.Parallel()

	g := NewGovernor(WithDelay(time.Hour, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	if ok, err := g.Authorize(ctx, "https://x.example/a"); !ok || err != nil {
		t.Fatalf("expected first request to pass, got %v, %v", ok, err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	ok, err := g.Authorize(ctx, "https://x.example/b")
	if ok || !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v, %v", ok, err)
	}
}

// TestGovernorSetHostInterval tests that the interval is only ever raised.
func TestGovernorSetHostInterval(t *testing.T) {
	t.Parallel()

	g := NewGovernor(WithDelay(time.Second, time.Second))
	g.SetHostInterval("x.example", 10*time.Millisecond)
	if lim := g.host("x.example").limiter.Limit(); lim != 1 {
		t.Errorf("expected the configured 1/s limit to stay, got %v", lim)
	}
	g.SetHostInterval("X.example", 4*time.Second)
	if lim := g.host("x.example").limiter.Limit(); lim != 0.25 {
		t.Errorf("expected 0.25/s after raising the interval, got %v", lim)
	}
}
