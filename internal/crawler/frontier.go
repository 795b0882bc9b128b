package crawler

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// Frontier is the role-ordered queue of discovery tasks plus the run's
// visited set. Every mutation happens under one mutex, so a URL discovered
// concurrently by two workers is enqueued at most once.
type Frontier struct {
	mu sync.Mutex

	base *url.URL

	// queues holds one FIFO per role, drained in model.Roles order.
	queues [3][]model.FrontierEntry

	// queued counts, per key, the copies waiting or in flight. A requeued
	// entry is counted again so the Done of its earlier attempt keeps it.
	queued map[string]int

	// visited is append-only for the lifetime of the run.
	visited map[string]struct{}

	failed   map[string]string
	attempts map[string]int

	inflight int
	changed  chan struct{}
}

// FrontierOption configures a Frontier.
type FrontierOption func(*Frontier)

// WithBaseURL sets the URL relative references are resolved against.
func WithBaseURL(base string) FrontierOption {
	return func(f *Frontier) {
		if u, err := url.Parse(base); err == nil {
			f.base = u
		}
	}
}

// NewFrontier creates an empty Frontier.
func NewFrontier(opts ...FrontierOption) *Frontier {
	f := &Frontier{
		queued:   make(map[string]int),
		visited:  make(map[string]struct{}),
		failed:   make(map[string]string),
		attempts: make(map[string]int),
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Normalize returns the deduplication key for rawURL.
// The fragment is dropped, scheme and host are lowercased, an empty path
// becomes "/" and a trailing slash is removed everywhere except the root.
// Unparsable input is returned trimmed.
func (f *Frontier) Normalize(rawURL string) string {
	return normalize(f.base, rawURL)
}

func normalize(base *url.URL, rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if base != nil && !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
	}
	u.RawPath = ""
	return u.String()
}

// Enqueue adds e unless its URL, raw or normalized, is already visited or
// queued. It reports whether the entry was added.
func (f *Frontier) Enqueue(e model.FrontierEntry) bool {
	if e.Role < model.RoleIndex || e.Role > model.RoleLeaf {
		return false
	}
	key := f.Normalize(e.URL)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seenLocked(e.URL) || f.seenLocked(key) {
		return false
	}
	f.queued[key]++
	f.queues[e.Role] = append(f.queues[e.Role], e)
	f.signalLocked()
	return true
}

func (f *Frontier) seenLocked(key string) bool {
	if _, ok := f.visited[key]; ok {
		return true
	}
	return f.queued[key] > 0
}

// Next pops the oldest entry of the highest-priority non-empty role.
// The entry counts as in flight until Done is called for it.
func (f *Frontier) Next() (model.FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, role := range model.Roles {
		q := f.queues[role]
		if len(q) == 0 {
			continue
		}
		e := q[0]
		q[0] = model.FrontierEntry{}
		f.queues[role] = q[1:]
		f.inflight++
		return e, true
	}
	return model.FrontierEntry{}, false
}

// Done releases an entry returned by Next.
func (f *Frontier) Done(e model.FrontierEntry) {
	key := f.Normalize(e.URL)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inflight > 0 {
		f.inflight--
	}
	if f.queued[key] > 1 {
		f.queued[key]--
	} else {
		delete(f.queued, key)
	}
	f.signalLocked()
}

// MarkVisited records a fetch attempt for rawURL.
func (f *Frontier) MarkVisited(rawURL string) {
	key := f.Normalize(rawURL)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited[key] = struct{}{}
}

// MarkFailed records a definitive failure. The URL is also marked visited so
// the run never repeats a dead link.
func (f *Frontier) MarkFailed(rawURL, reason string) {
	key := f.Normalize(rawURL)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited[key] = struct{}{}
	f.failed[key] = reason
}

// Visited reports whether rawURL has been attempted in this run.
func (f *Frontier) Visited(rawURL string) bool {
	key := f.Normalize(rawURL)

	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[key]
	return ok
}

// VisitedCount returns the size of the visited set.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Failures returns a copy of the failed URLs and their reasons.
func (f *Frontier) Failures() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]string, len(f.failed))
	for k, v := range f.failed {
		out[k] = v
	}
	return out
}

// Requeue puts a failed entry back on its queue and returns the attempt
// number it will be dispatched as. Callers decide whether to requeue by
// consulting a Backoff; the frontier itself never retries.
func (f *Frontier) Requeue(e model.FrontierEntry) int {
	key := f.Normalize(e.URL)

	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.visited, key)
	delete(f.failed, key)
	f.attempts[key]++
	f.queued[key]++
	f.queues[e.Role] = append(f.queues[e.Role], e)
	f.signalLocked()
	return f.attempts[key] + 1
}

// Attempts returns how many times rawURL has been requeued.
func (f *Frontier) Attempts(rawURL string) int {
	key := f.Normalize(rawURL)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[key]
}

// Len returns the number of waiting entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, q := range f.queues {
		n += len(q)
	}
	return n
}

// Idle reports whether nothing is waiting and nothing is in flight.
// Once idle, no worker can discover new entries, so the run is complete.
func (f *Frontier) Idle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inflight > 0 {
		return false
	}
	for _, q := range f.queues {
		if len(q) > 0 {
			return false
		}
	}
	return true
}

// Changed returns a channel closed at the next enqueue or completion.
// Grab it before checking Next to avoid missing a wake-up.
func (f *Frontier) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

func (f *Frontier) signalLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

// Backoff is an explicit retry policy for failed fetches.
// The zero value disables retries.
type Backoff struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Base is the delay before the second attempt. It doubles per attempt.
	Base time.Duration

	// Max caps the delay. Zero means uncapped.
	Max time.Duration
}

// Allows reports whether an entry that has been tried attempt times may be
// tried again.
func (b Backoff) Allows(attempt int) bool {
	return b.MaxAttempts > 1 && attempt < b.MaxAttempts
}

// Delay returns how long to wait before the given attempt (2 for the first
// retry).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 2 || b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 2; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
