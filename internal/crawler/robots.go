package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// Robots caches robots.txt policy per host.
type Robots struct {
	fetcher  *Fetcher
	governor *Governor
	agent    string
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData

	// loads collapses concurrent first lookups for one host into one fetch.
	loads singleflight.Group
}

// NewRobots creates a robots.txt cache. When governor is non-nil, the
// robots.txt request waits for it like any other request to the host, and a
// Crawl-delay found for agent raises the host's minimum interval.
func NewRobots(fetcher *Fetcher, governor *Governor, agent string, logger *slog.Logger) *Robots {
	if logger == nil {
		logger = slog.Default()
	}
	return &Robots{
		fetcher:  fetcher,
		governor: governor,
		agent:    agent,
		logger:   logger,
		cache:    make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether agent may fetch rawURL. An unreachable or
// unparsable robots.txt allows everything, matching common crawler practice.
func (r *Robots) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	data := r.load(ctx, u)
	if data == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, r.agent)
}

func (r *Robots) load(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(u.Host)

	r.mu.Lock()
	data, ok := r.cache[host]
	r.mu.Unlock()
	if ok {
		return data
	}

	v, _, _ := r.loads.Do(host, func() (any, error) {
		r.mu.Lock()
		cached, ok := r.cache[host]
		r.mu.Unlock()
		if ok {
			return cached, nil
		}
		fetched := r.fetch(ctx, host, u.Scheme+"://"+u.Host+"/robots.txt")
		// A lookup cut short by cancellation is retried next time.
		if ctx.Err() == nil {
			r.store(host, fetched)
		}
		return fetched, nil
	})
	return v.(*robotstxt.RobotsData)
}

// fetch retrieves and parses robots.txt. A nil result allows everything.
func (r *Robots) fetch(ctx context.Context, host, robotsURL string) *robotstxt.RobotsData {
	if r.governor != nil {
		if _, err := r.governor.Authorize(ctx, robotsURL); err != nil {
			return nil
		}
	}

	status := 200
	var body []byte
	resp, err := r.fetcher.Fetch(ctx, robotsURL)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) || fe.Kind != FetchStatus {
			r.logger.Debug("robots.txt unavailable", "host", host, "error", err)
			return nil
		}
		status = fe.Status
	} else {
		body = resp.Body
	}

	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		r.logger.Debug("robots.txt unparsable", "host", host, "error", err)
		return nil
	}
	if r.governor != nil {
		if group := data.FindGroup(r.agent); group != nil && group.CrawlDelay > 0 {
			r.governor.SetHostInterval(host, group.CrawlDelay)
		}
	}
	return data
}

func (r *Robots) store(host string, data *robotstxt.RobotsData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[host] = data
}
