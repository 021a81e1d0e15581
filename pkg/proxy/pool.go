package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when marking a proxy the pool does not hold.
var ErrNotFound = errors.New("proxy: not in pool")

// ErrExhausted is returned by Pick when every proxy is cooling down.
var ErrExhausted = errors.New("proxy: all proxies are cooling down")

type entry struct {
	url           *url.URL
	failures      int
	disabledUntil time.Time
}

// Pool rotates requests across proxies round-robin and sidelines a proxy
// for Cooldown after MaxFailures consecutive failures.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines settings for the Pool.
type Config struct {
	MaxFailures int
	Cooldown    time.Duration
}

// NewPool creates an empty pool. Zero config values select 3 failures and a
// five minute cooldown.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// LoadFile adds one proxy per line of path. Blank lines and lines starting
// with '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}

	return p.Add(urls...)
}

// Add parses raw proxy URLs. A missing scheme means http.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*entry, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: %w", err)
		}
		parsed = append(parsed, &entry{url: u})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, parsed...)
	return nil
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next healthy proxy, or nil when the pool is empty or
// every proxy is cooling down.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)

		if now.Before(e.disabledUntil) {
			continue
		}
		return e.url
	}
	return nil
}

// Pick pins the next healthy proxy to ctx. An empty pool leaves ctx alone.
func (p *Pool) Pick(ctx context.Context) (context.Context, *url.URL, error) {
	if p.Len() == 0 {
		return ctx, nil, nil
	}
	u := p.Next()
	if u == nil {
		return ctx, nil, ErrExhausted
	}
	return WithProxy(ctx, u), u, nil
}

// MarkSuccess clears the failure streak of proxyURL.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	return p.update(proxyURL, func(e *entry) {
		e.failures = 0
	})
}

// MarkFailure counts a failure against proxyURL and starts its cooldown once
// the streak reaches MaxFailures.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	return p.update(proxyURL, func(e *entry) {
		e.failures++
		if e.failures >= p.maxFailures {
			e.failures = 0
			e.disabledUntil = p.now().Add(p.cooldown)
		}
	})
}

func (p *Pool) update(proxyURL *url.URL, fn func(*entry)) error {
	if proxyURL == nil {
		return ErrNotFound
	}
	target := proxyURL.String()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.url.String() == target {
			fn(e)
			return nil
		}
	}
	return ErrNotFound
}

type ctxKey struct{}

// WithProxy returns a context routing requests made with it through u.
func WithProxy(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromRequest is an http.Transport Proxy func honoring WithProxy. Requests
// without a pinned proxy connect directly.
func FromRequest(req *http.Request) (*url.URL, error) {
	u, _ := req.Context().Value(ctxKey{}).(*url.URL)
	return u, nil
}
