// Package fallback chains text generators so a review can fall over to a
// secondary model when the primary one fails.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentstation/codescope"
)

// ErrNoLinks is returned by Generate on a chain without links.
var ErrNoLinks = errors.New("fallback: chain has no links")

// Link is one generator of a chain.
type Link struct {
	Name      string
	Generator codescope.Generator
}

// Chain tries its links in order until one succeeds. It implements
// codescope.Generator.
//
// A deadline on the context passed to Generate bounds the whole chain: once
// it expires no further link is tried. Use WithLinkTimeout to bound each
// link separately so a slow link leaves time for the next one.
type Chain struct {
	name  string
	links []Link
	// shouldFallback decides whether an error moves on to the next link.
	shouldFallback func(error) bool
	linkTimeout    time.Duration

	mu    sync.Mutex
	stats map[string]*linkStats
}

type linkStats struct {
	executions int64
	successes  int64
	failures   int64
	latency    time.Duration
}

// NewChain creates an empty chain.
func NewChain(name string) *Chain {
	return &Chain{
		name:           name,
		shouldFallback: DefaultShouldFallback,
		stats:          make(map[string]*linkStats),
	}
}

// Add appends a link to the chain.
func (c *Chain) Add(name string, gen codescope.Generator) *Chain {
	c.links = append(c.links, Link{Name: name, Generator: gen})
	c.stats[name] = &linkStats{}
	return c
}

// WithCondition replaces the predicate that decides whether an error falls
// over to the next link.
func (c *Chain) WithCondition(shouldFallback func(error) bool) *Chain {
	c.shouldFallback = shouldFallback
	return c
}

// WithLinkTimeout bounds every link call with its own deadline. An expired
// link deadline falls over to the next link. Zero disables it.
func (c *Chain) WithLinkTimeout(timeout time.Duration) *Chain {
	c.linkTimeout = timeout
	return c
}

// DefaultShouldFallback falls over on every error except cancellation and
// client errors (4xx other than 429), which the next model would reject as
// well. Timeouts fall over.
func DefaultShouldFallback(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *codescope.ServiceError
	if errors.As(err, &se) {
		switch se.Kind {
		case codescope.KindCanceled:
			return false
		case codescope.KindService:
			return se.StatusCode == 0 || se.StatusCode >= 500
		}
	}
	return true
}

// Generate implements codescope.Generator.
func (c *Chain) Generate(ctx context.Context, prompt string) (string, error) {
	if len(c.links) == 0 {
		return "", ErrNoLinks
	}

	var lastErr error
	for _, link := range c.links {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		start := time.Now()
		out, err := c.call(ctx, link, prompt)
		c.record(link.Name, time.Since(start), err)

		if err == nil {
			return out, nil
		}
		lastErr = err
		if !c.shouldFallback(err) {
			return "", err
		}
	}
	if len(c.links) == 1 {
		return "", lastErr
	}
	return "", fmt.Errorf("fallback %s: all %d links failed, last error: %w", c.name, len(c.links), lastErr)
}

func (c *Chain) call(ctx context.Context, link Link, prompt string) (string, error) {
	if c.linkTimeout <= 0 {
		return link.Generator.Generate(ctx, prompt)
	}
	linkCtx, cancel := context.WithTimeout(ctx, c.linkTimeout)
	defer cancel()
	return link.Generator.Generate(linkCtx, prompt)
}

func (c *Chain) record(name string, latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats[name]
	s.executions++
	s.latency += latency
	if err == nil {
		s.successes++
	} else {
		s.failures++
	}
}

// LinkStats contains statistics for a single link.
type LinkStats struct {
	Executions int64
	Successes  int64
	Failures   int64
	AvgLatency time.Duration
}

// Stats returns a snapshot of per-link statistics.
func (c *Chain) Stats() map[string]LinkStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]LinkStats, len(c.stats))
	for name, s := range c.stats {
		ls := LinkStats{
			Executions: s.executions,
			Successes:  s.successes,
			Failures:   s.failures,
		}
		if s.executions > 0 {
			ls.AvgLatency = s.latency / time.Duration(s.executions)
		}
		snapshot[name] = ls
	}
	return snapshot
}
