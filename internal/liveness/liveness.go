// Package liveness answers one question: which tmux panes are currently
// alive? Members of a team carry a pane id as their external process handle;
// a member whose pane is gone is not running.
//
// Probing shells out to tmux, which is expensive relative to a team read, so
// results are cached for a short TTL and concurrent probes are collapsed
// into one via singleflight. The cache is owned by this struct, not a
// package global, so tests can inject a clock and a fake runner.
package liveness

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a pane snapshot is served before re-probing.
const DefaultTTL = 5 * time.Second

const probeTimeout = 3 * time.Second

// Runner executes the pane listing and returns its raw output. The default
// runs `tmux list-panes -a -F #{pane_id}`.
type Runner func(ctx context.Context) ([]byte, error)

// Prober caches the set of live tmux pane ids.
type Prober struct {
	ttl    time.Duration
	now    func() time.Time
	run    Runner
	logger *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	cached   map[string]struct{}
	cachedAt time.Time
}

// Option configures a Prober.
type Option func(*Prober)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(p *Prober) { p.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Prober) { p.now = now }
}

// WithRunner overrides the probe command.
func WithRunner(run Runner) Option {
	return func(p *Prober) { p.run = run }
}

// New returns a Prober with the default tmux runner.
func New(opts ...Option) *Prober {
	p := &Prober{
		ttl:    DefaultTTL,
		now:    time.Now,
		run:    runTmuxListPanes,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func runTmuxListPanes(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return exec.CommandContext(ctx, "tmux", "list-panes", "-a", "-F", "#{pane_id}").Output()
}

// ActivePanes returns the set of live pane ids. Within the TTL window every
// caller observes the same snapshot. A failed probe (tmux absent, no server
// running) yields the empty set, never an error.
func (p *Prober) ActivePanes(ctx context.Context) map[string]struct{} {
	p.mu.Lock()
	if p.cached != nil && p.now().Sub(p.cachedAt) < p.ttl {
		snapshot := p.cached
		p.mu.Unlock()
		return snapshot
	}
	p.mu.Unlock()

	v, _, _ := p.group.Do("panes", func() (any, error) {
		// Re-check freshness: a concurrent caller may have refreshed the
		// cache between our check and joining the flight.
		p.mu.Lock()
		if p.cached != nil && p.now().Sub(p.cachedAt) < p.ttl {
			snapshot := p.cached
			p.mu.Unlock()
			return snapshot, nil
		}
		p.mu.Unlock()

		panes := make(map[string]struct{})
		out, err := p.run(ctx)
		if err != nil {
			p.logger.Debug("tmux probe failed, treating all panes as dead", "error", err)
		} else {
			for _, line := range strings.Split(string(out), "\n") {
				if id := strings.TrimSpace(line); id != "" {
					panes[id] = struct{}{}
				}
			}
		}

		p.mu.Lock()
		p.cached = panes
		p.cachedAt = p.now()
		p.mu.Unlock()
		return panes, nil
	})
	return v.(map[string]struct{})
}

// Alive reports whether the given pane id is currently live.
func (p *Prober) Alive(ctx context.Context, paneID string) bool {
	if paneID == "" {
		return false
	}
	_, ok := p.ActivePanes(ctx)[paneID]
	return ok
}
