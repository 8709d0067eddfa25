// Package trigger fires a load callback when a sentinel target becomes visible.
//
// A Trigger observes exactly one target of a Viewport at a time. When the target
// intersects the viewport and no callback is outstanding, the callback runs on its own
// goroutine; further entries are ignored until it returns. This is the duplicate-load
// guard of the feed.
//
//	t := trigger.New(window, controller.LoadMore)
//	t.Attach("comment-42") // observe the last rendered comment
//	defer t.Close()
package trigger

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	firedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_trigger_fired_total",
		Help: "Total number of visibility events that started a load",
	})

	ignoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_trigger_ignored_total",
		Help: "Total number of visibility events ignored because a load was outstanding",
	})
)

// Entry reports the visibility of an observed target.
type Entry struct {
	Target       string
	Intersecting bool
}

// Observation is a live observation of one target.
type Observation interface {
	// Disconnect stops delivery of entries. It is safe to call more than once.
	Disconnect()
}

// Viewport reports when targets enter or leave the visible area.
// Implementations may deliver the current state synchronously from Observe.
type Viewport interface {
	Observe(target string, fn func(Entry)) Observation
}

// Callback is invoked when the observed target becomes visible.
type Callback func(ctx context.Context)

// Option configures a Trigger.
type Option func(*Trigger)

// WithContext sets the context passed to callbacks. Defaults to context.Background().
func WithContext(ctx context.Context) Option {
	return func(t *Trigger) {
		t.ctx = ctx
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Trigger) {
		t.logger = logger
	}
}

// Trigger observes one sentinel target and runs a callback when it becomes visible.
type Trigger struct {
	viewport  Viewport
	onVisible Callback
	ctx       context.Context
	logger    zerolog.Logger

	mu           sync.Mutex
	target       string
	observation  Observation
	generation   uint64
	loading      bool
	intersecting bool
	idle         chan struct{}
	closed       bool
}

// New creates a trigger that is not observing anything yet.
func New(viewport Viewport, onVisible Callback, opts ...Option) *Trigger {
	idle := make(chan struct{})
	close(idle)

	t := &Trigger{
		viewport:  viewport,
		onVisible: onVisible,
		ctx:       context.Background(),
		logger:    log.With().Str("component", "trigger").Logger(),
		idle:      idle,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Attach observes target instead of the current one. The previous observation is
// disconnected first. An empty target detaches without observing anything.
// An outstanding callback is not affected.
func (t *Trigger) Attach(target string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if target == t.target && (target == "" || t.observation != nil) {
		t.mu.Unlock()
		return
	}
	prev := t.observation
	t.observation = nil
	t.generation++
	gen := t.generation
	t.target = target
	t.intersecting = false
	t.mu.Unlock()

	if prev != nil {
		prev.Disconnect()
	}
	if target == "" {
		t.logger.Debug().Msg("Sentinel detached")
		return
	}

	// Observe outside the lock: the viewport may deliver the current state right away.
	obs := t.viewport.Observe(target, func(e Entry) {
		t.handle(gen, e)
	})

	t.mu.Lock()
	if t.closed || t.generation != gen {
		t.mu.Unlock()
		obs.Disconnect()
		return
	}
	t.observation = obs
	t.mu.Unlock()

	t.logger.Debug().Str("target", target).Msg("Sentinel attached")
}

// handle processes one entry from the observation created for generation gen.
func (t *Trigger) handle(gen uint64, e Entry) {
	t.mu.Lock()
	if t.closed || gen != t.generation || e.Target != t.target {
		t.mu.Unlock()
		return
	}
	t.intersecting = e.Intersecting
	if !e.Intersecting {
		t.mu.Unlock()
		return
	}
	if t.loading {
		t.mu.Unlock()
		ignoredTotal.Inc()
		t.logger.Debug().Str("target", e.Target).Msg("Sentinel visible while loading, ignored")
		return
	}
	t.loading = true
	idle := make(chan struct{})
	t.idle = idle
	t.mu.Unlock()

	firedTotal.Inc()
	t.logger.Debug().Str("target", e.Target).Msg("Sentinel visible, loading")

	go t.run(gen, idle)
}

// run invokes the callback until it settles with nothing left to do. If the sentinel
// was rebound while loading and the new target is visible, the next load starts right
// away; a target that stayed the same (failure, end of data) does not fire again.
func (t *Trigger) run(gen uint64, idle chan struct{}) {
	for {
		t.onVisible(t.ctx)

		t.mu.Lock()
		if t.closed || !t.intersecting || t.generation == gen {
			t.loading = false
			t.mu.Unlock()
			close(idle)
			return
		}
		gen = t.generation
		target := t.target
		t.mu.Unlock()

		firedTotal.Inc()
		t.logger.Debug().Str("target", target).Msg("Rebound sentinel visible after load, loading")
	}
}

// Loading reports whether a triggered callback is outstanding.
func (t *Trigger) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

// Target returns the currently observed target, or "" when detached.
func (t *Trigger) Target() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// Wait blocks until no callback is outstanding or ctx is done.
func (t *Trigger) Wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects the observation and ignores all later entries. An outstanding
// callback keeps running; its owner decides what to do with its result.
func (t *Trigger) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	prev := t.observation
	t.observation = nil
	t.generation++
	t.target = ""
	t.intersecting = false
	t.mu.Unlock()

	if prev != nil {
		prev.Disconnect()
	}
}
