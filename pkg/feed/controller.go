// Package feed implements the pagination controller behind an infinitely scrolling
// comment list.
//
// A Controller owns the accumulated comments, the next page cursor, the end-of-data
// flag and the last error. Mount issues the first page under a mount-scoped context;
// afterwards a trigger.Trigger bound to the last rendered comment calls LoadMore
// whenever that comment scrolls into view. At most one page request is in flight per
// controller, and responses that arrive after cancellation, supersession or Close are
// discarded without touching the state.
//
// Basic usage:
//
//	ctrl := feed.New(commentsClient, window)
//	defer ctrl.Close()
//
//	if err := ctrl.Mount(ctx); err != nil {
//		// first page failed: show ctrl.State().LastError instead of the list
//	}
//	for range ctrl.Updates() {
//		s := ctrl.State()
//		render(s)
//		if n := len(s.Comments); n > 0 {
//			ctrl.AttachSentinel(s.Comments[n-1].Key())
//		}
//	}
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/Sternrassler/comment-scroll/pkg/client"
	"github.com/Sternrassler/comment-scroll/pkg/comments"
	"github.com/Sternrassler/comment-scroll/pkg/trigger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrorMessage is the user-facing text stored as the last error of a failed load.
const ErrorMessage = "Failed to load comments. Please try again later."

// ErrClosed is returned by Mount after Close.
var ErrClosed = errors.New("feed controller closed")

// Fetcher loads one page of comments. *client.Client implements it.
type Fetcher interface {
	FetchPage(ctx context.Context, page int) (comments.Page, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger overrides the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithScrollContext sets the context for loads started by the sentinel.
// Defaults to context.Background(); scroll loads are not cancelled by Close.
func WithScrollContext(ctx context.Context) Option {
	return func(c *Controller) {
		c.scrollCtx = ctx
	}
}

// call is one in-flight page request.
type call struct {
	page    int
	initial bool
}

// Controller is the pagination state machine of one rendered list.
type Controller struct {
	fetcher   Fetcher
	trigger   *trigger.Trigger
	logger    zerolog.Logger
	session   string
	scrollCtx context.Context

	mu          sync.Mutex
	state       *PaginationState
	inflight    *call
	mountCancel context.CancelFunc
	closed      bool
	updates     chan struct{}
}

// New creates a controller for one mount of the list. The sentinel is observed in vp.
func New(fetcher Fetcher, vp trigger.Viewport, opts ...Option) *Controller {
	session := uuid.NewString()
	c := &Controller{
		fetcher:   fetcher,
		session:   session,
		scrollCtx: context.Background(),
		logger: log.With().
			Str("component", "feed").
			Str("session", session).
			Logger(),
		state:   newPaginationState(),
		updates: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	// LoadMore is a method value bound to this controller, so every trigger sees the
	// live cursor rather than a copy captured at render time.
	c.trigger = trigger.New(vp, c.LoadMore,
		trigger.WithContext(c.scrollCtx),
		trigger.WithLogger(c.logger.With().Str("component", "trigger").Logger()))

	return c
}

// Session returns the controller's session ID used in logs.
func (c *Controller) Session() string {
	return c.session
}

// Mount issues the initial page load and returns its failure, so a failed first page
// can be shown as a blocking error. Cancellation returns nil.
//
// Calling Mount again while the initial load is in flight cancels that load first; its
// result is discarded. Once the first page has been applied Mount is a no-op.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Cursor > 1 || !c.state.HasMore {
		c.mu.Unlock()
		c.logger.Debug().Msg("Already mounted, initial load skipped")
		return nil
	}
	if c.mountCancel != nil {
		c.mountCancel()
		if c.inflight != nil && c.inflight.initial {
			c.logger.Debug().Msg("Remount cancelled the previous initial load")
			c.inflight = nil
		}
	}
	mountCtx, cancel := context.WithCancel(ctx)
	c.mountCancel = cancel
	c.mu.Unlock()

	return c.load(mountCtx, true)
}

// LoadMore loads the page at the cursor. Failures are captured in the state only.
// It is a no-op when no more data exists, a load is in flight, or the controller is closed.
func (c *Controller) LoadMore(ctx context.Context) {
	_ = c.load(ctx, false)
}

func (c *Controller) load(ctx context.Context, initial bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if !c.state.HasMore {
		c.mu.Unlock()
		c.logger.Debug().Msg("End of data reached, load skipped")
		return nil
	}
	if c.inflight != nil {
		busy := c.inflight.page
		c.mu.Unlock()
		c.logger.Debug().Int("page", busy).Msg("Load already in flight, skipped")
		return nil
	}
	cl := &call{page: c.state.Cursor, initial: initial}
	c.inflight = cl
	c.notify()
	c.mu.Unlock()

	c.logger.Debug().Int("page", cl.page).Bool("initial", initial).Msg("Loading comments page")

	page, err := c.fetcher.FetchPage(ctx, cl.page)

	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.inflight == cl
	if current {
		c.inflight = nil
		c.notify()
	}

	switch {
	case c.closed:
		c.discard(cl, "closed")
		return nil
	case ctx.Err() != nil || client.IsCancelled(err):
		c.discard(cl, "cancelled")
		return nil
	case !current || cl.page != c.state.Cursor:
		c.discard(cl, "superseded")
		return nil
	}

	if err != nil {
		c.state.fail(err)
		loadFailuresTotal.Inc()
		c.logger.Warn().
			Err(err).
			Int("page", cl.page).
			Int("accumulated", len(c.state.Comments)).
			Msg("Comments page failed")
		return err
	}

	if page.IsEnd() {
		c.state.end()
		c.logger.Info().
			Int("page", cl.page).
			Int("accumulated", len(c.state.Comments)).
			Msg("End of comments reached")
		return nil
	}

	added := c.state.apply(page)
	pagesLoadedTotal.Inc()
	commentsLoadedTotal.Add(float64(added))
	if skipped := len(page) - added; skipped > 0 {
		duplicatesSkippedTotal.Add(float64(skipped))
		c.logger.Warn().Int("page", cl.page).Int("duplicates", skipped).Msg("Skipped already loaded comments")
	}
	c.logger.Debug().
		Int("page", cl.page).
		Int("added", added).
		Int("accumulated", len(c.state.Comments)).
		Int("cursor", c.state.Cursor).
		Msg("Comments page applied")

	return nil
}

// discard records a response that must not touch the state. Caller holds mu.
func (c *Controller) discard(cl *call, reason string) {
	discardedTotal.WithLabelValues(reason).Inc()
	c.logger.Debug().Int("page", cl.page).Str("reason", reason).Msg("Comments response discarded")
}

// notify signals a state change to Updates without blocking. Caller holds mu.
func (c *Controller) notify() {
	if c.closed {
		return
	}
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// AttachSentinel observes target (the last rendered comment) for the next load.
// An empty target detaches.
func (c *Controller) AttachSentinel(target string) {
	c.trigger.Attach(target)
}

// State returns a snapshot of the presentation state.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.snapshot(c.inflight != nil)
}

// Updates delivers a coalesced signal after every state change. It is closed by Close.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Wait blocks until no sentinel-triggered load is outstanding or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	return c.trigger.Wait(ctx)
}

// Close tears the controller down: the initial load is cancelled, the sentinel
// observation released, and responses still in flight are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.mountCancel != nil {
		c.mountCancel()
	}
	close(c.updates)
	c.mu.Unlock()

	c.trigger.Close()
	c.logger.Debug().Msg("Feed closed")
}
