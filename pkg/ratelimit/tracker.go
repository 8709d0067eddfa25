package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ThrottleDelay is how long a request waits while the budget is in the warning range.
const ThrottleDelay = 1 * time.Second

// Prometheus metrics for budget tracking.
var (
	remainingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "comments_rate_limit_remaining",
		Help: "Requests remaining in the current API rate limit window",
	})

	blocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comments_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the API budget was exhausted",
	})

	throttlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comments_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the API budget was low",
	})
)

// Tracker records the API budget and gates requests on it.
type Tracker struct {
	store  Store
	logger zerolog.Logger
}

// NewTracker creates a tracker. A nil store means an in-memory store.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		logger: logger,
	}
}

// GetState returns the stored budget, or a healthy default when none was recorded.
func (t *Tracker) GetState(ctx context.Context) (*Budget, error) {
	b, err := t.store.Load(ctx)
	if errors.Is(err, ErrNoBudget) {
		t.logger.Debug().Msg("No rate limit budget recorded, assuming healthy")
		return defaultBudget(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load budget: %w", err)
	}
	return b, nil
}

// UpdateFromHeaders parses the rate limit headers of a response and stores the budget.
// Responses without the headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderReset)
	}

	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	now := time.Now()
	b := &Budget{
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	b.UpdateHealth()

	if err := t.store.Save(ctx, b); err != nil {
		return err
	}

	remainingGauge.Set(float64(remain))

	switch {
	case b.NeedsBlock():
		t.logger.Error().
			Int("remaining", remain).
			Time("reset_at", b.ResetAt).
			Msg("API rate limit exhausted - requests will be blocked")
	case b.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", b.ResetAt).
			Msg("API rate limit low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", remain).
			Time("reset_at", b.ResetAt).
			Bool("is_healthy", b.IsHealthy).
			Msg("API rate limit budget updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may go out now.
// It returns false while the budget is exhausted, and waits ThrottleDelay
// (or until ctx is done) while the budget is low.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	b, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if b.NeedsBlock() {
		t.logger.Error().
			Int("remaining", b.Remaining).
			Dur("wait_duration", b.TimeUntilReset()).
			Msg("API rate limit exhausted - blocking request")
		blocksTotal.Inc()
		return false, nil
	}

	if b.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", b.Remaining).
			Msg("API rate limit low - throttling request")
		throttlesTotal.Inc()

		timer := time.NewTimer(ThrottleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}
