// Package ratelimit gates comment requests on the request budget the API advertises.
// It reads the X-RateLimit-Remaining and X-RateLimit-Reset response headers and keeps
// the latest budget in a Store so that scrolling stops hammering an exhausted API.
package ratelimit

import (
	"time"
)

// Response headers carrying the request budget.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Thresholds for gate decisions.
const (
	// RemainingThresholdCritical blocks requests when the remaining budget falls below it.
	RemainingThresholdCritical = 2

	// RemainingThresholdWarning delays requests when the remaining budget falls below it.
	RemainingThresholdWarning = 10

	// RemainingThresholdHealthy marks the budget as healthy at or above it.
	RemainingThresholdHealthy = 30
)

// defaultRemaining is assumed until the API reports a real budget.
const defaultRemaining = 100

// Budget is the request budget last advertised by the API.
type Budget struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets, derived from the seconds in X-RateLimit-Reset.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the budget was last read from response headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// defaultBudget is the optimistic budget used before any response was seen.
func defaultBudget() *Budget {
	now := time.Now()
	return &Budget{
		Remaining:  defaultRemaining,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// IsStale returns true if the budget is older than maxAge.
func (b *Budget) IsStale(maxAge time.Duration) bool {
	return time.Since(b.LastUpdate) > maxAge
}

// WindowOpen reports whether the window the budget was recorded in has not reset yet.
// A low budget from a window that already reset no longer applies.
func (b *Budget) WindowOpen() bool {
	return b.TimeUntilReset() > 0
}

// NeedsBlock returns true if requests must fail fast until the window resets.
func (b *Budget) NeedsBlock() bool {
	return b.Remaining < RemainingThresholdCritical && b.WindowOpen()
}

// NeedsThrottling returns true if requests should be delayed.
func (b *Budget) NeedsThrottling() bool {
	return b.Remaining < RemainingThresholdWarning && !b.NeedsBlock() && b.WindowOpen()
}

// TimeUntilReset returns the duration until the window resets, or 0 if it already has.
func (b *Budget) TimeUntilReset() time.Duration {
	d := time.Until(b.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy from Remaining.
func (b *Budget) UpdateHealth() {
	b.IsHealthy = b.Remaining >= RemainingThresholdHealthy
}
