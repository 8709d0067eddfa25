package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTracker_GetState_Default(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())

	b, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if b.Remaining != defaultRemaining {
		t.Errorf("Remaining = %d, want %d", b.Remaining, defaultRemaining)
	}
	if !b.IsHealthy {
		t.Error("default budget should be healthy")
	}
}

func TestTracker_UpdateFromHeaders(t *testing.T) {
	tests := []struct {
		name          string
		remain        string
		reset         string
		shouldError   bool
		wantRemaining int
		wantStored    bool
	}{
		{
			name:          "healthy budget",
			remain:        "60",
			reset:         "30",
			wantRemaining: 60,
			wantStored:    true,
		},
		{
			name:          "low budget",
			remain:        "1",
			reset:         "30",
			wantRemaining: 1,
			wantStored:    true,
		},
		{
			name:       "headers absent",
			wantStored: false,
		},
		{
			name:        "invalid remaining",
			remain:      "many",
			reset:       "30",
			shouldError: true,
		},
		{
			name:        "missing reset",
			remain:      "10",
			shouldError: true,
		},
		{
			name:        "invalid reset",
			remain:      "10",
			reset:       "soon",
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			tracker := NewTracker(store, zerolog.Nop())

			headers := http.Header{}
			if tt.remain != "" {
				headers.Set(HeaderRemaining, tt.remain)
			}
			if tt.reset != "" {
				headers.Set(HeaderReset, tt.reset)
			}

			err := tracker.UpdateFromHeaders(context.Background(), headers)
			if tt.shouldError {
				if err == nil {
					t.Fatal("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			b, err := store.Load(context.Background())
			if !tt.wantStored {
				if err != ErrNoBudget {
					t.Errorf("Load() error = %v, want ErrNoBudget", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if b.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", b.Remaining, tt.wantRemaining)
			}
		})
	}
}

func TestTracker_ShouldAllowRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy allows immediately", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.Save(ctx, &Budget{Remaining: 50, ResetAt: time.Now().Add(time.Minute)})
		tracker := NewTracker(store, zerolog.Nop())

		start := time.Now()
		allowed, err := tracker.ShouldAllowRequest(ctx)
		if err != nil {
			t.Fatalf("ShouldAllowRequest() error = %v", err)
		}
		if !allowed {
			t.Error("healthy budget should allow the request")
		}
		if time.Since(start) >= ThrottleDelay {
			t.Error("healthy budget should not throttle")
		}
	})

	t.Run("exhausted blocks", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.Save(ctx, &Budget{Remaining: 0, ResetAt: time.Now().Add(time.Minute)})
		tracker := NewTracker(store, zerolog.Nop())

		allowed, err := tracker.ShouldAllowRequest(ctx)
		if err != nil {
			t.Fatalf("ShouldAllowRequest() error = %v", err)
		}
		if allowed {
			t.Error("exhausted budget should block the request")
		}
	})

	t.Run("throttle honours context", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.Save(ctx, &Budget{Remaining: 5, ResetAt: time.Now().Add(time.Minute)})
		tracker := NewTracker(store, zerolog.Nop())

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		allowed, err := tracker.ShouldAllowRequest(cctx)
		if err == nil {
			t.Fatal("expected context error while throttled")
		}
		if allowed {
			t.Error("cancelled throttle should not allow the request")
		}
	})
}

func TestMemoryStore_SaveCopies(t *testing.T) {
	store := NewMemoryStore()
	b := &Budget{Remaining: 10}
	if err := store.Save(context.Background(), b); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	b.Remaining = 0

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Remaining != 10 {
		t.Errorf("Remaining = %d, want 10 (store must keep its own copy)", got.Remaining)
	}

	if err := store.Save(context.Background(), nil); err == nil {
		t.Error("Save(nil) should return error")
	}
}
