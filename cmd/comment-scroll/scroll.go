package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/comment-scroll/pkg/client"
	"github.com/Sternrassler/comment-scroll/pkg/config"
	"github.com/Sternrassler/comment-scroll/pkg/feed"
	"github.com/Sternrassler/comment-scroll/pkg/logging"
	"github.com/Sternrassler/comment-scroll/pkg/metrics"
	"github.com/Sternrassler/comment-scroll/pkg/ratelimit"
	"github.com/Sternrassler/comment-scroll/pkg/viewport"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// EndMessage is printed once the feed has no more comments.
const EndMessage = "No more comments to load."

var errLoadFailed = errors.New("comments page failed")

type scrollOptions struct {
	step     int
	interval time.Duration
	maxPages int
}

func newScrollCmd() *cobra.Command {
	opts := scrollOptions{}

	cmd := &cobra.Command{
		Use:   "scroll",
		Short: "Render comments and load more pages as the view scrolls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := config.NewViper()
			for key, flag := range map[string]string{
				"base_url":     "base-url",
				"page_size":    "page-size",
				"log.level":    "log-level",
				"metrics.addr": "metrics-addr",
				"view.height":  "height",
			} {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}

			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logging.Setup(cfg.LoggingConfig())
			return runScroll(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.step, "step", 1, "cards scrolled per tick")
	cmd.Flags().DurationVar(&opts.interval, "interval", 500*time.Millisecond, "time between scroll ticks")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "stop after this many pages (0 = until the end)")
	cmd.Flags().String("base-url", "", "comments API root")
	cmd.Flags().Int("page-size", 0, "comments per page")
	cmd.Flags().String("log-level", "", "debug, info, warn or error")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().Int("height", 0, "cards visible at once")

	return cmd
}

// runScroll wires the feed from cfg and scrolls it until the end of data, a failed page,
// the page limit or cancellation of ctx.
func runScroll(ctx context.Context, cfg *config.Config, opts scrollOptions, out io.Writer) error {
	if opts.step < 1 {
		opts.step = 1
	}
	if opts.interval <= 0 {
		opts.interval = 500 * time.Millisecond
	}
	logger := logging.NewLogger("scroll")

	tracker, closeStore := newRateLimiter(ctx, cfg)
	defer closeStore()

	clientLogger := logging.NewLogger("comments-client")
	cl, err := client.New(client.Config{
		BaseURL:     cfg.BaseURL,
		PageSize:    cfg.PageSize,
		UserAgent:   cfg.UserAgent,
		RateLimiter: tracker,
		Logger:      &clientLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to create comments client: %w", err)
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		g.Go(func() error {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info().Msg("Metrics server shutting down")
			return srv.Shutdown(shutdownCtx)
		})
	}

	window := viewport.NewWindow(cfg.View.Height)
	ctrl := feed.New(cl, window, feed.WithScrollContext(gctx))
	defer ctrl.Close()

	s := &session{
		ctrl:          ctrl,
		window:        window,
		out:           out,
		opts:          opts,
		avatarBaseURL: cfg.AvatarBaseURL,
		logger:        logger.With().Str("session", ctrl.Session()).Logger(),
	}
	g.Go(func() error {
		defer stop()
		return s.run(gctx)
	})

	return g.Wait()
}

// newRateLimiter returns the budget tracker for the client, or nil when disabled.
// With a Redis address the budget is shared through Redis; an unreachable Redis falls
// back to an in-memory budget.
func newRateLimiter(ctx context.Context, cfg *config.Config) (*ratelimit.Tracker, func()) {
	noop := func() {}
	if !cfg.RateLimit.Enabled {
		return nil, noop
	}

	logger := logging.NewLogger("rate-limit")
	if cfg.Redis.Addr == "" {
		return ratelimit.NewTracker(ratelimit.NewMemoryStore(), logger), noop
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, using in-memory rate limit budget")
		_ = rdb.Close()
		return ratelimit.NewTracker(ratelimit.NewMemoryStore(), logger), noop
	}

	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Rate limit budget shared via Redis")
	return ratelimit.NewTracker(ratelimit.NewRedisStore(rdb), logger), func() { _ = rdb.Close() }
}

// session is the terminal presentation of one feed: it prints new comments as they are
// rendered, keeps the sentinel on the last one and scrolls the window on a ticker.
type session struct {
	ctrl          *feed.Controller
	window        *viewport.Window
	out           io.Writer
	opts          scrollOptions
	avatarBaseURL string
	logger        zerolog.Logger

	printed int
}

func (s *session) run(ctx context.Context) error {
	s.logger.Info().Msg("Scroll session started")

	if err := s.ctrl.Mount(ctx); err != nil {
		fmt.Fprintln(s.out, feed.ErrorMessage)
		return fmt.Errorf("%w: %w", errLoadFailed, err)
	}

	ticker := time.NewTicker(s.opts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-s.ctrl.Updates():
			if !ok {
				return nil
			}
			done, err := s.refresh()
			if done || err != nil {
				return err
			}
		case <-ticker.C:
			s.window.ScrollBy(s.opts.step)
		}
	}
}

// refresh renders the current state and reports whether the session is over.
func (s *session) refresh() (bool, error) {
	st := s.ctrl.State()

	for _, c := range st.Comments[s.printed:] {
		renderCard(s.out, c, s.avatarBaseURL)
	}
	s.printed = len(st.Comments)

	keys := make([]string, len(st.Comments))
	for i, c := range st.Comments {
		keys[i] = c.Key()
	}
	s.window.SetItems(keys)
	s.ctrl.AttachSentinel(st.Sentinel())

	if st.Loading {
		return false, nil
	}

	switch {
	case st.LastError != "":
		fmt.Fprintln(s.out, st.LastError)
		return true, fmt.Errorf("%w: %w", errLoadFailed, st.Err)
	case st.Exhausted():
		fmt.Fprintln(s.out, EndMessage)
		s.logger.Info().Int("comments", len(st.Comments)).Msg("Scroll session finished")
		return true, nil
	case s.opts.maxPages > 0 && st.Cursor-1 >= s.opts.maxPages:
		s.logger.Info().Int("pages", st.Cursor-1).Msg("Page limit reached")
		return true, nil
	}
	return false, nil
}
