package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_pages_loaded_total",
		Help: "Total number of non-empty comment pages applied to a feed",
	})

	commentsLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_comments_loaded_total",
		Help: "Total number of comments appended to a feed",
	})

	duplicatesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_duplicates_skipped_total",
		Help: "Total number of comments skipped because their ID was already loaded",
	})

	loadFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_load_failures_total",
		Help: "Total number of page loads that ended in an error",
	})

	discardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_discarded_responses_total",
			Help: "Total number of page responses discarded without touching the feed state",
		},
		[]string{"reason"}, // cancelled, superseded, closed
	)
)
