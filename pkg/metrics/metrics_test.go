package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sternrassler/comment-scroll/internal/testutil"
	"github.com/Sternrassler/comment-scroll/pkg/client"
	"github.com/Sternrassler/comment-scroll/pkg/feed"
	"github.com/Sternrassler/comment-scroll/pkg/viewport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func scrape(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return rec.Code, string(body)
}

func TestHandler_ExposesFeedMetrics(t *testing.T) {
	api := testutil.NewMockAPI(3)
	defer api.Close()

	nop := zerolog.Nop()
	cfg := client.DefaultConfig(api.URL())
	cfg.Logger = &nop
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	ctrl := feed.New(c, viewport.NewWindow(5), feed.WithLogger(nop))
	defer ctrl.Close()
	if err := ctrl.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	code, body := scrape(t, Handler(), Path)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	for _, name := range []string{
		"comments_requests_total",
		"comments_request_duration_seconds",
		"feed_pages_loaded_total",
		"feed_comments_loaded_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestNewServer_Routes(t *testing.T) {
	srv := NewServer(":0")
	if srv.Addr != ":0" {
		t.Errorf("Addr = %q, want :0", srv.Addr)
	}

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/health", http.StatusOK, "ok"},
		{Path, http.StatusOK, "go_goroutines"},
		{"/missing", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, body := scrape(t, srv.Handler, tt.path)
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d", code, tt.wantCode)
			}
			if tt.contains != "" && !strings.Contains(body, tt.contains) {
				t.Errorf("body missing %q", tt.contains)
			}
		})
	}
}
