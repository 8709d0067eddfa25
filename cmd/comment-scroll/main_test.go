package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/comment-scroll/internal/testutil"
	"github.com/Sternrassler/comment-scroll/pkg/comments"
	"github.com/Sternrassler/comment-scroll/pkg/feed"
)

var cardLine = regexp.MustCompile(`(?m)^#\d+ `)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("COMMENT_SCROLL_RATELIMIT_ENABLED", "false")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)

	err := cmd.ExecuteContext(ctx)
	if ctx.Err() != nil {
		t.Fatalf("command did not finish: %v", ctx.Err())
	}
	return out.String(), err
}

func scrollArgs(baseURL string, extra ...string) []string {
	args := []string{
		"scroll",
		"--base-url", baseURL,
		"--page-size", "10",
		"--height", "3",
		"--step", "4",
		"--interval", "1ms",
		"--log-level", "error",
	}
	return append(args, extra...)
}

func TestScroll_ReadsUntilEnd(t *testing.T) {
	api := testutil.NewMockAPI(25)
	defer api.Close()

	out, err := runCLI(t, scrollArgs(api.URL())...)
	if err != nil {
		t.Fatalf("scroll failed: %v", err)
	}

	if got := len(cardLine.FindAllString(out, -1)); got != 25 {
		t.Errorf("rendered %d cards, want 25", got)
	}
	if !strings.Contains(out, "#25 comment 25") {
		t.Errorf("last comment missing from output")
	}
	if !strings.HasSuffix(strings.TrimSpace(out), EndMessage) {
		t.Errorf("output should end with %q", EndMessage)
	}

	pages := api.PagesRequested()
	if len(pages) != 4 {
		t.Fatalf("requested pages %v, want [1 2 3 4]", pages)
	}
	for i, p := range pages {
		if p != i+1 {
			t.Errorf("request %d was page %d, want %d", i, p, i+1)
		}
	}
}

func TestScroll_FirstPageFailure(t *testing.T) {
	api := testutil.NewMockAPI(25)
	defer api.Close()
	api.SetPageResponse(1, testutil.MockResponse{StatusCode: http.StatusInternalServerError})

	out, err := runCLI(t, scrollArgs(api.URL())...)
	if !errors.Is(err, errLoadFailed) {
		t.Fatalf("error = %v, want errLoadFailed", err)
	}
	if strings.TrimSpace(out) != feed.ErrorMessage {
		t.Errorf("output = %q, want only the error message", out)
	}
	if n := api.RequestCount(); n != 1 {
		t.Errorf("request count = %d, want 1 (no retry)", n)
	}
}

func TestScroll_LaterPageFailureKeepsCards(t *testing.T) {
	api := testutil.NewMockAPI(25)
	defer api.Close()
	api.SetPageResponse(2, testutil.MockResponse{StatusCode: http.StatusServiceUnavailable})

	out, err := runCLI(t, scrollArgs(api.URL())...)
	if !errors.Is(err, errLoadFailed) {
		t.Fatalf("error = %v, want errLoadFailed", err)
	}
	if got := len(cardLine.FindAllString(out, -1)); got != 10 {
		t.Errorf("rendered %d cards, want 10", got)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), feed.ErrorMessage) {
		t.Errorf("output should end with the error message, got %q", out)
	}
}

func TestScroll_MaxPages(t *testing.T) {
	api := testutil.NewMockAPI(25)
	defer api.Close()

	out, err := runCLI(t, scrollArgs(api.URL(), "--max-pages", "1")...)
	if err != nil {
		t.Fatalf("scroll failed: %v", err)
	}
	if got := len(cardLine.FindAllString(out, -1)); got != 10 {
		t.Errorf("rendered %d cards, want 10", got)
	}
	if strings.Contains(out, EndMessage) {
		t.Error("page limit must not print the end message")
	}
}

func TestScroll_InvalidConfig(t *testing.T) {
	_, err := runCLI(t, "scroll", "--base-url", "ftp://example.com", "--log-level", "error")
	if err == nil || !strings.Contains(err.Error(), "failed to load config") {
		t.Fatalf("error = %v, want config error", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if out != "comment-scroll dev\n" {
		t.Errorf("output = %q", out)
	}
}

func TestRenderCard(t *testing.T) {
	buf := &bytes.Buffer{}
	renderCard(buf, comments.Comment{
		ID:    1,
		Name:  "id labore ex et quam laborum",
		Email: "Eliseo@gardner.biz",
		Body:  "laudantium enim quasi\nest quidem magnam",
	}, "https://robohash.org")

	want := "#1 id labore ex et quam laborum\n" +
		"   by Eliseo@gardner.biz  [https://robohash.org/Eliseo@gardner.biz]\n" +
		"   laudantium enim quasi\n" +
		"   est quidem magnam\n\n"
	if buf.String() != want {
		t.Errorf("renderCard =\n%q\nwant\n%q", buf.String(), want)
	}
}
