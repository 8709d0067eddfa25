// Package testutil provides testing utilities for the comment feed.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/comment-scroll/pkg/comments"
)

// MockResponse overrides the response for one page.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock of the comments endpoint. By default it serves
// Total generated comments in pages of the requested _limit.
type MockAPI struct {
	server    *httptest.Server
	mu        sync.RWMutex
	total     int
	overrides map[int]MockResponse
	holds     map[int]chan struct{}

	// Tracking
	requestCount   int
	pagesRequested []int
	lastQuery      string
	lastHeader     http.Header
}

// NewMockAPI creates a mock serving total generated comments.
func NewMockAPI(total int) *MockAPI {
	mock := &MockAPI{
		total:     total,
		overrides: make(map[int]MockResponse),
		holds:     make(map[int]chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/comments", mock.handleComments)
	mock.server = httptest.NewServer(mux)

	return mock
}

// URL returns the mock API root.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server. Held pages are released first.
func (m *MockAPI) Close() {
	m.mu.Lock()
	for page, ch := range m.holds {
		close(ch)
		delete(m.holds, page)
	}
	m.mu.Unlock()
	m.server.Close()
}

// SetTotal changes the number of comments the mock serves.
func (m *MockAPI) SetTotal(total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = total
}

// SetPageResponse overrides the response for a page.
func (m *MockAPI) SetPageResponse(page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[page] = resp
}

// ClearPageResponse removes a page override.
func (m *MockAPI) ClearPageResponse(page int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, page)
}

// HoldPage makes requests for page block until the returned release func is called
// or the request context ends.
func (m *MockAPI) HoldPage(page int) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.holds[page] = ch
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.holds[page] == ch {
				delete(m.holds, page)
				close(ch)
			}
			m.mu.Unlock()
		})
	}
}

// RequestCount returns the number of requests served.
func (m *MockAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PagesRequested returns the page numbers in request order.
func (m *MockAPI) PagesRequested() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, len(m.pagesRequested))
	copy(out, m.pagesRequested)
	return out
}

// LastQuery returns the raw query of the last request.
func (m *MockAPI) LastQuery() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

// LastHeader returns the headers of the last request.
func (m *MockAPI) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

func (m *MockAPI) handleComments(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("_page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("_limit"))

	m.mu.Lock()
	m.requestCount++
	m.pagesRequested = append(m.pagesRequested, page)
	m.lastQuery = r.URL.RawQuery
	m.lastHeader = r.Header.Clone()
	override, hasOverride := m.overrides[page]
	hold := m.holds[page]
	total := m.total
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	if hasOverride {
		if override.Delay > 0 {
			select {
			case <-time.After(override.Delay):
			case <-r.Context().Done():
				return
			}
		}
		for key, value := range override.Headers {
			w.Header().Set(key, value)
		}
		status := override.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if override.Body != "" {
			w.Write([]byte(override.Body))
		}
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	if err := json.NewEncoder(w).Encode(GenerateComments(total, page, limit)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GenerateComments returns the slice of a generated collection of total comments that
// page/limit addresses, with IDs starting at 1.
func GenerateComments(total, page, limit int) comments.Page {
	if page < 1 || limit < 1 {
		return comments.Page{}
	}
	start := (page - 1) * limit
	if start >= total {
		return comments.Page{}
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make(comments.Page, 0, end-start)
	for id := start + 1; id <= end; id++ {
		out = append(out, NewComment(id))
	}
	return out
}

// NewComment builds a deterministic comment for an ID.
func NewComment(id int) comments.Comment {
	return comments.Comment{
		ID:     id,
		PostID: (id-1)/5 + 1,
		Name:   fmt.Sprintf("comment %d", id),
		Email:  fmt.Sprintf("user%d@example.com", id),
		Body:   fmt.Sprintf("body of comment %d", id),
	}
}

// MustJSON encodes comments for use as a MockResponse body.
func MustJSON(page comments.Page) string {
	data, err := json.Marshal(page)
	if err != nil {
		panic(err)
	}
	return string(data)
}
