package feed

import (
	"github.com/Sternrassler/comment-scroll/pkg/comments"
)

// PaginationState is the accumulated result of all applied page loads.
type PaginationState struct {
	// Comments in page order, each ID at most once.
	Comments []comments.Comment
	// Cursor is the next page to request, starting at 1.
	Cursor int
	// HasMore turns false after the first empty page and never back.
	HasMore bool
	// LastError holds ErrorMessage after a failed load until the next page is applied.
	LastError string

	err  error
	seen map[int]struct{}
}

func newPaginationState() *PaginationState {
	return &PaginationState{
		Cursor:  1,
		HasMore: true,
		seen:    make(map[int]struct{}),
	}
}

// apply appends the comments of page not loaded before and advances the cursor.
// It returns the number of comments appended.
func (s *PaginationState) apply(page comments.Page) int {
	added := 0
	for _, c := range page {
		if _, dup := s.seen[c.ID]; dup {
			continue
		}
		s.seen[c.ID] = struct{}{}
		s.Comments = append(s.Comments, c)
		added++
	}
	s.Cursor++
	s.LastError = ""
	s.err = nil
	return added
}

// end marks the end of data. The cursor stays on the empty page.
func (s *PaginationState) end() {
	s.HasMore = false
}

// fail records a failed load. Accumulated comments and the cursor are kept.
func (s *PaginationState) fail(err error) {
	s.LastError = ErrorMessage
	s.err = err
}

func (s *PaginationState) snapshot(loading bool) Snapshot {
	out := Snapshot{
		Cursor:    s.Cursor,
		HasMore:   s.HasMore,
		Loading:   loading,
		LastError: s.LastError,
		Err:       s.err,
	}
	if len(s.Comments) > 0 {
		out.Comments = make([]comments.Comment, len(s.Comments))
		copy(out.Comments, s.Comments)
	}
	return out
}

// Snapshot is a copy of the presentation state at one point in time.
type Snapshot struct {
	Comments  []comments.Comment
	Cursor    int
	HasMore   bool
	Loading   bool
	LastError string
	// Err is the underlying error of the last failed load, for logs only.
	Err error
}

// Blocking reports whether the error replaces the list: no comment was ever loaded.
func (s Snapshot) Blocking() bool {
	return s.LastError != "" && len(s.Comments) == 0
}

// Exhausted reports whether the end of data was reached and nothing is loading.
func (s Snapshot) Exhausted() bool {
	return !s.HasMore && !s.Loading
}

// Sentinel returns the key of the last comment, which the trigger should observe.
// It is empty when nothing is loaded or no more data exists.
func (s Snapshot) Sentinel() string {
	if !s.HasMore || len(s.Comments) == 0 {
		return ""
	}
	return s.Comments[len(s.Comments)-1].Key()
}
