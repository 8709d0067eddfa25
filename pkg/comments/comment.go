// Package comments defines the records served by the comments endpoint.
package comments

import (
	"net/url"
	"strconv"
	"strings"
)

// Comment is a single record returned by the comments endpoint.
// Comments are immutable once fetched; ID is the identity.
type Comment struct {
	ID     int    `json:"id"`
	PostID int    `json:"postId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Body   string `json:"body"`
}

// Key identifies the comment's rendered item, e.g. for attaching the load sentinel.
func (c Comment) Key() string {
	return "comment-" + strconv.Itoa(c.ID)
}

// Page is the ordered result of one fetch. An empty Page means there is no more data.
type Page []Comment

// IsEnd reports whether the page signals end-of-data.
func (p Page) IsEnd() bool {
	return len(p) == 0
}

// AvatarURL derives the avatar image URL for an author email.
//
// Example:
//
//	AvatarURL("https://robohash.org", "Eliseo@gardner.biz") // https://robohash.org/Eliseo@gardner.biz
func AvatarURL(baseURL, email string) string {
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(email)
}

// FallbackAvatarURL is the URL a view retries with after the primary avatar failed to load.
func FallbackAvatarURL(baseURL, email string) string {
	return AvatarURL(baseURL, email) + "?retry"
}
