package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/comment-scroll/pkg/comments"
)

// renderCard writes one comment as a card: title, author with avatar, body.
func renderCard(w io.Writer, c comments.Comment, avatarBaseURL string) {
	fmt.Fprintf(w, "#%d %s\n", c.ID, strings.TrimSpace(c.Name))
	fmt.Fprintf(w, "   by %s  [%s]\n", c.Email, comments.AvatarURL(avatarBaseURL, c.Email))
	for _, line := range strings.Split(strings.TrimSpace(c.Body), "\n") {
		fmt.Fprintf(w, "   %s\n", line)
	}
	fmt.Fprintln(w)
}
