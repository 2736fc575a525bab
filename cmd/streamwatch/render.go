package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/anonto42/shelfstream/internal/feed"
	"github.com/anonto42/shelfstream/internal/models"
)

// render prints one feed, newest first
func render(w io.Writer, tab feed.Tab, view []models.Activity) {
	fmt.Fprintf(w, "== %s (%d) ==\n", tab, len(view))
	for _, a := range view {
		fmt.Fprintln(w, line(a))
	}
}

func line(a models.Activity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-11s %s by %s", a.CreatedAt.Local().Format("15:04:05"), a.Type, a.EntityID, a.UserID)
	if title, ok := a.Metadata["title"].(string); ok && title != "" {
		fmt.Fprintf(&b, " %q", title)
	}
	for _, key := range models.CounterKeys {
		if n, ok := a.Metadata.Int(key); ok {
			fmt.Fprintf(&b, " %s=%d", key, n)
		}
	}
	b.WriteString(reactionsText(a.Metadata.Reactions()))
	return b.String()
}

// reactionsText renders reactions as " [👍2* 🔥1]", a star marking the
// viewer's own. It is empty when there are none.
func reactionsText(reactions []models.Reaction) string {
	if len(reactions) == 0 {
		return ""
	}
	parts := make([]string, 0, len(reactions))
	for _, r := range reactions {
		mark := ""
		if r.UserReacted {
			mark = "*"
		}
		parts = append(parts, fmt.Sprintf("%s%d%s", r.Emoji, r.Count, mark))
	}
	return " [" + strings.Join(parts, " ") + "]"
}
