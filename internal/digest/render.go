package digest

import (
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"postcal/internal/calendar"
	"postcal/internal/post"
)

const excerptLen = 120

// Render builds the HTML agenda for day. posts must already be sorted.
func Render(day post.Date, posts []post.Post, loc *time.Location, now time.Time) string {
	var b strings.Builder
	b.WriteString("<b>📅 ")
	b.WriteString(html.EscapeString(day.Time(loc).Format("Monday, January 2")))
	b.WriteString("</b>\n")
	if len(posts) == 0 {
		b.WriteString("<i>Nothing scheduled today.</i>")
		return b.String()
	}
	b.WriteString(html.EscapeString(calendar.CountLabel(len(posts))))
	b.WriteString(" scheduled\n")
	for _, p := range posts {
		b.WriteString("\n<code>")
		b.WriteString(p.Time.String())
		b.WriteString("</code> ")
		b.WriteString(p.Kind.Icon())
		b.WriteString(" ")
		b.WriteString(html.EscapeString(excerpt(p.Content, excerptLen)))
		b.WriteString(" <i>(")
		b.WriteString(html.EscapeString(humanize.RelTime(p.At(loc), now, "ago", "from now")))
		b.WriteString(", #")
		b.WriteString(html.EscapeString(p.ID))
		b.WriteString(")</i>")
	}
	return b.String()
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
