package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"postcal/internal/calendar"
	"postcal/internal/post"
	"postcal/internal/transport"
)

const (
	cbMonth = "cal:month"
	cbDay   = "cal:day"

	listLimit   = 50
	excerptLen  = 80
	dayButtonsW = 4
)

func esc(s string) string { return html.EscapeString(s) }

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// postLine renders "#3 · 2024-10-05 09:00 · 📝 Text" followed by the content.
func postLine(p post.Post, withDate bool) string {
	var b strings.Builder
	b.WriteString("<b>#" + esc(p.ID) + "</b> · ")
	if withDate {
		b.WriteString(p.Date.String() + " ")
	}
	b.WriteString("<code>" + p.Time.String() + "</code> · " + p.Kind.Icon() + " " + p.Kind.Label())
	if c := excerpt(p.Content, excerptLen); c != "" {
		b.WriteString("\n" + esc(c))
	}
	return b.String()
}

func postCard(title string, p post.Post) string {
	var b strings.Builder
	b.WriteString(title + "\n")
	b.WriteString("<b>#" + esc(p.ID) + "</b> · " + p.Date.String() + " <code>" + p.Time.String() + "</code> · " + p.Kind.Icon() + " " + p.Kind.Label())
	if p.Content != "" {
		b.WriteString("\n\n" + esc(p.Content))
	}
	return b.String()
}

func queryLine(q calendar.Query) string {
	if q.Unconstrained() {
		return ""
	}
	var parts []string
	if q.Filter != "" && q.Filter != post.FilterAll {
		parts = append(parts, "type: "+esc(q.Filter.String()))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		parts = append(parts, "search: “"+esc(s)+"”")
	}
	return "<i>" + strings.Join(parts, " · ") + "</i>"
}

func renderList(posts []post.Post, q calendar.Query) string {
	var b strings.Builder
	b.WriteString("<b>📋 Scheduled posts</b>")
	if ql := queryLine(q); ql != "" {
		b.WriteString("\n" + ql)
	}
	if len(posts) == 0 {
		b.WriteString("\n\n<i>No posts.</i>")
		return b.String()
	}
	b.WriteString("\n" + esc(calendar.CountLabel(len(posts))))
	for i, p := range posts {
		if i == listLimit {
			b.WriteString("\n\n… and " + humanize.Comma(int64(len(posts)-listLimit)) + " more")
			break
		}
		b.WriteString("\n\n" + postLine(p, true))
	}
	return b.String()
}

func renderDay(day post.Date, posts []post.Post, q calendar.Query, loc *time.Location, now time.Time) string {
	var b strings.Builder
	b.WriteString("<b>🗓 " + esc(day.Time(loc).Format("Monday, January 2, 2006")) + "</b>")
	if calendar.IsToday(day, now) {
		b.WriteString(" <i>(today)</i>")
	}
	if ql := queryLine(q); ql != "" {
		b.WriteString("\n" + ql)
	}
	if len(posts) == 0 {
		b.WriteString("\n\n<i>No posts.</i>")
		return b.String()
	}
	b.WriteString("\n" + esc(calendar.CountLabel(len(posts))))
	for _, p := range posts {
		b.WriteString("\n\n" + postLine(p, false))
		b.WriteString(" <i>(" + esc(humanize.RelTime(p.At(loc), now, "ago", "from now")) + ")</i>")
	}
	return b.String()
}

// renderMonth draws the grid in a <pre> block. Days with posts carry a '•',
// today is bracketed and padding days are blank.
func renderMonth(v calendar.MonthView, q calendar.Query) (string, [][]transport.Button) {
	var b strings.Builder
	b.WriteString("<b>📅 " + esc(v.Title) + "</b>")
	if ql := queryLine(q); ql != "" {
		b.WriteString("\n" + ql)
	}
	if v.Total == 0 {
		b.WriteString("\n<i>No posts this month.</i>")
	} else {
		b.WriteString("\n" + esc(calendar.CountLabel(v.Total)) + " this month")
	}

	b.WriteString("\n<pre>")
	for _, w := range v.Weekdays {
		b.WriteString(fmt.Sprintf("%-4s", w[:2]))
	}
	var days []transport.Button
	for _, week := range v.Weeks {
		b.WriteString("\n")
		for _, c := range week {
			if !c.InMonth {
				b.WriteString("    ")
				continue
			}
			cell := strconv.Itoa(c.Date.Day())
			if c.Today {
				cell = "[" + cell + "]"
			}
			if len(c.Posts) > 0 {
				cell += "•"
				days = append(days, transport.Button{
					Text: strconv.Itoa(c.Date.Day()) + " · " + strconv.Itoa(len(c.Posts)),
					Data: cbDay + ":" + c.Date.String(),
				})
			}
			b.WriteString(fmt.Sprintf("%-4s", cell))
		}
	}
	b.WriteString("</pre>")

	kb := [][]transport.Button{{
		{Text: "◀", Data: cbMonth + ":" + v.Month.Prev().Key()},
		{Text: v.Title, Data: cbMonth + ":" + v.Month.Key()},
		{Text: "▶", Data: cbMonth + ":" + v.Month.Next().Key()},
	}}
	for len(days) > 0 {
		n := min(dayButtonsW, len(days))
		kb = append(kb, days[:n])
		days = days[n:]
	}
	return b.String(), kb
}

func renderHelp(cmds []Command) string {
	var b strings.Builder
	b.WriteString("<b>postcal</b> · content calendar\n")
	for _, c := range cmds {
		b.WriteString("\n<code>" + esc(c.Usage) + "</code>")
		if c.Description != "" {
			b.WriteString("\n  " + esc(c.Description))
		}
		if c.Access == AccessOwner {
			b.WriteString(" 🔒")
		}
	}
	return b.String()
}
