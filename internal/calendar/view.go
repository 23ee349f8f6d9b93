package calendar

import (
	"strconv"
	"time"

	"postcal/internal/post"
)

// Grid lays m out in weeks of seven days starting on weekStart. The first and
// last weeks are padded with days of the neighbouring months.
func Grid(m Month, weekStart time.Weekday) [][]post.Date {
	first := m.First()
	lead := (int(first.Weekday()) - int(weekStart) + 7) % 7
	start := first.AddDays(-lead)

	cells := lead + m.Days()
	weeks := (cells + 6) / 7
	out := make([][]post.Date, weeks)
	d := start
	for w := range out {
		row := make([]post.Date, 7)
		for i := range row {
			row[i] = d
			d = d.AddDays(1)
		}
		out[w] = row
	}
	return out
}

// WeekdayHeader returns short weekday names in grid order.
func WeekdayHeader(weekStart time.Weekday) []string {
	out := make([]string, 7)
	for i := range out {
		out[i] = time.Weekday((int(weekStart) + i) % 7).String()[:3]
	}
	return out
}

type Cell struct {
	Date    post.Date   `json:"date"`
	InMonth bool        `json:"in_month"`
	Today   bool        `json:"today"`
	Posts   []post.Post `json:"posts"`
}

type MonthView struct {
	Month    Month    `json:"-"`
	Key      string   `json:"month"`
	Title    string   `json:"title"`
	Weekdays []string `json:"weekdays"`
	Weeks    [][]Cell `json:"weeks"`
	// Total matching posts inside the month, padding days excluded.
	Total int `json:"total"`
}

// BuildMonth filters posts with q and places them on the grid for m.
// Padding cells carry their posts too; only Total is restricted to m.
func BuildMonth(posts []post.Post, q Query, m Month, weekStart time.Weekday, now time.Time) MonthView {
	matched := FilterPosts(posts, q)
	byDay := make(map[post.Date][]post.Post, len(matched))
	for _, p := range matched {
		byDay[p.Date] = append(byDay[p.Date], p)
	}

	v := MonthView{
		Month:    m,
		Key:      m.Key(),
		Title:    m.String(),
		Weekdays: WeekdayHeader(weekStart),
	}
	for _, week := range Grid(m, weekStart) {
		row := make([]Cell, len(week))
		for i, d := range week {
			ps := byDay[d]
			if ps == nil {
				ps = []post.Post{}
			}
			row[i] = Cell{Date: d, InMonth: IsCurrentMonth(d, m), Today: IsToday(d, now), Posts: ps}
			if row[i].InMonth {
				v.Total += len(ps)
			}
		}
		v.Weeks = append(v.Weeks, row)
	}
	return v
}

// CountLabel renders a per-day badge: "", "1 post", "3 posts".
func CountLabel(n int) string {
	switch {
	case n <= 0:
		return ""
	case n == 1:
		return "1 post"
	default:
		return strconv.Itoa(n) + " posts"
	}
}
