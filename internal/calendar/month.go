package calendar

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"postcal/internal/post"
)

// Month identifies a calendar month. Values are comparable.
type Month struct {
	Year  int
	Month time.Month
}

func MonthOf(d post.Date) Month { return Month{Year: d.Year(), Month: d.Month()} }

func MonthOfTime(t time.Time) Month { return Month{Year: t.Year(), Month: t.Month()} }

// ParseMonth reads YYYY-MM.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	ys, ms, ok := strings.Cut(s, "-")
	if !ok {
		return Month{}, fmt.Errorf("month %q: want YYYY-MM", s)
	}
	y, err := strconv.Atoi(ys)
	if err != nil || len(ys) != 4 {
		return Month{}, fmt.Errorf("month %q: bad year", s)
	}
	mo, err := strconv.Atoi(ms)
	if err != nil || mo < 1 || mo > 12 {
		return Month{}, fmt.Errorf("month %q: bad month", s)
	}
	return NewMonth(y, time.Month(mo))
}

func NewMonth(year int, month time.Month) (Month, error) {
	if year < 1 || year > 9999 || month < time.January || month > time.December {
		return Month{}, fmt.Errorf("month %04d-%02d out of range", year, int(month))
	}
	return Month{Year: year, Month: month}, nil
}

// Range of months whose days are all valid post dates.
var (
	MinMonth = Month{Year: 1, Month: time.January}
	MaxMonth = Month{Year: 9999, Month: time.December}
)

func (m Month) index() int { return m.Year*12 + int(m.Month) - 1 }

func monthAt(i int) Month { return Month{Year: i / 12, Month: time.Month(i%12 + 1)} }

// Shift moves n months forward (negative n moves back). ok is false when the
// result would leave MinMonth..MaxMonth; m is returned unchanged then.
func (m Month) Shift(n int) (Month, bool) {
	i := m.index() + n
	if i < MinMonth.index() || i > MaxMonth.index() {
		return m, false
	}
	return monthAt(i), true
}

// Add is Shift clamped to MinMonth..MaxMonth.
func (m Month) Add(n int) Month {
	i := min(max(m.index()+n, MinMonth.index()), MaxMonth.index())
	return monthAt(i)
}

func (m Month) Next() Month { return m.Add(1) }
func (m Month) Prev() Month { return m.Add(-1) }

func (m Month) First() post.Date { return post.MustDate(m.Year, m.Month, 1) }
func (m Month) Last() post.Date  { return post.MustDate(m.Year, m.Month, m.Days()) }
func (m Month) Days() int        { return post.DaysIn(m.Year, m.Month) }

func (m Month) Contains(d post.Date) bool {
	return d.Year() == m.Year && d.Month() == m.Month
}

// Key is the YYYY-MM form accepted by ParseMonth.
func (m Month) Key() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// String is the display title, e.g. "October 2024".
func (m Month) String() string { return fmt.Sprintf("%s %d", m.Month, m.Year) }

// DaysInMonth yields every date of m in ascending order. The sequence is
// finite and can be ranged over any number of times.
func DaysInMonth(m Month) iter.Seq[post.Date] {
	return func(yield func(post.Date) bool) {
		n := m.Days()
		for day := 1; day <= n; day++ {
			if !yield(post.MustDate(m.Year, m.Month, day)) {
				return
			}
		}
	}
}

// IsCurrentMonth reports whether day falls inside m.
func IsCurrentMonth(day post.Date, m Month) bool { return m.Contains(day) }

// IsToday reports whether day is the calendar date of now, in now's location.
func IsToday(day post.Date, now time.Time) bool { return day == post.DateOf(now) }
