package calendar

import (
	"cmp"
	"slices"
	"strings"

	"postcal/internal/post"
)

// Query narrows a post list. The zero Query matches everything.
type Query struct {
	Filter post.Filter
	Search string
}

// Unconstrained reports whether q matches every post.
func (q Query) Unconstrained() bool {
	return (q.Filter == "" || q.Filter == post.FilterAll) && q.Search == ""
}

// Match reports whether p passes both the kind filter and the search term.
// Search is a case-insensitive substring match on content; an empty term
// matches every post.
func (q Query) Match(p post.Post) bool {
	if !q.Filter.Match(p.Kind) {
		return false
	}
	if q.Search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Content), strings.ToLower(q.Search))
}

// FilterPosts keeps the posts matching q, in input order.
func FilterPosts(posts []post.Post, q Query) []post.Post {
	out := make([]post.Post, 0, len(posts))
	for _, p := range posts {
		if q.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// PostsOnDay keeps the posts scheduled on day, in input order.
func PostsOnDay(posts []post.Post, day post.Date) []post.Post {
	var out []post.Post
	for _, p := range posts {
		if p.Date == day {
			out = append(out, p)
		}
	}
	return out
}

// PostsInMonth keeps the posts scheduled inside m, in input order.
func PostsInMonth(posts []post.Post, m Month) []post.Post {
	var out []post.Post
	for _, p := range posts {
		if m.Contains(p.Date) {
			out = append(out, p)
		}
	}
	return out
}

// SortByInstant returns a copy ordered by date, then time. Ties keep input order.
func SortByInstant(posts []post.Post) []post.Post {
	out := slices.Clone(posts)
	slices.SortStableFunc(out, func(a, b post.Post) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Time.Minutes(), b.Time.Minutes())
	})
	return out
}
