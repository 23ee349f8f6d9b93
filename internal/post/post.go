package post

import (
	"strings"
	"time"
)

// Post is one scheduled unit of content.
type Post struct {
	ID      string `json:"id"`
	Date    Date   `json:"date"`
	Time    Clock  `json:"time"`
	Content string `json:"content"`
	Kind    Kind   `json:"type"`
}

// At is the scheduled instant in loc.
func (p Post) At(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(p.Date.Year(), p.Date.Month(), p.Date.Day(), p.Time.Hour(), p.Time.Minute(), 0, 0, loc)
}

// Draft is the input to create a post; the store assigns the ID.
type Draft struct {
	Date    Date
	Time    Clock
	Content string
	Kind    Kind
}

func (d Draft) Validate() error {
	if d.Date.IsZero() {
		return invalid("date", "missing")
	}
	if d.Time.IsZero() {
		return invalid("time", "missing")
	}
	if !d.Kind.Valid() {
		if d.Kind == "" {
			return invalid("type", "missing")
		}
		return invalid("type", "%q is not one of text, image, link", string(d.Kind))
	}
	return nil
}

// ParseDraft builds a Draft from raw form values. An empty kind defaults to text.
func ParseDraft(date, clock, content, kind string) (Draft, error) {
	d, err := ParseDate(date)
	if err != nil {
		return Draft{}, err
	}
	c, err := ParseClock(clock)
	if err != nil {
		return Draft{}, err
	}
	k := KindText
	if strings.TrimSpace(kind) != "" {
		if k, err = ParseKind(kind); err != nil {
			return Draft{}, err
		}
	}
	return Draft{Date: d, Time: c, Content: content, Kind: k}, nil
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Date    *Date
	Time    *Clock
	Content *string
	Kind    *Kind
}

func (p Patch) IsEmpty() bool {
	return p.Date == nil && p.Time == nil && p.Content == nil && p.Kind == nil
}

func (p Patch) Validate() error {
	if p.Date != nil && p.Date.IsZero() {
		return invalid("date", "cannot be cleared")
	}
	if p.Time != nil && p.Time.IsZero() {
		return invalid("time", "cannot be cleared")
	}
	if p.Kind != nil && !p.Kind.Valid() {
		return invalid("type", "%q is not one of text, image, link", string(*p.Kind))
	}
	return nil
}

// Apply returns p merged over base. The ID never changes.
func (p Patch) Apply(base Post) Post {
	out := base
	if p.Date != nil {
		out.Date = *p.Date
	}
	if p.Time != nil {
		out.Time = *p.Time
	}
	if p.Content != nil {
		out.Content = *p.Content
	}
	if p.Kind != nil {
		out.Kind = *p.Kind
	}
	return out
}

// Fields names the fields the patch touches, in a stable order.
func (p Patch) Fields() []string {
	var out []string
	if p.Date != nil {
		out = append(out, "date")
	}
	if p.Time != nil {
		out = append(out, "time")
	}
	if p.Content != nil {
		out = append(out, "content")
	}
	if p.Kind != nil {
		out = append(out, "type")
	}
	return out
}

// ParsePatch builds a Patch from optional raw values; nil means "not given".
func ParsePatch(date, clock, content, kind *string) (Patch, error) {
	var p Patch
	if date != nil {
		d, err := ParseDate(*date)
		if err != nil {
			return Patch{}, err
		}
		p.Date = &d
	}
	if clock != nil {
		c, err := ParseClock(*clock)
		if err != nil {
			return Patch{}, err
		}
		p.Time = &c
	}
	if content != nil {
		s := *content
		p.Content = &s
	}
	if kind != nil {
		k, err := ParseKind(*kind)
		if err != nil {
			return Patch{}, err
		}
		p.Kind = &k
	}
	return p, nil
}
