package post

import "strings"

// Kind is the content type of a post. The set is closed.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindLink  Kind = "link"
)

// Kinds lists every valid kind in display order.
func Kinds() []Kind { return []Kind{KindText, KindImage, KindLink} }

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindLink:
		return true
	default:
		return false
	}
}

func (k Kind) String() string { return string(k) }

// Label is the human-facing name.
func (k Kind) Label() string {
	switch k {
	case KindText:
		return "Text"
	case KindImage:
		return "Image"
	case KindLink:
		return "Link"
	default:
		return "Unknown"
	}
}

// Icon is a single-glyph marker used in compact calendar cells.
func (k Kind) Icon() string {
	switch k {
	case KindText:
		return "📝"
	case KindImage:
		return "🖼"
	case KindLink:
		return "🔗"
	default:
		return "?"
	}
}

// ParseKind accepts a kind name in any case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", invalid("type", "%q is not one of text, image, link", s)
	}
	return k, nil
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, invalid("type", "%q is not one of text, image, link", string(k))
	}
	return []byte(k), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Filter selects posts by kind. FilterAll matches every kind.
type Filter string

const FilterAll Filter = "all"

// ParseFilter accepts "all" or a kind name; empty means all.
func ParseFilter(s string) (Filter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(FilterAll) {
		return FilterAll, nil
	}
	k, err := ParseKind(s)
	if err != nil {
		return "", invalid("filter", "%q is not one of all, text, image, link", s)
	}
	return Filter(k), nil
}

// Match reports whether a post of kind k passes the filter. The zero Filter matches all.
func (f Filter) Match(k Kind) bool {
	return f == "" || f == FilterAll || Kind(f) == k
}

func (f Filter) String() string {
	if f == "" {
		return string(FilterAll)
	}
	return string(f)
}
