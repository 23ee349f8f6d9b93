package store

import (
	"fmt"

	"postcal/internal/post"
)

// Seed creates every draft in order and returns the created posts. It stops at
// the first invalid draft; posts created before it are kept.
func (s *Store) Seed(drafts []post.Draft) ([]post.Post, error) {
	out := make([]post.Post, 0, len(drafts))
	for i, d := range drafts {
		p, err := s.Create(d)
		if err != nil {
			return out, fmt.Errorf("seed post %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}
