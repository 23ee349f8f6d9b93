// Package store holds the canonical collection of scheduled posts.
//
// The store lives in memory for the lifetime of the process. All mutations
// are serialized by one lock; reads return copies, so callers can never see a
// half-applied change or modify stored posts in place.
package store

import (
	"strconv"
	"sync"
	"time"

	"postcal/internal/eventbus"
	"postcal/internal/post"
	"postcal/pkg/logx"
)

// Event types published after each successful mutation.
const (
	EventCreated = "post.created"
	EventUpdated = "post.updated"
	EventRemoved = "post.removed"
)

// Change is the Data payload of store events.
type Change struct {
	Action string
	Post   post.Post
	// Fields touched by an update.
	Fields []string
}

type Option func(*Store)

func WithLogger(log logx.Logger) Option {
	return func(s *Store) { s.log = log.Component("store") }
}

func WithBus(bus eventbus.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

type Store struct {
	mu    sync.RWMutex
	posts []post.Post
	index map[string]int
	// last issued id; ids are never reused, even after removal
	seq uint64

	log logx.Logger
	bus eventbus.Bus
	now func() time.Time
}

func New(opts ...Option) *Store {
	s := &Store{
		index: map[string]int{},
		log:   logx.Nop(),
		now:   time.Now,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// Create validates d, assigns a fresh id and appends the post.
// Invalid input returns a *post.ValidationError and leaves the store unchanged.
func (s *Store) Create(d post.Draft) (post.Post, error) {
	if err := d.Validate(); err != nil {
		return post.Post{}, err
	}

	s.mu.Lock()
	s.seq++
	p := post.Post{
		ID:      strconv.FormatUint(s.seq, 10),
		Date:    d.Date,
		Time:    d.Time,
		Content: d.Content,
		Kind:    d.Kind,
	}
	s.index[p.ID] = len(s.posts)
	s.posts = append(s.posts, p)
	s.mu.Unlock()

	s.log.Debug("post created", logx.String("post_id", p.ID), logx.String("date", p.Date.String()), logx.String("type", p.Kind.String()))
	s.publish(EventCreated, Change{Action: "create", Post: p})
	return p, nil
}

// Remove deletes the post with id. It reports whether anything was removed;
// an unknown id is a no-op.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	p := s.posts[i]
	s.posts = append(s.posts[:i], s.posts[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.posts); j++ {
		s.index[s.posts[j].ID] = j
	}
	s.mu.Unlock()

	s.log.Debug("post removed", logx.String("post_id", id))
	s.publish(EventRemoved, Change{Action: "remove", Post: p})
	return true
}

// Update merges the non-nil fields of patch into the post with id. The id
// never changes. An unknown id is a no-op and returns ok=false with no error.
// Patch values that would leave the post invalid are rejected without mutation.
func (s *Store) Update(id string, patch post.Patch) (post.Post, bool, error) {
	if err := patch.Validate(); err != nil {
		return post.Post{}, false, err
	}

	s.mu.Lock()
	i, found := s.index[id]
	if !found {
		s.mu.Unlock()
		return post.Post{}, false, nil
	}
	updated := patch.Apply(s.posts[i])
	s.posts[i] = updated
	s.mu.Unlock()

	fields := patch.Fields()
	s.log.Debug("post updated", logx.String("post_id", id), logx.Strings("fields", fields))
	if len(fields) > 0 {
		s.publish(EventUpdated, Change{Action: "update", Post: updated, Fields: fields})
	}
	return updated, true, nil
}

// List returns a copy of every post in insertion order.
func (s *Store) List() []post.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]post.Post, len(s.posts))
	copy(out, s.posts)
	return out
}

func (s *Store) Get(id string) (post.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return post.Post{}, false
	}
	return s.posts[i], true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

func (s *Store) publish(typ string, c Change) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: c})
}
