// Package digest sends a daily agenda of the day's scheduled posts to a chat.
package digest

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"postcal/internal/calendar"
	"postcal/internal/notifier"
	"postcal/internal/post"
	"postcal/internal/transport"
	"postcal/pkg/logx"
)

const (
	runTimeout = 30 * time.Second
	// dedupTTL outlives the day in any timezone; the key carries the date.
	dedupTTL = 48 * time.Hour
)

type Config struct {
	Enabled   bool
	Schedule  string
	Target    transport.ChatTarget
	SkipEmpty bool
	Location  *time.Location
}

// Lister is the read side of the post store.
type Lister interface {
	List() []post.Post
}

type Notifier interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

// DedupStore remembers which days were already sent, across restarts.
type DedupStore interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (time.Time, bool, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithDedup persists sent markers; without it they live in memory only.
func WithDedup(st DedupStore) Option { return func(s *Service) { s.dedup = st } }

type Service struct {
	log    logx.Logger
	posts  Lister
	notify Notifier
	dedup  DedupStore
	now    func() time.Time

	mu       sync.Mutex
	cfg      Config
	cron     *cron.Cron
	runCtx   context.Context
	lastSent map[string]bool
}

func New(posts Lister, notify Notifier, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:      log.Component("digest"),
		posts:    posts,
		notify:   notify,
		now:      time.Now,
		lastSent: map[string]bool{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Apply validates cfg and, when running, reschedules the job.
func (s *Service) Apply(cfg Config) error {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Enabled {
		if _, err := ParseSchedule(cfg.Schedule); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.cfg = cfg
	running := s.runCtx != nil
	s.mu.Unlock()
	if running {
		return s.reschedule()
	}
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.runCtx != nil {
		s.mu.Unlock()
		return nil
	}
	s.runCtx = ctx
	s.mu.Unlock()
	return s.reschedule()
}

// Stop halts the scheduler and waits for a running job, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.runCtx = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) reschedule() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	if !s.cfg.Enabled || s.runCtx == nil {
		return nil
	}
	sch, err := ParseSchedule(s.cfg.Schedule)
	if err != nil {
		return err
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(s.cfg.Location))
	ctx := s.runCtx
	if _, err := c.AddFunc(sch.Cron, func() {
		rctx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()
		if _, err := s.RunOnce(rctx); err != nil {
			s.log.Warn("digest run failed", logx.Err(err))
		}
	}); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info("digest scheduled", logx.String("cron", sch.Cron), logx.String("source", sch.Source), logx.String("tz", s.cfg.Location.String()))
	return nil
}

// Key is the dedup key for day.
func Key(day post.Date) string { return "digest:" + day.String() }

// RunOnce sends today's agenda unless it was already sent. It reports
// whether a notification was enqueued.
func (s *Service) RunOnce(ctx context.Context) (bool, error) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	now := s.now().In(cfg.Location)
	today := post.DateOf(now)
	key := Key(today)
	if s.sent(ctx, key) {
		s.log.Debug("digest already sent", logx.String("key", key))
		return false, nil
	}

	posts := calendar.SortByInstant(calendar.PostsOnDay(s.posts.List(), today))
	if len(posts) == 0 && cfg.SkipEmpty {
		return false, nil
	}

	err := s.notify.Notify(ctx, notifier.Notification{
		Key:     key,
		Target:  cfg.Target,
		Text:    Render(today, posts, cfg.Location, now),
		Options: &transport.SendOptions{HTML: true, DisablePreview: true},
	})
	if err != nil {
		return false, err
	}
	// Storage expires dedup keys against the wall clock, not s.now.
	s.markSent(ctx, key, time.Now().Add(dedupTTL))
	s.log.Info("digest enqueued", logx.String("day", today.String()), logx.Int("posts", len(posts)))
	return true, nil
}

func (s *Service) sent(ctx context.Context, key string) bool {
	s.mu.Lock()
	hit := s.lastSent[key]
	s.mu.Unlock()
	if hit || s.dedup == nil {
		return hit
	}
	_, ok, err := s.dedup.GetDedup(ctx, key)
	if err != nil {
		s.log.Warn("dedup lookup failed", logx.String("key", key), logx.Err(err))
		return false
	}
	return ok
}

func (s *Service) markSent(ctx context.Context, key string, until time.Time) {
	s.mu.Lock()
	s.lastSent = map[string]bool{key: true}
	s.mu.Unlock()
	if s.dedup == nil {
		return
	}
	if err := s.dedup.PutDedup(ctx, key, until); err != nil {
		s.log.Warn("dedup write failed", logx.String("key", key), logx.Err(err))
	}
}
