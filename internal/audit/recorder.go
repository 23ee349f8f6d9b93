// Package audit turns store change events into audit log entries.
package audit

import (
	"context"
	"time"
	"unicode/utf8"

	"postcal/internal/eventbus"
	"postcal/internal/storage"
	"postcal/internal/store"
	"postcal/pkg/logx"
)

const (
	excerptLen   = 80
	writeTimeout = 2 * time.Second
)

// Recorder appends one entry per store event. It only observes; a failed
// write is logged and never affects the mutation that caused it.
type Recorder struct {
	bus eventbus.Bus
	st  storage.Store
	log logx.Logger

	ch    <-chan eventbus.Event
	unsub func()
}

func NewRecorder(bus eventbus.Bus, st storage.Store, log logx.Logger) *Recorder {
	return &Recorder{bus: bus, st: st, log: log.Component("audit")}
}

// Attach subscribes to the bus. Events published after Attach and before Run
// are buffered, so seeding can happen before the goroutine starts.
func (r *Recorder) Attach() {
	if r.ch != nil || r.st == nil || r.bus == nil {
		return
	}
	r.ch, r.unsub = r.bus.Subscribe(256, "post.")
}

// Detach drops the subscription of a recorder that will never Run.
func (r *Recorder) Detach() {
	if r.unsub != nil {
		r.unsub()
	}
	r.ch, r.unsub = nil, nil
}

// Run consumes events until ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	r.Attach()
	if r.ch == nil {
		return nil
	}
	defer r.unsub()
	ch := r.ch
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			c, ok := ev.Data.(store.Change)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := r.st.AppendAudit(wctx, Entry(ev.Time, c))
			cancel()
			if err != nil {
				r.log.Warn("audit append failed", logx.String("post_id", c.Post.ID), logx.String("action", c.Action), logx.Err(err))
			}
		}
	}
}

// Entry maps a store change to its audit record.
func Entry(at time.Time, c store.Change) storage.AuditEntry {
	return storage.AuditEntry{
		At:      at,
		Action:  c.Action,
		PostID:  c.Post.ID,
		Date:    c.Post.Date.String(),
		Time:    c.Post.Time.String(),
		Kind:    c.Post.Kind.String(),
		Fields:  c.Fields,
		Excerpt: Excerpt(c.Post.Content, excerptLen),
	}
}

// Excerpt cuts s to at most n runes, marking the cut with "…".
func Excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
