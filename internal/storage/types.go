package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config selects a backend. An empty Driver or "none" disables storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// AuditEntry records one successful post mutation.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Action  string    `json:"action"`
	PostID  string    `json:"post_id"`
	Date    string    `json:"date,omitempty"`
	Time    string    `json:"time,omitempty"`
	Kind    string    `json:"type,omitempty"`
	Fields  []string  `json:"fields,omitempty"`
	Excerpt string    `json:"excerpt,omitempty"`
}

// Store is the persistence API used by the audit recorder and the digest.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// RecentAudit returns up to limit entries, newest first.
	RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error)
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}
