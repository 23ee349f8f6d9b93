package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"postcal/internal/post"
	"postcal/pkg/logx"
)

const (
	DefaultHTTPAddr      = "127.0.0.1:8080"
	DefaultOptimizerURL  = "http://127.0.0.1:11434"
	DefaultOptimizerTime = 30 * time.Second
)

// Validate checks everything that can be checked without side effects.
// Errors from all sections are joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if c.Telegram.Enabled && strings.TrimSpace(c.Telegram.Token) == "" {
		add(errors.New("telegram.token: required when telegram.enabled"))
	}
	_, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout)
	add(err)
	_, err = ParseDurationField("telegram.command_timeout", c.Telegram.CommandTimeout)
	add(err)
	_, err = ParseDurationField("http.read_timeout", c.HTTP.ReadTimeout)
	add(err)
	_, err = ParseDurationField("http.write_timeout", c.HTTP.WriteTimeout)
	add(err)

	_, err = c.Location()
	add(err)
	_, err = c.WeekStart()
	add(err)
	_, err = c.SeedDrafts()
	add(err)

	if c.Optimizer.Enabled && strings.TrimSpace(c.Optimizer.Model) == "" {
		add(errors.New("optimizer.model: required when optimizer.enabled"))
	}
	_, err = ParseDurationField("optimizer.timeout", c.Optimizer.Timeout)
	add(err)

	if c.Digest.Enabled {
		if strings.TrimSpace(c.Digest.Schedule) == "" {
			add(errors.New("digest.schedule: required when digest.enabled"))
		}
		if c.Digest.ChatID == 0 {
			add(errors.New("digest.chat_id: required when digest.enabled"))
		}
	}

	if n := c.Notifier; n != nil {
		_, err = ParseDurationField("notifier.retry_base", n.RetryBase)
		add(err)
		_, err = ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
		add(err)
	}
	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		_, err = ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
	}
	return errors.Join(errs...)
}

// Location resolves calendar.timezone; empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Calendar.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("calendar.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) WeekStart() (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(c.Calendar.WeekStart)) {
	case "", "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	default:
		return time.Sunday, fmt.Errorf("calendar.week_start: %q is not sunday or monday", c.Calendar.WeekStart)
	}
}

// SeedDrafts parses calendar.seed. A missing type defaults to text.
func (c *Config) SeedDrafts() ([]post.Draft, error) {
	out := make([]post.Draft, 0, len(c.Calendar.Seed))
	for i, s := range c.Calendar.Seed {
		d, err := post.ParseDraft(s.Date, s.Time, s.Content, s.Type)
		if err != nil {
			return nil, fmt.Errorf("calendar.seed[%d]: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// LogConfig maps the logging section onto logx.
func (c *Config) LogConfig() logx.Config {
	l := c.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Chat.Enabled,
			ChatID:     l.Chat.ChatID,
			ThreadID:   l.Chat.ThreadID,
			MinLevel:   l.Chat.MinLevel,
			RatePerSec: l.Chat.RatePerSec,
		},
	}
}

func (c *Config) HTTPAddr() string {
	if a := strings.TrimSpace(c.HTTP.Addr); a != "" {
		return a
	}
	return DefaultHTTPAddr
}

// NotifierOrDefault returns the notifier section, enabled with defaults when omitted.
func (c *Config) NotifierOrDefault() NotifierConfig {
	if c.Notifier != nil {
		return *c.Notifier
	}
	return NotifierConfig{Enabled: true}
}
