package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`
	Calendar  CalendarConfig  `json:"calendar"`
	Optimizer OptimizerConfig `json:"optimizer"`
	Digest    DigestConfig    `json:"digest"`

	// Notifier defaults to enabled when the section is omitted.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	// Storage holds the audit log; omit it (or use driver "none") to disable.
	Storage *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	// OwnerUserIDs may run mutating commands. Empty means everyone may.
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	PollTimeout  string  `json:"poll_timeout"`
	// Workers handling commands concurrently; default 4.
	Workers int `json:"workers,omitempty"`
	// CommandTimeout bounds one command; default "15s".
	CommandTimeout string `json:"command_timeout,omitempty"`
}

type HTTPConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr"` // default "127.0.0.1:8080"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	// Pprof mounts /debug/pprof/ on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type CalendarConfig struct {
	// Timezone decides what "today" is; default local time.
	Timezone string `json:"timezone,omitempty"`
	// WeekStart is "sunday" (default) or "monday".
	WeekStart string `json:"week_start,omitempty"`
	// Seed posts are created at startup, in order.
	Seed []SeedPost `json:"seed,omitempty"`
}

type SeedPost struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

type OptimizerConfig struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url"` // default "http://127.0.0.1:11434"
	Model   string `json:"model"`
	// Prompt is a template; "{{content}}" is replaced by the post text.
	Prompt     string `json:"prompt,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type DigestConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron expression ("0 8 * * *", "@daily") or "HH:MM".
	Schedule string `json:"schedule"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// SkipEmpty suppresses the message on days without posts.
	SkipEmpty bool `json:"skip_empty,omitempty"`
}

type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}

// StorageConfig selects the audit log backend.
//
//	"storage": { "driver": "sqlite", "path": "./postcal.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // file | sqlite | none
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
