package app

import (
	"fmt"
	"strings"
	"time"

	"postcal/internal/config"
	"postcal/internal/digest"
	"postcal/internal/notifier"
	"postcal/internal/optimizer"
	"postcal/internal/storage"
	"postcal/internal/transport"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		if path == "" {
			path = "./data/postcal"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.NotifierOrDefault()
	base, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       n.Enabled,
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}

func mapOptimizerSettings(cfg *config.Config) (optimizer.Settings, error) {
	o := cfg.Optimizer
	timeout, err := config.ParseDurationOrDefault("optimizer.timeout", o.Timeout, config.DefaultOptimizerTime)
	if err != nil {
		return optimizer.Settings{}, err
	}
	base := o.BaseURL
	if strings.TrimSpace(base) == "" {
		base = config.DefaultOptimizerURL
	}
	return optimizer.Settings{
		Enabled:    o.Enabled,
		BaseURL:    base,
		Model:      o.Model,
		Prompt:     o.Prompt,
		Timeout:    timeout,
		RetryMax:   o.RetryMax,
		RatePerSec: o.RatePerSec,
	}, nil
}

func mapDigestConfig(cfg *config.Config) (digest.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return digest.Config{}, err
	}
	d := cfg.Digest
	return digest.Config{
		Enabled:   d.Enabled,
		Schedule:  d.Schedule,
		Target:    transport.ChatTarget{ChatID: d.ChatID, ThreadID: d.ThreadID},
		SkipEmpty: d.SkipEmpty,
		Location:  loc,
	}, nil
}
