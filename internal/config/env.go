package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces environment overrides, e.g. POSTCAL_TELEGRAM_TOKEN.
const EnvPrefix = "POSTCAL"

// envOverrides are applied on top of the file. Unset variables leave the
// file value alone, so every field is a pointer. Names are split on case
// (TelegramToken -> POSTCAL_TELEGRAM_TOKEN); there is no unprefixed fallback.
type envOverrides struct {
	TelegramToken  *string `split_words:"true"`
	HTTPAddr       *string `split_words:"true"`
	LogLevel       *string `split_words:"true"`
	Timezone       *string `split_words:"true"`
	OptimizerURL   *string `split_words:"true"`
	OptimizerModel *string `split_words:"true"`
	StorageDriver  *string `split_words:"true"`
	StoragePath    *string `split_words:"true"`
}

// ApplyEnv overlays POSTCAL_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.Telegram.Token, o.TelegramToken)
	set(&cfg.HTTP.Addr, o.HTTPAddr)
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Calendar.Timezone, o.Timezone)
	set(&cfg.Optimizer.BaseURL, o.OptimizerURL)
	set(&cfg.Optimizer.Model, o.OptimizerModel)
	if o.StorageDriver != nil || o.StoragePath != nil {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{}
		}
		set(&cfg.Storage.Driver, o.StorageDriver)
		set(&cfg.Storage.Path, o.StoragePath)
	}
	return nil
}
