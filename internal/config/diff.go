package config

import (
	"reflect"
	"strings"

	"postcal/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// returns log fields describing the new values. Secrets (the bot token) are
// reported only as "set" flags.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)
	section := func(name string, differs bool, fs ...logx.Field) {
		if !differs {
			return
		}
		changed = append(changed, name)
		fields = append(fields, fs...)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	section("telegram",
		ot.Enabled != nt.Enabled ||
			ot.Token != nt.Token ||
			!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
			strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
			ot.Workers != nt.Workers ||
			ot.CommandTimeout != nt.CommandTimeout,
		logx.Bool("telegram.enabled", nt.Enabled),
		logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
	)

	section("http", oldCfg.HTTP != newCfg.HTTP,
		logx.Bool("http.enabled", newCfg.HTTP.Enabled),
		logx.String("http.addr", newCfg.HTTPAddr()),
		logx.Bool("http.pprof", newCfg.HTTP.Pprof),
	)

	section("logging", oldCfg.Logging != newCfg.Logging,
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.console", newCfg.Logging.Console),
		logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		logx.Bool("logging.chat", newCfg.Logging.Chat.Enabled),
	)

	section("calendar", !reflect.DeepEqual(oldCfg.Calendar, newCfg.Calendar),
		logx.String("calendar.timezone", newCfg.Calendar.Timezone),
		logx.String("calendar.week_start", newCfg.Calendar.WeekStart),
		logx.Int("calendar.seed_count", len(newCfg.Calendar.Seed)),
	)

	section("optimizer", oldCfg.Optimizer != newCfg.Optimizer,
		logx.Bool("optimizer.enabled", newCfg.Optimizer.Enabled),
		logx.String("optimizer.model", newCfg.Optimizer.Model),
	)

	section("digest", oldCfg.Digest != newCfg.Digest,
		logx.Bool("digest.enabled", newCfg.Digest.Enabled),
		logx.String("digest.schedule", newCfg.Digest.Schedule),
	)

	section("notifier", oldCfg.NotifierOrDefault() != newCfg.NotifierOrDefault(),
		logx.Bool("notifier.enabled", newCfg.NotifierOrDefault().Enabled),
		logx.Int("notifier.workers", newCfg.NotifierOrDefault().Workers),
	)

	section("storage", !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage),
		logx.Bool("storage.restart_required", true),
	)

	return changed, fields
}
