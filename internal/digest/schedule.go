package digest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// Schedule is a parsed trigger. Cron is always a valid cron expression; an
// "HH:MM" input is normalized to "M H * * *".
type Schedule struct {
	Cron   string
	Source string // "cron" | "hhmm"
}

// ParseSchedule accepts a cron expression ("0 8 * * *", "@daily") or a
// wall-clock time "HH:MM" meaning every day at that time.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if hh > 23 || mm > 59 {
			return Schedule{}, fmt.Errorf("invalid time of day %q", raw)
		}
		return Schedule{Cron: fmt.Sprintf("%d %d * * *", mm, hh), Source: "hhmm"}, nil
	}
	if _, err := parser.Parse(s); err != nil {
		return Schedule{}, fmt.Errorf("invalid schedule %q (use cron like '0 8 * * *' or HH:MM like '08:00'): %w", raw, err)
	}
	return Schedule{Cron: s, Source: "cron"}, nil
}
