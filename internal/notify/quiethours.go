package notify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"arrdeck-go/internal/config"
)

// The quiet hours engine is pure: every function is a function of
// (config, reference instant) with no state of its own. The delicate parts
// are windows that cross midnight and zero-length windows, which are defined
// to span the whole day rather than never matching.

var hhmmPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

var dayTags = map[string]time.Weekday{
	config.DaySun: time.Sunday,
	config.DayMon: time.Monday,
	config.DayTue: time.Tuesday,
	config.DayWed: time.Wednesday,
	config.DayThu: time.Thursday,
	config.DayFri: time.Friday,
	config.DaySat: time.Saturday,
}

// parseClock converts "HH:mm" to minutes since midnight. Invalid values
// normalize to 0 ("00:00").
func parseClock(s string) int {
	if !hhmmPattern.MatchString(s) {
		return 0
	}
	parts := strings.SplitN(s, ":", 2)
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h*60 + m
}

// normalizedWindow is the cleaned-up form of one quiet hours schedule.
type normalizedWindow struct {
	startMin int
	endMin   int
	days     map[time.Weekday]bool
}

// normalizeWindow clamps clock values, dedupes the day set, and falls back to
// the preset's default days when the set is empty or carries only unknown
// tags.
func normalizeWindow(cfg *config.QuietHoursConfig) normalizedWindow {
	w := normalizedWindow{
		startMin: parseClock(cfg.Start),
		endMin:   parseClock(cfg.End),
		days:     make(map[time.Weekday]bool, 7),
	}

	for _, tag := range cfg.Days {
		if day, ok := dayTags[strings.ToLower(strings.TrimSpace(tag))]; ok {
			w.days[day] = true
		}
	}

	if len(w.days) == 0 {
		for _, tag := range cfg.Preset.DefaultDays() {
			w.days[dayTags[tag]] = true
		}
	}

	return w
}

// IsQuietHoursActive reports whether ref falls inside the configured window.
//
// Windows with start == end span the entire day for every configured day.
// Windows crossing midnight are authorized by the start day: the late-night
// portion needs today in the day set, the early-morning portion needs
// yesterday in it.
func IsQuietHoursActive(cfg *config.QuietHoursConfig, ref time.Time) bool {
	if cfg == nil || !cfg.Enabled {
		return false
	}

	w := normalizeWindow(cfg)
	mins := ref.Hour()*60 + ref.Minute()
	today := ref.Weekday()
	yesterday := (today + 6) % 7

	switch {
	case w.startMin == w.endMin:
		return w.days[today]
	case w.startMin < w.endMin:
		return w.days[today] && mins >= w.startMin && mins < w.endMin
	default:
		if w.days[today] && mins >= w.startMin {
			return true
		}
		return w.days[yesterday] && mins < w.endMin
	}
}

// NextQuietHoursEnd computes the absolute instant the currently-active window
// closes. Returns false when ref is not inside the window. The same-day
// candidate is advanced by one day when it would land at or before ref, which
// covers the crossing-midnight case.
func NextQuietHoursEnd(cfg *config.QuietHoursConfig, ref time.Time) (time.Time, bool) {
	if !IsQuietHoursActive(cfg, ref) {
		return time.Time{}, false
	}

	w := normalizeWindow(cfg)
	end := time.Date(ref.Year(), ref.Month(), ref.Day(),
		w.endMin/60, w.endMin%60, 0, 0, ref.Location())

	if !end.After(ref) {
		end = end.AddDate(0, 0, 1)
	}
	return end, true
}
