package pipeline

import (
	"strings"
	"time"

	"github.com/anthropic/agentwatch/internal/errs"
)

// Timeframe is a named look-back window ending now.
type Timeframe string

const (
	LastHour  Timeframe = "last_hour"
	LastDay   Timeframe = "last_day"
	LastWeek  Timeframe = "last_week"
	LastMonth Timeframe = "last_month"
)

var timeframeSpans = map[Timeframe]time.Duration{
	LastHour:  time.Hour,
	LastDay:   24 * time.Hour,
	LastWeek:  7 * 24 * time.Hour,
	LastMonth: 30 * 24 * time.Hour,
}

// ParseTimeframe validates s. An empty string is last_day.
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LastDay, nil
	}
	tf := Timeframe(s)
	if _, ok := timeframeSpans[tf]; !ok {
		return "", errs.InvalidState("unknown timeframe %q (expected last_hour, last_day, last_week or last_month)", s)
	}
	return tf, nil
}

// Span returns the length of the window.
func (tf Timeframe) Span() time.Duration { return timeframeSpans[tf] }

// Window returns [now-span, now]. Both ends are inclusive.
func (tf Timeframe) Window(now time.Time) (start, end time.Time) {
	return now.Add(-tf.Span()), now
}
