package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anthropic/agentwatch/internal/errs"
)

func TestParseTimeframe(t *testing.T) {
	cases := []struct {
		in   string
		want Timeframe
		span time.Duration
	}{
		{"", LastDay, 24 * time.Hour},
		{"last_hour", LastHour, time.Hour},
		{" LAST_WEEK ", LastWeek, 7 * 24 * time.Hour},
		{"last_month", LastMonth, 30 * 24 * time.Hour},
	}
	for _, tc := range cases {
		got, err := ParseTimeframe(tc.in)
		if err != nil {
			t.Fatalf("ParseTimeframe(%q): %v", tc.in, err)
		}
		if got != tc.want || got.Span() != tc.span {
			t.Errorf("ParseTimeframe(%q) = %q (%v), want %q (%v)", tc.in, got, got.Span(), tc.want, tc.span)
		}
	}
	if _, err := ParseTimeframe("last_year"); !errors.Is(err, errs.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	start, end := LastDay.Window(now)
	if !end.Equal(now) || !start.Equal(now.Add(-24*time.Hour)) {
		t.Errorf("window = [%v, %v]", start, end)
	}
}

func TestFanoutDeliversInOrder(t *testing.T) {
	var got []string
	var f Fanout
	f.Add(SinkFunc(func(_ context.Context, e Event) { got = append(got, "a:"+e.Type) }))
	f.Add(SinkFunc(func(_ context.Context, e Event) { got = append(got, "b:"+e.Type) }))
	f.HandleEvent(context.Background(), Event{Type: EventTest})

	if len(got) != 2 || got[0] != "a:test" || got[1] != "b:test" {
		t.Errorf("delivered = %v", got)
	}
	OrDiscard(nil).HandleEvent(context.Background(), Event{})
}
