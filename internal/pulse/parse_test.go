package pulse

import (
	"testing"
	"time"
)

func TestParseExpressionVariants(t *testing.T) {
	now := mustParseTime(t, time.RFC3339, "2026-03-01T12:00:00Z") // Sunday
	loc := time.UTC

	cases := []struct {
		name string
		expr string
		kind ScheduleKind
	}{
		{"interval", "every 10 minutes", ScheduleInterval},
		{"relative", "in 30 minutes", ScheduleOnce},
		{"relative-after", "after 2 hours", ScheduleOnce},
		{"tomorrow", "tomorrow at 9am", ScheduleOnce},
		{"today", "today at 11:30pm", ScheduleOnce},
		{"next-weekday", "next friday at 3pm", ScheduleOnce},
		{"every-weekday", "every monday at 9am", ScheduleWeekly},
		{"every-day", "every day", ScheduleDaily},
		{"next-month", "next month 15", ScheduleOnce},
		{"iso-date", "2026-04-01", ScheduleOnce},
		{"iso-datetime", "2026-04-01 14:30", ScheduleOnce},
		{"unix-seconds", "1775390400", ScheduleOnce},
		{"rfc3339", "2026-04-01T14:30:00Z", ScheduleOnce},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sched, err := parseExpression(c.expr, now, loc)
			if err != nil {
				t.Fatalf("parseExpression(%q): %v", c.expr, err)
			}
			if sched.Kind != c.kind {
				t.Fatalf("parseExpression(%q).Kind = %q, want %q", c.expr, sched.Kind, c.kind)
			}
		})
	}
}

func TestParseExpressionRejectsGarbage(t *testing.T) {
	now := mustParseTime(t, time.RFC3339, "2026-03-01T12:00:00Z")
	if _, err := parseExpression("whenever I feel like it", now, time.UTC); err == nil {
		t.Fatal("expected an error for an unparseable expression")
	}
}

func TestParseExpressionTodayPastTimeRejected(t *testing.T) {
	now := mustParseTime(t, time.RFC3339, "2026-03-01T23:00:00Z")
	if _, err := parseExpression("today at 9am", now, time.UTC); err == nil {
		t.Fatal("expected an error for a today time that has already passed")
	}
}

func TestNextTriggerForScheduleInterval(t *testing.T) {
	base := mustParseTime(t, time.RFC3339, "2026-03-01T09:00:00Z")
	sched := Schedule{Kind: ScheduleInterval, At: base, EveryMs: time.Minute.Milliseconds()}

	now := base.Add(90 * time.Second)
	next := nextTriggerForSchedule(sched, time.UTC, now, nil)
	if next == nil {
		t.Fatal("expected a non-nil next trigger")
	}
	if !next.After(now) {
		t.Fatalf("next trigger %s is not after now %s", next, now)
	}
}

func TestNextTriggerForScheduleOnceNeverRepeats(t *testing.T) {
	at := mustParseTime(t, time.RFC3339, "2026-03-01T09:00:00Z")
	sched := Schedule{Kind: ScheduleOnce, At: at}
	prev := at
	next := nextTriggerForSchedule(sched, time.UTC, at.Add(time.Hour), &prev)
	if next != nil {
		t.Fatalf("expected a once schedule to yield no next trigger after delivery, got %v", next)
	}
}
