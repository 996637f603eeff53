package main

import (
	"testing"
	"time"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/datetime"
	"github.com/Saieshwar5/ayati-a1-sub001/internal/pulse"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "pulse"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestFormatNextTriggerNoUpcoming(t *testing.T) {
	got := formatNextTrigger(&pulse.Reminder{}, datetime.Resolved24Hour)
	if got != "(no upcoming trigger)" {
		t.Fatalf("got %q, want the no-upcoming-trigger placeholder", got)
	}
}

func TestFormatNextTriggerRendersUserTime(t *testing.T) {
	at := time.Date(2025, time.January, 24, 14, 30, 0, 0, time.UTC)
	r := &pulse.Reminder{Timezone: "UTC", NextTriggerAt: &at}
	got := formatNextTrigger(r, datetime.Resolved24Hour)
	want := "Friday, January 24th, 2025 - 14:30 (UTC)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]bool{"debug": true, "warn": true, "error": true, "info": true, "": true, "bogus": true}
	for level := range cases {
		_ = parseLevel(level) // just must not panic for any input
	}
}
