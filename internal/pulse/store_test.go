package pulse

import (
	"testing"
	"time"
)

func mustParseTime(t *testing.T, layout, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(layout, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return ts
}

// TestCreateTomorrowAt9AM covers scenario S6.
func TestCreateTomorrowAt9AM(t *testing.T) {
	now := mustParseTime(t, time.RFC3339, "2026-03-01T12:00:00Z")
	clock := func() time.Time { return now }

	store, err := New(t.TempDir(), clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r, err := store.Create(CreateOptions{
		When:        "tomorrow",
		Instruction: "wish happy birthday",
		Timezone:    "UTC",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Schedule.Kind != ScheduleOnce {
		t.Fatalf("schedule kind = %q, want once", r.Schedule.Kind)
	}
	if r.NextTriggerAt == nil {
		t.Fatal("next_trigger_at is nil")
	}
	want := mustParseTime(t, time.RFC3339, "2026-03-02T09:00:00Z")
	if !r.NextTriggerAt.Equal(want) {
		t.Fatalf("next_trigger_at = %s, want %s", r.NextTriggerAt, want)
	}
}

// TestActiveImpliesNextTriggerAtSet covers invariant #4: active reminders
// always carry a non-nil next_trigger_at, and cancelling clears it.
func TestActiveImpliesNextTriggerAtSet(t *testing.T) {
	now := mustParseTime(t, time.RFC3339, "2026-03-01T12:00:00Z")
	clock := func() time.Time { return now }
	store, err := New(t.TempDir(), clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r, err := store.Create(CreateOptions{When: "in 5 minutes", Instruction: "check oven", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Status != StatusActive || r.NextTriggerAt == nil {
		t.Fatalf("expected active reminder with a next_trigger_at, got %+v", r)
	}

	if err := store.Cancel(r.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	listed := store.List(StatusCancelled, 0)
	if len(listed) != 1 {
		t.Fatalf("expected one cancelled reminder, got %d", len(listed))
	}
	if listed[0].NextTriggerAt != nil {
		t.Fatalf("expected cancelled reminder to have a nil next_trigger_at, got %v", listed[0].NextTriggerAt)
	}
}

// TestMarkDeliveredIsIdempotent covers invariant #7.
func TestMarkDeliveredIsIdempotent(t *testing.T) {
	now := mustParseTime(t, time.RFC3339, "2026-03-01T09:00:00Z")
	clock := func() time.Time { return now }
	store, err := New(t.TempDir(), clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r, err := store.Create(CreateOptions{When: "every day at 9am", Instruction: "stand up", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	scheduledFor := *r.NextTriggerAt
	triggeredAt := scheduledFor.Add(time.Second)
	occurrenceID := r.ID + ":" + scheduledFor.Format(time.RFC3339)

	if err := store.MarkDelivered(r.ID, occurrenceID, scheduledFor, triggeredAt); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	firstNext := store.List(StatusActive, 0)[0].NextTriggerAt
	if firstNext == nil {
		t.Fatal("expected a recomputed next_trigger_at for a daily reminder")
	}

	// A second call with the same occurrence id must be a no-op.
	if err := store.MarkDelivered(r.ID, occurrenceID, scheduledFor, triggeredAt.Add(time.Minute)); err != nil {
		t.Fatalf("MarkDelivered (repeat): %v", err)
	}
	secondNext := store.List(StatusActive, 0)[0].NextTriggerAt
	if !secondNext.Equal(*firstNext) {
		t.Fatalf("next_trigger_at changed on a repeated mark_delivered: %s -> %s", firstNext, secondNext)
	}
}

func TestMarkDeliveredCompletesOnceReminders(t *testing.T) {
	now := mustParseTime(t, time.RFC3339, "2026-03-01T09:00:00Z")
	clock := func() time.Time { return now }
	store, err := New(t.TempDir(), clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r, err := store.Create(CreateOptions{When: "in 1 hour", Instruction: "call back", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	scheduledFor := *r.NextTriggerAt
	occurrenceID := r.ID + ":" + scheduledFor.Format(time.RFC3339)
	if err := store.MarkDelivered(r.ID, occurrenceID, scheduledFor, scheduledFor); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	completed := store.List(StatusCompleted, 0)
	if len(completed) != 1 {
		t.Fatalf("expected the once reminder to complete, got status list %v", store.List("", 0))
	}
	if completed[0].NextTriggerAt != nil {
		t.Fatalf("expected completed reminder to have nil next_trigger_at")
	}
}

func TestGetDueOnlyReturnsActiveReachedReminders(t *testing.T) {
	now := mustParseTime(t, time.RFC3339, "2026-03-01T09:00:00Z")
	clock := func() time.Time { return now }
	store, err := New(t.TempDir(), clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = store.Create(CreateOptions{When: "in 1 hour", Instruction: "future", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	due, err := store.Create(CreateOptions{When: "in 1 minute", Instruction: "soon", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	notYetDue := store.GetDue(now)
	if len(notYetDue) != 0 {
		t.Fatalf("expected no due reminders yet, got %d", len(notYetDue))
	}

	laterDue := store.GetDue(due.NextTriggerAt.Add(time.Second))
	if len(laterDue) != 1 || laterDue[0].ID != due.ID {
		t.Fatalf("expected exactly the soon reminder to be due, got %+v", laterDue)
	}
}
