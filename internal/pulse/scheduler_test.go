package pulse

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSchedulerDeliversDueReminderOnce(t *testing.T) {
	now := mustParseTime(t, time.RFC3339, "2026-03-01T09:00:00Z")
	clock := func() time.Time { return now }
	store, err := New(t.TempDir(), clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, err := store.Create(CreateOptions{When: "in 1 minute", Instruction: "ping", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var mu sync.Mutex
	var delivered []DueEvent
	clock2 := func() time.Time { return r.NextTriggerAt.Add(time.Second) }
	sched := NewScheduler(store, func(_ context.Context, event DueEvent) error {
		mu.Lock()
		delivered = append(delivered, event)
		mu.Unlock()
		return nil
	}, WithNow(clock2))

	count := sched.RunOnce(context.Background())
	if count != 1 {
		t.Fatalf("RunOnce delivered = %d, want 1", count)
	}
	mu.Lock()
	n := len(delivered)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("expected exactly one delivery, got %d", n)
	}

	// A second tick before a new trigger time must not redeliver; the once
	// reminder should already be completed.
	count2 := sched.RunOnce(context.Background())
	if count2 != 0 {
		t.Fatalf("second RunOnce delivered = %d, want 0", count2)
	}

	completed := store.List(StatusCompleted, 0)
	if len(completed) != 1 || completed[0].ID != r.ID {
		t.Fatalf("expected the reminder to be completed, got %v", store.List("", 0))
	}
}

func TestSchedulerLeavesFailedDeliveryForRetry(t *testing.T) {
	now := mustParseTime(t, time.RFC3339, "2026-03-01T09:00:00Z")
	clock := func() time.Time { return now }
	store, err := New(t.TempDir(), clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, err := store.Create(CreateOptions{When: "in 1 minute", Instruction: "ping", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	afterTrigger := func() time.Time { return r.NextTriggerAt.Add(time.Second) }

	attempts := 0
	sched := NewScheduler(store, func(_ context.Context, event DueEvent) error {
		attempts++
		return errFakeDeliveryFailure
	}, WithNow(afterTrigger))

	sched.RunOnce(context.Background())
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	active := store.List(StatusActive, 0)
	if len(active) != 1 || active[0].ID != r.ID {
		t.Fatalf("expected the reminder to remain active after a failed delivery, got %v", store.List("", 0))
	}

	// The next tick retries.
	sched.RunOnce(context.Background())
	if attempts != 2 {
		t.Fatalf("attempts after retry = %d, want 2", attempts)
	}
}

var errFakeDeliveryFailure = fakeErr("delivery failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
