package pulse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTickInterval = 30 * time.Second
	minTickInterval     = time.Second
)

// OnReminderDue is called for each due occurrence. A non-nil error leaves the
// reminder pending for the next tick (retry-until-delivered).
type OnReminderDue func(ctx context.Context, event DueEvent) error

// Scheduler polls a Store on a fixed interval and delivers due reminders at
// most once per occurrence. Its tick/Start/Stop shape is adapted from this
// codebase's cron job scheduler.
type Scheduler struct {
	store        *Store
	onDue        OnReminderDue
	logger       *slog.Logger
	now          func() time.Time
	tickInterval time.Duration

	mu      sync.Mutex
	started bool
	running bool
	wg      sync.WaitGroup

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the poll interval, clamped to at least 1s per
// §4.G.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// NewScheduler builds a Scheduler over store, delivering due reminders to onDue.
func NewScheduler(store *Store, onDue OnReminderDue, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:        store,
		onDue:        onDue,
		logger:       slog.Default().With("component", "pulse"),
		now:          time.Now,
		tickInterval: defaultTickInterval,
		inFlight:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tickInterval < minTickInterval {
		s.tickInterval = minTickInterval
	}
	return s
}

// Start begins the poll loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runTick(ctx)
			}
		}
	}()
	return nil
}

// Stop waits for the poll loop started by Start to exit, or for ctx to be
// done. Stop does not end the loop itself and does not prevent new ticks:
// the loop exits only once the ctx passed to Start is cancelled, after any
// tick already running has finished.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs one tick immediately, primarily for tests.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if s == nil {
		return 0
	}
	return s.runTick(ctx)
}

// runTick never re-enters while a previous tick is still running.
func (s *Scheduler) runTick(ctx context.Context) int {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return 0
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	now := s.now()
	due := s.store.GetDue(now)
	delivered := 0
	for _, r := range due {
		if r.NextTriggerAt == nil {
			continue
		}
		scheduledFor := *r.NextTriggerAt
		occurrenceID := fmt.Sprintf("%s:%s", r.ID, scheduledFor.Format(time.RFC3339Nano))
		if !s.claim(occurrenceID) {
			continue
		}
		if s.deliver(ctx, r, occurrenceID, scheduledFor, now) {
			delivered++
		}
		s.release(occurrenceID)
	}
	return delivered
}

func (s *Scheduler) deliver(ctx context.Context, r *Reminder, occurrenceID string, scheduledFor, now time.Time) bool {
	event := DueEvent{
		EventID:         uuid.NewString(),
		OccurrenceID:    occurrenceID,
		ReminderID:      r.ID,
		Title:           r.Title,
		Instruction:     r.Instruction,
		ScheduledFor:    scheduledFor,
		TriggeredAt:     now,
		Timezone:        r.Timezone,
		Metadata:        r.Metadata,
		OriginRunID:     r.OriginRunID,
		OriginSessionID: r.OriginSessionID,
	}
	if err := s.onDue(ctx, event); err != nil {
		s.logger.Warn("pulse reminder delivery failed", "reminder_id", r.ID, "error", err)
		return false
	}
	if err := s.store.MarkDelivered(r.ID, occurrenceID, scheduledFor, now); err != nil {
		s.logger.Warn("pulse mark_delivered failed", "reminder_id", r.ID, "error", err)
		return false
	}
	return true
}

func (s *Scheduler) claim(occurrenceID string) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if _, ok := s.inFlight[occurrenceID]; ok {
		return false
	}
	s.inFlight[occurrenceID] = struct{}{}
	return true
}

func (s *Scheduler) release(occurrenceID string) {
	s.inFlightMu.Lock()
	delete(s.inFlight, occurrenceID)
	s.inFlightMu.Unlock()
}
