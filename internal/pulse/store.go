package pulse

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/datetime"
)

// Store is the single-JSON-document reminder store described by §4.G. All
// mutations are serialized by mu and persisted via tmp-file-and-rename.
type Store struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
	doc  *document
}

// New opens (creating if absent) the reminder store at
// <baseDir>/pulse/reminders.json.
func New(baseDir string, now func() time.Time) (*Store, error) {
	if now == nil {
		now = time.Now
	}
	path := filepath.Join(baseDir, "pulse", "reminders.json")
	s := &Store{path: path, now: now}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.doc = &document{Version: 1}
			return nil
		}
		return err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse pulse store: %w", err)
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	s.doc = &doc
	return nil
}

// save persists the document via a `.tmp-<uuid>` file, then an atomic rename,
// matching §4.G's literal wording.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// resolveLocation loads tz, falling back to the host timezone (and finally
// UTC) when tz is empty or unrecognized rather than erroring outright.
func resolveLocation(tz string) (*time.Location, error) {
	resolved := datetime.ResolveUserTimezone(tz)
	return time.LoadLocation(resolved)
}

// Create parses opts.When and persists a new active reminder.
func (s *Store) Create(opts CreateOptions) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, err := resolveLocation(opts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", opts.Timezone, err)
	}
	now := s.now()
	sched, err := parseExpression(opts.When, now, loc)
	if err != nil {
		return nil, err
	}
	nextTrigger := nextTriggerForSchedule(sched, loc, now, nil)

	tz := opts.Timezone
	if tz == "" {
		tz = "Local"
	}
	r := &Reminder{
		ID:              uuid.NewString(),
		Title:           opts.Title,
		Instruction:     opts.Instruction,
		Timezone:        tz,
		Schedule:        sched,
		NextTriggerAt:   nextTrigger,
		Status:          StatusActive,
		OriginRunID:     opts.OriginRunID,
		OriginSessionID: opts.OriginSessionID,
		Metadata:        opts.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.doc.Reminders = append(s.doc.Reminders, r)
	if err := s.save(); err != nil {
		return nil, err
	}
	return cloneReminder(r), nil
}

// List returns reminders filtered by status (empty matches all), newest
// first, capped to limit (0 means unlimited).
func (s *Store) List(status Status, limit int) []*Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Reminder, 0, len(s.doc.Reminders))
	for _, r := range s.doc.Reminders {
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, cloneReminder(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Cancel marks a reminder cancelled. Cancelling an already-terminal reminder
// is a no-op, not an error.
func (s *Store) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.find(id)
	if r == nil {
		return fmt.Errorf("reminder not found: %s", id)
	}
	if r.Status != StatusActive {
		return nil
	}
	r.Status = StatusCancelled
	r.NextTriggerAt = nil
	r.UpdatedAt = s.now()
	return s.save()
}

// Snooze pushes an active reminder's next_trigger_at forward by delayMs.
func (s *Store) Snooze(id string, delayMs int64) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.find(id)
	if r == nil {
		return nil, fmt.Errorf("reminder not found: %s", id)
	}
	if r.Status != StatusActive || r.NextTriggerAt == nil {
		return nil, fmt.Errorf("reminder is not active: %s", id)
	}
	snoozed := r.NextTriggerAt.Add(time.Duration(delayMs) * time.Millisecond)
	r.NextTriggerAt = &snoozed
	r.UpdatedAt = s.now()
	if err := s.save(); err != nil {
		return nil, err
	}
	return cloneReminder(r), nil
}

// GetDue returns active reminders whose next_trigger_at is at or before now.
func (s *Store) GetDue(now time.Time) []*Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Reminder
	for _, r := range s.doc.Reminders {
		if r.Status != StatusActive || r.NextTriggerAt == nil {
			continue
		}
		if !r.NextTriggerAt.After(now) {
			due = append(due, cloneReminder(r))
		}
	}
	return due
}

// MarkDelivered implements §4.G's idempotency contract: a repeat call for the
// same occurrence is a no-op; a `once` reminder completes; every other kind
// recomputes next_trigger_at from the just-delivered scheduled_for.
func (s *Store) MarkDelivered(reminderID, occurrenceID string, scheduledFor, triggeredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.find(reminderID)
	if r == nil {
		return fmt.Errorf("reminder not found: %s", reminderID)
	}
	if r.LastDeliveredOccurrenceID == occurrenceID {
		return nil
	}

	loc, err := resolveLocation(r.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", r.Timezone, err)
	}

	r.LastDeliveredOccurrenceID = occurrenceID
	deliveredAt := triggeredAt
	r.LastDeliveredAt = &deliveredAt
	r.UpdatedAt = triggeredAt

	if r.Schedule.Kind == ScheduleOnce {
		r.Status = StatusCompleted
		r.NextTriggerAt = nil
		return s.save()
	}

	next := nextTriggerForSchedule(r.Schedule, loc, triggeredAt, &scheduledFor)
	r.NextTriggerAt = next
	return s.save()
}

// NowSnapshot returns the current time rendered in the given timezone.
func (s *Store) NowSnapshot(tz string) (time.Time, error) {
	loc, err := resolveLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return s.now().In(loc), nil
}

func (s *Store) find(id string) *Reminder {
	for _, r := range s.doc.Reminders {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func cloneReminder(r *Reminder) *Reminder {
	cp := *r
	if r.NextTriggerAt != nil {
		t := *r.NextTriggerAt
		cp.NextTriggerAt = &t
	}
	if r.LastDeliveredAt != nil {
		t := *r.LastDeliveredAt
		cp.LastDeliveredAt = &t
	}
	if r.Metadata != nil {
		meta := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		cp.Metadata = meta
	}
	return &cp
}
