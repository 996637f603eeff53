// Package sessionmem is the session memory manager: the append-only
// journaled event store, its in-memory prompt window, crash-safe resume,
// and session-rotation semantics described by §4.D.
package sessionmem

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/events"
)

// PromptEventWindow bounds get_prompt_memory_context's conversation_turns.
const PromptEventWindow = 20

// recoveryWindow bounds the time-bounded recovery scan to the last 24h.
const recoveryWindow = 24 * time.Hour

// RunHandle identifies one user message and the bounded loop answering it.
type RunHandle struct {
	SessionID string
	RunID     string
}

// CreateSessionOptions parameterizes the only rotation point, create_session.
type CreateSessionOptions struct {
	RunID          string
	Reason         string
	Source         string // agent | system | user
	Confidence     *float64
	HandoffSummary string
	// CloseCallback, if set, is enqueued as a background task when the
	// closed session accumulated at least two conversation turns.
	CloseCallback func(ClosedSessionSummary)
}

// ClosedSessionSummary is handed to a create_session close callback.
type ClosedSessionSummary struct {
	SessionID string
	Turns     []Turn
}

// PromptMemoryContext is the bounded view handed to the prompt assembler.
type PromptMemoryContext struct {
	ConversationTurns      []Turn
	PreviousSessionSummary string
}

type activeEntry struct {
	session *InMemorySession
	journal *journal
}

// Manager is the sole writer to the journal files and the SQLite memory
// index. It maintains at most one active session per client.
type Manager struct {
	baseDir string
	logger  *slog.Logger
	now     func() time.Time

	idx   *index
	queue *backgroundQueue

	mu     sync.Mutex
	active map[string]*activeEntry
	seed   map[string][]Turn
	budget int
}

// New builds a Manager rooted at baseDir (the "data/" directory of §6). now
// defaults to time.Now and is overridable for deterministic tests.
func New(baseDir string, logger *slog.Logger, now func() time.Time) (*Manager, error) {
	if logger == nil {
		logger = slog.Default().With("component", "sessionmem")
	}
	if now == nil {
		now = time.Now
	}
	idx, err := openIndex(filepath.Join(baseDir, "memory", "memory.sqlite"))
	if err != nil {
		return nil, err
	}
	return &Manager{
		baseDir: baseDir,
		logger:  logger,
		now:     now,
		idx:     idx,
		queue:   newBackgroundQueue(logger),
		active:  make(map[string]*activeEntry),
		seed:    make(map[string][]Turn),
	}, nil
}

func (m *Manager) markerPath(clientID string) string {
	return filepath.Join(m.baseDir, "sessions", ".active", clientID)
}

// Initialize attaches clientID to persistence, attempting to restore its
// active session via, in order: the SQLite active-session row, a filesystem
// marker file, and a time-bounded recovery scan. If no session is restored,
// the prompt window is seeded from the index's recent countable events.
func (m *Manager) Initialize(clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if candidateID, candidatePath, ok, err := m.idx.activeSession(clientID); err != nil {
		return err
	} else if ok && candidateID != "" {
		if adopted, err := m.tryAdopt(clientID, candidateID, candidatePath); err != nil {
			return err
		} else if adopted {
			return nil
		}
	}

	if candidateID, candidatePath, ok := m.readMarker(clientID); ok {
		if adopted, err := m.tryAdopt(clientID, candidateID, candidatePath); err != nil {
			return err
		} else if adopted {
			return nil
		}
	}

	since := m.now().Add(-recoveryWindow)
	rows, err := m.idx.recentSessions(since, 50)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.ClientID != clientID || row.Status == "crashed" || row.Status == "closed" {
			continue
		}
		if adopted, err := m.tryAdopt(clientID, row.ID, row.Path); err != nil {
			return err
		} else if adopted {
			return nil
		}
	}

	turns, err := m.idx.recentCountable(clientID, PromptEventWindow)
	if err != nil {
		return err
	}
	m.seed[clientID] = turns
	return nil
}

func (m *Manager) readMarker(clientID string) (sessionID, path string, ok bool) {
	data, err := os.ReadFile(m.markerPath(clientID))
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (m *Manager) writeMarker(clientID, sessionID, path string) {
	dir := filepath.Dir(m.markerPath(clientID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.logger.Warn("failed to create active-session marker directory", "error", err)
		return
	}
	content := sessionID + "\n" + path
	if err := os.WriteFile(m.markerPath(clientID), []byte(content), 0o644); err != nil {
		m.logger.Warn("failed to write active-session marker", "error", err)
	}
}

// tryAdopt replays path and, if it begins with session_open and its client
// id matches, adopts it as clientID's active session. A legacy .jsonl path
// is migrated to .md first.
func (m *Manager) tryAdopt(clientID, sessionID, path string) (bool, error) {
	if strings.HasSuffix(path, ".jsonl") {
		migrated := strings.TrimSuffix(path, ".jsonl") + ".md"
		if err := migrateLegacyJSONL(path, migrated, m.logger); err != nil {
			m.logger.Warn("legacy journal migration failed", "session", sessionID, "error", err)
			return false, nil
		}
		path = migrated
	}

	envs, err := replayFile(path, m.logger)
	if err != nil {
		return false, err
	}
	if !hasSessionOpen(envs) {
		_ = m.idx.markCrashed(sessionID)
		return false, nil
	}
	open, ok := envs[0].Data.(events.SessionOpen)
	if !ok || open.ClientID != clientID {
		_ = m.idx.markCrashed(sessionID)
		return false, nil
	}

	session := newInMemorySession(sessionID, clientID, path, envs[0].Timestamp)
	for _, e := range envs {
		session.append(e)
	}
	j, err := openJournal(path, m.logger)
	if err != nil {
		return false, err
	}
	m.active[clientID] = &activeEntry{session: session, journal: j}
	_ = m.idx.upsertSession(sessionID, clientID, path, "open", session.StartedAt)
	_ = m.idx.setActiveSession(clientID, sessionID)
	m.writeMarker(clientID, sessionID, path)
	return true, nil
}

// BeginRun ensures an open session for clientID (creating one if none
// exists), appends user_message, and returns a fresh run handle.
func (m *Manager) BeginRun(clientID, userMessage string) (RunHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.active[clientID]
	if !ok {
		var err error
		entry, err = m.openNewSession(clientID, "", "")
		if err != nil {
			return RunHandle{}, err
		}
	}

	if err := m.writeLocked(entry, events.UserMessage{Content: userMessage}); err != nil {
		return RunHandle{}, err
	}
	seq := len(entry.session.Timeline)
	if err := m.idx.appendCountable(entry.session.ID, clientID, seq, "user", userMessage, m.now()); err != nil {
		m.logger.Warn("countable index append failed", "error", err)
	}

	return RunHandle{SessionID: entry.session.ID, RunID: uuid.NewString()}, nil
}

func (m *Manager) openNewSession(clientID, parentSessionID, handoffSummary string) (*activeEntry, error) {
	now := m.now()
	id := uuid.NewString()
	path := sessionFilePath(m.baseDir, id, now)
	j, err := openJournal(path, m.logger)
	if err != nil {
		return nil, err
	}
	session := newInMemorySession(id, clientID, path, now)
	entry := &activeEntry{session: session, journal: j}

	env := events.New(id, path, events.SessionOpen{
		ClientID:        clientID,
		ParentSessionID: parentSessionID,
		HandoffSummary:  handoffSummary,
	}, now)
	if err := j.append(env); err != nil {
		j.close()
		return nil, err
	}
	session.append(env)

	if err := m.idx.upsertSession(id, clientID, path, "open", now); err != nil {
		return nil, err
	}
	if err := m.idx.setActiveSession(clientID, id); err != nil {
		return nil, err
	}
	m.writeMarker(clientID, id, path)
	m.active[clientID] = entry
	return entry, nil
}

// writeLocked journals data against entry and updates its in-memory timeline.
// The in-memory update happens only after the journal write succeeds, per
// §4.D's write-before-update invariant.
func (m *Manager) writeLocked(entry *activeEntry, data events.Data) error {
	env := events.New(entry.session.ID, entry.session.SessionPath, data, m.now())
	if err := entry.journal.append(env); err != nil {
		return err
	}
	entry.session.append(env)
	return nil
}

func (m *Manager) writeForClient(clientID string, data events.Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.active[clientID]
	if !ok {
		return fmt.Errorf("no active session for client %q", clientID)
	}
	if err := m.writeLocked(entry, data); err != nil {
		return err
	}
	if events.Countable(data) {
		var role, content string
		switch v := data.(type) {
		case events.UserMessage:
			role, content = "user", v.Content
		case events.AssistantMessage:
			role, content = "assistant", v.Content
		}
		seq := len(entry.session.Timeline)
		if err := m.idx.appendCountable(entry.session.ID, clientID, seq, role, content, m.now()); err != nil {
			m.logger.Warn("countable index append failed", "error", err)
		}
	}
	return nil
}

// RecordToolCall journals a tool_call event.
func (m *Manager) RecordToolCall(clientID string, call events.ToolCall) error {
	return m.writeForClient(clientID, call)
}

// RecordToolResult journals a tool_result event.
func (m *Manager) RecordToolResult(clientID string, result events.ToolResult) error {
	return m.writeForClient(clientID, result)
}

// RecordAgentStep journals an audit-only agent_step event.
func (m *Manager) RecordAgentStep(clientID string, step events.AgentStep) error {
	return m.writeForClient(clientID, step)
}

// RecordAssistantFinal journals the countable assistant_message event.
func (m *Manager) RecordAssistantFinal(clientID, content string) error {
	return m.writeForClient(clientID, events.AssistantMessage{Content: content})
}

// RecordAssistantFeedback journals an assistant_feedback event.
func (m *Manager) RecordAssistantFeedback(clientID, message string) error {
	return m.writeForClient(clientID, events.AssistantFeedback{Message: message})
}

// RecordRunFailure journals a run_failure event.
func (m *Manager) RecordRunFailure(clientID, message string) error {
	return m.writeForClient(clientID, events.RunFailure{Message: message})
}

// RecordTurnStatus journals a turn_status event.
func (m *Manager) RecordTurnStatus(clientID string, status events.TurnStatusValue, note string) error {
	return m.writeForClient(clientID, events.TurnStatus{Status: status, Note: note})
}

// CreateSession is the only rotation point: it closes the current session,
// enqueues the close callback (if the session accumulated at least two
// conversation turns), opens a new session whose parent points back, and
// emits session_switched turn_status events in the new session.
func (m *Manager) CreateSession(clientID string, opts CreateSessionOptions) (previousSessionID, sessionID, sessionPath string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.active[clientID]
	if !ok {
		return "", "", "", fmt.Errorf("no active session for client %q", clientID)
	}

	now := m.now()
	newID := uuid.NewString()
	newPath := sessionFilePath(m.baseDir, newID, now)

	closeEnv := events.New(entry.session.ID, entry.session.SessionPath, events.SessionClose{
		Reason:          "session_switch:" + opts.Reason,
		TokenAtClose:    m.budget,
		EventCount:      len(entry.session.Timeline) + 1,
		HandoffSummary:  opts.HandoffSummary,
		NextSessionID:   newID,
		NextSessionPath: newPath,
	}, now)
	if err := entry.journal.append(closeEnv); err != nil {
		return "", "", "", err
	}
	entry.session.append(closeEnv)

	if err := m.idx.markClosed(entry.session.ID, now); err != nil {
		m.logger.Warn("failed to mark session closed in index", "error", err)
	}

	turnCount := entry.session.Countable
	closedSummary := ClosedSessionSummary{
		SessionID: entry.session.ID,
		Turns:     entry.session.conversationTurns(0),
	}
	if opts.CloseCallback != nil && turnCount >= 2 {
		cb := opts.CloseCallback
		m.queue.Enqueue(func() { cb(closedSummary) })
	}
	if err := entry.journal.close(); err != nil {
		m.logger.Warn("failed to close previous journal file", "error", err)
	}

	previousSessionID = entry.session.ID

	newJournal, err := openJournal(newPath, m.logger)
	if err != nil {
		return "", "", "", err
	}
	newSession := newInMemorySession(newID, clientID, newPath, now)
	newEntry := &activeEntry{session: newSession, journal: newJournal}

	openEnv := events.New(newID, newPath, events.SessionOpen{
		ClientID:        clientID,
		ParentSessionID: previousSessionID,
		HandoffSummary:  opts.HandoffSummary,
	}, now)
	if err := newJournal.append(openEnv); err != nil {
		return "", "", "", err
	}
	newSession.append(openEnv)

	switchedEnv := events.New(newID, newPath, events.TurnStatus{Status: events.TurnSessionSwitched}, now)
	if err := newJournal.append(switchedEnv); err != nil {
		return "", "", "", err
	}
	newSession.append(switchedEnv)

	if opts.HandoffSummary != "" {
		handoffEnv := events.New(newID, newPath, events.TurnStatus{
			Status: events.TurnSessionSwitched,
			Note:   opts.HandoffSummary,
		}, now)
		if err := newJournal.append(handoffEnv); err != nil {
			return "", "", "", err
		}
		newSession.append(handoffEnv)
	}

	if err := m.idx.upsertSession(newID, clientID, newPath, "open", now); err != nil {
		return "", "", "", err
	}
	if err := m.idx.setActiveSession(clientID, newID); err != nil {
		return "", "", "", err
	}
	m.writeMarker(clientID, newID, newPath)
	m.active[clientID] = newEntry

	return previousSessionID, newID, newPath, nil
}

// GetPromptMemoryContext returns the bounded conversation window and, when
// the active session's open event carries one, the prior session's summary.
// agent_step events are never exposed here.
func (m *Manager) GetPromptMemoryContext(clientID string) PromptMemoryContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.active[clientID]
	if !ok {
		return PromptMemoryContext{ConversationTurns: m.seed[clientID]}
	}

	var summary string
	if len(entry.session.Timeline) > 0 {
		if open, ok := entry.session.Timeline[0].Data.(events.SessionOpen); ok {
			summary = open.HandoffSummary
		}
	}
	return PromptMemoryContext{
		ConversationTurns:      entry.session.conversationTurns(PromptEventWindow),
		PreviousSessionSummary: summary,
	}
}

// SetStaticTokenBudget records the static token budget used in future
// session_close events' token_at_close field.
func (m *Manager) SetStaticTokenBudget(tokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budget = tokens
}

// FlushBackgroundTasks blocks until every background task enqueued so far
// has completed.
func (m *Manager) FlushBackgroundTasks() {
	m.queue.Flush()
}

// Shutdown writes the active-session marker for every open session, drains
// background tasks, and closes persistence. It does not close any active
// session: sessions persist across restart.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	for clientID, entry := range m.active {
		m.writeMarker(clientID, entry.session.ID, entry.session.SessionPath)
	}
	m.mu.Unlock()

	m.queue.Flush()
	m.queue.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.active {
		if err := entry.journal.close(); err != nil {
			m.logger.Warn("failed to close journal on shutdown", "error", err)
		}
	}
	return m.idx.close()
}
