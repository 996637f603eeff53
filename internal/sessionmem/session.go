package sessionmem

import (
	"time"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/events"
)

// InMemorySession is the live view of one open session: its journal's
// timeline plus the derived countable-event count used for window sizing.
// It is owned by the Manager while active and dropped after session_close.
type InMemorySession struct {
	ID          string
	ClientID    string
	StartedAt   time.Time
	SessionPath string
	Timeline    []events.Envelope
	Countable   int
}

// Turn is the derived {role, content} view produced from user_message and
// assistant_message events, used to seed the prompt window.
type Turn struct {
	Role        string
	Content     string
	Timestamp   time.Time
	SessionPath string
}

func newInMemorySession(id, clientID, sessionPath string, startedAt time.Time) *InMemorySession {
	return &InMemorySession{
		ID:          id,
		ClientID:    clientID,
		StartedAt:   startedAt,
		SessionPath: sessionPath,
	}
}

// append records env in the timeline and updates the countable count. It
// must only be called after the corresponding journal write succeeds.
func (s *InMemorySession) append(env events.Envelope) {
	s.Timeline = append(s.Timeline, env)
	if events.Countable(env.Data) {
		s.Countable++
	}
}

// conversationTurns derives {role, content} pairs from user_message and
// assistant_message events, in timeline order, capped to the latest limit
// pairs (a "pair" here is any countable event, not a matched user+assistant
// round, matching §4.D's "latest user/assistant pairs" window).
func (s *InMemorySession) conversationTurns(limit int) []Turn {
	var turns []Turn
	for _, env := range s.Timeline {
		switch data := env.Data.(type) {
		case events.UserMessage:
			turns = append(turns, Turn{Role: "user", Content: data.Content, Timestamp: env.Timestamp, SessionPath: env.SessionPath})
		case events.AssistantMessage:
			turns = append(turns, Turn{Role: "assistant", Content: data.Content, Timestamp: env.Timestamp, SessionPath: env.SessionPath})
		}
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}
