package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// CurrentVersion is the envelope version this codec writes.
const CurrentVersion = 2

// LegacyPathPrefix is the convention used to back-fill SessionPath on v1 reads.
const LegacyPathPrefix = "sessions/legacy/"

// Envelope is one journaled event: a version, a timestamp, session identity,
// and the typed payload in Data. Encoding tags Data with its Kind so decoding
// can reconstruct the concrete Go type.
type Envelope struct {
	V           int       `json:"v"`
	Timestamp   time.Time `json:"ts"`
	SessionID   string    `json:"session_id"`
	SessionPath string    `json:"session_path"`
	Type        Kind      `json:"type"`
	Data        Data      `json:"data"`
}

// New builds a v2 envelope for data at the given time.
func New(sessionID, sessionPath string, data Data, ts time.Time) Envelope {
	return Envelope{
		V:           CurrentVersion,
		Timestamp:   ts,
		SessionID:   sessionID,
		SessionPath: sessionPath,
		Type:        data.Kind(),
		Data:        data,
	}
}

type envelopeWire struct {
	V           int             `json:"v"`
	Timestamp   time.Time       `json:"ts"`
	SessionID   string          `json:"session_id"`
	SessionPath string          `json:"session_path"`
	Type        Kind            `json:"type"`
	Data        json.RawMessage `json:"data"`
}

// MarshalJSON encodes the envelope with its Data payload tagged by Type.
func (e Envelope) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return json.Marshal(envelopeWire{
		V:           e.V,
		Timestamp:   e.Timestamp,
		SessionID:   e.SessionID,
		SessionPath: e.SessionPath,
		Type:        e.Type,
		Data:        raw,
	})
}

// UnmarshalJSON decodes the envelope and reconstructs the concrete Data type
// from Type. A v1 envelope with no SessionPath is upgraded in place using the
// legacy-path convention.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var wire envelopeWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	data, err := decodeData(wire.Type, wire.Data)
	if err != nil {
		return err
	}
	e.V = wire.V
	e.Timestamp = wire.Timestamp
	e.SessionID = wire.SessionID
	e.SessionPath = wire.SessionPath
	e.Type = wire.Type
	e.Data = data
	if e.V < CurrentVersion && e.SessionPath == "" && e.SessionID != "" {
		e.SessionPath = LegacyPathPrefix + e.SessionID + ".md"
	}
	return nil
}

func decodeData(kind Kind, raw json.RawMessage) (Data, error) {
	switch kind {
	case KindSessionOpen:
		var v SessionOpen
		return v, unmarshalInto(raw, &v)
	case KindSessionClose:
		var v SessionClose
		return v, unmarshalInto(raw, &v)
	case KindUserMessage:
		var v UserMessage
		return v, unmarshalInto(raw, &v)
	case KindAssistantMessage:
		var v AssistantMessage
		return v, unmarshalInto(raw, &v)
	case KindAssistantFeedback:
		var v AssistantFeedback
		return v, unmarshalInto(raw, &v)
	case KindTurnStatus:
		var v TurnStatus
		return v, unmarshalInto(raw, &v)
	case KindToolCall:
		var v ToolCall
		return v, unmarshalInto(raw, &v)
	case KindToolResult:
		var v ToolResult
		return v, unmarshalInto(raw, &v)
	case KindRunFailure:
		var v RunFailure
		return v, unmarshalInto(raw, &v)
	case KindAgentStep:
		var v AgentStep
		return v, unmarshalInto(raw, &v)
	case KindRunLedger:
		var v RunLedger
		return v, unmarshalInto(raw, &v)
	case KindTaskSummary:
		var v TaskSummary
		return v, unmarshalInto(raw, &v)
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}

func unmarshalInto[T any](raw json.RawMessage, v *T) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", *v, err)
	}
	return nil
}

// Format renders one envelope as a human-readable transcript heading followed
// by a fenced JSON block, matching the session-journal markdown shape.
func Format(env Envelope) (string, error) {
	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	heading := fmt.Sprintf("### %s %s", env.Timestamp.UTC().Format(time.RFC3339Nano), env.Type)
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n\n```json\n")
	b.Write(raw)
	b.WriteString("\n```\n\n")
	return b.String(), nil
}

// Parse reads a session markdown file and decodes each fenced JSON block into
// an Envelope. Corrupt blocks are skipped with a warning rather than aborting
// the replay, matching §4.A's failure semantics.
func Parse(r io.Reader, logger *slog.Logger) ([]Envelope, error) {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var envelopes []Envelope
	var inBlock bool
	var block strings.Builder

	flush := func() {
		if block.Len() == 0 {
			return
		}
		var env Envelope
		if err := json.Unmarshal([]byte(block.String()), &env); err != nil {
			logger.Warn("skipping corrupt journal block", "error", err)
		} else {
			envelopes = append(envelopes, env)
		}
		block.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case !inBlock && strings.TrimSpace(line) == "```json":
			inBlock = true
			block.Reset()
		case inBlock && strings.TrimSpace(line) == "```":
			inBlock = false
			flush()
		case inBlock:
			block.WriteString(line)
			block.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return envelopes, fmt.Errorf("scan journal: %w", err)
	}
	if inBlock {
		logger.Warn("journal ended mid-block, discarding trailing partial event")
	}
	return envelopes, nil
}
