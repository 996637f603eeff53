package events

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRoundTripV2(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env := New("sess-1", "data/sessions/2026/03/01/sess-1.md", UserMessage{Content: "hello"}, ts)

	rendered, err := Format(env)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	got, err := Parse(strings.NewReader(rendered), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(got))
	}
	if diff := cmp.Diff(env, got[0]); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestV1UpgradeFillsSessionPath(t *testing.T) {
	raw := `{"v":1,"ts":"2026-03-01T12:00:00Z","session_id":"sess-legacy","type":"user_message","data":{"content":"hi"}}`
	var env Envelope
	if err := env.UnmarshalJSON([]byte(raw)); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	want := "sessions/legacy/sess-legacy.md"
	if env.SessionPath != want {
		t.Errorf("SessionPath = %q, want %q", env.SessionPath, want)
	}
	if _, ok := env.Data.(UserMessage); !ok {
		t.Errorf("Data type = %T, want UserMessage", env.Data)
	}
}

func TestParseSkipsCorruptBlocks(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	good := New("sess-1", "path.md", AssistantMessage{Content: "ok"}, ts)
	goodBlock, err := Format(good)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	doc := "### corrupt\n\n```json\n{not valid json\n```\n\n" + goodBlock

	got, err := Parse(strings.NewReader(doc), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving envelope, got %d", len(got))
	}
	if got[0].Type != KindAssistantMessage {
		t.Errorf("Type = %q, want %q", got[0].Type, KindAssistantMessage)
	}
}

func TestCountable(t *testing.T) {
	cases := []struct {
		data Data
		want bool
	}{
		{UserMessage{Content: "x"}, true},
		{AssistantMessage{Content: "x"}, true},
		{AgentStep{Step: 1, Phase: PhaseReason}, false},
		{ToolCall{ToolName: "read"}, false},
	}
	for _, c := range cases {
		if got := Countable(c.data); got != c.want {
			t.Errorf("Countable(%T) = %v, want %v", c.data, got, c.want)
		}
	}
}
