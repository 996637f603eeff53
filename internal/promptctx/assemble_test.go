package promptctx

import "testing"

func TestAssembleSkipsEmptySections(t *testing.T) {
	got := Assemble(Sections{
		Base:   "You are a helpful core agent.",
		Memory: "User likes dark mode.",
	})
	want := "You are a helpful core agent.\n\n## Memory\n\nUser likes dark mode."
	if got != want {
		t.Fatalf("Assemble() = %q, want %q", got, want)
	}
}

func TestAssembleOrdersAllSections(t *testing.T) {
	got := Assemble(Sections{
		Base:          "base",
		Soul:          "soul",
		UserProfile:   "profile",
		Conversation:  "conversation",
		Memory:        "memory",
		Skills:        "skills",
		Tools:         "tools",
		SessionStatus: "status",
	})
	want := "base\n\nsoul\n\n" +
		"## User profile\n\nprofile\n\n" +
		"## Conversation\n\nconversation\n\n" +
		"## Memory\n\nmemory\n\n" +
		"## Skills\n\nskills\n\n" +
		"## Tools\n\ntools\n\n" +
		"## Session status\n\nstatus"
	if got != want {
		t.Fatalf("Assemble() = %q, want %q", got, want)
	}
}

func TestAssembleEmptyEverything(t *testing.T) {
	if got := Assemble(Sections{}); got != "" {
		t.Fatalf("Assemble(empty) = %q, want empty string", got)
	}
}
