package promptctx

import "testing"

func TestEstimateTextByteRate(t *testing.T) {
	if got := EstimateText("abcd"); got != 1 {
		t.Fatalf("EstimateText(4 bytes) = %d, want 1", got)
	}
	if got := EstimateText("abcdefgh"); got != 2 {
		t.Fatalf("EstimateText(8 bytes) = %d, want 2", got)
	}
	if got := EstimateText(""); got != 0 {
		t.Fatalf("EstimateText(empty) = %d, want 0", got)
	}
}

func TestEstimateTokensAppliesAllOverheads(t *testing.T) {
	messages := []string{"abcd", "abcdefgh"} // 1 + 2 tokens of content
	tools := []string{"abcdefghijklmnop"}    // 4 tokens of content

	got := EstimateTokens(messages, tools)
	want := perRequestOverhead +
		(1 + perMessageOverhead) +
		(2 + perMessageOverhead) +
		(4 + perToolOverhead)
	if got != want {
		t.Fatalf("EstimateTokens() = %d, want %d", got, want)
	}
}

func TestEstimateTokensEmptyTurn(t *testing.T) {
	if got := EstimateTokens(nil, nil); got != perRequestOverhead {
		t.Fatalf("EstimateTokens(empty) = %d, want %d", got, perRequestOverhead)
	}
}
