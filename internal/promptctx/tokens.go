package promptctx

// Constant-overhead token estimator per §4.H: 4 UTF-8 bytes ≈ 1 token, plus
// fixed per-message, per-tool, and per-request overheads. This core uses a
// byte-rate instead of the teacher's rune-rate estimator (see DESIGN.md for
// why that deviation is intentional, not an oversight).
const (
	bytesPerToken      = 4
	perMessageOverhead = 4
	perToolOverhead    = 8
	perRequestOverhead = 3
)

// EstimateText estimates the token count of a single string.
func EstimateText(s string) int {
	return len(s) / bytesPerToken
}

// EstimateTokens estimates the total token count of a turn: each entry in
// messageContents is one conversation message's content, each entry in
// toolPayloads is one tool's serialized schema (name+description+schema).
func EstimateTokens(messageContents []string, toolPayloads []string) int {
	total := perRequestOverhead
	for _, content := range messageContents {
		total += EstimateText(content) + perMessageOverhead
	}
	for _, payload := range toolPayloads {
		total += EstimateText(payload) + perToolOverhead
	}
	return total
}
