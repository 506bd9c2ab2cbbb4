package memory

// TokenCounter estimates token counts without a model tokenizer.
// The heuristic is ~4 characters per token, which tracks close enough
// for budget enforcement on English text and code.
type TokenCounter struct{}

// NewTokenCounter creates a token counter.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count estimates the token count of text.
func (tc *TokenCounter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// CountTurn estimates the token footprint of a full turn.
func (tc *TokenCounter) CountTurn(t *ConversationTurn) int {
	return tc.Count(t.UserMessage) + tc.Count(t.AssistantMessage)
}
