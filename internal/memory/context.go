package memory

import (
	"fmt"

	"gptshell/internal/config"
	"gptshell/internal/logging"
)

// ContextBuilder reconstructs recent conversation context within a token
// budget for injection into a new session.
type ContextBuilder struct {
	store   *Store
	counter *TokenCounter
	cfg     config.MemoryConfig
}

// NewContextBuilder creates a context builder over the store.
func NewContextBuilder(store *Store, cfg config.MemoryConfig) *ContextBuilder {
	return &ContextBuilder{
		store:   store,
		counter: NewTokenCounter(),
		cfg:     cfg,
	}
}

// RecentContext returns the most recent turns for a project as chat
// messages in chronological order. Turns are taken newest first until the
// token budget would be exceeded; a turn that would overflow the budget is
// excluded entirely. At most FetchCap turns are ever considered, bounding
// the read cost regardless of history size.
func (cb *ContextBuilder) RecentContext(projectPath string, maxTokens int) ([]Message, error) {
	if maxTokens <= 0 {
		maxTokens = cb.cfg.MaxContextTokens
	}

	timer := logging.StartTimer(logging.CategoryMemory, "RecentContext")

	turns, err := cb.store.RecentTurns(projectPath, cb.cfg.FetchCap)
	if err != nil {
		return nil, err
	}

	// turns arrive newest first; keep whole turns while the budget holds
	var kept []ConversationTurn
	used := 0
	for _, t := range turns {
		cost := cb.counter.CountTurn(&t)
		if used+cost > maxTokens {
			break
		}
		used += cost
		kept = append(kept, t)
	}

	// reverse into chronological order, two messages per turn
	messages := make([]Message, 0, len(kept)*2)
	for i := len(kept) - 1; i >= 0; i-- {
		t := kept[i]
		messages = append(messages,
			Message{Role: "user", Content: t.UserMessage},
			Message{Role: "assistant", Content: t.AssistantMessage},
		)
	}

	timer.StopWithInfo(fmt.Sprintf("turns=%d tokens=%d budget=%d", len(kept), used, maxTokens))
	return messages, nil
}
