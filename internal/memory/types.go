// Package memory persists conversation history and reconstructs
// token-bounded context for new sessions.
package memory

import "time"

// ToolCall records one tool invocation made during a turn.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ConversationTurn is one user/assistant exchange.
type ConversationTurn struct {
	ID               int64
	SessionID        string
	Timestamp        time.Time
	ProjectPath      string
	UserMessage      string
	AssistantMessage string
	ToolCalls        []ToolCall
	TokensUsed       int
	Cost             float64
}

// Session aggregates the turns recorded under one session ID.
type Session struct {
	SessionID   string
	ProjectPath string
	StartedAt   time.Time
	EndedAt     *time.Time
	TotalTurns  int
	TotalTokens int
	TotalCost   float64
}

// ContextSummary is a compacted digest of past conversation activity.
type ContextSummary struct {
	ID                 int64
	ProjectPath        string
	Period             string // "last_hour", "last_day", "last_week", "archived"
	Summary            string
	KeyTopics          []string
	ImportantDecisions []string
	CreatedFiles       []string
	ModifiedFiles      []string
	TokensSaved        int
	CreatedAt          time.Time
}

// ProjectStats summarizes recorded history for one project.
type ProjectStats struct {
	ProjectPath string
	Turns       int
	Sessions    int
	Summaries   int
	TotalTokens int
	TotalCost   float64
	FirstTurn   *time.Time
	LastTurn    *time.Time
}

// Message is a role-tagged chat message ready for prompt assembly.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}
