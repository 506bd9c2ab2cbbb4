package memory

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"gptshell/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMemoryConfig() config.MemoryConfig {
	return (&config.UserConfig{}).GetMemoryConfig()
}

func saveTurnAt(t *testing.T, s *Store, session, project string, ts time.Time, user, assistant string, tokens int, cost float64) *ConversationTurn {
	t.Helper()
	turn := &ConversationTurn{
		SessionID:        session,
		Timestamp:        ts,
		ProjectPath:      project,
		UserMessage:      user,
		AssistantMessage: assistant,
		TokensUsed:       tokens,
		Cost:             cost,
	}
	if err := s.SaveTurn(turn); err != nil {
		t.Fatal(err)
	}
	return turn
}

func TestStartSessionIDsAreShortAndUnique(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.StartSession("/proj")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.StartSession("/proj")
	if err != nil {
		t.Fatal(err)
	}

	if len(id1) != 12 {
		t.Errorf("expected 12-char session id, got %q", id1)
	}
	if id1 == id2 {
		t.Error("consecutive sessions must get distinct ids")
	}
}

func TestEndSessionAggregatesTurns(t *testing.T) {
	s := newTestStore(t)
	id, err := s.StartSession("/proj")
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	saveTurnAt(t, s, id, "/proj", now, "q1", "a1", 100, 0.01)
	saveTurnAt(t, s, id, "/proj", now.Add(time.Minute), "q2", "a2", 250, 0.02)

	if err := s.EndSession(id); err != nil {
		t.Fatal(err)
	}

	sess, err := s.GetSession(id)
	if err != nil {
		t.Fatal(err)
	}
	if sess == nil {
		t.Fatal("session not found")
	}
	if sess.EndedAt == nil {
		t.Error("ended session must have an end time")
	}
	if sess.TotalTurns != 2 {
		t.Errorf("expected 2 turns, got %d", sess.TotalTurns)
	}
	if sess.TotalTokens != 350 {
		t.Errorf("expected 350 tokens, got %d", sess.TotalTokens)
	}
	if sess.TotalCost < 0.029 || sess.TotalCost > 0.031 {
		t.Errorf("expected cost ~0.03, got %f", sess.TotalCost)
	}
}

func TestEndSessionUnknownID(t *testing.T) {
	s := newTestStore(t)
	if err := s.EndSession("nope"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestGetSessionMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.GetSession("absent")
	if err != nil {
		t.Fatal(err)
	}
	if sess != nil {
		t.Error("expected nil for missing session")
	}
}

func TestSaveTurnRoundTripsToolCalls(t *testing.T) {
	s := newTestStore(t)

	turn := &ConversationTurn{
		SessionID:        "sess1",
		ProjectPath:      "/proj",
		UserMessage:      "make a file",
		AssistantMessage: "done",
		ToolCalls: []ToolCall{
			{Name: "write_file", Arguments: map[string]any{"path": "main.go"}},
		},
	}
	if err := s.SaveTurn(turn); err != nil {
		t.Fatal(err)
	}
	if turn.ID == 0 {
		t.Error("saved turn must receive an id")
	}

	turns, err := s.RecentTurns("/proj", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	got := turns[0]
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "write_file" {
		t.Errorf("tool calls did not survive: %+v", got.ToolCalls)
	}
	if got.ToolCalls[0].Arguments["path"] != "main.go" {
		t.Errorf("arguments did not survive: %+v", got.ToolCalls[0].Arguments)
	}
}

func TestRecentTurnsNewestFirstAndCapped(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		saveTurnAt(t, s, "sess1", "/proj", base.Add(time.Duration(i)*time.Minute),
			"question", "answer", 10, 0)
	}

	turns, err := s.RecentTurns("/proj", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].Timestamp.After(turns[i-1].Timestamp) {
			t.Error("turns must be newest first")
		}
	}
}

func TestTurnsBetweenIsProjectScoped(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	saveTurnAt(t, s, "a", "/proj-a", now, "qa", "aa", 1, 0)
	saveTurnAt(t, s, "b", "/proj-b", now, "qb", "ab", 1, 0)

	turns, err := s.TurnsBetween("/proj-a", now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 || turns[0].ProjectPath != "/proj-a" {
		t.Errorf("expected only /proj-a turns, got %+v", turns)
	}
}

func TestSaveSummaryFloorsTokensSaved(t *testing.T) {
	s := newTestStore(t)
	sum := &ContextSummary{
		ProjectPath: "/proj",
		Period:      "last_day",
		Summary:     "short",
		TokensSaved: -42,
	}
	if err := s.SaveSummary(sum); err != nil {
		t.Fatal(err)
	}

	sums, err := s.Summaries("/proj")
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(sums))
	}
	if sums[0].TokensSaved != 0 {
		t.Errorf("tokens_saved must be floored at 0, got %d", sums[0].TokensSaved)
	}
}

func TestProjectStats(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.StartSession("/proj")
	now := time.Now()
	saveTurnAt(t, s, id, "/proj", now.Add(-time.Hour), "q1", "a1", 100, 0.01)
	saveTurnAt(t, s, id, "/proj", now, "q2", "a2", 200, 0.02)

	// A session with no recorded turns must not count
	if _, err := s.StartSession("/proj"); err != nil {
		t.Fatal(err)
	}

	st, err := s.ProjectStats("/proj")
	if err != nil {
		t.Fatal(err)
	}
	if st.Turns != 2 || st.Sessions != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if st.TotalTokens != 300 {
		t.Errorf("expected 300 tokens, got %d", st.TotalTokens)
	}
	if st.FirstTurn == nil || st.LastTurn == nil {
		t.Fatal("expected first/last turn times")
	}
	if !st.FirstTurn.Before(*st.LastTurn) {
		t.Error("first turn must precede last turn")
	}
}

func TestProjectStatsEmptyProject(t *testing.T) {
	s := newTestStore(t)
	st, err := s.ProjectStats("/nowhere")
	if err != nil {
		t.Fatal(err)
	}
	if st.Turns != 0 || st.FirstTurn != nil || st.LastTurn != nil {
		t.Errorf("unexpected stats for empty project: %+v", st)
	}
}

func TestTimestampOrderingSurvivesStringComparison(t *testing.T) {
	// Lexicographic order of the stored format must equal time order,
	// including across month/day boundaries.
	times := []time.Time{
		time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 12, 9, 5, 0, 0, 0, time.UTC),
	}
	for i := 1; i < len(times); i++ {
		a, b := formatTS(times[i-1]), formatTS(times[i])
		if a >= b {
			t.Errorf("string order broken: %q >= %q", a, b)
		}
	}
}
