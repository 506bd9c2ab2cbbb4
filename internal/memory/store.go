package memory

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"gptshell/internal/logging"
)

// tsLayout is fixed-width UTC so string comparison in SQL matches
// chronological order.
const tsLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}

// Store persists conversation turns, sessions, and summaries in SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewStore opens (or creates) the conversation database at the given path.
func NewStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "NewStore")
	defer timer.Stop()

	logging.Memory("Opening conversation store at %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create memory directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.MemoryDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.MemoryDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.MemoryDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		project_path TEXT NOT NULL,
		user_message TEXT NOT NULL,
		assistant_message TEXT NOT NULL,
		tool_calls TEXT,
		tokens_used INTEGER DEFAULT 0,
		cost REAL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_project ON conversations(project_path);
	CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations(timestamp);

	CREATE TABLE IF NOT EXISTS context_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_path TEXT NOT NULL,
		period TEXT NOT NULL,
		summary TEXT NOT NULL,
		key_topics TEXT,
		important_decisions TEXT,
		created_files TEXT,
		modified_files TEXT,
		tokens_saved INTEGER DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_project ON context_summaries(project_path);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		project_path TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		total_turns INTEGER DEFAULT 0,
		total_tokens INTEGER DEFAULT 0,
		total_cost REAL DEFAULT 0
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize conversation schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// StartSession creates a new session for the project and returns its ID.
// The ID is a short content hash of the project path and start time.
func (s *Store) StartSession(projectPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sum := sha256.Sum256([]byte(projectPath + now.Format(time.RFC3339Nano)))
	sessionID := hex.EncodeToString(sum[:])[:12]

	_, err := s.db.Exec(
		"INSERT INTO sessions (session_id, project_path, started_at) VALUES (?, ?, ?)",
		sessionID, projectPath, formatTS(now),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}

	logging.Memory("Session started: %s for %s", sessionID, projectPath)
	logging.Audit(logging.AuditSessionStart, "session_id", sessionID, "project", projectPath)
	return sessionID, nil
}

// EndSession closes a session and rolls up its turn aggregates.
func (s *Store) EndSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE sessions SET
			ended_at = ?,
			total_turns = (SELECT COUNT(*) FROM conversations WHERE session_id = ?),
			total_tokens = (SELECT COALESCE(SUM(tokens_used), 0) FROM conversations WHERE session_id = ?),
			total_cost = (SELECT COALESCE(SUM(cost), 0) FROM conversations WHERE session_id = ?)
		 WHERE session_id = ?`,
		formatTS(time.Now()), sessionID, sessionID, sessionID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown session: %s", sessionID)
	}

	logging.Memory("Session ended: %s", sessionID)
	logging.Audit(logging.AuditSessionEnd, "session_id", sessionID)
	return nil
}

// GetSession returns a session by ID, or nil when not found.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sess Session
	var startedAt string
	var endedAt sql.NullString
	err := s.db.QueryRow(
		`SELECT session_id, project_path, started_at, ended_at, total_turns, total_tokens, total_cost
		 FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&sess.SessionID, &sess.ProjectPath, &startedAt, &endedAt,
		&sess.TotalTurns, &sess.TotalTokens, &sess.TotalCost)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	if sess.StartedAt, err = parseTS(startedAt); err != nil {
		return nil, fmt.Errorf("corrupt started_at for session %s: %w", sessionID, err)
	}
	if endedAt.Valid {
		t, err := parseTS(endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt ended_at for session %s: %w", sessionID, err)
		}
		sess.EndedAt = &t
	}
	return &sess, nil
}

// SaveTurn records one conversation turn. A zero Timestamp is filled in
// with the current time.
func (s *Store) SaveTurn(turn *ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	var toolCallsJSON any
	if len(turn.ToolCalls) > 0 {
		data, err := json.Marshal(turn.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolCallsJSON = string(data)
	}

	res, err := s.db.Exec(
		`INSERT INTO conversations
		 (session_id, timestamp, project_path, user_message, assistant_message,
		  tool_calls, tokens_used, cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.SessionID, formatTS(turn.Timestamp), turn.ProjectPath,
		turn.UserMessage, turn.AssistantMessage,
		toolCallsJSON, turn.TokensUsed, turn.Cost, formatTS(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	turn.ID, _ = res.LastInsertId()

	logging.MemoryDebug("Turn saved: session=%s tokens=%d", turn.SessionID, turn.TokensUsed)
	logging.Audit(logging.AuditTurnSaved, "session_id", turn.SessionID, "tokens", turn.TokensUsed)
	return nil
}

// RecentTurns returns up to limit turns for a project, newest first.
func (s *Store) RecentTurns(projectPath string, limit int) ([]ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, session_id, timestamp, project_path, user_message, assistant_message,
		        tool_calls, tokens_used, cost
		 FROM conversations
		 WHERE project_path = ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		projectPath, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// TurnsBetween returns turns in [since, until) for a project, oldest first.
func (s *Store) TurnsBetween(projectPath string, since, until time.Time) ([]ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, session_id, timestamp, project_path, user_message, assistant_message,
		        tool_calls, tokens_used, cost
		 FROM conversations
		 WHERE project_path = ? AND timestamp >= ? AND timestamp < ?
		 ORDER BY timestamp ASC, id ASC`,
		projectPath, formatTS(since), formatTS(until),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]ConversationTurn, error) {
	var turns []ConversationTurn
	for rows.Next() {
		var t ConversationTurn
		var ts string
		var toolCalls sql.NullString
		if err := rows.Scan(&t.ID, &t.SessionID, &ts, &t.ProjectPath,
			&t.UserMessage, &t.AssistantMessage, &toolCalls, &t.TokensUsed, &t.Cost); err != nil {
			return nil, err
		}
		parsed, err := parseTS(ts)
		if err != nil {
			return nil, fmt.Errorf("corrupt timestamp on turn %d: %w", t.ID, err)
		}
		t.Timestamp = parsed
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &t.ToolCalls); err != nil {
				return nil, fmt.Errorf("corrupt tool calls on turn %d: %w", t.ID, err)
			}
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// SaveSummary persists a context summary.
func (s *Store) SaveSummary(sum *ContextSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now()
	}
	if sum.TokensSaved < 0 {
		sum.TokensSaved = 0
	}

	res, err := s.db.Exec(
		`INSERT INTO context_summaries
		 (project_path, period, summary, key_topics, important_decisions,
		  created_files, modified_files, tokens_saved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ProjectPath, sum.Period, sum.Summary,
		marshalList(sum.KeyTopics), marshalList(sum.ImportantDecisions),
		marshalList(sum.CreatedFiles), marshalList(sum.ModifiedFiles),
		sum.TokensSaved, formatTS(sum.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	sum.ID, _ = res.LastInsertId()

	logging.Memory("Summary saved: project=%s period=%s tokens_saved=%d",
		sum.ProjectPath, sum.Period, sum.TokensSaved)
	logging.Audit(logging.AuditSummaryCreated, "project", sum.ProjectPath, "period", sum.Period)
	return nil
}

// HasSummary reports whether a summary already exists for the given
// project and period.
func (s *Store) HasSummary(projectPath, period string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM context_summaries WHERE project_path = ? AND period = ?",
		projectPath, period,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check for existing summary: %w", err)
	}
	return n > 0, nil
}

// Summaries returns all summaries for a project, newest first.
func (s *Store) Summaries(projectPath string) ([]ContextSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, project_path, period, summary, key_topics, important_decisions,
		        created_files, modified_files, tokens_saved, created_at
		 FROM context_summaries
		 WHERE project_path = ?
		 ORDER BY created_at DESC, id DESC`,
		projectPath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var sums []ContextSummary
	for rows.Next() {
		var c ContextSummary
		var topics, decisions, created, modified sql.NullString
		var createdAt string
		if err := rows.Scan(&c.ID, &c.ProjectPath, &c.Period, &c.Summary,
			&topics, &decisions, &created, &modified, &c.TokensSaved, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := parseTS(createdAt)
		if err != nil {
			return nil, fmt.Errorf("corrupt created_at on summary %d: %w", c.ID, err)
		}
		c.CreatedAt = parsed
		c.KeyTopics = unmarshalList(topics)
		c.ImportantDecisions = unmarshalList(decisions)
		c.CreatedFiles = unmarshalList(created)
		c.ModifiedFiles = unmarshalList(modified)
		sums = append(sums, c)
	}
	return sums, rows.Err()
}

// ProjectStats aggregates recorded history for a project.
func (s *Store) ProjectStats(projectPath string) (*ProjectStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &ProjectStats{ProjectPath: projectPath}
	var first, last sql.NullString
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(tokens_used), 0), COALESCE(SUM(cost), 0),
		        MIN(timestamp), MAX(timestamp)
		 FROM conversations WHERE project_path = ?`, projectPath,
	).Scan(&st.Turns, &st.TotalTokens, &st.TotalCost, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to read turn stats: %w", err)
	}

	// Count sessions from the turns themselves so sessions that never
	// recorded a turn do not inflate the stats.
	if err := s.db.QueryRow(
		"SELECT COUNT(DISTINCT session_id) FROM conversations WHERE project_path = ?", projectPath,
	).Scan(&st.Sessions); err != nil {
		return nil, fmt.Errorf("failed to read session stats: %w", err)
	}
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM context_summaries WHERE project_path = ?", projectPath,
	).Scan(&st.Summaries); err != nil {
		return nil, fmt.Errorf("failed to read summary stats: %w", err)
	}

	if first.Valid {
		if t, err := parseTS(first.String); err == nil {
			st.FirstTurn = &t
		}
	}
	if last.Valid {
		if t, err := parseTS(last.String); err == nil {
			st.LastTurn = &t
		}
	}
	return st, nil
}

// ProjectsWithTurnsBefore lists projects that still have raw turns older
// than the cutoff.
func (s *Store) ProjectsWithTurnsBefore(cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT DISTINCT project_path FROM conversations WHERE timestamp < ? ORDER BY project_path",
		formatTS(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale projects: %w", err)
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteTurnsBefore removes a project's turns older than the cutoff and
// returns how many were deleted.
func (s *Store) DeleteTurnsBefore(projectPath string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"DELETE FROM conversations WHERE project_path = ? AND timestamp < ?",
		projectPath, formatTS(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old turns: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func marshalList(items []string) any {
	if len(items) == 0 {
		return nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return string(data)
}

func unmarshalList(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(v.String), &items); err != nil {
		return nil
	}
	return items
}
