package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gptshell/internal/config"
	"gptshell/internal/logging"
)

// TopicExtractor derives key topics from a set of turns. The default is
// frequency-based; callers can plug in something smarter.
type TopicExtractor interface {
	ExtractTopics(turns []ConversationTurn, max int) []string
}

// Summarizer compacts raw conversation history into summaries.
type Summarizer struct {
	store   *Store
	counter *TokenCounter
	topics  TopicExtractor
	cfg     config.MemoryConfig
}

// NewSummarizer creates a summarizer with the default topic extractor.
func NewSummarizer(store *Store, cfg config.MemoryConfig) *Summarizer {
	return &Summarizer{
		store:   store,
		counter: NewTokenCounter(),
		topics:  &FrequencyTopicExtractor{},
		cfg:     cfg,
	}
}

// SetTopicExtractor replaces the topic extraction strategy.
func (sz *Summarizer) SetTopicExtractor(te TopicExtractor) {
	sz.topics = te
}

// periodStart maps a summary period to its window start.
func periodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case "last_hour":
		return now.Add(-time.Hour), nil
	case "last_day":
		return now.AddDate(0, 0, -1), nil
	case "last_week":
		return now.AddDate(0, 0, -7), nil
	default:
		return time.Time{}, fmt.Errorf("unknown summary period: %s (use last_hour, last_day, or last_week)", period)
	}
}

// CreateSummary summarizes a project's turns within the given period and
// persists the result. An empty window yields a non-persisted marker
// summary with zero saved tokens.
func (sz *Summarizer) CreateSummary(projectPath, period string) (*ContextSummary, error) {
	now := time.Now()
	since, err := periodStart(period, now)
	if err != nil {
		return nil, err
	}

	turns, err := sz.store.TurnsBetween(projectPath, since, now.Add(time.Second))
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		logging.MemoryDebug("No turns to summarize: project=%s period=%s", projectPath, period)
		return &ContextSummary{
			ProjectPath: projectPath,
			Period:      period,
			Summary:     "No recent activity",
			TokensSaved: 0,
			CreatedAt:   now,
		}, nil
	}

	sum := sz.summarize(projectPath, period, turns)
	if err := sz.store.SaveSummary(sum); err != nil {
		return nil, err
	}
	return sum, nil
}

// summarize builds a ContextSummary from turns without persisting it.
func (sz *Summarizer) summarize(projectPath, period string, turns []ConversationTurn) *ContextSummary {
	digest := activityDigest(turns)

	rawTokens := 0
	for i := range turns {
		rawTokens += sz.counter.CountTurn(&turns[i])
	}
	saved := rawTokens - sz.counter.Count(digest)
	if saved < 0 {
		saved = 0
	}

	return &ContextSummary{
		ProjectPath:        projectPath,
		Period:             period,
		Summary:            digest,
		KeyTopics:          sz.topics.ExtractTopics(turns, 10),
		ImportantDecisions: extractDecisions(turns),
		CreatedFiles:       extractCreatedFiles(turns),
		TokensSaved:        saved,
	}
}

// activityDigest scans assistant messages for activity statements and joins
// up to five of them into a short digest.
func activityDigest(turns []ConversationTurn) string {
	keywords := []string{"created", "modified", "error", "fixed", "implemented"}

	var lines []string
	for _, t := range turns {
		for _, line := range strings.Split(t.AssistantMessage, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			lower := strings.ToLower(line)
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					lines = append(lines, line)
					break
				}
			}
			if len(lines) >= 5 {
				break
			}
		}
		if len(lines) >= 5 {
			break
		}
	}

	if len(lines) == 0 {
		return fmt.Sprintf("Conversation of %d turns with no notable file activity.", len(turns))
	}
	return "Recent activity summary: " + strings.Join(lines, "; ")
}

// extractDecisions pulls decision statements out of assistant messages.
func extractDecisions(turns []ConversationTurn) []string {
	markers := []string{"decided", "agreed", "chose", "will use"}

	var decisions []string
	for _, t := range turns {
		for _, line := range strings.Split(t.AssistantMessage, "\n") {
			line = strings.TrimSpace(line)
			lower := strings.ToLower(line)
			for _, m := range markers {
				if strings.Contains(lower, m) {
					decisions = append(decisions, line)
					break
				}
			}
			if len(decisions) >= 5 {
				return decisions
			}
		}
	}
	return decisions
}

// extractCreatedFiles collects file paths from write_file tool calls.
func extractCreatedFiles(turns []ConversationTurn) []string {
	seen := make(map[string]bool)
	var files []string
	for _, t := range turns {
		for _, tc := range t.ToolCalls {
			if tc.Name != "write_file" {
				continue
			}
			path, ok := tc.Arguments["path"].(string)
			if !ok || path == "" || seen[path] {
				continue
			}
			seen[path] = true
			files = append(files, path)
		}
	}
	return files
}

// FrequencyTopicExtractor ranks content words by frequency across all
// messages in the window.
type FrequencyTopicExtractor struct{}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "have": true, "what": true, "your": true,
	"you": true, "are": true, "can": true, "will": true, "not": true,
	"but": true, "was": true, "how": true, "all": true, "its": true,
	"use": true, "into": true, "when": true, "then": true, "there": true,
	"here": true, "should": true, "would": true, "could": true, "about": true,
}

// ExtractTopics returns up to max frequent content words, most frequent
// first. Ties break alphabetically so output is stable.
func (fe *FrequencyTopicExtractor) ExtractTopics(turns []ConversationTurn, max int) []string {
	counts := make(map[string]int)
	for _, t := range turns {
		for _, text := range []string{t.UserMessage, t.AssistantMessage} {
			for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
				return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '_'
			}) {
				if len(word) < 3 || stopwords[word] {
					continue
				}
				counts[word]++
			}
		}
	}

	type wc struct {
		word  string
		count int
	}
	ranked := make([]wc, 0, len(counts))
	for w, c := range counts {
		if c > 1 {
			ranked = append(ranked, wc{w, c})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	if len(ranked) > max {
		ranked = ranked[:max]
	}
	topics := make([]string, len(ranked))
	for i, r := range ranked {
		topics[i] = r.word
	}
	return topics
}

// CleanupOldConversations compacts turns older than the retention window.
// For each affected project an "archived" summary is written before any
// deletion, so history is never lost without a digest. Returns the total
// number of deleted turns.
func (sz *Summarizer) CleanupOldConversations(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = sz.cfg.RetentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	timer := logging.StartTimer(logging.CategoryMemory, "CleanupOldConversations")

	projects, err := sz.store.ProjectsWithTurnsBefore(cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, project := range projects {
		old, err := sz.store.TurnsBetween(project, time.Time{}, cutoff)
		if err != nil {
			return deleted, err
		}
		if len(old) == 0 {
			continue
		}

		// Summarize first; deletion only proceeds once the digest is
		// durable. A project archives at most once: a retried or repeated
		// cleanup must not stack duplicate archived summaries.
		archived, err := sz.store.HasSummary(project, "archived")
		if err != nil {
			return deleted, err
		}
		if !archived {
			sum := sz.summarize(project, "archived", old)
			if err := sz.store.SaveSummary(sum); err != nil {
				return deleted, fmt.Errorf("failed to archive %s before cleanup: %w", project, err)
			}
		}

		n, err := sz.store.DeleteTurnsBefore(project, cutoff)
		if err != nil {
			return deleted, err
		}
		deleted += n
		logging.Memory("Cleaned up %d turns for %s", n, project)
	}

	logging.Audit(logging.AuditCleanup, "projects", len(projects), "deleted", deleted)
	timer.StopWithInfo(fmt.Sprintf("projects=%d deleted=%d", len(projects), deleted))
	return deleted, nil
}
