// Package usage tracks cumulative token consumption and spend across
// sessions. Totals persist in .gptshell/usage.json.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gptshell/internal/logging"
)

// Accumulator carries the cost of a single exchange. Callers thread it
// through turn recording rather than mutating shared state.
type Accumulator struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
}

// Total returns the combined token count.
func (a Accumulator) Total() int {
	return a.PromptTokens + a.CompletionTokens
}

// Add merges another accumulator into this one.
func (a Accumulator) Add(other Accumulator) Accumulator {
	return Accumulator{
		PromptTokens:     a.PromptTokens + other.PromptTokens,
		CompletionTokens: a.CompletionTokens + other.CompletionTokens,
		Cost:             a.Cost + other.Cost,
	}
}

// Totals is the persisted shape of lifetime usage.
type Totals struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
	Exchanges        int     `json:"exchanges"`
	UpdatedAt        string  `json:"updated_at,omitempty"`
}

// Tracker persists lifetime usage totals.
type Tracker struct {
	mu     sync.Mutex
	path   string
	totals Totals
}

// NewTracker loads (or initializes) the tracker at the given path.
func NewTracker(path string) (*Tracker, error) {
	t := &Tracker{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("failed to read usage file: %w", err)
	}
	if err := json.Unmarshal(data, &t.totals); err != nil {
		// A corrupt usage file loses its totals but never blocks startup
		logging.Get(logging.CategoryBoot).Warn("Resetting corrupt usage file %s: %v", path, err)
		t.totals = Totals{}
	}
	return t, nil
}

// Record folds one exchange into the lifetime totals and persists them.
func (t *Tracker) Record(acc Accumulator) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totals.PromptTokens += acc.PromptTokens
	t.totals.CompletionTokens += acc.CompletionTokens
	t.totals.Cost += acc.Cost
	t.totals.Exchanges++
	t.totals.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	return t.save()
}

// Totals returns a copy of the lifetime totals.
func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

func (t *Tracker) save() error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("failed to create usage directory: %w", err)
	}
	data, err := json.MarshalIndent(t.totals, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal usage: %w", err)
	}
	// Write-then-rename keeps the file parseable under interruption
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write usage file: %w", err)
	}
	return os.Rename(tmp, t.path)
}
