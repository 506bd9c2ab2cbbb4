package usage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestAccumulatorAdd(t *testing.T) {
	a := Accumulator{PromptTokens: 10, CompletionTokens: 20, Cost: 0.01}
	b := Accumulator{PromptTokens: 5, CompletionTokens: 5, Cost: 0.02}

	got := a.Add(b)
	want := Accumulator{PromptTokens: 15, CompletionTokens: 25, Cost: 0.03}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Add mismatch (-want +got):\n%s", diff)
	}
	if got.Total() != 40 {
		t.Errorf("Total: got %d, want 40", got.Total())
	}
}

func TestTrackerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".gptshell", "usage.json")

	tr, err := NewTracker(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Record(Accumulator{PromptTokens: 100, CompletionTokens: 50, Cost: 0.05}); err != nil {
		t.Fatal(err)
	}
	if err := tr.Record(Accumulator{PromptTokens: 10, CompletionTokens: 5, Cost: 0.01}); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewTracker(path)
	if err != nil {
		t.Fatal(err)
	}
	totals := reopened.Totals()
	if totals.PromptTokens != 110 || totals.CompletionTokens != 55 {
		t.Errorf("tokens did not persist: %+v", totals)
	}
	if totals.Exchanges != 2 {
		t.Errorf("expected 2 exchanges, got %d", totals.Exchanges)
	}
	if totals.Cost < 0.059 || totals.Cost > 0.061 {
		t.Errorf("expected cost ~0.06, got %f", totals.Cost)
	}
}

func TestTrackerRecoversFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	tr, err := NewTracker(path)
	if err != nil {
		t.Fatalf("corrupt file must not block startup: %v", err)
	}
	if tr.Totals().Exchanges != 0 {
		t.Error("corrupt file must reset totals")
	}
}

func TestTrackerMissingFileStartsEmpty(t *testing.T) {
	tr, err := NewTracker(filepath.Join(t.TempDir(), "usage.json"))
	if err != nil {
		t.Fatal(err)
	}
	if got := tr.Totals(); got.PromptTokens != 0 || got.CompletionTokens != 0 || got.Exchanges != 0 {
		t.Errorf("expected empty totals, got %+v", got)
	}
}
