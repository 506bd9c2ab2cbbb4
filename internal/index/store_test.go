package index

import (
	"math"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// go.opencensus.io starts a background worker goroutine in its package
	// init (pulled in transitively); it is not a leak from this package.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
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

func testFile(path, hash string, mtime time.Time, size int64) FileInfo {
	return FileInfo{Path: path, Hash: hash, ModTime: mtime, Size: size}
}

func TestVectorRoundTrip(t *testing.T) {
	v := []float32{0.5, -1.25, 3.75, 0}
	decoded, err := DecodeVector(EncodeVector(v))
	if err != nil {
		t.Fatal(err)
	}
	for i := range v {
		if decoded[i] != v[i] {
			t.Errorf("index %d: got %f, want %f", i, decoded[i], v[i])
		}
	}

	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for misaligned blob")
	}
}

func TestNeedsReindexNewFile(t *testing.T) {
	s := newTestStore(t)
	needs, err := s.NeedsReindex(testFile("a.go", "h1", time.Now(), 10))
	if err != nil {
		t.Fatal(err)
	}
	if !needs {
		t.Error("unknown file must need indexing")
	}
}

func TestNeedsReindexUnchangedFingerprint(t *testing.T) {
	s := newTestStore(t)
	mtime := time.Now()
	f := testFile("a.go", "h1", mtime, 10)

	if err := s.ReplaceFileChunks(f, []Chunk{{0, 4, "text"}}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}

	needs, err := s.NeedsReindex(f)
	if err != nil {
		t.Fatal(err)
	}
	if needs {
		t.Error("unchanged mtime+size must skip reindexing")
	}
}

func TestNeedsReindexTouchedButSameHashRefreshes(t *testing.T) {
	s := newTestStore(t)
	mtime := time.Now()
	f := testFile("a.go", "h1", mtime, 10)
	if err := s.ReplaceFileChunks(f, []Chunk{{0, 4, "text"}}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}

	// Touched: new mtime, same content hash
	touched := testFile("a.go", "h1", mtime.Add(time.Hour), 10)
	needs, err := s.NeedsReindex(touched)
	if err != nil {
		t.Fatal(err)
	}
	if needs {
		t.Error("same content hash must not trigger re-embedding")
	}

	// The fingerprint was refreshed: the cheap check now passes
	needs, err = s.NeedsReindex(touched)
	if err != nil {
		t.Fatal(err)
	}
	if needs {
		t.Error("refreshed fingerprint must pass the mtime+size check")
	}
}

func TestNeedsReindexContentChanged(t *testing.T) {
	s := newTestStore(t)
	mtime := time.Now()
	f := testFile("a.go", "h1", mtime, 10)
	if err := s.ReplaceFileChunks(f, []Chunk{{0, 4, "text"}}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}

	changed := testFile("a.go", "h2", mtime.Add(time.Hour), 12)
	needs, err := s.NeedsReindex(changed)
	if err != nil {
		t.Fatal(err)
	}
	if !needs {
		t.Error("changed content hash must trigger reindexing")
	}
}

func TestReplaceFileChunksSwapsAtomically(t *testing.T) {
	s := newTestStore(t)
	f := testFile("a.go", "h1", time.Now(), 10)

	old := []Chunk{{0, 3, "old"}, {2, 5, "old2"}}
	if err := s.ReplaceFileChunks(f, old, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatal(err)
	}

	f.Hash = "h2"
	if err := s.ReplaceFileChunks(f, []Chunk{{0, 3, "new"}}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Files != 1 {
		t.Errorf("expected 1 file, got %d", st.Files)
	}
	if st.Chunks != 1 {
		t.Errorf("old chunks must be gone, got %d", st.Chunks)
	}
}

func TestSearchOrdersByCosineSimilarity(t *testing.T) {
	s := newTestStore(t)
	f := testFile("a.go", "h1", time.Now(), 30)

	chunks := []Chunk{
		{0, 5, "exact"},
		{5, 10, "close"},
		{10, 15, "far"},
	}
	vecs := [][]float32{
		{1, 0},         // identical to query
		{0.707, 0.707}, // 45 degrees
		{0, 1},         // orthogonal
	}
	if err := s.ReplaceFileChunks(f, chunks, vecs); err != nil {
		t.Fatal(err)
	}

	got, scores, err := s.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Text != "exact" || got[1].Text != "close" {
		t.Errorf("wrong order: %q, %q", got[0].Text, got[1].Text)
	}
	if math.Abs(scores[0]-1.0) > 1e-5 {
		t.Errorf("identical vector score should be ~1, got %f", scores[0])
	}
	if scores[1] >= scores[0] {
		t.Errorf("scores must be descending: %v", scores)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	s := newTestStore(t)
	got, _, err := s.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("empty index must return no results, got %d", len(got))
	}
}

func TestDeleteFileRemovesChunks(t *testing.T) {
	s := newTestStore(t)
	f := testFile("a.go", "h1", time.Now(), 10)
	if err := s.ReplaceFileChunks(f, []Chunk{{0, 4, "text"}}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteFile("a.go"); err != nil {
		t.Fatal(err)
	}

	paths, err := s.IndexedPaths()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 0 {
		t.Errorf("expected no indexed paths, got %v", paths)
	}
	st, _ := s.Stats()
	if st.Chunks != 0 {
		t.Errorf("expected no chunks, got %d", st.Chunks)
	}
}

func TestStatsTracksLastBuild(t *testing.T) {
	s := newTestStore(t)

	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.LastBuild != "" {
		t.Errorf("fresh store must have no build time, got %q", st.LastBuild)
	}

	when := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SetLastBuild(when); err != nil {
		t.Fatal(err)
	}
	st, err = s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.LastBuild != "2026-08-01T12:00:00Z" {
		t.Errorf("unexpected build time %q", st.LastBuild)
	}
}
