package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gptshell/internal/config"
	"gptshell/internal/embedding"
	"gptshell/internal/logging"
)

// BuildResult summarizes one index build pass.
type BuildResult struct {
	Scanned  int // files considered
	Indexed  int // files (re)embedded
	Skipped  int // files unchanged since last build
	Failed   int // files skipped due to embedding or read failure
	Pruned   int // vanished files removed from the index
	Chunks   int // chunks written this pass
	Duration time.Duration
}

// Builder drives incremental index construction.
type Builder struct {
	root    string
	store   *Store
	engine  embedding.EmbeddingEngine
	scanner *Scanner
	cfg     config.IndexConfig
}

// NewBuilder creates an index builder for the workspace root.
func NewBuilder(root string, store *Store, engine embedding.EmbeddingEngine, cfg config.IndexConfig) *Builder {
	return &Builder{
		root:    root,
		store:   store,
		engine:  engine,
		scanner: NewScanner(root, cfg),
		cfg:     cfg,
	}
}

// Build scans the workspace and brings the index up to date. Unchanged files
// are skipped, changed files are re-chunked and re-embedded, vanished files
// are pruned. A file whose embedding fails is logged and skipped; the rest
// of the build continues.
func (b *Builder) Build(ctx context.Context) (*BuildResult, error) {
	start := time.Now()
	timer := logging.StartTimer(logging.CategoryIndex, "Build")
	// One correlation ID per build pass ties the per-file lines together
	req := logging.NewRequest(logging.CategoryIndex)
	req.Info("Starting index build for %s", b.root)
	logging.Audit(logging.AuditIndexRebuild, "root", b.root, "request_id", req.RequestID())

	files, err := b.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("index build failed during scan: %w", err)
	}

	result := &BuildResult{Scanned: len(files)}
	present := make(map[string]bool, len(files))

	for _, f := range files {
		present[f.Path] = true
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		needs, err := b.store.NeedsReindex(f)
		if err != nil {
			return nil, err
		}
		if !needs {
			result.Skipped++
			continue
		}

		n, err := b.indexFile(ctx, f)
		if err != nil {
			// One bad file must not poison the build
			req.Error("Failed to index %s: %v", f.Path, err)
			logging.Audit(logging.AuditFileSkipped, "path", f.Path, "error", err.Error())
			result.Failed++
			continue
		}
		logging.Audit(logging.AuditFileIndexed, "path", f.Path, "chunks", n)
		result.Indexed++
		result.Chunks += n
	}

	pruned, err := b.pruneMissing(present)
	if err != nil {
		return nil, err
	}
	result.Pruned = pruned

	if err := b.store.SetLastBuild(time.Now()); err != nil {
		logging.IndexDebug("Failed to record build time: %v", err)
	}

	result.Duration = time.Since(start)
	timer.StopWithInfo(fmt.Sprintf("scanned=%d indexed=%d skipped=%d failed=%d pruned=%d",
		result.Scanned, result.Indexed, result.Skipped, result.Failed, result.Pruned))
	return result, nil
}

// indexFile chunks and embeds one file, then swaps its chunks in atomically.
// Returns the number of chunks written.
func (b *Builder) indexFile(ctx context.Context, f FileInfo) (int, error) {
	data, err := os.ReadFile(filepath.Join(b.root, filepath.FromSlash(f.Path)))
	if err != nil {
		return 0, fmt.Errorf("read failed: %w", err)
	}

	chunks := ChunkText(string(data), b.cfg.ChunkSize, b.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		// Empty file: record the fingerprint so it is not revisited
		return 0, b.store.ReplaceFileChunks(f, nil, nil)
	}

	embeddings := make([][]float32, 0, len(chunks))
	for batchStart := 0; batchStart < len(chunks); batchStart += b.cfg.BatchSize {
		batchEnd := batchStart + b.cfg.BatchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		texts := make([]string, 0, batchEnd-batchStart)
		for _, c := range chunks[batchStart:batchEnd] {
			texts = append(texts, c.Text)
		}

		logging.Audit(logging.AuditEmbeddingCall, "path", f.Path, "batch", len(texts))
		vecs, err := b.engine.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embedding failed: %w", err)
		}
		embeddings = append(embeddings, vecs...)
	}

	if err := b.store.ReplaceFileChunks(f, chunks, embeddings); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// pruneMissing removes index entries for files no longer present on disk.
func (b *Builder) pruneMissing(present map[string]bool) (int, error) {
	indexed, err := b.store.IndexedPaths()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, p := range indexed {
		if present[p] {
			continue
		}
		if err := b.store.DeleteFile(p); err != nil {
			return pruned, fmt.Errorf("failed to prune %s: %w", p, err)
		}
		logging.IndexDebug("Pruned vanished file: %s", p)
		logging.Audit(logging.AuditFilePruned, "path", p)
		pruned++
	}
	return pruned, nil
}
