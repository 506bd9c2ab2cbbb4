package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"gptshell/internal/logging"
)

// Store persists file fingerprints and chunk embeddings in SQLite.
// All reads and writes go through a single connection; the mutex keeps
// multi-statement operations atomic from the caller's point of view.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// StoredChunk is a chunk row joined with its owning file.
type StoredChunk struct {
	ID        int64
	Path      string
	Start     int
	End       int
	Text      string
	Embedding []float32
}

// Stats summarizes index contents.
type Stats struct {
	Files      int
	Chunks     int
	TotalBytes int64
	LastBuild  string
}

// NewStore opens (or creates) the index database at the given path.
func NewStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryIndex, "NewStore")
	defer timer.Stop()

	logging.Index("Opening index store at %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.IndexDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.IndexDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.IndexDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
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
	CREATE TABLE IF NOT EXISTS indexed_files (
		path TEXT PRIMARY KEY,
		mtime_unix_ns INTEGER NOT NULL,
		size INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		indexed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL REFERENCES indexed_files(path) ON DELETE CASCADE,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);

	CREATE TABLE IF NOT EXISTS index_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize index schema: %w", err)
	}
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.IndexDebug("Failed to enable foreign keys: %v", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// NeedsReindex reports whether a file changed since it was last indexed.
// A file whose mtime and size both match its stored fingerprint is assumed
// unchanged without rehashing. When the cheap check fails but the content
// hash still matches, the fingerprint is refreshed and no reindex is needed.
func (s *Store) NeedsReindex(f FileInfo) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mtime, size int64
	var hash string
	err := s.db.QueryRow(
		"SELECT mtime_unix_ns, size, content_hash FROM indexed_files WHERE path = ?",
		f.Path,
	).Scan(&mtime, &size, &hash)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up fingerprint for %s: %w", f.Path, err)
	}

	if mtime == f.ModTime.UnixNano() && size == f.Size {
		return false, nil
	}
	if hash == f.Hash {
		// Touched but unchanged (e.g. checkout, touch). Refresh the
		// fingerprint so the cheap check passes next time.
		_, err := s.db.Exec(
			"UPDATE indexed_files SET mtime_unix_ns = ?, size = ?, indexed_at = ? WHERE path = ?",
			f.ModTime.UnixNano(), f.Size, nowStamp(), f.Path,
		)
		if err != nil {
			return false, fmt.Errorf("failed to refresh fingerprint for %s: %w", f.Path, err)
		}
		logging.IndexDebug("Fingerprint refreshed without reindex: %s", f.Path)
		return false, nil
	}
	return true, nil
}

// ReplaceFileChunks atomically replaces all chunks for a file and records
// its fingerprint. Old chunks are never visible alongside new ones.
func (s *Store) ReplaceFileChunks(f FileInfo, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks WHERE path = ?", f.Path); err != nil {
		return fmt.Errorf("failed to clear old chunks for %s: %w", f.Path, err)
	}
	if _, err := tx.Exec(
		`INSERT INTO indexed_files (path, mtime_unix_ns, size, content_hash, indexed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   mtime_unix_ns = excluded.mtime_unix_ns,
		   size = excluded.size,
		   content_hash = excluded.content_hash,
		   indexed_at = excluded.indexed_at`,
		f.Path, f.ModTime.UnixNano(), f.Size, f.Hash, nowStamp(),
	); err != nil {
		return fmt.Errorf("failed to record fingerprint for %s: %w", f.Path, err)
	}

	stmt, err := tx.Prepare(
		"INSERT INTO chunks (path, start_offset, end_offset, text, embedding) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.Exec(f.Path, c.Start, c.End, c.Text, EncodeVector(embeddings[i])); err != nil {
			return fmt.Errorf("failed to insert chunk %d of %s: %w", i, f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks for %s: %w", f.Path, err)
	}
	return nil
}

// DeleteFile removes a file and its chunks from the index.
func (s *Store) DeleteFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", path, err)
	}
	if _, err := tx.Exec("DELETE FROM indexed_files WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete file record for %s: %w", path, err)
	}
	return tx.Commit()
}

// IndexedPaths returns all indexed file paths.
func (s *Store) IndexedPaths() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT path FROM indexed_files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Search returns the topK chunks closest to the query vector, best first.
// The scan is linear over all stored chunks; the cosine distance is computed
// inside SQLite by the registered vector_distance_cos function.
func (s *Store) Search(query []float32, topK int) ([]StoredChunk, []float64, error) {
	if topK <= 0 {
		return nil, nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	timer := logging.StartTimer(logging.CategoryRetrieval, "Search")

	rows, err := s.db.Query(
		`SELECT id, path, start_offset, end_offset, text, embedding,
		        vector_distance_cos(embedding, ?) AS distance
		 FROM chunks
		 ORDER BY distance ASC
		 LIMIT ?`,
		EncodeVector(query), topK,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var chunks []StoredChunk
	var scores []float64
	for rows.Next() {
		var c StoredChunk
		var blob []byte
		var distance float64
		if err := rows.Scan(&c.ID, &c.Path, &c.Start, &c.End, &c.Text, &blob, &distance); err != nil {
			return nil, nil, err
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("corrupt embedding for chunk %d: %w", c.ID, err)
		}
		c.Embedding = vec
		chunks = append(chunks, c)
		scores = append(scores, 1-distance)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	timer.StopWithInfo(fmt.Sprintf("results=%d", len(chunks)))
	return chunks, scores, nil
}

// Stats returns index summary statistics.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	if err := s.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(size), 0) FROM indexed_files",
	).Scan(&st.Files, &st.TotalBytes); err != nil {
		return st, fmt.Errorf("failed to read file stats: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&st.Chunks); err != nil {
		return st, fmt.Errorf("failed to read chunk stats: %w", err)
	}
	// Absent until the first build completes
	_ = s.db.QueryRow(
		"SELECT value FROM index_meta WHERE key = 'last_build'",
	).Scan(&st.LastBuild)
	return st, nil
}

// SetLastBuild records the completion time of the most recent build.
func (s *Store) SetLastBuild(when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO index_meta (key, value) VALUES ('last_build', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		when.UTC().Format(time.RFC3339),
	)
	return err
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
