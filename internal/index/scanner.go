package index

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"gptshell/internal/config"
	"gptshell/internal/logging"
)

// FileInfo describes an indexable file discovered by a workspace scan.
type FileInfo struct {
	// Path relative to the workspace root, slash-separated
	Path    string
	ModTime time.Time
	Size    int64
	// SHA-256 of the file content, hex encoded
	Hash string
}

// Scanner enumerates indexable files under a workspace root.
type Scanner struct {
	root        string
	ignoreGlobs []string
	maxFileSize int64
}

// NewScanner creates a scanner for the given workspace root.
func NewScanner(root string, cfg config.IndexConfig) *Scanner {
	return &Scanner{
		root:        root,
		ignoreGlobs: cfg.IgnoreGlobs,
		maxFileSize: cfg.MaxFileSize,
	}
}

// Scan walks the workspace and returns indexable files with content hashes,
// sorted by path. Ignored directories are skipped without descending.
func (s *Scanner) Scan(ctx context.Context) ([]FileInfo, error) {
	timer := logging.StartTimer(logging.CategoryIndex, "Scan")

	var candidates []FileInfo
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal
			logging.IndexDebug("skipping unreadable entry %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := d.Name()
		if d.IsDir() {
			if path != s.root && s.ignored(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.ignored(name) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !info.Mode().IsRegular() || info.Size() > s.maxFileSize {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		candidates = append(candidates, FileInfo{
			Path:    filepath.ToSlash(rel),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workspace scan failed: %w", err)
	}

	files, err := s.hashAll(ctx, candidates)
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	timer.StopWithInfo(fmt.Sprintf("files=%d", len(files)))
	return files, nil
}

// hashAll computes content hashes concurrently and drops binary files.
func (s *Scanner) hashAll(ctx context.Context, candidates []FileInfo) ([]FileInfo, error) {
	results := make([]FileInfo, len(candidates))
	keep := make([]bool, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	// Each goroutine writes a disjoint slot; no locking needed.
	for i := range candidates {
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(candidates[i].Path)))
			if err != nil {
				// Vanished between walk and read; treated as absent
				return nil
			}
			if !isText(data) {
				return nil
			}
			sum := sha256.Sum256(data)
			fi := candidates[i]
			fi.Hash = hex.EncodeToString(sum[:])
			results[i] = fi
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []FileInfo
	for i, k := range keep {
		if k {
			out = append(out, results[i])
		}
	}
	return out, nil
}

// ignored reports whether a path segment matches any ignore glob.
func (s *Scanner) ignored(name string) bool {
	for _, pattern := range s.ignoreGlobs {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// isText probes the first 8 KiB for NUL bytes and invalid UTF-8. Binary
// files never enter the index.
func isText(data []byte) bool {
	probe := data
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	if bytes.IndexByte(probe, 0) >= 0 {
		return false
	}
	// Tolerate a truncated rune at the probe boundary
	for len(probe) > 0 && !utf8.Valid(probe) {
		r, size := utf8.DecodeLastRune(probe)
		if r == utf8.RuneError && size == 1 && len(data) > len(probe) {
			probe = probe[:len(probe)-1]
			continue
		}
		return false
	}
	return true
}
