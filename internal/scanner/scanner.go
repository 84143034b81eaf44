// Package scanner walks a local directory tree and reports the regular files
// beneath it, keyed by their slash-separated path relative to the root.
//
// File metadata is cached from the first time a file is seen, so every size
// decision of a transfer pass agrees with the scan that started it. Reset
// drops the cache before a pass that must see current sizes and
// modification times.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// LocalFile is a regular file found under a scan root.
type LocalFile struct {
	// Path is the file's location in the scanned filesystem.
	Path string

	// RelPath is Path relative to the scan root, always slash separated.
	RelPath string

	Size    int64
	ModTime time.Time
}

// Scanner discovers files in a billy filesystem.
type Scanner struct {
	fs      billy.Filesystem
	matcher *PatternMatcher

	mu    sync.Mutex
	cache map[string]os.FileInfo
}

// New creates a scanner over fs.
func New(fs billy.Filesystem) *Scanner {
	return &Scanner{
		fs:      fs,
		matcher: NewPatternMatcher(),
		cache:   make(map[string]os.FileInfo),
	}
}

// Reset clears cached file metadata.
func (s *Scanner) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]os.FileInfo)
}

// Stat returns file metadata, served from the cache when present.
func (s *Scanner) Stat(name string) (os.FileInfo, error) {
	s.mu.Lock()
	info, ok := s.cache[name]
	s.mu.Unlock()
	if ok {
		return info, nil
	}

	info, err := s.fs.Stat(name)
	if err != nil {
		return nil, err
	}
	s.remember(name, info)
	return info, nil
}

func (s *Scanner) remember(name string, info os.FileInfo) {
	s.mu.Lock()
	s.cache[name] = info
	s.mu.Unlock()
}

// pinned returns the cached metadata for name, caching info when there is none.
func (s *Scanner) pinned(name string, info os.FileInfo) os.FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[name]; ok {
		return cached
	}
	s.cache[name] = info
	return info
}

// Scan returns every regular file under root that is not matched by one of
// the exclude patterns, sorted by relative path. A root that does not exist
// or is not a directory is an error. Sizes of files already in the cache are
// reported from the cache.
func (s *Scanner) Scan(ctx context.Context, root string, exclude []string) ([]LocalFile, error) {
	info, err := s.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []LocalFile
	err = util.Walk(s.fs, root, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		rel, err := relative(root, name)
		if err != nil {
			return err
		}
		if !s.matcher.ShouldInclude(rel, exclude) {
			return nil
		}

		info = s.pinned(name, info)
		files = append(files, LocalFile{
			Path:    name,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func relative(root, name string) (string, error) {
	rel, err := filepath.Rel(root, name)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path for %s: %w", name, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", name, root)
	}
	return path.Clean(rel), nil
}
