package domain

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"covtrace.dev/pkg/covtrace/internal/adapter"
	m "covtrace.dev/pkg/covtrace/internal/model"
)

// SourceStore loads source text once per path and keeps it for the rest of
// the run. A path that failed to load keeps failing without touching the disk
// again.
type SourceStore interface {
	// Load returns the lines of path, or an error wrapping
	// adapter.ErrSourceNotFound when the path does not resolve.
	Load(ctx context.Context, path m.Path) ([]string, error)

	// Loaded returns the successfully loaded paths in lexical order.
	Loaded() []m.Path

	// Cached returns the text captured at first load.
	Cached(path m.Path) ([]string, bool)
}

type sourceEntry struct {
	lines []string
	err   error
}

type sourceStore struct {
	fsAdapter adapter.SourceFSAdapter

	mu      sync.Mutex
	entries map[m.Path]sourceEntry
}

// NewSourceStore creates a SourceStore reading through fsAdapter.
func NewSourceStore(fsAdapter adapter.SourceFSAdapter) SourceStore {
	return &sourceStore{
		fsAdapter: fsAdapter,
		entries:   make(map[m.Path]sourceEntry),
	}
}

func (s *sourceStore) Load(ctx context.Context, path m.Path) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[path]; ok {
		return entry.lines, entry.err
	}

	lines, err := s.read(ctx, path)
	if err != nil && ctx.Err() != nil {
		// a cancelled read says nothing about the file
		return nil, err
	}

	s.entries[path] = sourceEntry{lines: lines, err: err}

	return lines, err
}

func (s *sourceStore) read(ctx context.Context, path m.Path) ([]string, error) {
	info, err := s.fsAdapter.FileInfo(ctx, path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", adapter.ErrSourceNotFound, path)
	}

	return s.fsAdapter.ReadLines(ctx, path)
}

func (s *sourceStore) Loaded() []m.Path {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]m.Path, 0, len(s.entries))

	for path, entry := range s.entries {
		if entry.err == nil {
			paths = append(paths, path)
		}
	}

	sort.Slice(paths, func(i, j int) bool {
		return paths[i] < paths[j]
	})

	return paths
}

func (s *sourceStore) Cached(path m.Path) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[path]
	if !ok || entry.err != nil {
		return nil, false
	}

	return entry.lines, true
}
