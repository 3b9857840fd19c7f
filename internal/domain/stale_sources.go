package domain

import (
	"context"
	"log/slog"

	"github.com/pmezard/go-difflib/difflib"

	"covtrace.dev/pkg/covtrace/internal/adapter"
	m "covtrace.dev/pkg/covtrace/internal/model"
)

// staleSources returns, for every loaded source whose file changed on disk
// since it was loaded, a unified diff from the reported text to the current
// one. The report keeps showing the text captured at first load.
func staleSources(ctx context.Context, store SourceStore, fsAdapter adapter.SourceFSAdapter) map[m.Path]string {
	stale := make(map[m.Path]string)

	for _, path := range store.Loaded() {
		reported, ok := store.Cached(path)
		if !ok {
			continue
		}

		current, err := fsAdapter.ReadLines(ctx, path)
		if err != nil {
			slog.Debug("Source no longer readable", "path", path, "error", err)
			stale[path] = ""

			continue
		}

		if equalLines(reported, current) {
			continue
		}

		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        withNewlines(reported),
			B:        withNewlines(current),
			FromFile: path.String() + " (reported)",
			ToFile:   path.String() + " (on disk)",
			Context:  1,
		})
		if err != nil {
			slog.Debug("Failed to diff source", "path", path, "error", err)
		}

		stale[path] = diff
	}

	return stale
}

func logStaleSources(ctx context.Context, store SourceStore, fsAdapter adapter.SourceFSAdapter) {
	for path, diff := range staleSources(ctx, store, fsAdapter) {
		slog.Debug("Source changed since it was loaded, report shows the old text", "path", path, "diff", diff)
	}
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = line + "\n"
	}

	return out
}
