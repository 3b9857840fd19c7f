package adapter

import (
	"context"
	"fmt"
	"log/slog"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

// ReplayConfig describes a recorded execution to feed through the hooks.
type ReplayConfig struct {
	Binary   m.Path
	Traces   []m.Path
	Format   TraceFormat
	LoadBase uint64
}

// ReplayHost replays captured execution traces against a binary. The binary
// is loaded at LoadBase and every traced address is dispatched in file order.
type ReplayHost struct {
	*hookRegistry

	config ReplayConfig
	images ImageAdapter
	traces TraceStore
}

// NewReplayHost creates a ReplayHost.
func NewReplayHost(config ReplayConfig, images ImageAdapter, traces TraceStore) *ReplayHost {
	return &ReplayHost{
		hookRegistry: newHookRegistry(),
		config:       config,
		images:       images,
		traces:       traces,
	}
}

// Run implements InstrumentationHost. The exit code of a replay is always 0.
func (h *ReplayHost) Run(ctx context.Context) (int, error) {
	image, err := h.images.Load(ctx, h.config.Binary, h.config.LoadBase)
	if err != nil {
		return 0, fmt.Errorf("load image: %w", err)
	}

	h.fireImageLoaded(ctx, image)

	for _, trace := range h.config.Traces {
		var events uint64

		err := h.traces.ReadTrace(ctx, trace, h.config.Format, func(address uint64) error {
			events++
			h.dispatch(address)

			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("replay %s: %w", trace, err)
		}

		slog.Debug("Replayed trace", "trace", trace, "events", events)
	}

	return 0, nil
}
