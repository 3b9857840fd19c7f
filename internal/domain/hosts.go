package domain

import (
	"covtrace.dev/pkg/covtrace/internal/adapter"
)

// HostFactory creates the instrumentation host for a workflow operation.
type HostFactory interface {
	NewLiveHost(config adapter.PtraceConfig) adapter.InstrumentationHost
	NewReplayHost(config adapter.ReplayConfig) adapter.InstrumentationHost
}

type hostFactory struct {
	images adapter.ImageAdapter
	traces adapter.TraceStore
}

// NewHostFactory creates hosts backed by the given image and trace adapters.
func NewHostFactory(images adapter.ImageAdapter, traces adapter.TraceStore) HostFactory {
	return &hostFactory{images: images, traces: traces}
}

func (f *hostFactory) NewLiveHost(config adapter.PtraceConfig) adapter.InstrumentationHost {
	return adapter.NewPtraceHost(config, f.images)
}

func (f *hostFactory) NewReplayHost(config adapter.ReplayConfig) adapter.InstrumentationHost {
	return adapter.NewReplayHost(config, f.images, f.traces)
}
