package adapter

import (
	"io"
	"time"
)

// PtraceConfig describes the target launched by PtraceHost.
type PtraceConfig struct {
	Program string
	Args    []string
	Dir     string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer

	// Timeout kills the target when it runs longer. Zero disables it.
	Timeout time.Duration
}

// PtraceHost runs a program under ptrace, single-stepping its main thread.
// Only the main executable image is instrumented.
type PtraceHost struct {
	*hookRegistry

	config PtraceConfig
	images ImageAdapter
}

// NewPtraceHost creates a PtraceHost. On platforms without ptrace support
// Run fails with ErrHostUnsupported.
func NewPtraceHost(config PtraceConfig, images ImageAdapter) *PtraceHost {
	return &PtraceHost{
		hookRegistry: newHookRegistry(),
		config:       config,
		images:       images,
	}
}
