package adapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

// ErrHostUnsupported is returned by hosts that cannot run on this platform.
var ErrHostUnsupported = errors.New("instrumentation host not supported on this platform")

// ImageLoadedFunc is invoked once per loaded image, before any instruction of
// that image can reach a pre-execution callback.
type ImageLoadedFunc func(ctx context.Context, image *m.Image)

// PreExecutionFunc is invoked with the address of an instruction right before
// it executes.
type PreExecutionFunc func(address uint64)

// InstrumentationHost drives a target and exposes the hooks the coverage
// engine consumes.
type InstrumentationHost interface {
	// OnImageLoaded subscribes fn to image-load notifications.
	OnImageLoaded(fn ImageLoadedFunc)

	// RegisterPreExecutionCallback injects fn before the instruction at address.
	RegisterPreExecutionCallback(address uint64, fn PreExecutionFunc)

	// Run drives the target to completion and returns its exit code.
	Run(ctx context.Context) (int, error)
}

// hookRegistry is the bookkeeping shared by every host implementation.
type hookRegistry struct {
	mu          sync.RWMutex
	imageLoaded []ImageLoadedFunc
	handlers    map[uint64]PreExecutionFunc
	dispatched  atomic.Uint64
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{handlers: make(map[uint64]PreExecutionFunc)}
}

// OnImageLoaded implements InstrumentationHost.
func (r *hookRegistry) OnImageLoaded(fn ImageLoadedFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.imageLoaded = append(r.imageLoaded, fn)
}

// RegisterPreExecutionCallback implements InstrumentationHost.
func (r *hookRegistry) RegisterPreExecutionCallback(address uint64, fn PreExecutionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[address] = fn
}

func (r *hookRegistry) fireImageLoaded(ctx context.Context, image *m.Image) {
	r.mu.RLock()
	subscribers := append([]ImageLoadedFunc(nil), r.imageLoaded...)
	r.mu.RUnlock()

	for _, fn := range subscribers {
		fn(ctx, image)
	}
}

// dispatch runs the callback registered at address, if any. Hosts call it
// from a single goroutine.
func (r *hookRegistry) dispatch(address uint64) {
	r.mu.RLock()
	fn, ok := r.handlers[address]
	r.mu.RUnlock()

	if !ok {
		return
	}

	r.dispatched.Add(1)
	fn(address)
}

// Dispatched returns how many callbacks ran.
func (r *hookRegistry) Dispatched() uint64 {
	return r.dispatched.Load()
}
