package domain

import (
	"context"
	"sort"
	"sync"

	"covtrace.dev/pkg/covtrace/internal/adapter"
	m "covtrace.dev/pkg/covtrace/internal/model"
)

// RunResult is the outcome of a traced execution.
type RunResult struct {
	ExitCode int
	Images   []string
	Stats    m.BuildStats
}

// ImageLoadedHook observes each image once its build has finished.
type ImageLoadedHook func(ctx context.Context, image *m.Image, stats m.BuildStats)

// Session wires an instrumentation host to a builder and a recorder sharing
// one coverage model.
type Session interface {
	// Run drives the host to completion.
	Run(ctx context.Context) (RunResult, error)

	// CoveredAddresses returns the executed addresses relative to their
	// image's link-time layout, sorted and unique.
	CoveredAddresses() []uint64
}

type session struct {
	host     adapter.InstrumentationHost
	builder  Builder
	recorder Recorder
	cov      *m.CoverageModel
	hook     ImageLoadedHook

	mu     sync.Mutex
	images []*m.Image
	stats  m.BuildStats
}

// SessionOption configures a Session.
type SessionOption func(*session)

// WithImageLoadedHook registers a hook called after each image build.
func WithImageLoadedHook(hook ImageLoadedHook) SessionOption {
	return func(s *session) {
		s.hook = hook
	}
}

// NewSession subscribes to host so that every loaded image is built before
// its instructions get a pre-execution callback.
func NewSession(host adapter.InstrumentationHost, builder Builder, recorder Recorder, cov *m.CoverageModel, options ...SessionOption) Session {
	s := &session{
		host:     host,
		builder:  builder,
		recorder: recorder,
		cov:      cov,
	}

	for _, option := range options {
		option(s)
	}

	host.OnImageLoaded(s.onImageLoaded)

	return s
}

func (s *session) onImageLoaded(ctx context.Context, image *m.Image) {
	stats := s.builder.Build(ctx, s.cov, image)

	for _, section := range image.Sections {
		for _, routine := range section.Routines {
			for _, ins := range routine.Instructions {
				if _, tracked := s.cov.AddressToFunction[ins.Address]; tracked {
					s.host.RegisterPreExecutionCallback(ins.Address, s.recorder.Record)
				}
			}
		}
	}

	s.mu.Lock()
	s.images = append(s.images, image)
	s.stats.Add(stats)
	s.mu.Unlock()

	if s.hook != nil {
		s.hook(ctx, image, stats)
	}
}

func (s *session) Run(ctx context.Context) (RunResult, error) {
	code, err := s.host.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	result := RunResult{ExitCode: code, Stats: s.stats}
	for _, image := range s.images {
		result.Images = append(result.Images, image.Name)
	}

	return result, err
}

func (s *session) CoveredAddresses() []uint64 {
	s.mu.Lock()
	images := append([]*m.Image(nil), s.images...)
	s.mu.Unlock()

	seen := make(map[uint64]struct{})

	for _, image := range images {
		for _, section := range image.Sections {
			for _, routine := range section.Routines {
				for _, ins := range routine.Instructions {
					if s.covered(ins.Address) {
						seen[ins.Address-image.LoadBias] = struct{}{}
					}
				}
			}
		}
	}

	addresses := make([]uint64, 0, len(seen))
	for address := range seen {
		addresses = append(addresses, address)
	}

	sort.Slice(addresses, func(i, j int) bool {
		return addresses[i] < addresses[j]
	})

	return addresses
}

func (s *session) covered(address uint64) bool {
	name, ok := s.cov.AddressToFunction[address]
	if !ok {
		return false
	}

	_, fn, ok := s.cov.Function(name)

	return ok && fn.InstructionCovered[address]
}
