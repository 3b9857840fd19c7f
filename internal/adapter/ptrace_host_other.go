//go:build !(linux && (amd64 || arm64))

package adapter

import (
	"context"
	"fmt"
	"runtime"
)

// Run implements InstrumentationHost.
func (h *PtraceHost) Run(_ context.Context) (int, error) {
	return 0, fmt.Errorf("%w: %s/%s", ErrHostUnsupported, runtime.GOOS, runtime.GOARCH)
}
