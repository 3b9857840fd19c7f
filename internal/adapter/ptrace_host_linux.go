//go:build linux && (amd64 || arm64)

package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

// ctxCheckInterval is how many single steps run between cancellation checks.
const ctxCheckInterval = 1 << 14

// Run implements InstrumentationHost. All ptrace requests must come from the
// thread that started the tracee, so the goroutine is locked to its thread.
func (h *PtraceHost) Run(ctx context.Context) (int, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	program, err := exec.LookPath(h.config.Program)
	if err != nil {
		return 0, fmt.Errorf("find target %s: %w", h.config.Program, err)
	}

	program, err = filepath.Abs(program)
	if err != nil {
		return 0, fmt.Errorf("resolve target %s: %w", h.config.Program, err)
	}

	// #nosec G204 - the operator picks the program to trace
	cmd := exec.Command(program, h.config.Args...)
	cmd.Dir = h.config.Dir
	cmd.Stdin = h.config.Stdin
	cmd.Stdout = h.config.Stdout
	cmd.Stderr = h.config.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start target: %w", err)
	}

	defer func() {
		_ = cmd.Process.Release()
	}()

	pid := cmd.Process.Pid

	var status unix.WaitStatus
	if _, err := unix.Wait4(pid, &status, 0, nil); err != nil {
		return 0, fmt.Errorf("wait for exec stop: %w", err)
	}

	if code, done := exitCode(status); done {
		return code, nil
	}

	if err := unix.PtraceSetOptions(pid, unix.PTRACE_O_EXITKILL); err != nil {
		slog.Warn("Failed to set ptrace options", "pid", pid, "error", err)
	}

	base, err := mainImageBase(pid)
	if err != nil {
		kill(pid)
		return 0, err
	}

	image, err := h.images.Load(ctx, m.Path(program), base)
	if err != nil {
		kill(pid)
		return 0, fmt.Errorf("load image: %w", err)
	}

	slog.Info("Tracing target", "pid", pid, "program", program, "base", fmt.Sprintf("%#x", base))

	h.fireImageLoaded(ctx, image)

	return h.trace(ctx, pid)
}

func (h *PtraceHost) trace(ctx context.Context, pid int) (int, error) {
	var (
		status unix.WaitStatus
		signal int
		steps  uint64
	)

	for {
		if steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				kill(pid)
				return 0, fmt.Errorf("trace interrupted: %w", err)
			}
		}

		steps++

		pc, err := programCounter(pid)
		if err != nil {
			kill(pid)
			return 0, fmt.Errorf("read registers: %w", err)
		}

		h.dispatch(pc)

		if err := singleStep(pid, signal); err != nil {
			kill(pid)
			return 0, fmt.Errorf("single step: %w", err)
		}

		if _, err := unix.Wait4(pid, &status, 0, nil); err != nil {
			return 0, fmt.Errorf("wait for target: %w", err)
		}

		if code, done := exitCode(status); done {
			slog.Debug("Target finished", "pid", pid, "steps", steps, "exit_code", code)
			return code, nil
		}

		signal = 0
		if status.Stopped() && status.StopSignal() != unix.SIGTRAP {
			signal = int(status.StopSignal())
		}
	}
}

// singleStep resumes the tracee for one instruction, delivering signal.
func singleStep(pid, signal int) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_SINGLESTEP, uintptr(pid), 0, uintptr(signal), 0, 0)
	if errno != 0 {
		return errno
	}

	return nil
}

func exitCode(status unix.WaitStatus) (int, bool) {
	switch {
	case status.Exited():
		return status.ExitStatus(), true
	case status.Signaled():
		return 128 + int(status.Signal()), true
	}

	return 0, false
}

func kill(pid int) {
	_ = unix.Kill(pid, unix.SIGKILL)

	var status unix.WaitStatus
	_, _ = unix.Wait4(pid, &status, 0, nil)
}

// mainImageBase finds where the tracee's executable is mapped.
func mainImageBase(pid int) (uint64, error) {
	proc, err := procfs.NewProc(pid)
	if err != nil {
		return 0, fmt.Errorf("open proc %d: %w", pid, err)
	}

	exe, err := proc.Executable()
	if err != nil {
		return 0, fmt.Errorf("read executable of %d: %w", pid, err)
	}

	maps, err := proc.ProcMaps()
	if err != nil {
		return 0, fmt.Errorf("read mappings of %d: %w", pid, err)
	}

	for _, mapping := range maps {
		if mapping.Pathname == exe && mapping.Offset == 0 {
			return uint64(mapping.StartAddr), nil
		}
	}

	return 0, errors.New("executable mapping not found")
}
