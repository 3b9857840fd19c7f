package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"covtrace.dev/pkg/covtrace/internal/adapter"
	"covtrace.dev/pkg/covtrace/internal/controller"
	m "covtrace.dev/pkg/covtrace/internal/model"
)

// ErrNoTraces is returned when an operation needs at least one trace file.
var ErrNoTraces = errors.New("no trace files given")

// RunArgs contains the arguments for tracing a live program.
type RunArgs struct {
	Program  string
	Args     []string
	Reports  m.Path
	TraceOut m.Path
	Options  adapter.ReportOptions
	Timeout  time.Duration

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// ReplayArgs contains the arguments for replaying recorded traces.
type ReplayArgs struct {
	Binary   m.Path
	Traces   []m.Path
	Format   adapter.TraceFormat
	LoadBase uint64
	Reports  m.Path
	Options  adapter.ReportOptions
}

// ListArgs contains the arguments for listing instrumentable functions.
type ListArgs struct {
	Binary   m.Path
	LoadBase uint64
}

// ViewArgs contains the arguments for showing a saved report.
type ViewArgs struct {
	Reports m.Path
}

// MergeArgs contains the arguments for merging trace files.
type MergeArgs struct {
	Traces []m.Path
	Format adapter.TraceFormat
	Output m.Path
}

// Workflow defines the operations exposed to the command line.
type Workflow interface {
	Run(ctx context.Context, args RunArgs) error
	Replay(ctx context.Context, args ReplayArgs) error
	List(ctx context.Context, args ListArgs) error
	View(ctx context.Context, args ViewArgs) error
	Merge(ctx context.Context, args MergeArgs) error
}

type workflow struct {
	adapter.ReportStore
	adapter.SourceFSAdapter
	controller.UI

	images adapter.ImageAdapter
	traces adapter.TraceStore
	hosts  HostFactory
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
func NewWorkflow(
	fsAdapter adapter.SourceFSAdapter,
	reportStore adapter.ReportStore,
	ui controller.UI,
	images adapter.ImageAdapter,
	traces adapter.TraceStore,
	hosts HostFactory,
) Workflow {
	return &workflow{
		SourceFSAdapter: fsAdapter,
		ReportStore:     reportStore,
		UI:              ui,
		images:          images,
		traces:          traces,
		hosts:           hosts,
	}
}

// sessionOutputs selects what a traced session produces.
type sessionOutputs struct {
	reports  m.Path
	traceOut m.Path
	options  adapter.ReportOptions
}

func (w *workflow) Run(ctx context.Context, args RunArgs) error {
	if err := w.Start(ctx, controller.WithRunMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	host := w.hosts.NewLiveHost(adapter.PtraceConfig{
		Program: args.Program,
		Args:    args.Args,
		Stdin:   args.Stdin,
		Stdout:  args.Stdout,
		Stderr:  args.Stderr,
		Timeout: args.Timeout,
	})

	return w.trace(ctx, host, filepath.Base(args.Program), sessionOutputs{
		reports:  args.Reports,
		traceOut: args.TraceOut,
		options:  args.Options,
	})
}

func (w *workflow) Replay(ctx context.Context, args ReplayArgs) error {
	if len(args.Traces) == 0 {
		return ErrNoTraces
	}

	if err := w.Start(ctx, controller.WithRunMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	host := w.hosts.NewReplayHost(adapter.ReplayConfig{
		Binary:   args.Binary,
		Traces:   args.Traces,
		Format:   args.Format,
		LoadBase: args.LoadBase,
	})

	return w.trace(ctx, host, filepath.Base(args.Binary.String()), sessionOutputs{
		reports: args.Reports,
		options: args.Options,
	})
}

// trace drives one session to completion and renders everything it produced.
func (w *workflow) trace(ctx context.Context, host adapter.InstrumentationHost, target string, out sessionOutputs) error {
	cov := m.NewCoverageModel(target)
	sources := NewSourceStore(w.SourceFSAdapter)

	session := NewSession(host, NewBuilder(sources), NewRecorder(cov), cov,
		WithImageLoadedHook(w.DisplayImageLoaded))

	result, err := session.Run(ctx)
	if err != nil {
		if !interrupted(err) {
			slog.Error("Failed to run target", "target", target, "error", err)
			return fmt.Errorf("run %s: %w", target, err)
		}

		// Coverage up to the interruption is kept and reported.
		slog.Warn("Target interrupted, reporting partial coverage", "target", target, "error", err)
		ctx = context.WithoutCancel(ctx)
	}

	slog.Info("Target finished", "target", target, "exit_code", result.ExitCode,
		"images", len(result.Images), "routines", result.Stats.Built)
	w.DisplayExecutionFinished(ctx, result.ExitCode)

	summary := Summarize(cov)

	if err := w.SaveReport(ctx, out.reports, cov, summary, out.options); err != nil {
		slog.Error("Failed to save report", "dir", out.reports, "error", err)
		return fmt.Errorf("save report: %w", err)
	}

	if !out.traceOut.IsEmpty() {
		addresses := session.CoveredAddresses()

		if err := w.traces.WriteTrace(ctx, out.traceOut, addresses); err != nil {
			slog.Error("Failed to write trace", "path", out.traceOut, "error", err)
			return fmt.Errorf("write trace: %w", err)
		}

		w.DisplayTraceWritten(ctx, out.traceOut, len(addresses))
	}

	logStaleSources(ctx, sources, w.SourceFSAdapter)

	if err := w.DisplaySummary(ctx, summary); err != nil {
		slog.Error("Failed to display summary", "error", err)
		return fmt.Errorf("display: %w", err)
	}

	w.DisplayReportLocation(ctx, out.reports)
	w.Wait(ctx)

	return nil
}

// interrupted reports whether a host stopped because its context ended.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (w *workflow) List(ctx context.Context, args ListArgs) error {
	if err := w.Start(ctx, controller.WithListMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	image, err := w.images.Load(ctx, args.Binary, args.LoadBase)
	if err != nil {
		slog.Error("Failed to load image", "binary", args.Binary, "error", err)
		return fmt.Errorf("load %s: %w", args.Binary, err)
	}

	cov := m.NewCoverageModel(filepath.Base(args.Binary.String()))
	stats := NewBuilder(NewSourceStore(w.SourceFSAdapter)).Build(ctx, cov, image)

	w.DisplayImageLoaded(ctx, image, stats)

	if err := w.DisplayFunctionList(ctx, Summarize(cov)); err != nil {
		slog.Error("Failed to display function list", "error", err)
		return fmt.Errorf("display: %w", err)
	}

	w.Wait(ctx)

	return nil
}

func (w *workflow) View(ctx context.Context, args ViewArgs) error {
	if err := w.Start(ctx, controller.WithViewMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	summary, err := w.LoadSummary(ctx, args.Reports)
	if err != nil {
		slog.Error("Failed to load summary", "dir", args.Reports, "error", err)
		return fmt.Errorf("load summary: %w", err)
	}

	if err := w.DisplaySummary(ctx, summary); err != nil {
		slog.Error("Failed to display summary", "error", err)
		return fmt.Errorf("display: %w", err)
	}

	w.DisplayReportLocation(ctx, args.Reports)
	w.Wait(ctx)

	return nil
}

// Merge unions the addresses of every trace into one deduplicated trace
// file. Addresses are written in ascending order.
func (w *workflow) Merge(ctx context.Context, args MergeArgs) error {
	if len(args.Traces) == 0 {
		return ErrNoTraces
	}

	seen := make(map[uint64]struct{})

	for _, trace := range args.Traces {
		err := w.traces.ReadTrace(ctx, trace, args.Format, func(address uint64) error {
			seen[address] = struct{}{}
			return nil
		})
		if err != nil {
			slog.Error("Failed to read trace", "path", trace, "error", err)
			return fmt.Errorf("read %s: %w", trace, err)
		}
	}

	addresses := make([]uint64, 0, len(seen))
	for address := range seen {
		addresses = append(addresses, address)
	}

	sort.Slice(addresses, func(i, j int) bool {
		return addresses[i] < addresses[j]
	})

	if err := w.traces.WriteTrace(ctx, args.Output, addresses); err != nil {
		slog.Error("Failed to write trace", "path", args.Output, "error", err)
		return fmt.Errorf("write trace: %w", err)
	}

	slog.Info("Merged traces", "traces", len(args.Traces), "addresses", len(addresses), "output", args.Output)
	w.DisplayTraceWritten(ctx, args.Output, len(addresses))

	return nil
}
