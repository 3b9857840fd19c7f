package domain

import (
	"context"
	"log/slog"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

// Builder derives the static coverage model of an image from its line table.
type Builder interface {
	// Build adds every routine of image that has source information to cov.
	// Routines without it are left out entirely. Building a routine name a
	// second time replaces the earlier result.
	Build(ctx context.Context, cov *m.CoverageModel, image *m.Image) m.BuildStats
}

type builder struct {
	sources SourceStore
}

// NewBuilder creates a Builder loading source text through sources.
func NewBuilder(sources SourceStore) Builder {
	return &builder{sources: sources}
}

func (b *builder) Build(ctx context.Context, cov *m.CoverageModel, image *m.Image) m.BuildStats {
	var stats m.BuildStats

	stats.Routines = image.RoutineCount()

	if !image.HasLineInfo {
		stats.SkippedNoDebugInfo = stats.Routines
		slog.Info("Skipping image without line information", "image", image.Name, "routines", stats.Routines)

		return stats
	}

	for _, section := range image.Sections {
		for i := range section.Routines {
			b.buildRoutine(ctx, cov, image, &section.Routines[i], &stats)
		}
	}

	slog.Info("Built coverage model", "image", image.Name,
		"routines", stats.Routines, "built", stats.Built,
		"skipped_no_debug_info", stats.SkippedNoDebugInfo,
		"skipped_missing_source", stats.SkippedMissingSource,
		"instructions", stats.Instructions)

	return stats
}

func (b *builder) buildRoutine(ctx context.Context, cov *m.CoverageModel, image *m.Image, routine *m.Routine, stats *m.BuildStats) {
	entry := image.ResolveSourceLocation(routine.Address)
	if entry.File.IsEmpty() {
		stats.SkippedNoDebugInfo++
		return
	}

	file := b.fileCoverage(ctx, cov, entry.File)
	if file == nil {
		stats.SkippedMissingSource++
		slog.Debug("Skipping routine with missing source", "routine", routine.Name, "file", entry.File)

		return
	}

	discard(cov, routine.Name)

	fn := m.NewFunctionCoverage(routine.Name, file.Path)

	var block []int

	for _, ins := range routine.Instructions {
		boundary := m.BoundaryKindOf(ins.Flow)

		if idx, ok := b.addInstruction(ctx, cov, image, fn, ins, boundary); ok {
			block = append(block, idx)
		}

		if boundary != m.BoundaryNone {
			fn.AppendBlock(block)
			block = nil
		}
	}

	fn.AppendBlock(block)
	fn.Seal()

	file.Functions[routine.Name] = fn
	cov.FunctionToFile[routine.Name] = file.Path

	stats.Built++
	stats.Instructions += len(fn.Instructions)
}

// addInstruction records one instruction against the line it resolves to.
// Instructions without a location, or pointing outside their file, are left
// out so every recorded address maps to an existing line.
func (b *builder) addInstruction(ctx context.Context, cov *m.CoverageModel, image *m.Image, fn *m.FunctionCoverage, ins m.Instruction, boundary m.BoundaryKind) (int, bool) {
	loc := image.ResolveSourceLocation(ins.Address)
	if !loc.Valid() {
		return 0, false
	}

	file := b.fileCoverage(ctx, cov, loc.File)
	if file == nil || !file.HasLine(loc.Line) {
		return 0, false
	}

	cov.AddressToFunction[ins.Address] = fn.Name
	file.MarkExecutable(loc.Line)

	return fn.AddInstruction(m.InstructionRecord{
		Address:     ins.Address,
		Size:        ins.Size,
		Disassembly: ins.Disassembly,
		Boundary:    boundary,
		Line:        loc.Ref(),
	}), true
}

// fileCoverage returns the model entry for path, loading the file the first
// time it is seen. It returns nil when the source cannot be loaded.
func (b *builder) fileCoverage(ctx context.Context, cov *m.CoverageModel, path m.Path) *m.FileCoverage {
	if file, ok := cov.Files[path]; ok {
		return file
	}

	lines, err := b.sources.Load(ctx, path)
	if err != nil {
		return nil
	}

	file := m.NewFileCoverage(path, lines)
	cov.Files[path] = file

	return file
}

// discard drops an earlier build of name so a rebuild starts clean. Lines
// that only the old build mapped go back to non-executable.
func discard(cov *m.CoverageModel, name string) {
	path, ok := cov.FunctionToFile[name]
	if !ok {
		return
	}

	delete(cov.FunctionToFile, name)

	file, ok := cov.Files[path]
	if !ok {
		return
	}

	old, ok := file.Functions[name]
	if !ok {
		return
	}

	delete(file.Functions, name)

	for address := range old.AddressToLine {
		if cov.AddressToFunction[address] == name {
			delete(cov.AddressToFunction, address)
		}
	}

	orphaned := make(map[m.LineRef]struct{}, len(old.LineCovered))
	for ref := range old.LineCovered {
		orphaned[ref] = struct{}{}
	}

	for _, other := range cov.Files {
		for _, fn := range other.Functions {
			for ref := range fn.LineCovered {
				delete(orphaned, ref)
			}
		}
	}

	for ref := range orphaned {
		if owner, ok := cov.Files[ref.File]; ok {
			owner.ClearLine(ref.Line)
		}
	}
}
