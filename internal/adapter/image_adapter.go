package adapter

import (
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/ianlancetaylor/demangle"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

// ErrNoLineInfo marks an image that carries no DWARF line table.
var ErrNoLineInfo = errors.New("image has no line information")

// ImageAdapter turns a binary on disk into the section/routine/instruction
// view consumed by the model builder.
type ImageAdapter interface {
	// Load parses the image at path. loadBase is the runtime address of the
	// image's first loadable segment, 0 meaning "as linked".
	Load(ctx context.Context, path m.Path, loadBase uint64) (*m.Image, error)
}

// ELFImageAdapter implements ImageAdapter for ELF binaries with DWARF.
type ELFImageAdapter struct{}

// NewELFImageAdapter creates a new ELFImageAdapter.
func NewELFImageAdapter() *ELFImageAdapter {
	return &ELFImageAdapter{}
}

type symbolRange struct {
	name  string
	value uint64
	size  uint64
}

// Load implements ImageAdapter.
func (a *ELFImageAdapter) Load(ctx context.Context, path m.Path, loadBase uint64) (*m.Image, error) {
	file, err := elf.Open(string(path))
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder, err := decoderFor(file.Machine)
	if err != nil {
		return nil, err
	}

	bias := loadBias(file, loadBase)

	image := &m.Image{
		Name:     filepath.Base(string(path)),
		Path:     path,
		LoadBias: bias,
	}

	table, err := imageLineTable(file)
	if err != nil {
		slog.Warn("Image has no usable line table", "image", path, "error", err)
	} else {
		image.HasLineInfo = true
		image.Resolver = table.withBias(bias)
	}

	symbols := functionSymbols(file)

	for idx, section := range file.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ranges, ok := symbols[idx]
		if !ok || section.Type == elf.SHT_NOBITS {
			continue
		}

		code, err := section.Data()
		if err != nil {
			return nil, fmt.Errorf("read section %s: %w", section.Name, err)
		}

		image.Sections = append(image.Sections, m.Section{
			Name:     section.Name,
			Routines: decodeRoutines(decoder, section, code, ranges, bias),
		})
	}

	slog.Debug("Loaded image", "image", path, "machine", file.Machine.String(),
		"bias", fmt.Sprintf("%#x", bias), "sections", len(image.Sections),
		"routines", image.RoutineCount(), "line_info", image.HasLineInfo)

	return image, nil
}

func imageLineTable(file *elf.File) (*lineTable, error) {
	data, err := file.DWARF()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoLineInfo, err)
	}

	table, err := readLineTable(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoLineInfo, err)
	}

	if table.empty() {
		return nil, ErrNoLineInfo
	}

	return table, nil
}

// loadBias is the difference between runtime and link-time addresses. Only
// position independent images move.
func loadBias(file *elf.File, loadBase uint64) uint64 {
	if file.Type != elf.ET_DYN || loadBase == 0 {
		return 0
	}

	first := uint64(0)
	found := false

	for _, prog := range file.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		vaddr := prog.Vaddr
		if prog.Align > 1 {
			vaddr &^= prog.Align - 1
		}

		if !found || vaddr < first {
			first = vaddr
			found = true
		}
	}

	if loadBase < first {
		return 0
	}

	return loadBase - first
}

// functionSymbols groups sized function symbols by the executable section
// that holds them.
func functionSymbols(file *elf.File) map[int][]symbolRange {
	syms, err := file.Symbols()
	if err != nil || len(syms) == 0 {
		syms, err = file.DynamicSymbols()
		if err != nil {
			slog.Warn("Image has no symbol table", "error", err)
			return nil
		}
	}

	bySection := make(map[int][]symbolRange)

	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Size == 0 {
			continue
		}

		idx := int(sym.Section)
		if sym.Section >= elf.SHN_LORESERVE || idx >= len(file.Sections) {
			continue
		}

		if file.Sections[idx].Flags&elf.SHF_EXECINSTR == 0 {
			continue
		}

		bySection[idx] = append(bySection[idx], symbolRange{
			name:  demangle.Filter(sym.Name),
			value: sym.Value,
			size:  sym.Size,
		})
	}

	for idx, ranges := range bySection {
		sort.Slice(ranges, func(i, j int) bool {
			if ranges[i].value != ranges[j].value {
				return ranges[i].value < ranges[j].value
			}

			return ranges[i].name < ranges[j].name
		})

		// aliases share an address, keep the first name
		deduped := ranges[:0]
		for _, r := range ranges {
			if len(deduped) > 0 && deduped[len(deduped)-1].value == r.value {
				continue
			}

			deduped = append(deduped, r)
		}

		bySection[idx] = deduped
	}

	return bySection
}

func decodeRoutines(dec instructionDecoder, section *elf.Section, code []byte, ranges []symbolRange, bias uint64) []m.Routine {
	routines := make([]m.Routine, 0, len(ranges))

	for _, r := range ranges {
		if r.value < section.Addr {
			continue
		}

		start := r.value - section.Addr
		end := start + r.size

		if end > uint64(len(code)) || end < start {
			slog.Debug("Skipping symbol outside its section", "symbol", r.name, "section", section.Name)
			continue
		}

		routines = append(routines, m.Routine{
			Name:         r.name,
			Address:      r.value + bias,
			Size:         r.size,
			Instructions: decodeRoutine(dec, code[start:end], r.value+bias),
		})
	}

	return routines
}
