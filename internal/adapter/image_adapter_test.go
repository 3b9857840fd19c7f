package adapter

import (
	"context"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

func TestLineTable_Resolve(t *testing.T) {
	table := newLineTable([]lineRow{
		{address: 0x120, file: "/src/b.c", line: 9},
		{address: 0x100, file: "/src/a.c", line: 2, column: 5},
		{address: 0x104, file: "/src/a.c", line: 3},
		{address: 0x110, endSequence: true},
		{address: 0x110, file: "/src/a.c", line: 7},
		{address: 0x118, endSequence: true},
		{address: 0x128, endSequence: true},
	})

	tests := []struct {
		name    string
		address uint64
		want    m.SourceLocation
	}{
		{name: "before first row", address: 0xff, want: m.SourceLocation{}},
		{name: "exact row", address: 0x100, want: m.SourceLocation{File: "/src/a.c", Line: 2, Column: 5}},
		{name: "inside row", address: 0x102, want: m.SourceLocation{File: "/src/a.c", Line: 2, Column: 5}},
		{name: "next row", address: 0x108, want: m.SourceLocation{File: "/src/a.c", Line: 3}},
		{name: "sequence restarting at end marker", address: 0x110, want: m.SourceLocation{File: "/src/a.c", Line: 7}},
		{name: "gap after end sequence", address: 0x11c, want: m.SourceLocation{}},
		{name: "other file", address: 0x124, want: m.SourceLocation{File: "/src/b.c", Line: 9}},
		{name: "past the end", address: 0x200, want: m.SourceLocation{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.ResolveSourceLocation(tt.address))
		})
	}
}

func TestLineTable_WithBias(t *testing.T) {
	table := newLineTable([]lineRow{
		{address: 0x100, file: "/src/a.c", line: 2},
		{address: 0x108, endSequence: true},
	}).withBias(0x5000)

	assert.Equal(t, uint32(2), table.ResolveSourceLocation(0x5104).Line)
	assert.False(t, table.ResolveSourceLocation(0x104).Valid())
}

func TestELFImageAdapter_LoadMissing(t *testing.T) {
	_, err := NewELFImageAdapter().Load(context.Background(), m.Path(t.TempDir()+"/missing"), 0)
	require.Error(t, err)
}

func TestELFImageAdapter_LoadNotELF(t *testing.T) {
	path := t.TempDir() + "/script.sh"
	writeTestFile(t, path, "#!/bin/sh\necho hi\n")

	_, err := NewELFImageAdapter().Load(context.Background(), m.Path(path), 0)
	require.Error(t, err)
}

func TestELFImageAdapter_LoadTestBinary(t *testing.T) {
	if testing.Short() {
		t.Skip("decodes the whole test binary")
	}

	if runtime.GOOS != "linux" || (runtime.GOARCH != "amd64" && runtime.GOARCH != "arm64") {
		t.Skip("needs a linux amd64 or arm64 ELF test binary")
	}

	exe, err := os.Executable()
	require.NoError(t, err)

	image, err := NewELFImageAdapter().Load(context.Background(), m.Path(exe), 0)
	require.NoError(t, err)
	require.True(t, image.HasLineInfo)
	require.NotEmpty(t, image.Sections)

	var routine *m.Routine

	for _, section := range image.Sections {
		for i := range section.Routines {
			if strings.HasSuffix(section.Routines[i].Name, "internal/adapter.(*ELFImageAdapter).Load") {
				routine = &section.Routines[i]
			}
		}
	}

	require.NotNil(t, routine, "Load not found in test binary")
	require.NotEmpty(t, routine.Instructions)
	assert.Equal(t, routine.Address, routine.Instructions[0].Address)

	last := routine.Instructions[len(routine.Instructions)-1]
	assert.LessOrEqual(t, last.Address+uint64(last.Size), routine.Address+routine.Size)

	loc := image.ResolveSourceLocation(routine.Address)
	require.True(t, loc.Valid())
	assert.True(t, strings.HasSuffix(loc.File.String(), "image_adapter.go"), loc.File.String())
}
