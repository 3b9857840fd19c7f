package controller

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	return cmd, &buf
}

func sampleSummary() m.Summary {
	return m.Summary{
		Target:       "prog",
		CoveredLines: 4,
		TotalLines:   6,
		Rate:         67,
		Files: []m.FileSummary{
			{
				Path: "/src/main.c", CoveredLines: 3, TotalLines: 4, Rate: 75,
				Functions: []m.FunctionSummary{
					{Name: "main", CoveredLines: 3, TotalLines: 4, Rate: 75, TotalInstructions: 12, TotalBlocks: 3},
				},
			},
			{
				Path: "/src/util.c", CoveredLines: 1, TotalLines: 2, Rate: 50,
				Functions: []m.FunctionSummary{
					{Name: "helper", CoveredLines: 1, TotalLines: 2, Rate: 50, TotalInstructions: 5, TotalBlocks: 2},
					{Name: "unused", TotalLines: 0, Rate: 0},
				},
			},
		},
	}
}

func TestSimpleUI_DisplaySummary(t *testing.T) {
	cmd, buf := newTestCmd()
	ui := NewSimpleUI(cmd)

	require.NoError(t, ui.DisplaySummary(context.Background(), sampleSummary()))

	got := buf.String()
	for _, want := range []string{"/src/main.c", "/src/util.c", "main", "helper", "unused", "75%", "3 / 4", "0 / 0", "67%", "4 / 6"} {
		assert.Contains(t, got, want)
	}

	assert.Less(t, strings.Index(got, "/src/main.c"), strings.Index(got, "/src/util.c"))
}

func TestSimpleUI_DisplayFunctionList(t *testing.T) {
	cmd, buf := newTestCmd()
	ui := NewSimpleUI(cmd)

	require.NoError(t, ui.DisplayFunctionList(context.Background(), sampleSummary()))

	got := buf.String()
	for _, want := range []string{"main", "helper", "unused", "12", "17", "5"} {
		assert.Contains(t, got, want)
	}
}

func TestSimpleUI_ProgressMessages(t *testing.T) {
	cmd, buf := newTestCmd()
	ui := NewSimpleUI(cmd)
	ctx := context.Background()

	require.NoError(t, ui.Start(ctx, WithRunMode()))

	ui.DisplayImageLoaded(ctx, &m.Image{Name: "prog"}, m.BuildStats{Routines: 10, Built: 7, SkippedNoDebugInfo: 2, SkippedMissingSource: 1, Instructions: 140})
	ui.DisplayExecutionFinished(ctx, 3)
	ui.DisplayReportLocation(ctx, "out")
	ui.DisplayTraceWritten(ctx, "run.trace", 42)
	ui.Wait(ctx)
	ui.Close(ctx)

	got := buf.String()
	assert.Contains(t, got, "Loaded prog: 7/10 routines instrumented, 140 instructions")
	assert.Contains(t, got, "skipped 2 without line info, 1 without source")
	assert.Contains(t, got, "Target exited with code 3")
	assert.Contains(t, got, "out/index.html")
	assert.Contains(t, got, "42 addresses written to run.trace")
}

func TestSimpleUI_CancelledContext(t *testing.T) {
	cmd, buf := newTestCmd()
	ui := NewSimpleUI(cmd)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, ui.Start(ctx))
	require.Error(t, ui.DisplaySummary(ctx, sampleSummary()))
	ui.DisplayExecutionFinished(ctx, 1)

	assert.Empty(t, buf.String())
}

func TestNewUI(t *testing.T) {
	cmd, _ := newTestCmd()

	_, simple := NewUI(cmd, false).(*SimpleUI)
	assert.True(t, simple)

	_, tui := NewUI(cmd, true).(*TUI)
	assert.True(t, tui)

	assert.False(t, IsTTY(&bytes.Buffer{}))
}
