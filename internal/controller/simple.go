package controller

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

// SimpleUI implements UI using cobra Command's output.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, _ ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// DisplayImageLoaded reports how much of an image made it into the model.
func (s *SimpleUI) DisplayImageLoaded(ctx context.Context, image *m.Image, stats m.BuildStats) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("Loaded %s: %d/%d routines instrumented, %d instructions",
		image.Name, stats.Built, stats.Routines, stats.Instructions)

	if stats.SkippedNoDebugInfo > 0 || stats.SkippedMissingSource > 0 {
		s.printf(" (skipped %d without line info, %d without source)",
			stats.SkippedNoDebugInfo, stats.SkippedMissingSource)
	}

	s.printf("\n")
}

// DisplayExecutionFinished prints the exit code of the target.
func (s *SimpleUI) DisplayExecutionFinished(ctx context.Context, exitCode int) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("Target exited with code %d\n", exitCode)
}

// DisplaySummary prints the per-function coverage table.
func (s *SimpleUI) DisplaySummary(ctx context.Context, summary m.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("\n%s", renderSummaryTable(summary))

	return nil
}

// DisplayFunctionList prints what a run would instrument.
func (s *SimpleUI) DisplayFunctionList(ctx context.Context, summary m.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("\n%s", renderFunctionTable(summary))

	return nil
}

// DisplayReportLocation prints where the HTML report went.
func (s *SimpleUI) DisplayReportLocation(ctx context.Context, dir m.Path) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("Report: %s\n", filepath.Join(string(dir), "index.html"))
}

// DisplayTraceWritten prints where a trace file went.
func (s *SimpleUI) DisplayTraceWritten(ctx context.Context, path m.Path, addresses int) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("Trace: %d addresses written to %s\n", addresses, path)
}

func renderSummaryTable(summary m.Summary) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"File", "Function", "Coverage", "Lines"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})

	for _, file := range summary.Files {
		table.Append([]string{
			file.Path.String(), "",
			fmt.Sprintf("%d%%", file.Rate),
			fmt.Sprintf("%d / %d", file.CoveredLines, file.TotalLines),
		})

		for _, fn := range file.Functions {
			table.Append([]string{
				"", fn.Name,
				fmt.Sprintf("%d%%", fn.Rate),
				fmt.Sprintf("%d / %d", fn.CoveredLines, fn.TotalLines),
			})
		}
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Files %d", len(summary.Files)),
		fmt.Sprintf("Functions %d", summary.FunctionCount()),
		fmt.Sprintf("%d%%", summary.Rate),
		fmt.Sprintf("%d / %d", summary.CoveredLines, summary.TotalLines),
	})

	table.Render()

	return tableBuffer.String()
}

func renderFunctionTable(summary m.Summary) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Function", "File", "Lines", "Instructions", "Blocks"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})

	instructions, blocks := 0, 0

	for _, file := range summary.Files {
		for _, fn := range file.Functions {
			table.Append([]string{
				fn.Name, file.Path.String(),
				fmt.Sprintf("%d", fn.TotalLines),
				fmt.Sprintf("%d", fn.TotalInstructions),
				fmt.Sprintf("%d", fn.TotalBlocks),
			})

			instructions += fn.TotalInstructions
			blocks += fn.TotalBlocks
		}
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Functions %d", summary.FunctionCount()),
		fmt.Sprintf("Files %d", len(summary.Files)),
		fmt.Sprintf("%d", summary.TotalLines),
		fmt.Sprintf("%d", instructions),
		fmt.Sprintf("%d", blocks),
	})

	table.Render()

	return tableBuffer.String()
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
