package controller

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

const barWidth = 24

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	fileStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TUI implements UI with Bubble Tea for the result screens. Progress lines
// during a run are plain text so they interleave with the target's output.
type TUI struct {
	*SimpleUI

	output io.Writer
	mode   StartMode
}

// NewTUI creates a new TUI.
func NewTUI(cmd *cobra.Command) *TUI {
	return &TUI{SimpleUI: NewSimpleUI(cmd), output: cmd.OutOrStdout()}
}

// Start records the mode the screens are shown in.
func (t *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mode = newStartConfig(options).mode

	return nil
}

// DisplaySummary shows per-file and per-function coverage bars.
func (t *TUI) DisplaySummary(ctx context.Context, summary m.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// after a run the table stays in the scrollback next to the target output
	if t.mode == ModeRun {
		return t.SimpleUI.DisplaySummary(ctx, summary)
	}

	rows := make([]coverageRow, 0, len(summary.Files)+summary.FunctionCount())

	for _, file := range summary.Files {
		rows = append(rows, coverageRow{
			label: file.Path.String(), file: true,
			covered: file.CoveredLines, total: file.TotalLines, rate: file.Rate,
		})

		for _, fn := range file.Functions {
			rows = append(rows, coverageRow{
				label:   fn.Name,
				covered: fn.CoveredLines, total: fn.TotalLines, rate: fn.Rate,
			})
		}
	}

	footer := fmt.Sprintf("Total: %d%% (%d / %d lines) across %d file(s)",
		summary.Rate, summary.CoveredLines, summary.TotalLines, len(summary.Files))

	return t.show(newCoverageListModel("Coverage of "+summary.Target, rows, footer, true))
}

// DisplayFunctionList shows the functions a run would instrument.
func (t *TUI) DisplayFunctionList(ctx context.Context, summary m.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rows := make([]coverageRow, 0, len(summary.Files)+summary.FunctionCount())

	for _, file := range summary.Files {
		rows = append(rows, coverageRow{label: file.Path.String(), file: true, total: file.TotalLines})

		for _, fn := range file.Functions {
			rows = append(rows, coverageRow{
				label:  fn.Name,
				total:  fn.TotalLines,
				detail: fmt.Sprintf("%d lines, %d instructions, %d blocks", fn.TotalLines, fn.TotalInstructions, fn.TotalBlocks),
			})
		}
	}

	footer := fmt.Sprintf("Total: %d function(s) in %d file(s)", summary.FunctionCount(), len(summary.Files))

	return t.show(newCoverageListModel("Functions of "+summary.Target, rows, footer, false))
}

func (t *TUI) show(model coverageListModel) error {
	if f, ok := t.output.(*os.File); ok {
		width, height, err := term.GetSize(int(f.Fd()))
		if err == nil {
			model.height = height
			model.width = width
		}
	}

	// short lists are printed and left on screen
	if !model.needsPagination() {
		_, err := fmt.Fprint(t.output, model.View())
		return err
	}

	program := tea.NewProgram(model, tea.WithOutput(t.output), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return err
	}

	return nil
}

// coverageRow is one line of the coverage list.
type coverageRow struct {
	label   string
	file    bool
	covered uint32
	total   uint32
	rate    uint32
	detail  string
}

type coverageListModel struct {
	title    string
	rows     []coverageRow
	footer   string
	withBars bool
	bar      progress.Model
	height   int
	width    int
	offset   int
	quitting bool
}

func newCoverageListModel(title string, rows []coverageRow, footer string, withBars bool) coverageListModel {
	return coverageListModel{
		title:    title,
		rows:     rows,
		footer:   footer,
		withBars: withBars,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth), progress.WithoutPercentage()),
	}
}

func (cm coverageListModel) Init() tea.Cmd {
	return nil
}

func (cm coverageListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		cm.height = msg.Height
		cm.width = msg.Width

		return cm, nil

	case tea.KeyMsg:
		return cm.handleKeyPress(msg)
	}

	return cm, nil
}

//nolint:cyclop,exhaustive // Key handling requires multiple cases for UI navigation
func (cm coverageListModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		cm.quitting = true
		return cm, tea.Quit
	default:
	}

	switch msg.String() {
	case "q":
		cm.quitting = true
		return cm, tea.Quit

	case "down", "j":
		cm.offset = min(cm.offset+1, cm.maxOffset())

	case "up", "k":
		cm.offset = max(cm.offset-1, 0)

	case "g", "home":
		cm.offset = 0

	case "G", "end":
		cm.offset = cm.maxOffset()

	case "d", "pgdown":
		cm.offset = min(cm.offset+cm.itemsPerPage(), cm.maxOffset())

	case "u", "pgup":
		cm.offset = max(cm.offset-cm.itemsPerPage(), 0)
	}

	return cm, nil
}

// itemsPerPage calculates how many rows fit on screen. Title, footer and
// navigation help take 6 lines.
func (cm coverageListModel) itemsPerPage() int {
	if cm.height == 0 {
		return 10
	}

	available := cm.height - 6
	if available < 1 {
		return 1
	}

	return available
}

func (cm coverageListModel) maxOffset() int {
	return max(len(cm.rows)-cm.itemsPerPage(), 0)
}

func (cm coverageListModel) needsPagination() bool {
	return len(cm.rows) > cm.itemsPerPage() && cm.height > 0
}

func (cm coverageListModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(cm.title))
	b.WriteString("\n\n")

	if len(cm.rows) == 0 {
		b.WriteString("  No functions with line information\n")
		return b.String()
	}

	paginate := cm.needsPagination()
	rows := cm.rows
	start, end := 0, len(cm.rows)

	if paginate {
		start = min(cm.offset, len(cm.rows)-1)
		end = min(start+cm.itemsPerPage(), len(cm.rows))
		rows = cm.rows[start:end]
	}

	labelWidth := cm.labelWidth()

	for _, row := range rows {
		cm.renderRow(&b, row, labelWidth)
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render(cm.footer))
	b.WriteString("\n")

	if paginate {
		fmt.Fprintf(&b, "  Showing %d-%d of %d\n", start+1, end, len(cm.rows))
		b.WriteString(mutedStyle.Render("  ↑/k: up | ↓/j: down | g: top | G: bottom | q: quit"))
		b.WriteString("\n")
	}

	return b.String()
}

func (cm coverageListModel) labelWidth() int {
	width := 0
	for _, row := range cm.rows {
		indent := 4
		if row.file {
			indent = 2
		}

		width = max(width, len(row.label)+indent)
	}

	if cm.width > 0 {
		width = min(width, cm.width/2)
	}

	return width
}

func (cm coverageListModel) renderRow(b *strings.Builder, row coverageRow, labelWidth int) {
	label := "    " + row.label
	if row.file {
		label = "  " + row.label
	}

	if len(label) > labelWidth && labelWidth > 3 {
		label = label[:labelWidth-3] + "..."
	}

	padded := fmt.Sprintf("%-*s", labelWidth, label)
	if row.file {
		padded = fileStyle.Render(padded)
	}

	b.WriteString(padded)

	switch {
	case row.detail != "":
		b.WriteString("  ")
		b.WriteString(mutedStyle.Render(row.detail))
	case cm.withBars:
		fmt.Fprintf(b, "  %s %3d%% %s", cm.bar.ViewAs(float64(row.rate)/100), row.rate,
			mutedStyle.Render(fmt.Sprintf("(%d / %d)", row.covered, row.total)))
	default:
		fmt.Fprintf(b, "  %s", mutedStyle.Render(fmt.Sprintf("%d lines", row.total)))
	}

	b.WriteString("\n")
}
