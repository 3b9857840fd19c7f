package controller

import (
	"context"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manyRows(n int) []coverageRow {
	rows := make([]coverageRow, n)
	for i := range rows {
		rows[i] = coverageRow{label: fmt.Sprintf("fn%03d", i), covered: 1, total: 2, rate: 50}
	}

	return rows
}

func TestTUI_PrintsShortListsDirectly(t *testing.T) {
	cmd, buf := newTestCmd()
	ui := NewTUI(cmd)
	ctx := context.Background()

	require.NoError(t, ui.Start(ctx, WithViewMode()))
	require.NoError(t, ui.DisplaySummary(ctx, sampleSummary()))

	got := buf.String()
	assert.Contains(t, got, "Coverage of prog")
	assert.Contains(t, got, "/src/main.c")
	assert.Contains(t, got, "helper")
	assert.Contains(t, got, "75%")
	assert.Contains(t, got, "Total: 67% (4 / 6 lines) across 2 file(s)")
}

func TestTUI_RunModeUsesTable(t *testing.T) {
	cmd, buf := newTestCmd()
	ui := NewTUI(cmd)
	ctx := context.Background()

	require.NoError(t, ui.Start(ctx, WithRunMode()))
	require.NoError(t, ui.DisplaySummary(ctx, sampleSummary()))

	assert.NotContains(t, buf.String(), "Coverage of prog")
	assert.Contains(t, buf.String(), "3 / 4")
}

func TestTUI_FunctionList(t *testing.T) {
	cmd, buf := newTestCmd()
	ui := NewTUI(cmd)
	ctx := context.Background()

	require.NoError(t, ui.Start(ctx, WithListMode()))
	require.NoError(t, ui.DisplayFunctionList(ctx, sampleSummary()))

	got := buf.String()
	assert.Contains(t, got, "Functions of prog")
	assert.Contains(t, got, "4 lines, 12 instructions, 3 blocks")
	assert.Contains(t, got, "Total: 3 function(s) in 2 file(s)")
}

func TestCoverageListModel_Pagination(t *testing.T) {
	model := newCoverageListModel("title", manyRows(30), "footer", true)

	assert.False(t, model.needsPagination(), "unknown height never paginates")

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 16})
	model = updated.(coverageListModel)

	assert.Equal(t, 10, model.itemsPerPage())
	assert.True(t, model.needsPagination())
	assert.Equal(t, 20, model.maxOffset())

	view := model.View()
	assert.Contains(t, view, "fn000")
	assert.Contains(t, view, "fn009")
	assert.NotContains(t, view, "fn010")
	assert.Contains(t, view, "Showing 1-10 of 30")
}

func TestCoverageListModel_Keys(t *testing.T) {
	model := newCoverageListModel("title", manyRows(30), "footer", false)
	model.height = 16

	press := func(key string) {
		var msg tea.KeyMsg
		switch key {
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
		}

		updated, _ := model.Update(msg)
		model = updated.(coverageListModel)
	}

	press("j")
	press("down")
	assert.Equal(t, 2, model.offset)

	press("k")
	assert.Equal(t, 1, model.offset)

	press("G")
	assert.Equal(t, 20, model.offset)

	press("j")
	assert.Equal(t, 20, model.offset)

	press("u")
	assert.Equal(t, 10, model.offset)

	press("g")
	assert.Equal(t, 0, model.offset)

	press("k")
	assert.Equal(t, 0, model.offset)

	press("d")
	assert.Equal(t, 10, model.offset)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.NotNil(t, cmd)
}

func TestCoverageListModel_Empty(t *testing.T) {
	model := newCoverageListModel("Coverage of prog", nil, "footer", true)

	assert.Contains(t, model.View(), "No functions with line information")
}
