package cmd

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covtrace.dev/pkg/covtrace/internal/adapter"
)

func TestConfigConstants(t *testing.T) {
	assert.Equal(t, "covtrace", configBaseName)
	assert.Equal(t, "covtrace.yaml", configFileName)
	assert.Equal(t, ".", configFolderPath)
	assert.Equal(t, "output", outputFlagName)
	assert.Equal(t, "report", defaultReportsDir)
	assert.Equal(t, "report.workers", reportWorkersKey)
	assert.Equal(t, "trace.load_base", traceLoadBaseKey)
	assert.Equal(t, ".covtrace.log", defaultLogFilename)
	assert.Equal(t, "COVTRACE", envPrefix)
}

func TestConfigVersionConstants(t *testing.T) {
	assert.Equal(t, "version", configVersionKey)
	assert.Equal(t, 1, currentConfigVersion)
}

func TestParseLoadBase(t *testing.T) {
	tests := []struct {
		value   string
		want    uint64
		wantErr bool
	}{
		{value: "", want: 0},
		{value: "0", want: 0},
		{value: "4096", want: 4096},
		{value: "0x400000", want: 0x400000},
		{value: " 0X10 ", want: 16},
		{value: "0o17", want: 15},
		{value: "-1", wantErr: true},
		{value: "base", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseLoadBase(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseSlogLevel("DEBUG", slog.LevelInfo))
	assert.Equal(t, slog.LevelWarn, parseSlogLevel("warning", slog.LevelInfo))
	assert.Equal(t, slog.Level(-4), parseSlogLevel("-4", slog.LevelInfo))
	assert.Equal(t, slog.LevelInfo, parseSlogLevel("", slog.LevelInfo))
	assert.Equal(t, slog.LevelError, parseSlogLevel("nonsense", slog.LevelError))
}

func TestReportOptionsDefaults(t *testing.T) {
	assert.Equal(t, adapter.ReportOptions{Disassembly: true, Summary: true, Workers: 4}, reportOptions())

	format, err := traceFormat()
	require.NoError(t, err)
	assert.Equal(t, adapter.TraceFormatAuto, format)
}
