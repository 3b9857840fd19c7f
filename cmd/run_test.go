package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"covtrace.dev/pkg/covtrace/internal/adapter"
	"covtrace.dev/pkg/covtrace/internal/domain"
	m "covtrace.dev/pkg/covtrace/internal/model"
)

func TestRunCmd_Defaults(t *testing.T) {
	cmd, mockWorkflow := newMockedRoot(t, newRunCmd())

	mockWorkflow.On("Run", mock.Anything, mock.MatchedBy(func(args domain.RunArgs) bool {
		return args.Program == "./prog" &&
			len(args.Args) == 0 &&
			args.Reports == m.Path("report") &&
			args.TraceOut == "" &&
			args.Timeout == 0 &&
			args.Options == adapter.ReportOptions{Disassembly: true, Summary: true, Workers: 4} &&
			args.Stdout != nil && args.Stderr != nil
	})).Return(nil)

	cmd.SetArgs(withTestLog(t, "run", "./prog"))
	require.NoError(t, cmd.Execute())
}

func TestRunCmd_ProgramArgumentsAreNotParsed(t *testing.T) {
	cmd, mockWorkflow := newMockedRoot(t, newRunCmd())

	var got domain.RunArgs

	mockWorkflow.On("Run", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(1).(domain.RunArgs)
	}).Return(nil)

	cmd.SetArgs(withTestLog(t, "run", "./prog", "-x", "--workers", "9", "input.txt"))
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "./prog", got.Program)
	assert.Equal(t, []string{"-x", "--workers", "9", "input.txt"}, got.Args)
	assert.Equal(t, 4, got.Options.Workers)
}

func TestRunCmd_Flags(t *testing.T) {
	cmd, mockWorkflow := newMockedRoot(t, newRunCmd())

	mockWorkflow.On("Run", mock.Anything, mock.MatchedBy(func(args domain.RunArgs) bool {
		return args.Program == "/bin/true" &&
			args.Reports == m.Path("out") &&
			args.TraceOut == m.Path("run.trace") &&
			args.Timeout == 5*time.Second &&
			args.Options == adapter.ReportOptions{Disassembly: false, Summary: true, Workers: 2}
	})).Return(nil)

	cmd.SetArgs(withTestLog(t,
		"run", "-o", "out", "--trace-out", "run.trace", "--timeout", "5s",
		"--workers", "2", "--disassembly=false", "/bin/true",
	))
	require.NoError(t, cmd.Execute())
}

func TestRunCmd_RequiresProgram(t *testing.T) {
	cmd, _ := newMockedRoot(t, newRunCmd())

	cmd.SetArgs(withTestLog(t, "run"))
	require.Error(t, cmd.Execute())
}
