package cmd

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"covtrace.dev/pkg/covtrace/internal/domain"
	m "covtrace.dev/pkg/covtrace/internal/model"
)

func TestListCmd(t *testing.T) {
	cmd, mockWorkflow := newMockedRoot(t, newListCmd())

	mockWorkflow.On("List", mock.Anything, domain.ListArgs{Binary: m.Path("./prog"), LoadBase: 4096}).Return(nil)

	cmd.SetArgs(withTestLog(t, "list", "--load-base", "4096", "./prog"))
	require.NoError(t, cmd.Execute())
}

func TestListCmd_RequiresExactlyOneBinary(t *testing.T) {
	for _, args := range [][]string{{"list"}, {"list", "a", "b"}} {
		cmd, _ := newMockedRoot(t, newListCmd())

		cmd.SetArgs(withTestLog(t, args...))
		require.Error(t, cmd.Execute())
	}
}
