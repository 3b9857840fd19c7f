package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"covtrace.dev/pkg/covtrace/internal/domain"
	m "covtrace.dev/pkg/covtrace/internal/model"
)

// replayCmd represents the replay command.
var replayCmd = newReplayCmd()

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <binary> <trace> [traces...]",
		Short: "Report coverage from recorded execution traces",
		Long:  replayLongDescription,
		Args:  cobra.MinimumNArgs(2),
		PreRunE: bindCommandFlags(mergeBindings(reportFlagBindings, map[string]string{
			formatFlagName:   traceFormatKey,
			loadBaseFlagName: traceLoadBaseKey,
		})),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := traceFormat()
			if err != nil {
				return err
			}

			loadBase, err := parseLoadBase(viper.GetString(traceLoadBaseKey))
			if err != nil {
				return err
			}

			return workflow.Replay(cmd.Context(), domain.ReplayArgs{
				Binary:   m.Path(args[0]),
				Traces:   parsePaths(args[1:]),
				Format:   format,
				LoadBase: loadBase,
				Reports:  m.Path(viper.GetString(outputFlagName)),
				Options:  reportOptions(),
			})
		},
	}

	configureReportFlags(cmd)
	configureFormatFlag(cmd)
	configureLoadBaseFlag(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
