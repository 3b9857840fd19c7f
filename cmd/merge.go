package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"covtrace.dev/pkg/covtrace/internal/domain"
	m "covtrace.dev/pkg/covtrace/internal/model"
)

var mergeIntoFlag string

// mergeCmd represents the merge command.
var mergeCmd = newMergeCmd()

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "merge <trace> [traces...]",
		Short:   "Merge execution traces into a single trace file",
		Long:    "Union the addresses of several traces, in any supported format, into one deduplicated covtrace trace file.",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: bindCommandFlags(map[string]string{formatFlagName: traceFormatKey}),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := traceFormat()
			if err != nil {
				return err
			}

			return workflow.Merge(cmd.Context(), domain.MergeArgs{
				Traces: parsePaths(args),
				Format: format,
				Output: m.Path(viper.GetString(mergeOutputKey)),
			})
		},
	}

	configureFormatFlag(cmd)

	cmd.Flags().StringVarP(&mergeIntoFlag, intoFlagName, "i", viper.GetString(mergeOutputKey), "trace file to write")
	bindFlagToConfig(cmd.Flags().Lookup(intoFlagName), mergeOutputKey)

	return cmd
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
