package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"covtrace.dev/pkg/covtrace/internal/domain"
	m "covtrace.dev/pkg/covtrace/internal/model"
)

// listCmd represents the list command.
var listCmd = newListCmd()

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list <binary>",
		Short:   "List the functions a run would instrument",
		Long:    "Build the coverage model of a binary without running it and list its functions with their line, instruction and basic block counts.",
		Args:    cobra.ExactArgs(1),
		PreRunE: bindCommandFlags(map[string]string{loadBaseFlagName: traceLoadBaseKey}),
		RunE: func(cmd *cobra.Command, args []string) error {
			loadBase, err := parseLoadBase(viper.GetString(traceLoadBaseKey))
			if err != nil {
				return err
			}

			return workflow.List(cmd.Context(), domain.ListArgs{
				Binary:   m.Path(args[0]),
				LoadBase: loadBase,
			})
		},
	}

	configureLoadBaseFlag(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(listCmd)
}
