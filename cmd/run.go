package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"covtrace.dev/pkg/covtrace/internal/domain"
	m "covtrace.dev/pkg/covtrace/internal/model"
)

var runTraceOutFlag string
var runTimeoutFlag time.Duration

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run <program> [args...]",
		Short:   "Run a program and report its coverage",
		Long:    runLongDescription,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: bindCommandFlags(reportFlagBindings),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Run(cmd.Context(), domain.RunArgs{
				Program:  args[0],
				Args:     args[1:],
				Reports:  m.Path(viper.GetString(outputFlagName)),
				TraceOut: m.Path(viper.GetString(runTraceOutKey)),
				Options:  reportOptions(),
				Timeout:  viper.GetDuration(runTimeoutKey),
				Stdin:    os.Stdin,
				Stdout:   cmd.OutOrStdout(),
				Stderr:   cmd.ErrOrStderr(),
			})
		},
	}

	// flags after the program name belong to the program
	cmd.Flags().SetInterspersed(false)

	configureReportFlags(cmd)
	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&runTraceOutFlag, traceOutFlagName, "t", viper.GetString(runTraceOutKey), "also write the covered addresses to this trace file")
	bindFlagToConfig(cmd.Flags().Lookup(traceOutFlagName), runTraceOutKey)

	cmd.Flags().DurationVar(&runTimeoutFlag, timeoutFlagName, viper.GetDuration(runTimeoutKey), "kill the program after this long (0 disables)")
	bindFlagToConfig(cmd.Flags().Lookup(timeoutFlagName), runTimeoutKey)
}
