// Package cmd provides the root command and CLI setup for covtrace.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"covtrace.dev/pkg/covtrace/internal/adapter"
	"covtrace.dev/pkg/covtrace/internal/controller"
	"covtrace.dev/pkg/covtrace/internal/domain"
	m "covtrace.dev/pkg/covtrace/internal/model"
)

var fsAdapter adapter.SourceFSAdapter
var reportStore adapter.ReportStore
var imageAdapter adapter.ImageAdapter
var traceStore adapter.TraceStore
var hostFactory domain.HostFactory
var workflow domain.Workflow
var ui controller.UI

// reportsOutputDirFlag is a root-level flag shared by commands that read/write reports.
var reportsOutputDirFlag string

var logFileFlag string
var verboseFlag bool

func init() {
	configureRootFlags(rootCmd)

	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	fsAdapter = adapter.NewLocalSourceFSAdapter()
	reportStore = adapter.NewHTMLReportStore(fsAdapter)
	imageAdapter = adapter.NewELFImageAdapter()
	traceStore = adapter.NewLocalTraceStore()
	hostFactory = domain.NewHostFactory(imageAdapter, traceStore)
	workflow = domain.NewWorkflow(
		fsAdapter,
		reportStore,
		ui,
		imageAdapter,
		traceStore,
		hostFactory,
	)
}

const rootLongDescription = `covtrace measures line and instruction coverage of native programs
built with debug information. It runs a program under instrumentation, or
replays recorded execution traces, and maps every executed instruction back
to the source lines it came from.

Results are written as an HTML report with one page per source file and an
optional disassembly view per file.`

const runLongDescription = `Run a program under instrumentation and report its coverage.

Everything after the program name is passed to the program unchanged.
The program must carry DWARF line information and its sources must be
readable at the paths recorded in it.`

const replayLongDescription = `Replay recorded execution traces against a binary and report coverage.

Traces can be plain text (one address per line, 0x prefix for hex),
sanitizer coverage .sancov files or trace files written by covtrace.
Addresses are link-time addresses unless --load-base says otherwise.`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "covtrace",
		Short: "Instruction and line coverage for native programs",
		Long:  rootLongDescription,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))

			if configReadErr != nil {
				slog.Warn("Ignoring unreadable config file", "file", configFileName, "error", configReadErr)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

func newRootCmd() *cobra.Command {
	cmd := baseRootCmd()
	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&reportsOutputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for coverage reports",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().StringVar(&logFileFlag, logFileFlagName, viper.GetString(logFilenameKey), "path of the rotating log file")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(logFileFlagName), logFilenameKey)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "log at debug level")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// bindCommandFlags binds flags that several commands define under the same
// config key. It runs when the command executes, so the key follows the
// command actually invoked.
func bindCommandFlags(bindings map[string]string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		for flagName, key := range bindings {
			bindFlagToConfig(cmd.Flags().Lookup(flagName), key)
		}

		return nil
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

func parsePaths(args []string) []m.Path {
	paths := make([]m.Path, 0, len(args))
	for _, arg := range args {
		paths = append(paths, m.Path(arg))
	}

	return paths
}
