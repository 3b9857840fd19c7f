package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var reportDisassemblyFlag bool
var reportSummaryFlag bool
var reportWorkersFlag int
var traceFormatFlag string
var traceLoadBaseFlag string

// reportFlagBindings maps the report flags of run and replay to their keys.
var reportFlagBindings = map[string]string{
	disassemblyFlagName: reportDisassemblyKey,
	summaryFlagName:     reportSummaryKey,
	workersFlagName:     reportWorkersKey,
}

func configureReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&reportDisassemblyFlag, disassemblyFlagName, viper.GetBool(reportDisassemblyKey), "write a disassembly page per source file")
	cmd.Flags().BoolVar(&reportSummaryFlag, summaryFlagName, viper.GetBool(reportSummaryKey), "write summary.yaml next to the report")
	cmd.Flags().IntVarP(&reportWorkersFlag, workersFlagName, "w", viper.GetInt(reportWorkersKey), "number of report pages rendered in parallel")
}

func configureFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&traceFormatFlag, formatFlagName, "f", viper.GetString(traceFormatKey), "trace format: auto, text, sancov or spill")
}

func configureLoadBaseFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&traceLoadBaseFlag, loadBaseFlagName, viper.GetString(traceLoadBaseKey), "address the binary was loaded at, for position independent executables")
}

func mergeBindings(bindings ...map[string]string) map[string]string {
	merged := make(map[string]string)

	for _, b := range bindings {
		for flagName, key := range b {
			merged[flagName] = key
		}
	}

	return merged
}
