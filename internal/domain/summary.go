package domain

import (
	m "covtrace.dev/pkg/covtrace/internal/model"
)

// Summarize digests a finished model into per-file and per-function rates.
// Files and functions come out in lexical order.
func Summarize(cov *m.CoverageModel) m.Summary {
	summary := m.Summary{Target: cov.TargetName}

	for _, path := range cov.FilePaths() {
		file := cov.Files[path]
		fileSummary := m.FileSummary{Path: path}

		for _, line := range file.Lines {
			if !line.Executable {
				continue
			}

			fileSummary.TotalLines++

			if line.Covered {
				fileSummary.CoveredLines++
			}
		}

		fileSummary.Rate = m.CoverageRate(fileSummary.CoveredLines, fileSummary.TotalLines)

		for _, name := range file.FunctionNames() {
			fileSummary.Functions = append(fileSummary.Functions, summarizeFunction(file.Functions[name]))
		}

		summary.CoveredLines += fileSummary.CoveredLines
		summary.TotalLines += fileSummary.TotalLines
		summary.Files = append(summary.Files, fileSummary)
	}

	summary.Rate = m.CoverageRate(summary.CoveredLines, summary.TotalLines)

	return summary
}

func summarizeFunction(fn *m.FunctionCoverage) m.FunctionSummary {
	return m.FunctionSummary{
		Name:                fn.Name,
		CoveredLines:        fn.CoveredLineCount,
		TotalLines:          fn.TotalLineCount,
		Rate:                fn.Rate(),
		CoveredInstructions: fn.CoveredInstructionCount(),
		TotalInstructions:   len(fn.Instructions),
		ExecutedBlocks:      fn.ExecutedBlockCount(),
		TotalBlocks:         len(fn.BasicBlocks),
	}
}
