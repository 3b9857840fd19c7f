package model

// FunctionSummary is the coverage outcome of one function.
type FunctionSummary struct {
	Name                string `yaml:"name"`
	CoveredLines        uint32 `yaml:"covered_lines"`
	TotalLines          uint32 `yaml:"total_lines"`
	Rate                uint32 `yaml:"rate"`
	CoveredInstructions int    `yaml:"covered_instructions"`
	TotalInstructions   int    `yaml:"total_instructions"`
	ExecutedBlocks      int    `yaml:"executed_blocks"`
	TotalBlocks         int    `yaml:"total_blocks"`
}

// FileSummary aggregates the functions attributed to one source file.
type FileSummary struct {
	Path         Path              `yaml:"path"`
	Report       string            `yaml:"report,omitempty"`
	CoveredLines uint32            `yaml:"covered_lines"`
	TotalLines   uint32            `yaml:"total_lines"`
	Rate         uint32            `yaml:"rate"`
	Functions    []FunctionSummary `yaml:"functions"`
}

// Summary is the read-only digest of a finished run. It is what gets
// persisted next to the HTML report and what the view command displays.
type Summary struct {
	Target       string        `yaml:"target"`
	CoveredLines uint32        `yaml:"covered_lines"`
	TotalLines   uint32        `yaml:"total_lines"`
	Rate         uint32        `yaml:"rate"`
	Files        []FileSummary `yaml:"files"`
}

// FunctionCount returns the number of functions across all files.
func (s Summary) FunctionCount() int {
	count := 0
	for _, file := range s.Files {
		count += len(file.Functions)
	}

	return count
}
