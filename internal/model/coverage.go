// Package model defines the data structures for instruction and line coverage.
package model

import (
	"math"
	"sort"
	"sync"
)

// BoundaryKind tells whether an instruction ends a basic block.
type BoundaryKind int

const (
	// BoundaryNone falls through into the next instruction of the block.
	BoundaryNone BoundaryKind = iota
	// BoundaryBranchOrCall ends a block with a jump or a call.
	BoundaryBranchOrCall
	// BoundaryReturn ends a block with a return.
	BoundaryReturn
)

func (b BoundaryKind) String() string {
	switch b {
	case BoundaryBranchOrCall:
		return "branch-or-call"
	case BoundaryReturn:
		return "return"
	case BoundaryNone:
		return "none"
	}

	return "unknown"
}

// BoundaryKindOf classifies a host control-flow category.
func BoundaryKindOf(flow ControlFlow) BoundaryKind {
	switch flow {
	case FlowCondBranch, FlowUncondBranch, FlowCall:
		return BoundaryBranchOrCall
	case FlowReturn:
		return BoundaryReturn
	case FlowOther:
		return BoundaryNone
	}

	return BoundaryNone
}

// LineRecord is one line of a source file.
type LineRecord struct {
	LineNumber uint32
	Text       string
	Executable bool // some instruction maps here
	Covered    bool // some mapped instruction executed; never reset
}

// InstructionRecord is one instruction of a function.
type InstructionRecord struct {
	Address     uint64
	Size        uint32
	Disassembly string
	Boundary    BoundaryKind
	Line        LineRef
}

// BasicBlock is a run of instructions that ends at a boundary instruction.
// Instructions holds indices into FunctionCoverage.Instructions.
type BasicBlock struct {
	StartAddress uint64
	Instructions []int
	Executed     bool
}

// FunctionCoverage holds the coverage state of one routine.
type FunctionCoverage struct {
	Name               string
	File               Path
	Instructions       []InstructionRecord
	AddressToLine      map[uint64]LineRef
	LineCovered        map[LineRef]bool
	InstructionCovered map[uint64]bool
	BasicBlocks        []BasicBlock
	TotalLineCount     uint32
	CoveredLineCount   uint32

	blockOf map[uint64]int
	mu      sync.Mutex
}

// NewFunctionCoverage returns an empty function ready to be filled by the builder.
func NewFunctionCoverage(name string, file Path) *FunctionCoverage {
	return &FunctionCoverage{
		Name:               name,
		File:               file,
		AddressToLine:      make(map[uint64]LineRef),
		LineCovered:        make(map[LineRef]bool),
		InstructionCovered: make(map[uint64]bool),
		blockOf:            make(map[uint64]int),
	}
}

// AddInstruction appends an instruction and initialises its coverage state.
// A line that is already known keeps its coverage flag.
func (f *FunctionCoverage) AddInstruction(ins InstructionRecord) int {
	f.Instructions = append(f.Instructions, ins)
	f.AddressToLine[ins.Address] = ins.Line

	if _, ok := f.LineCovered[ins.Line]; !ok {
		f.LineCovered[ins.Line] = false
	}

	f.InstructionCovered[ins.Address] = false

	return len(f.Instructions) - 1
}

// AppendBlock commits a block built from instruction indices.
func (f *FunctionCoverage) AppendBlock(indices []int) {
	if len(indices) == 0 {
		return
	}

	block := BasicBlock{
		StartAddress: f.Instructions[indices[0]].Address,
		Instructions: indices,
	}

	for _, idx := range indices {
		f.blockOf[f.Instructions[idx].Address] = len(f.BasicBlocks)
	}

	f.BasicBlocks = append(f.BasicBlocks, block)
}

// Seal fixes the line totals once the instruction loop is done.
func (f *FunctionCoverage) Seal() {
	f.TotalLineCount = uint32(len(f.LineCovered))
	f.CoveredLineCount = 0
}

// Cover marks the instruction at address as executed. It reports the line
// of the instruction and whether this call was the first to cover that line.
// ok is false when the address does not belong to the function.
func (f *FunctionCoverage) Cover(address uint64) (line LineRef, firstHit bool, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	line, ok = f.AddressToLine[address]
	if !ok {
		return LineRef{}, false, false
	}

	if !f.InstructionCovered[address] {
		f.InstructionCovered[address] = true

		if idx, found := f.blockOf[address]; found {
			f.BasicBlocks[idx].Executed = true
		}
	}

	if f.LineCovered[line] {
		return line, false, true
	}

	f.LineCovered[line] = true
	f.CoveredLineCount++

	return line, true, true
}

// CoveredInstructionCount counts executed instructions.
func (f *FunctionCoverage) CoveredInstructionCount() int {
	count := 0
	for _, covered := range f.InstructionCovered {
		if covered {
			count++
		}
	}

	return count
}

// ExecutedBlockCount counts executed basic blocks.
func (f *FunctionCoverage) ExecutedBlockCount() int {
	count := 0
	for _, block := range f.BasicBlocks {
		if block.Executed {
			count++
		}
	}

	return count
}

// Rate returns the rounded line coverage percentage, 0 for an empty function.
func (f *FunctionCoverage) Rate() uint32 {
	return CoverageRate(f.CoveredLineCount, f.TotalLineCount)
}

// CoverageRate returns round(covered/total*100), or 0 when total is 0.
func CoverageRate(covered, total uint32) uint32 {
	if total == 0 {
		return 0
	}

	return uint32(math.Round(float64(covered) / float64(total) * 100))
}

// FileCoverage holds one source file and the functions attributed to it.
type FileCoverage struct {
	Path      Path
	Lines     []LineRecord
	Functions map[string]*FunctionCoverage

	mu sync.Mutex
}

// NewFileCoverage creates a file whose lines are neither executable nor covered.
func NewFileCoverage(path Path, text []string) *FileCoverage {
	lines := make([]LineRecord, len(text))
	for i, t := range text {
		lines[i] = LineRecord{LineNumber: uint32(i + 1), Text: t}
	}

	return &FileCoverage{
		Path:      path,
		Lines:     lines,
		Functions: make(map[string]*FunctionCoverage),
	}
}

// HasLine reports whether the 1-based line exists in the file.
func (fc *FileCoverage) HasLine(line uint32) bool {
	return line >= 1 && int(line) <= len(fc.Lines)
}

// MarkExecutable flags a line as executable. Out of range lines are ignored.
func (fc *FileCoverage) MarkExecutable(line uint32) {
	if !fc.HasLine(line) {
		return
	}

	fc.Lines[line-1].Executable = true
}

// MarkCovered flags a line as covered. Out of range lines are ignored.
func (fc *FileCoverage) MarkCovered(line uint32) {
	if !fc.HasLine(line) {
		return
	}

	fc.mu.Lock()
	fc.Lines[line-1].Covered = true
	fc.mu.Unlock()
}

// ClearLine resets a line that no function maps to any more.
func (fc *FileCoverage) ClearLine(line uint32) {
	if !fc.HasLine(line) {
		return
	}

	fc.mu.Lock()
	fc.Lines[line-1].Executable = false
	fc.Lines[line-1].Covered = false
	fc.mu.Unlock()
}

// FunctionNames returns the function names in lexical order.
func (fc *FileCoverage) FunctionNames() []string {
	names := make([]string, 0, len(fc.Functions))
	for name := range fc.Functions {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// CoverageModel is the whole coverage state of one run.
type CoverageModel struct {
	TargetName        string
	Files             map[Path]*FileCoverage
	FunctionToFile    map[string]Path
	AddressToFunction map[uint64]string
}

// NewCoverageModel returns an empty model for target.
func NewCoverageModel(target string) *CoverageModel {
	return &CoverageModel{
		TargetName:        target,
		Files:             make(map[Path]*FileCoverage),
		FunctionToFile:    make(map[string]Path),
		AddressToFunction: make(map[uint64]string),
	}
}

// Function looks a function up by name through FunctionToFile.
func (cm *CoverageModel) Function(name string) (*FileCoverage, *FunctionCoverage, bool) {
	path, ok := cm.FunctionToFile[name]
	if !ok {
		return nil, nil, false
	}

	file, ok := cm.Files[path]
	if !ok {
		return nil, nil, false
	}

	fn, ok := file.Functions[name]
	if !ok {
		return nil, nil, false
	}

	return file, fn, true
}

// FilePaths returns the file paths in lexical order.
func (cm *CoverageModel) FilePaths() []Path {
	paths := make([]Path, 0, len(cm.Files))
	for path := range cm.Files {
		paths = append(paths, path)
	}

	sort.Slice(paths, func(i, j int) bool {
		return paths[i] < paths[j]
	})

	return paths
}
