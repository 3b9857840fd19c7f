package model

// ControlFlow is the host's control-flow category for a single instruction.
type ControlFlow int

const (
	// FlowOther is any instruction that falls through to the next one.
	FlowOther ControlFlow = iota
	// FlowCondBranch is a conditional jump.
	FlowCondBranch
	// FlowUncondBranch is an unconditional jump.
	FlowUncondBranch
	// FlowCall is a call.
	FlowCall
	// FlowReturn is a return.
	FlowReturn
)

func (f ControlFlow) String() string {
	switch f {
	case FlowCondBranch:
		return "cond-branch"
	case FlowUncondBranch:
		return "branch"
	case FlowCall:
		return "call"
	case FlowReturn:
		return "return"
	case FlowOther:
		return "other"
	}

	return "unknown"
}

// SourceResolver maps a machine address to a source position. An address
// without line information resolves to a zero SourceLocation.
type SourceResolver interface {
	ResolveSourceLocation(address uint64) SourceLocation
}

// SourceResolverFunc adapts a plain function to SourceResolver.
type SourceResolverFunc func(address uint64) SourceLocation

// ResolveSourceLocation implements SourceResolver.
func (f SourceResolverFunc) ResolveSourceLocation(address uint64) SourceLocation {
	return f(address)
}

// Instruction is one decoded machine instruction as enumerated by a host.
type Instruction struct {
	Address     uint64
	Size        uint32
	Disassembly string
	Flow        ControlFlow
}

// Routine is a named, contiguous run of instructions in ascending address order.
type Routine struct {
	Name         string
	Address      uint64
	Size         uint64
	Instructions []Instruction
}

// Section groups the routines of one executable section of an image.
type Section struct {
	Name     string
	Routines []Routine
}

// Image is a loaded binary as seen by the build phase. Addresses are
// runtime addresses, i.e. link-time addresses plus LoadBias.
type Image struct {
	Name        string
	Path        Path
	LoadBias    uint64
	HasLineInfo bool
	Sections    []Section
	Resolver    SourceResolver
}

// ResolveSourceLocation resolves through the image resolver, if any.
func (img *Image) ResolveSourceLocation(address uint64) SourceLocation {
	if img == nil || img.Resolver == nil {
		return SourceLocation{}
	}

	return img.Resolver.ResolveSourceLocation(address)
}

// RoutineCount returns the number of routines across all sections.
func (img *Image) RoutineCount() int {
	count := 0
	for _, section := range img.Sections {
		count += len(section.Routines)
	}

	return count
}
