package adapter

import (
	"debug/elf"
	"errors"
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

// ErrUnsupportedMachine is returned for ELF machines without a decoder.
var ErrUnsupportedMachine = errors.New("unsupported machine")

const badInstruction = "(bad)"

// instructionDecoder decodes a single instruction at the start of code.
type instructionDecoder interface {
	decode(code []byte, pc uint64) (size int, text string, flow m.ControlFlow, err error)
}

func decoderFor(machine elf.Machine) (instructionDecoder, error) {
	switch machine {
	case elf.EM_X86_64:
		return x86Decoder{mode: 64}, nil
	case elf.EM_386:
		return x86Decoder{mode: 32}, nil
	case elf.EM_AARCH64:
		return arm64Decoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMachine, machine)
	}
}

type x86Decoder struct {
	mode int
}

func noSymbols(uint64) (string, uint64) {
	return "", 0
}

func (d x86Decoder) decode(code []byte, pc uint64) (int, string, m.ControlFlow, error) {
	inst, err := x86asm.Decode(code, d.mode)
	if err != nil {
		return 0, "", m.FlowOther, err
	}

	return inst.Len, x86asm.IntelSyntax(inst, pc, noSymbols), x86Flow(inst.Op), nil
}

//nolint:exhaustive // only control-flow opcodes matter
func x86Flow(op x86asm.Op) m.ControlFlow {
	switch op {
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JE, x86asm.JECXZ,
		x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE, x86asm.JNO, x86asm.JNP,
		x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JRCXZ, x86asm.JS,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return m.FlowCondBranch
	case x86asm.JMP, x86asm.LJMP:
		return m.FlowUncondBranch
	case x86asm.CALL, x86asm.LCALL:
		return m.FlowCall
	case x86asm.RET, x86asm.LRET, x86asm.IRET, x86asm.IRETD, x86asm.IRETQ:
		return m.FlowReturn
	}

	return m.FlowOther
}

type arm64Decoder struct{}

const arm64InstructionSize = 4

func (arm64Decoder) decode(code []byte, _ uint64) (int, string, m.ControlFlow, error) {
	if len(code) < arm64InstructionSize {
		return 0, "", m.FlowOther, fmt.Errorf("truncated instruction")
	}

	inst, err := arm64asm.Decode(code[:arm64InstructionSize])
	if err != nil {
		return 0, "", m.FlowOther, err
	}

	return arm64InstructionSize, arm64asm.GNUSyntax(inst), arm64Flow(inst), nil
}

//nolint:exhaustive // only control-flow opcodes matter
func arm64Flow(inst arm64asm.Inst) m.ControlFlow {
	switch inst.Op {
	case arm64asm.B:
		// b.cond carries its condition as the first argument
		if _, ok := inst.Args[0].(arm64asm.Cond); ok {
			return m.FlowCondBranch
		}

		return m.FlowUncondBranch
	case arm64asm.BR:
		return m.FlowUncondBranch
	case arm64asm.CBZ, arm64asm.CBNZ, arm64asm.TBZ, arm64asm.TBNZ:
		return m.FlowCondBranch
	case arm64asm.BL, arm64asm.BLR:
		return m.FlowCall
	case arm64asm.RET:
		return m.FlowReturn
	}

	return m.FlowOther
}

// decodeRoutine decodes code that starts at base. Undecodable bytes become
// one-byte "(bad)" instructions so the routine still covers its whole range.
func decodeRoutine(dec instructionDecoder, code []byte, base uint64) []m.Instruction {
	instructions := make([]m.Instruction, 0, len(code)/4)

	for offset := 0; offset < len(code); {
		pc := base + uint64(offset)

		size, text, flow, err := dec.decode(code[offset:], pc)
		if err != nil || size <= 0 {
			size, text, flow = 1, badInstruction, m.FlowOther
		}

		instructions = append(instructions, m.Instruction{
			Address:     pc,
			Size:        uint32(size),
			Disassembly: text,
			Flow:        flow,
		})

		offset += size
	}

	return instructions
}
