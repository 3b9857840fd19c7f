package adapter

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

func TestDecoderFor(t *testing.T) {
	for _, machine := range []elf.Machine{elf.EM_X86_64, elf.EM_386, elf.EM_AARCH64} {
		dec, err := decoderFor(machine)
		require.NoError(t, err, machine.String())
		require.NotNil(t, dec)
	}

	_, err := decoderFor(elf.EM_MIPS)
	require.ErrorIs(t, err, ErrUnsupportedMachine)
}

func TestX86Decoder_ControlFlow(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		size int
		flow m.ControlFlow
	}{
		{name: "nop", code: []byte{0x90}, size: 1, flow: m.FlowOther},
		{name: "push rbp", code: []byte{0x55}, size: 1, flow: m.FlowOther},
		{name: "ret", code: []byte{0xc3}, size: 1, flow: m.FlowReturn},
		{name: "call rel32", code: []byte{0xe8, 0x00, 0x00, 0x00, 0x00}, size: 5, flow: m.FlowCall},
		{name: "je rel8", code: []byte{0x74, 0x02}, size: 2, flow: m.FlowCondBranch},
		{name: "jmp rel8", code: []byte{0xeb, 0x02}, size: 2, flow: m.FlowUncondBranch},
	}

	dec := x86Decoder{mode: 64}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, text, flow, err := dec.decode(tt.code, 0x1000)
			require.NoError(t, err)
			assert.Equal(t, tt.size, size)
			assert.Equal(t, tt.flow, flow)
			assert.NotEmpty(t, text)
		})
	}
}

func TestARM64Decoder_ControlFlow(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		flow m.ControlFlow
	}{
		{name: "nop", code: []byte{0x1f, 0x20, 0x03, 0xd5}, flow: m.FlowOther},
		{name: "ret", code: []byte{0xc0, 0x03, 0x5f, 0xd6}, flow: m.FlowReturn},
		{name: "bl", code: []byte{0x00, 0x00, 0x00, 0x94}, flow: m.FlowCall},
		{name: "b", code: []byte{0x00, 0x00, 0x00, 0x14}, flow: m.FlowUncondBranch},
		{name: "b.eq", code: []byte{0x00, 0x00, 0x00, 0x54}, flow: m.FlowCondBranch},
		{name: "cbz", code: []byte{0x00, 0x00, 0x00, 0xb4}, flow: m.FlowCondBranch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, text, flow, err := arm64Decoder{}.decode(tt.code, 0x1000)
			require.NoError(t, err)
			assert.Equal(t, arm64InstructionSize, size)
			assert.Equal(t, tt.flow, flow)
			assert.NotEmpty(t, text)
		})
	}

	_, _, _, err := arm64Decoder{}.decode([]byte{0x1f, 0x20}, 0)
	require.Error(t, err)
}

func TestDecodeRoutine(t *testing.T) {
	// push rbp; nop; call; ret
	code := []byte{0x55, 0x90, 0xe8, 0x00, 0x00, 0x00, 0x00, 0xc3}

	instructions := decodeRoutine(x86Decoder{mode: 64}, code, 0x400000)
	require.Len(t, instructions, 4)

	assert.Equal(t, uint64(0x400000), instructions[0].Address)
	assert.Equal(t, uint64(0x400001), instructions[1].Address)
	assert.Equal(t, uint64(0x400002), instructions[2].Address)
	assert.Equal(t, uint32(5), instructions[2].Size)
	assert.Equal(t, m.FlowCall, instructions[2].Flow)
	assert.Equal(t, uint64(0x400007), instructions[3].Address)
	assert.Equal(t, m.FlowReturn, instructions[3].Flow)
}

type failingDecoder struct{}

func (failingDecoder) decode([]byte, uint64) (int, string, m.ControlFlow, error) {
	return 0, "", m.FlowOther, ErrUnsupportedMachine
}

func TestDecodeRoutine_BadBytes(t *testing.T) {
	instructions := decodeRoutine(failingDecoder{}, []byte{0xff, 0xff, 0xff}, 0x10)
	require.Len(t, instructions, 3)

	for i, ins := range instructions {
		assert.Equal(t, uint64(0x10+i), ins.Address)
		assert.Equal(t, uint32(1), ins.Size)
		assert.Equal(t, badInstruction, ins.Disassembly)
	}
}
