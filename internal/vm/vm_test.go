package vm

import (
	"testing"

	"github.com/cockpitvm/hypervisor/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assemble(t *testing.T, ins ...Instruction) []byte {
	t.Helper()
	buf := make([]byte, 0, len(ins)*InstructionSize)
	for _, i := range ins {
		enc := i.Encode()
		buf = append(buf, enc[:]...)
	}
	return buf
}

// TestArithmeticAndControlFlow reproduces spec §8 scenario 6:
// PUSH 10; PUSH 3; DIV; PUSH 3; MUL; PUSH 10; SUB; HALT
// Final stack top = (10/3)*3 - 10 = -1. Instruction count = 7.
func TestArithmeticAndControlFlow(t *testing.T) {
	code := assemble(t,
		Instruction{Opcode: OpPush, Immediate: 10},
		Instruction{Opcode: OpPush, Immediate: 3},
		Instruction{Opcode: OpDiv},
		Instruction{Opcode: OpPush, Immediate: 3},
		Instruction{Opcode: OpMul},
		Instruction{Opcode: OpPush, Immediate: 10},
		Instruction{Opcode: OpSub},
		Instruction{Opcode: OpHalt},
	)

	orch := NewOrchestrator(platform.NewSimulator(2048))
	require.NoError(t, orch.LoadProgram(code, nil))
	require.NoError(t, orch.ExecuteProgram())

	top := orch.engine.stack
	v, err := top.Peek()
	require.NoError(t, err)
	assert.Equal(t, int32(-1), v)
	assert.Equal(t, uint64(7), orch.GetMetrics().InstructionCount)
}

func TestDivisionByZeroLeavesStackUntouched(t *testing.T) {
	code := assemble(t,
		Instruction{Opcode: OpPush, Immediate: 5},
		Instruction{Opcode: OpPush, Immediate: 0},
		Instruction{Opcode: OpDiv},
	)
	orch := NewOrchestrator(platform.NewSimulator(2048))
	require.NoError(t, orch.LoadProgram(code, nil))
	err := orch.ExecuteProgram()
	require.Error(t, err)
	assert.Equal(t, 2, orch.engine.stack.SP())
}

func TestJumpBoundary(t *testing.T) {
	// JMP to program_length-1 succeeds; JMP to program_length fails.
	code := assemble(t,
		Instruction{Opcode: OpJmp, Immediate: 1},
		Instruction{Opcode: OpHalt},
	)
	orch := NewOrchestrator(platform.NewSimulator(2048))
	require.NoError(t, orch.LoadProgram(code, nil))
	require.NoError(t, orch.ExecuteProgram())

	badCode := assemble(t,
		Instruction{Opcode: OpJmp, Immediate: 2}, // == program length, invalid
		Instruction{Opcode: OpHalt},
	)
	orch2 := NewOrchestrator(platform.NewSimulator(2048))
	require.NoError(t, orch2.LoadProgram(badCode, nil))
	require.Error(t, orch2.ExecuteProgram())
}

func TestStackOverflowUnderflow(t *testing.T) {
	var st Stack
	for i := 0; i < StackCapacity; i++ {
		require.NoError(t, st.Push(int32(i)))
	}
	require.Error(t, st.Push(1))

	st.Reset()
	_, err := st.Pop()
	require.Error(t, err)
}

func TestResetThenLoadIsDeterministic(t *testing.T) {
	code := assemble(t, Instruction{Opcode: OpPush, Immediate: 42}, Instruction{Opcode: OpHalt})
	orch := NewOrchestrator(platform.NewSimulator(2048))
	require.NoError(t, orch.LoadProgram(code, nil))
	require.NoError(t, orch.ExecuteProgram())
	m1 := orch.GetMetrics()

	orch.Reset()
	require.NoError(t, orch.LoadProgram(code, nil))
	require.NoError(t, orch.ExecuteProgram())
	m2 := orch.GetMetrics()

	assert.Equal(t, m1.InstructionCount, m2.InstructionCount)
}

func TestArrayBoundsAndLifecycle(t *testing.T) {
	mem := NewMemory()
	handle, err := mem.CreateArray(4)
	require.NoError(t, err)

	require.NoError(t, mem.StoreArray(handle, 3, 99))
	v, err := mem.LoadArray(handle, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(99), v)

	_, err = mem.LoadArray(handle, 4)
	require.Error(t, err)

	require.NoError(t, mem.FreeArray(handle))
	_, err = mem.LoadArray(handle, 0)
	require.Error(t, err) // inactive descriptor

	mem.Reset()
	_, err = mem.LoadArray(handle, 0)
	require.Error(t, err) // everything invalidated
}

func TestHostAPIDigitalRoundTrip(t *testing.T) {
	sim := platform.NewSimulator(2048)
	orch := NewOrchestrator(sim)
	code := assemble(t,
		Instruction{Opcode: OpPush, Immediate: 5},  // pin
		Instruction{Opcode: OpPush, Immediate: 1},  // mode=OUTPUT
		Instruction{Opcode: OpPinMode},
		Instruction{Opcode: OpPush, Immediate: 5},  // pin
		Instruction{Opcode: OpPush, Immediate: 1},  // value=HIGH
		Instruction{Opcode: OpDigitalWrite},
		Instruction{Opcode: OpHalt},
	)
	require.NoError(t, orch.LoadProgram(code, nil))
	require.NoError(t, orch.ExecuteProgram())

	v, err := sim.PinRead(5)
	require.NoError(t, err)
	assert.True(t, v)
}
