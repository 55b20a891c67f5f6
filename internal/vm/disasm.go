package vm

import "fmt"

// disasmLine renders one decoded instruction, matching the teacher's
// probe-lang/lang/vm.Disassemble column layout ("[index] MNEMONIC operand").
func disasmLine(index int, ins Instruction) string {
	if !ins.Opcode.Valid() {
		return fmt.Sprintf("[%04d] ??? (0x%02x)\n", index, uint8(ins.Opcode))
	}
	info := opcodeTable[ins.Opcode]
	if info.hasOperand {
		return fmt.Sprintf("[%04d] %-16s %d\n", index, ins.Opcode, ins.Immediate)
	}
	return fmt.Sprintf("[%04d] %-16s\n", index, ins.Opcode)
}
