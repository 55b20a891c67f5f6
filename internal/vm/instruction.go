package vm

import "encoding/binary"

// InstructionSize is the fixed width of a packed instruction record (spec
// §3: "A 4-byte packed record: opcode (u8), flags (u8), immediate (u16)").
const InstructionSize = 4

// Instruction is the in-memory decoded form of one packed bytecode record.
// Its wire layout is part of the ABI (§9, "Packed instruction type") and
// must not be left to the host language's default field ordering: Encode
// and Decode own the byte layout explicitly rather than relying on
// encoding/binary against the struct itself.
type Instruction struct {
	Opcode    Opcode
	Flags     uint8
	Immediate uint16
}

// Encode packs the instruction into its 4-byte wire form:
// [opcode:8][flags:8][immediate:16 big-endian].
func (ins Instruction) Encode() [InstructionSize]byte {
	var b [InstructionSize]byte
	b[0] = byte(ins.Opcode)
	b[1] = ins.Flags
	binary.BigEndian.PutUint16(b[2:4], ins.Immediate)
	return b
}

// DecodeInstruction unpacks a 4-byte wire record. The caller is responsible
// for slicing exactly InstructionSize bytes; DecodeInstruction panics on a
// short slice, matching the teacher's fixed-width decode convention
// (probe-lang/lang/vm.Step reads a uint32 and never re-validates length
// because the caller has already bounds-checked the program).
func DecodeInstruction(b []byte) Instruction {
	_ = b[InstructionSize-1] // bounds check hint, same trick binary.* uses
	return Instruction{
		Opcode:    Opcode(b[0]),
		Flags:     b[1],
		Immediate: binary.BigEndian.Uint16(b[2:4]),
	}
}

// Operand packs flags and immediate into the single observable word the
// orchestrator reports to observers (spec §4.7: "packed operand
// (flags<<16) | immediate").
func (ins Instruction) Operand() uint32 {
	return uint32(ins.Flags)<<16 | uint32(ins.Immediate)
}

// Program is a loaded, immutable sequence of decoded instructions plus its
// string literal table (for PRINTF).
type Program struct {
	Code    []Instruction
	Strings []string
}

// DecodeProgram decodes a contiguous byte slice of packed instructions. len(raw)
// must be a multiple of InstructionSize.
func DecodeProgram(raw []byte, strings []string) (Program, error) {
	if len(raw)%InstructionSize != 0 {
		return Program{}, errProgramMisaligned(len(raw))
	}
	code := make([]Instruction, 0, len(raw)/InstructionSize)
	for i := 0; i < len(raw); i += InstructionSize {
		code = append(code, DecodeInstruction(raw[i:i+InstructionSize]))
	}
	return Program{Code: code, Strings: strings}, nil
}

// Len returns the instruction count (not byte count) of the program.
func (p Program) Len() int { return len(p.Code) }
