package vm

import "github.com/cockpitvm/hypervisor/internal/vmerr"

// Engine is CockpitVM's stack bytecode interpreter (C7). It fetches and
// dispatches instructions against a Stack, a Memory (C6), and a HostAPI
// (C8), applying PC updates centrally per StepResult (spec §4.7, §9). It is
// grounded on the teacher's probe-lang/lang/vm.VM.Step/execute dispatch
// loop, restructured so handlers return data instead of mutating vm.pc
// directly.
//
// CALL/RET use the same 32-bit value stack as every other opcode (spec
// §4.7: "CALL target pushes the current PC+1 to the stack ... RET pops a
// return address and transfers"); there is no separate native call-frame
// stack to keep in sync with it.
type Engine struct {
	program Program
	pc      int
	stack   Stack
	mem     *Memory
	host    *HostAPI
	halted  bool

	instructionCount uint64
}

// NewEngine builds an Engine over the given memory and host API. The
// caller owns mem and host and may share them across Engine.Reset cycles.
func NewEngine(mem *Memory, host *HostAPI) *Engine {
	return &Engine{mem: mem, host: host}
}

// Load installs a program and resets all execution state (PC, stack,
// halted flag, instruction counter). It does not reset Memory;
// the orchestrator (C9) owns that decision.
func (e *Engine) Load(p Program) {
	e.program = p
	e.pc = 0
	e.stack.Reset()
	e.halted = false
	e.instructionCount = 0
	if e.host != nil {
		e.host.SetStrings(p.Strings)
	}
}

func (e *Engine) Halted() bool           { return e.halted }
func (e *Engine) PC() int                { return e.pc }
func (e *Engine) InstructionCount() uint64 { return e.instructionCount }

// StepObservation is the single-step observable state required by spec
// §4.7: "PC before the step, opcode, packed operand, updated metrics
// counters."
type StepObservation struct {
	PCBefore int
	Opcode   Opcode
	Operand  uint32
	Count    uint64
}

// Step fetches, decodes, and executes exactly one instruction. Further
// steps after HALT are no-ops that report success without advancing
// counters (spec §4.7 "Halt").
func (e *Engine) Step() (StepObservation, error) {
	if e.halted {
		return StepObservation{}, nil
	}
	if e.pc < 0 || e.pc >= e.program.Len() {
		e.halted = true
		return StepObservation{}, vmerr.Newf(vmerr.ProgramNotLoaded, "pc %d outside program of length %d", e.pc, e.program.Len())
	}

	ins := e.program.Code[e.pc]
	obs := StepObservation{PCBefore: e.pc, Opcode: ins.Opcode, Operand: ins.Operand()}

	res := e.dispatch(ins)
	e.apply(res)

	if res.Err != nil {
		e.halted = true
		return obs, res.Err
	}
	if res.Action != PCHalt {
		e.instructionCount++
	}
	obs.Count = e.instructionCount
	return obs, nil
}

// apply is the single place the PC is mutated (spec §9 "PC management").
func (e *Engine) apply(res StepResult) {
	switch res.Action {
	case PCIncrement:
		e.pc++
	case PCJumpAbsolute, PCCall:
		e.pc = res.Target
	case PCJumpRelative:
		e.pc += res.Target
	case PCReturn:
		e.pc = res.Target
	case PCHalt:
		e.halted = true
	}
}

func (e *Engine) validJump(target int) error {
	if target < 0 || target >= e.program.Len() {
		return vmerr.Newf(vmerr.InvalidJump, "target %d, program length %d", target, e.program.Len())
	}
	return nil
}

func (e *Engine) dispatch(ins Instruction) StepResult {
	if ins.Opcode.IsHostCall() {
		if err := e.host.Call(ins.Opcode, &e.stack, ins.Operand()); err != nil {
			return fault(err)
		}
		return ok(PCIncrement, 0)
	}

	switch ins.Opcode {
	case OpHalt:
		return StepResult{Action: PCHalt, Continue: false}

	case OpPush:
		if err := e.stack.Push(int32(ins.Immediate)); err != nil {
			return fault(err)
		}
		return ok(PCIncrement, 0)

	case OpPop:
		if _, err := e.stack.Pop(); err != nil {
			return fault(err)
		}
		return ok(PCIncrement, 0)

	case OpCall:
		target := int(ins.Immediate)
		if err := e.validJump(target); err != nil {
			return fault(err)
		}
		if err := e.stack.Push(int32(e.pc + 1)); err != nil {
			return fault(err)
		}
		return ok(PCCall, target)

	case OpRet:
		ret, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		if ret < 0 || int(ret) > e.program.Len() {
			return fault(vmerr.Newf(vmerr.StackCorruption, "return address %d outside program", ret))
		}
		return ok(PCReturn, int(ret))

	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return e.arith(ins.Opcode)

	case OpEq, OpNe, OpLt, OpGt, OpLe, OpGe, OpLtU, OpGtU, OpLeU, OpGeU:
		return e.compare(ins.Opcode)

	case OpLogAnd, OpLogOr, OpLogNot:
		return e.logical(ins.Opcode)

	case OpBitAnd, OpBitOr, OpBitXor, OpBitNot, OpShl, OpShr:
		return e.bitwise(ins.Opcode)

	case OpLoadGlobal:
		v, err := e.mem.LoadGlobal(ins.Immediate)
		if err != nil {
			return fault(err)
		}
		if err := e.stack.Push(v); err != nil {
			return fault(err)
		}
		return ok(PCIncrement, 0)

	case OpStoreGlobal:
		v, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		if err := e.mem.StoreGlobal(ins.Immediate, v); err != nil {
			return fault(err)
		}
		return ok(PCIncrement, 0)

	case OpLoadLocal:
		depth, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		v, err := e.stack.PeekAt(int(depth))
		if err != nil {
			return fault(err)
		}
		if err := e.stack.Push(v); err != nil {
			return fault(err)
		}
		return ok(PCIncrement, 0)

	case OpStoreLocal:
		// STORE_LOCAL pops value then depth, writing into the stack slot
		// `depth` entries below the (already-popped) new top.
		v, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		depth, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		idx := e.stack.sp - 1 - int(depth)
		if idx < 0 || idx >= e.stack.sp {
			return fault(vmerr.New(vmerr.StackUnderflow))
		}
		e.stack.data[idx] = v
		return ok(PCIncrement, 0)

	case OpCreateArray:
		handle, err := e.mem.CreateArray(ins.Immediate)
		if err != nil {
			return fault(err)
		}
		if err := e.stack.Push(int32(handle)); err != nil {
			return fault(err)
		}
		return ok(PCIncrement, 0)

	case OpLoadArray:
		index, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		handle, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		v, err := e.mem.LoadArray(uint16(handle), uint16(index))
		if err != nil {
			return fault(err)
		}
		if err := e.stack.Push(v); err != nil {
			return fault(err)
		}
		return ok(PCIncrement, 0)

	case OpStoreArray:
		value, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		index, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		handle, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		if err := e.mem.StoreArray(uint16(handle), uint16(index), value); err != nil {
			return fault(err)
		}
		return ok(PCIncrement, 0)

	case OpJmp:
		target := int(ins.Immediate)
		if err := e.validJump(target); err != nil {
			return fault(err)
		}
		return ok(PCJumpAbsolute, target)

	case OpJmpTrue:
		v, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		if v != 0 {
			target := int(ins.Immediate)
			if err := e.validJump(target); err != nil {
				return fault(err)
			}
			return ok(PCJumpAbsolute, target)
		}
		return ok(PCIncrement, 0)

	case OpJmpFalse:
		v, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		if v == 0 {
			target := int(ins.Immediate)
			if err := e.validJump(target); err != nil {
				return fault(err)
			}
			return ok(PCJumpAbsolute, target)
		}
		return ok(PCIncrement, 0)

	default:
		return fault(vmerr.Newf(vmerr.InvalidOpcode, "0x%02x", uint8(ins.Opcode)))
	}
}

func (e *Engine) arith(op Opcode) StepResult {
	b, err := e.stack.Pop()
	if err != nil {
		return fault(err)
	}
	a, err := e.stack.Pop()
	if err != nil {
		return fault(err)
	}
	var r int32
	switch op {
	case OpAdd:
		r = a + b
	case OpSub:
		r = a - b
	case OpMul:
		r = a * b
	case OpDiv:
		if b == 0 {
			// Spec §8: DIV/MOD by 0 fails "without mutating the stack top" —
			// push both operands back before reporting the fault.
			_ = e.stack.Push(a)
			_ = e.stack.Push(b)
			return fault(vmerr.New(vmerr.DivisionByZero))
		}
		r = a / b
	case OpMod:
		if b == 0 {
			_ = e.stack.Push(a)
			_ = e.stack.Push(b)
			return fault(vmerr.New(vmerr.DivisionByZero))
		}
		r = a % b
	}
	if err := e.stack.Push(r); err != nil {
		return fault(err)
	}
	return ok(PCIncrement, 0)
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (e *Engine) compare(op Opcode) StepResult {
	b, err := e.stack.Pop()
	if err != nil {
		return fault(err)
	}
	a, err := e.stack.Pop()
	if err != nil {
		return fault(err)
	}
	ua, ub := uint32(a), uint32(b)
	var r bool
	switch op {
	case OpEq:
		r = a == b
	case OpNe:
		r = a != b
	case OpLt:
		r = a < b
	case OpGt:
		r = a > b
	case OpLe:
		r = a <= b
	case OpGe:
		r = a >= b
	case OpLtU:
		r = ua < ub
	case OpGtU:
		r = ua > ub
	case OpLeU:
		r = ua <= ub
	case OpGeU:
		r = ua >= ub
	}
	if err := e.stack.Push(boolToInt32(r)); err != nil {
		return fault(err)
	}
	return ok(PCIncrement, 0)
}

func (e *Engine) logical(op Opcode) StepResult {
	if op == OpLogNot {
		a, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		if err := e.stack.Push(boolToInt32(a == 0)); err != nil {
			return fault(err)
		}
		return ok(PCIncrement, 0)
	}
	b, err := e.stack.Pop()
	if err != nil {
		return fault(err)
	}
	a, err := e.stack.Pop()
	if err != nil {
		return fault(err)
	}
	var r bool
	if op == OpLogAnd {
		r = a != 0 && b != 0
	} else {
		r = a != 0 || b != 0
	}
	if err := e.stack.Push(boolToInt32(r)); err != nil {
		return fault(err)
	}
	return ok(PCIncrement, 0)
}

func (e *Engine) bitwise(op Opcode) StepResult {
	if op == OpBitNot {
		a, err := e.stack.Pop()
		if err != nil {
			return fault(err)
		}
		if err := e.stack.Push(^a); err != nil {
			return fault(err)
		}
		return ok(PCIncrement, 0)
	}
	b, err := e.stack.Pop()
	if err != nil {
		return fault(err)
	}
	a, err := e.stack.Pop()
	if err != nil {
		return fault(err)
	}
	var r int32
	switch op {
	case OpBitAnd:
		r = a & b
	case OpBitOr:
		r = a | b
	case OpBitXor:
		r = a ^ b
	case OpShl:
		r = int32(uint32(a) << (uint32(b) & 31))
	case OpShr:
		r = int32(uint32(a) >> (uint32(b) & 31))
	}
	if err := e.stack.Push(r); err != nil {
		return fault(err)
	}
	return ok(PCIncrement, 0)
}
