package vm

import (
	"fmt"

	"github.com/cockpitvm/hypervisor/internal/platform"
	"github.com/cockpitvm/hypervisor/internal/vmerr"
)

// hostFn pops its arguments in right-to-left order, calls the platform,
// and pushes a return value if any (spec §4.8).
type hostFn func(h *HostAPI, st *Stack) error

// HostAPI is CockpitVM's whitelisted, opcode-keyed dispatch table (C8). It
// is grounded on the teacher's probe-lang/lang/vm/vm.go handling of its own
// whitelisted "blockchain operations" opcodes (OpBalance, OpCaller, ...),
// generalized from stubbed blockchain context reads to real hardware calls
// against a platform.Platform.
type HostAPI struct {
	plat    platform.Platform
	strings []string
	table   map[Opcode]hostFn

	// pendingOperand carries the packed (flags<<16)|immediate operand of
	// the instruction currently being dispatched, since hostFn's signature
	// is uniform across opcodes that do and don't need it (only PRINTF
	// does, for its string index and argument count).
	pendingOperand uint32
}

// NewHostAPI builds the dispatch table once per VM instance.
func NewHostAPI(plat platform.Platform) *HostAPI {
	h := &HostAPI{plat: plat}
	h.table = map[Opcode]hostFn{
		OpDigitalWrite: hostDigitalWrite,
		OpDigitalRead:  hostDigitalRead,
		OpAnalogWrite:  hostAnalogWrite,
		OpAnalogRead:   hostAnalogRead,
		OpPinMode:      hostPinMode,
		OpDelay:        hostDelay,
		OpMillis:       hostMillis,
		OpMicros:       hostMicros,
		OpPrintf:       hostPrintf,
	}
	return h
}

// SetStrings installs the read-only string literal table loaded alongside
// the current program, used by OpPrintf.
func (h *HostAPI) SetStrings(s []string) { h.strings = s }

// Call dispatches a host opcode. Errors from the platform layer fail
// HARDWARE_FAULT and the caller (Engine) halts the VM, per spec §4.8.
func (h *HostAPI) Call(op Opcode, st *Stack, operand uint32) error {
	fn, ok := h.table[op]
	if !ok {
		return vmerr.Newf(vmerr.InvalidOpcode, "0x%02x is not a whitelisted host call", uint8(op))
	}
	h.pendingOperand = operand
	if err := fn(h, st); err != nil {
		return vmerr.Wrap(vmerr.HardwareFault, err, op.String())
	}
	return nil
}

func hostDigitalWrite(h *HostAPI, st *Stack) error {
	value, err := st.Pop()
	if err != nil {
		return err
	}
	pin, err := st.Pop()
	if err != nil {
		return err
	}
	return h.plat.PinWrite(uint8(pin), value != 0)
}

func hostDigitalRead(h *HostAPI, st *Stack) error {
	pin, err := st.Pop()
	if err != nil {
		return err
	}
	v, err := h.plat.PinRead(uint8(pin))
	if err != nil {
		return err
	}
	if v {
		return st.Push(1)
	}
	return st.Push(0)
}

func hostAnalogWrite(h *HostAPI, st *Stack) error {
	value, err := st.Pop()
	if err != nil {
		return err
	}
	pin, err := st.Pop()
	if err != nil {
		return err
	}
	return h.plat.AnalogWrite(uint8(pin), uint16(value))
}

func hostAnalogRead(h *HostAPI, st *Stack) error {
	pin, err := st.Pop()
	if err != nil {
		return err
	}
	v, err := h.plat.AnalogRead(uint8(pin))
	if err != nil {
		return err
	}
	return st.Push(int32(v))
}

func hostPinMode(h *HostAPI, st *Stack) error {
	mode, err := st.Pop()
	if err != nil {
		return err
	}
	pin, err := st.Pop()
	if err != nil {
		return err
	}
	return h.plat.PinConfig(uint8(pin), platform.PinMode(mode))
}

func hostDelay(h *HostAPI, st *Stack) error {
	ms, err := st.Pop()
	if err != nil {
		return err
	}
	h.plat.DelayMs(uint32(ms))
	return nil
}

func hostMillis(h *HostAPI, st *Stack) error {
	return st.Push(int32(h.plat.TickMs()))
}

func hostMicros(h *HostAPI, st *Stack) error {
	return st.Push(int32(h.plat.TickUs()))
}

// hostPrintf accepts a string-table index and a variadic argument count
// (spec §4.8). The format string is read-only; arguments are popped in
// right-to-left order and passed as int32 values to fmt.Printf, which
// applies whatever verbs the format string contains (the guest language
// has no floating point, per spec §1 Non-goals).
func hostPrintf(h *HostAPI, st *Stack) error {
	argc := int(h.pendingOperand & 0xFF)
	strIdx := int(h.pendingOperand >> 8)
	if strIdx >= len(h.strings) {
		return vmerr.Newf(vmerr.PrintfError, "string index %d out of range (%d strings)", strIdx, len(h.strings))
	}
	args := make([]any, argc)
	for i := argc - 1; i >= 0; i-- {
		v, err := st.Pop()
		if err != nil {
			return vmerr.Wrap(vmerr.PrintfError, err, "popping printf argument")
		}
		args[i] = v
	}
	fmt.Printf(h.strings[strIdx], args...)
	return nil
}
