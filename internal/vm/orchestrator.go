package vm

import (
	"github.com/cockpitvm/hypervisor/internal/log"
	"github.com/cockpitvm/hypervisor/internal/platform"
	"github.com/cockpitvm/hypervisor/internal/vmerr"
)

var orchLog = log.NewContext("module", "vm")

// Orchestrator is CockpitVM's VM orchestrator (C9). It owns the execution
// engine, memory, and IO surface exclusively (spec §3 "Ownership"):
// destroying an Orchestrator clears all guest state, the same RAII-like
// discipline the teacher applies to its VM value. It is grounded on the
// teacher's probe-lang/lang/vm.VM.Run/Step pair, adding the observer
// registration the teacher's consensus/pob package uses for its own
// event subscribers.
type Orchestrator struct {
	mem       *Memory
	host      *HostAPI
	engine    *Engine
	plat      platform.Platform
	observers []Observer
	lastErr   error
	loaded    bool
}

// NewOrchestrator constructs an Orchestrator with fresh, zeroed VM state
// over the given platform.
func NewOrchestrator(plat platform.Platform) *Orchestrator {
	mem := NewMemory()
	host := NewHostAPI(plat)
	return &Orchestrator{
		mem:    mem,
		host:   host,
		engine: NewEngine(mem, host),
		plat:   plat,
	}
}

// Subscribe registers an observer. Observers are notified in registration
// order and must not mutate VM state (spec §4.9).
func (o *Orchestrator) Subscribe(obs Observer) {
	o.observers = append(o.observers, obs)
}

// LoadProgram decodes and installs a program (spec §4.9 load_program).
func (o *Orchestrator) LoadProgram(code []byte, strings []string) error {
	p, err := DecodeProgram(code, strings)
	if err != nil {
		o.lastErr = err
		return err
	}
	o.engine.Load(p)
	o.loaded = true
	o.lastErr = nil
	return nil
}

// ExecuteProgram runs until HALT, an error, or the program's natural end
// (spec §4.9 execute_program). It reports elapsed time via the platform's
// monotonic clock, using the overflow-safe subtraction rule from spec §5.
func (o *Orchestrator) ExecuteProgram() error {
	if !o.loaded {
		return vmerr.New(vmerr.ProgramNotLoaded)
	}
	start := o.plat.TickMs()
	for !o.engine.Halted() {
		obs, err := o.engine.Step()
		if err != nil {
			o.lastErr = err
			orchLog.Error("guest execution faulted", "pc", obs.PCBefore, "opcode", obs.Opcode, "err", err)
			return err
		}
		o.notifyStep(obs)
	}
	elapsed := elapsedMsSince(start, o.plat.TickMs())
	o.notifyComplete(elapsed)
	return nil
}

// ExecuteSingleStep runs exactly one instruction (spec §4.9
// execute_single_step), notifying observers the same way ExecuteProgram
// does for each of its internal steps.
func (o *Orchestrator) ExecuteSingleStep() error {
	if !o.loaded {
		return vmerr.New(vmerr.ProgramNotLoaded)
	}
	obs, err := o.engine.Step()
	if err != nil {
		o.lastErr = err
		return err
	}
	o.notifyStep(obs)
	if o.engine.Halted() {
		o.notifyComplete(0)
	}
	return nil
}

func (o *Orchestrator) notifyStep(obs StepObservation) {
	for _, ob := range o.observers {
		ob.OnStep(obs.PCBefore, obs.Opcode, obs.Operand)
	}
}

func (o *Orchestrator) notifyComplete(elapsedMs uint32) {
	for _, ob := range o.observers {
		ob.OnComplete(o.engine.InstructionCount(), elapsedMs)
	}
}

// Reset zeros engine, stack, and memory state and notifies observers
// (spec §4.9 reset).
func (o *Orchestrator) Reset() {
	o.mem.Reset()
	o.engine.Load(Program{})
	o.loaded = false
	o.lastErr = nil
	for _, ob := range o.observers {
		ob.OnReset()
	}
}

// Metrics is the snapshot returned by GetMetrics.
type Metrics struct {
	InstructionCount uint64
	PC               int
	Halted           bool
	GlobalsUsed      int
	ArrayPoolUsed    int
}

// GetMetrics returns a point-in-time snapshot (spec §4.9 get_metrics).
func (o *Orchestrator) GetMetrics() Metrics {
	return Metrics{
		InstructionCount: o.engine.InstructionCount(),
		PC:               o.engine.PC(),
		Halted:           o.engine.Halted(),
		ArrayPoolUsed:    o.mem.UsedWords(),
	}
}

// LastError returns the error from the most recent failing operation, or
// nil (spec §4.9 last_error).
func (o *Orchestrator) LastError() error { return o.lastErr }

// Disassemble returns a human-readable listing of the currently loaded
// program, mirroring the teacher's probe-lang/lang/vm.Disassemble.
func (o *Orchestrator) Disassemble() string {
	out := ""
	for i, ins := range o.engine.program.Code {
		out += disasmLine(i, ins)
	}
	return out
}

// elapsedMsSince implements spec §5's overflow-safe timing rule:
// now - start if now >= start, otherwise (MAX - start) + now + 1.
func elapsedMsSince(start, now uint32) uint32 {
	if now >= start {
		return now - start
	}
	return (^uint32(0) - start) + now + 1
}
