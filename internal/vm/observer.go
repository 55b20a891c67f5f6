package vm

// Observer receives read-only notifications from the Orchestrator. Per
// spec §4.9, observers must not mutate VM state; the interface only ever
// hands them copies of scalar state, never pointers into engine internals.
type Observer interface {
	OnStep(pc int, opcode Opcode, operand uint32)
	OnComplete(instructionCount uint64, elapsedMs uint32)
	OnReset()
}

// ObserverFuncs is a convenience adapter for registering ad-hoc observer
// behavior without declaring a named type, the same shape the teacher's
// consensus/pob engine uses for its event-subscriber callbacks.
type ObserverFuncs struct {
	Step     func(pc int, opcode Opcode, operand uint32)
	Complete func(instructionCount uint64, elapsedMs uint32)
	Reset    func()
}

func (f ObserverFuncs) OnStep(pc int, opcode Opcode, operand uint32) {
	if f.Step != nil {
		f.Step(pc, opcode, operand)
	}
}

func (f ObserverFuncs) OnComplete(instructionCount uint64, elapsedMs uint32) {
	if f.Complete != nil {
		f.Complete(instructionCount, elapsedMs)
	}
}

func (f ObserverFuncs) OnReset() {
	if f.Reset != nil {
		f.Reset()
	}
}
