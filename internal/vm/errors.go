package vm

import "github.com/cockpitvm/hypervisor/internal/vmerr"

func errProgramMisaligned(n int) error {
	return vmerr.Newf(vmerr.ProgramNotLoaded, "program length %d is not a multiple of %d", n, InstructionSize)
}
