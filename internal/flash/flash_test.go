package flash

import (
	"testing"

	"github.com/cockpitvm/hypervisor/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProgrammingCycle reproduces spec §8 scenario 2's data phase: 16
// bytes [00..0F] staged and flushed must land byte-for-byte at the target
// address.
func TestProgrammingCycle(t *testing.T) {
	sim := platform.NewSimulator(2048)
	eng := NewEngine(sim, sim)
	const base = 0x08008000

	eng.Init(base)
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, eng.Stage(data))
	require.NoError(t, eng.Flush())
	require.NoError(t, eng.Verify(sim, base, data))
	assert.Equal(t, uint32(16), eng.BytesProgrammed())
}

func TestFlushPadsPartialWindow(t *testing.T) {
	sim := platform.NewSimulator(2048)
	eng := NewEngine(sim, sim)
	const base = 0x08008000

	eng.Init(base)
	require.NoError(t, eng.Stage([]byte{0xAA, 0xBB, 0xCC}))
	require.NoError(t, eng.Flush())

	got, err := sim.ReadFlash(base, WindowSize)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, got)
}

// corruptingReader wraps a Reader and flips the low bit of every byte it
// returns, simulating a flash cell that programmed wrong.
type corruptingReader struct {
	Reader
}

func (c corruptingReader) ReadFlash(addr uint32, n int) ([]byte, error) {
	got, err := c.Reader.ReadFlash(addr, n)
	if err != nil {
		return nil, err
	}
	out := append([]byte{}, got...)
	for i := range out {
		out[i] ^= 0x01
	}
	return out, nil
}

func TestCommitWindowFailsOnReadBackMismatch(t *testing.T) {
	sim := platform.NewSimulator(2048)
	eng := NewEngine(sim, corruptingReader{sim})
	const base = 0x08008000

	eng.Init(base)
	err := eng.Stage([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-back mismatch")
}

func TestVerifyDetectsMismatch(t *testing.T) {
	sim := platform.NewSimulator(2048)
	eng := NewEngine(sim, sim)
	const base = 0x08008000

	eng.Init(base)
	require.NoError(t, eng.Stage([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, eng.Flush())

	err := eng.Verify(sim, base, []byte{1, 2, 3, 4, 5, 6, 7, 9})
	require.Error(t, err)
}

func TestBankSelectorSwitchesOnCorruptActiveBank(t *testing.T) {
	sim := platform.NewSimulator(2048)
	const baseA, baseB = 0x08000000, 0x08010000
	sel := NewBankSelector(baseA, baseB)

	// Bank A is freshly erased (all 0xFF) and therefore "corrupt" by the
	// health check's definition.
	require.NoError(t, sim.ErasePage(baseA))
	require.NoError(t, sel.CheckHealth(sim))
	assert.Equal(t, BankB, sel.Active())
}

func TestBankSelectorKeepsHealthyActiveBank(t *testing.T) {
	sim := platform.NewSimulator(2048)
	const baseA, baseB = 0x08000000, 0x08010000
	sel := NewBankSelector(baseA, baseB)

	require.NoError(t, sim.ErasePage(baseA))
	require.NoError(t, sim.ProgramDoubleword(baseA, 0x1122334455667788))
	require.NoError(t, sel.CheckHealth(sim))
	assert.Equal(t, BankA, sel.Active())
}
