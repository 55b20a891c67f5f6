package protocol

import (
	"hash/crc32"
	"testing"

	"github.com/cockpitvm/hypervisor/internal/flash"
	"github.com/cockpitvm/hypervisor/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *platform.Simulator) {
	t.Helper()
	sim := platform.NewSimulator(2048)
	eng := flash.NewEngine(sim, sim)
	return NewHandler(eng, sim, 2048, 0x08008000), sim
}

// TestHandshakeOnly reproduces spec §8 scenario 1.
func TestHandshakeOnly(t *testing.T) {
	h, _ := newTestHandler(t)
	resp := h.Handle(&Request{SequenceID: 1, Kind: KindHandshake, Capabilities: "flash_program", MaxPacketSize: 256})
	require.Equal(t, ResultSuccess, resp.Result)
	assert.Equal(t, KindHandshakeAck, resp.Kind)
	assert.Equal(t, uint32(2048), resp.FlashPageSize)
	assert.Equal(t, StateHandshakeComplete, h.State())
}

// TestFullProgrammingCycle reproduces spec §8 scenario 2.
func TestFullProgrammingCycle(t *testing.T) {
	h, _ := newTestHandler(t)

	r1 := h.Handle(&Request{SequenceID: 1, Kind: KindHandshake, Capabilities: "flash_program", MaxPacketSize: 256})
	require.Equal(t, ResultSuccess, r1.Result)

	r2 := h.Handle(&Request{SequenceID: 2, Kind: KindFlashProgramPrepare, TotalDataLength: 16})
	require.Equal(t, ResultSuccess, r2.Result)
	require.True(t, r2.Success)
	require.Equal(t, StateReadyForData, h.State())

	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	r3 := h.Handle(&Request{SequenceID: 3, Kind: KindData, Offset: 0, Data: data, DataCRC32: crc32.ChecksumIEEE(data)})
	require.Equal(t, ResultSuccess, r3.Result)
	require.Equal(t, StateDataReceived, h.State())

	r4 := h.Handle(&Request{SequenceID: 4, Kind: KindFlashProgramVerify})
	require.Equal(t, ResultSuccess, r4.Result)
	assert.Equal(t, uint32(16), r4.BytesProgrammed)
	assert.Equal(t, uint32(16), r4.ActualDataLength)
	assert.Equal(t, StateProgrammingComplete, h.State())
}

func TestDataCRCMismatchRejected(t *testing.T) {
	h, _ := newTestHandler(t)
	h.Handle(&Request{SequenceID: 1, Kind: KindHandshake, Capabilities: "flash_program", MaxPacketSize: 256})
	h.Handle(&Request{SequenceID: 2, Kind: KindFlashProgramPrepare, TotalDataLength: 4})

	r := h.Handle(&Request{SequenceID: 3, Kind: KindData, Offset: 0, Data: []byte{1, 2, 3, 4}, DataCRC32: 0xDEADBEEF})
	assert.Equal(t, ResultDataCorruption, r.Result)
	assert.Equal(t, StateReadyForData, h.State(), "a failed data packet must not advance the state machine")
}

func TestOutOfOrderRequestRejected(t *testing.T) {
	h, _ := newTestHandler(t)
	r := h.Handle(&Request{SequenceID: 1, Kind: KindFlashProgramPrepare, TotalDataLength: 4})
	assert.Equal(t, ResultInvalidRequest, r.Result)
	assert.Equal(t, StateIdle, h.State())
}

func TestResetReturnsToIdle(t *testing.T) {
	h, _ := newTestHandler(t)
	h.Handle(&Request{SequenceID: 1, Kind: KindHandshake, Capabilities: "flash_program", MaxPacketSize: 256})
	require.Equal(t, StateHandshakeComplete, h.State())
	h.Reset()
	assert.Equal(t, StateIdle, h.State())
}
