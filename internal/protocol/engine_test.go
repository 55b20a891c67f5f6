package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/cockpitvm/hypervisor/internal/flash"
	"github.com/cockpitvm/hypervisor/internal/frame"
	"github.com/cockpitvm/hypervisor/internal/platform"
	"github.com/cockpitvm/hypervisor/internal/queue"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// TestEngineHandshakeRoundTrip drives a full handshake request through the
// simulated UART, the ISR-fed byte queue, the frame decoder and the
// message handler, and checks a framed response comes back out.
func TestEngineHandshakeRoundTrip(t *testing.T) {
	sim := platform.NewSimulator(2048)
	transport, err := platform.NewSimTransport(sim, 115200)
	require.NoError(t, err)

	eng := flash.NewEngine(sim, sim)
	handler := NewHandler(eng, sim, 2048, 0x08008000)
	q := queue.NewQueue(queue.DefaultCapacity)
	engine := NewEngine(transport, q, handler, sim, rate.Limit(1000))

	req := EncodeRequest(&Request{SequenceID: 1, Kind: KindHandshake, Capabilities: "flash_program", MaxPacketSize: 256})
	encoded, err := frame.Encode(req)
	require.NoError(t, err)
	sim.InjectRx(encoded)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go engine.Run(ctx)

	deadline := time.Now().Add(150 * time.Millisecond)
	for len(sim.TxLog()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	dec := frame.Decoder{}
	var got *frame.Frame
	for _, b := range sim.TxLog() {
		f, err := dec.Step(b)
		if err == nil && f != nil {
			got = f
			break
		}
	}
	require.NotNil(t, got, "expected a framed response on the simulated UART")

	resp, err := DecodeResponse(got.Payload)
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, resp.Result)
	require.Equal(t, KindHandshakeAck, resp.Kind)
}

// TestEngineSessionTimeoutSoftResets exercises the timeout loop's
// session-timeout path by advancing the simulated clock past the limit.
func TestEngineSessionTimeoutSoftResets(t *testing.T) {
	sim := platform.NewSimulator(2048)
	transport, err := platform.NewSimTransport(sim, 115200)
	require.NoError(t, err)

	eng := flash.NewEngine(sim, sim)
	handler := NewHandler(eng, sim, 2048, 0x08008000)
	handler.Handle(&Request{SequenceID: 1, Kind: KindHandshake, Capabilities: "flash_program", MaxPacketSize: 256})
	require.Equal(t, StateHandshakeComplete, handler.State())

	q := queue.NewQueue(queue.DefaultCapacity)
	engine := NewEngine(transport, q, handler, sim, rate.Limit(1000))
	engine.sessionTimeoutMs = 10

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	// Give Run time to record its starting activity tick before the clock
	// moves, so the advance lands after the session start.
	time.Sleep(20 * time.Millisecond)
	sim.AdvanceMs(50)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateIdle, handler.State())
}
