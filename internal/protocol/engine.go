package protocol

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cockpitvm/hypervisor/internal/frame"
	"github.com/cockpitvm/hypervisor/internal/log"
	"github.com/cockpitvm/hypervisor/internal/platform"
	"github.com/cockpitvm/hypervisor/internal/queue"
	"github.com/cockpitvm/hypervisor/internal/vmerr"
)

// Default session/frame timeouts (spec §5).
const (
	DefaultSessionTimeoutMs uint32 = 30_000
	DefaultFrameTimeoutMs   uint32 = 500
)

// Engine owns the foreground receive loop (C5): it pulls bytes from the
// byte queue, feeds the frame decoder, hands completed frames to the
// message handler, and transmits encoded responses. Grounded on the
// teacher's les/client.go request/response lifecycle (a foreground loop
// pumping a channel of inbound work into a handler and writing responses
// back out) and on §5's explicit single-threaded-foreground-plus-one-ISR
// scheduling model.
type Engine struct {
	transport platform.Transport
	q         *queue.Queue
	timing    platform.Timing
	handler   *Handler
	cache     *ResponseCache
	limiter   *rate.Limiter

	sessionTimeoutMs uint32
	frameTimeoutMs   uint32

	// mu guards the decoder, tick, and shutdown fields below: receiveLoop,
	// timeoutLoop, and isrLoop all run concurrently (spec §5's
	// single-foreground-plus-one-ISR model maps here to three goroutines
	// instead of one), and each reads or writes this activity/session
	// state. emergencyShutdown is not guarded by mu; it is set through
	// SetEmergencyShutdownHook and read by EmergencyShutdown without locking.
	mu                sync.Mutex
	dec               frame.Decoder
	lastActivityTick  uint32
	frameStartTick    uint32
	frameInProgress   bool
	shuttingDown      bool
	emergencyShutdown func()
}

// NewEngine wires a protocol engine to its transport, byte queue, message
// handler, and clock. limiterRate bounds how many frames per second the
// engine will transmit, modeling UART baud-rate pacing.
func NewEngine(transport platform.Transport, q *queue.Queue, handler *Handler, timing platform.Timing, limiterRate rate.Limit) *Engine {
	return &Engine{
		transport:        transport,
		q:                q,
		timing:           timing,
		handler:          handler,
		cache:            NewResponseCache(),
		limiter:          rate.NewLimiter(limiterRate, 1),
		sessionTimeoutMs: DefaultSessionTimeoutMs,
		frameTimeoutMs:   DefaultFrameTimeoutMs,
	}
}

// SetEmergencyShutdownHook registers the host-specific safe-state callback
// (put GPIO in a safe configuration) that EmergencyShutdown invokes before
// locking flash and halting the loop.
func (e *Engine) SetEmergencyShutdownHook(fn func()) {
	e.emergencyShutdown = fn
}

// elapsedMs computes now-start with the overflow-safe wraparound spec §5
// requires for monotonic tick comparisons.
func elapsedMs(start, now uint32) uint32 {
	if now >= start {
		return now - start
	}
	return (^uint32(0) - start) + now + 1
}

// Run drives the receive loop and the timeout supervisor concurrently until
// ctx is cancelled or EmergencyShutdown is called.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.lastActivityTick = e.timing.TickMs()
	e.mu.Unlock()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.isrLoop(gctx) })
	g.Go(func() error { return e.receiveLoop(gctx) })
	g.Go(func() error { return e.timeoutLoop(gctx) })
	return g.Wait()
}

// isrLoop stands in for the receive ISR (spec §5: "the receive ISR may fire
// at any point; it executes only byte_queue.push"): it pulls whatever bytes
// the transport has ready and pushes them one at a time into the byte
// queue, which is the only thing the foreground receiveLoop ever drains.
func (e *Engine) isrLoop(ctx context.Context) error {
	for {
		if e.isShuttingDown() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		bytes, ok := e.transport.Receive(time.Millisecond)
		if !ok {
			continue
		}
		for _, b := range bytes {
			if err := e.q.Push(b); err != nil {
				log.Debug("byte queue overflow, dropping byte", "err", err)
			}
		}
	}
}

func (e *Engine) receiveLoop(ctx context.Context) error {
	for {
		if e.isShuttingDown() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch := e.q.PopAll()
		if len(batch) == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		for _, b := range batch {
			f, err := e.stepDecoder(b)
			if err != nil {
				log.Debug("frame decode error", "err", err)
				continue
			}
			if f != nil {
				if err := e.handleFrame(ctx, f); err != nil {
					log.Error("frame handling failed", "err", err)
				}
			}
		}
	}
}

// stepDecoder feeds one byte into the frame decoder, tracking frame-start
// and last-activity ticks, all under e.mu since receiveLoop and timeoutLoop
// both touch this state concurrently.
func (e *Engine) stepDecoder(b byte) (*frame.Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.frameInProgress && b == frame.Start {
		e.frameInProgress = true
		e.frameStartTick = e.timing.TickMs()
	}
	f, err := e.dec.Step(b)
	if err != nil {
		e.frameInProgress = false
		return nil, err
	}
	if f != nil {
		e.frameInProgress = false
		e.lastActivityTick = e.timing.TickMs()
	}
	return f, nil
}

func (e *Engine) handleFrame(ctx context.Context, f *frame.Frame) error {
	req, err := DecodeRequest(f.Payload)
	if err != nil {
		return vmerr.Wrap(vmerr.ProtobufDecode, err, "decode request")
	}

	if cached, ok := e.cache.Get(req.SequenceID); ok {
		return e.transmit(ctx, cached)
	}

	resp := e.handler.Handle(req)
	encoded := EncodeResponse(resp)
	e.cache.Put(req.SequenceID, encoded)
	return e.transmit(ctx, encoded)
}

func (e *Engine) transmit(ctx context.Context, payload []byte) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	encoded, err := frame.Encode(payload)
	if err != nil {
		return err
	}
	return e.transport.Send(encoded)
}

func (e *Engine) timeoutLoop(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if e.isShuttingDown() {
				return nil
			}
			now := e.timing.TickMs()

			e.mu.Lock()
			sessionExpired := elapsedMs(e.lastActivityTick, now) > e.sessionTimeoutMs
			frameExpired := e.frameInProgress && elapsedMs(e.frameStartTick, now) > e.frameTimeoutMs
			if frameExpired {
				log.Debug("frame timeout, resetting decoder")
				e.dec = frame.Decoder{}
				e.frameInProgress = false
			}
			e.mu.Unlock()

			if sessionExpired {
				log.Info("session timeout, resetting to IDLE")
				e.SoftReset()
				e.mu.Lock()
				e.lastActivityTick = now
				e.mu.Unlock()
			}
		}
	}
}

// isShuttingDown reports whether EmergencyShutdown has been called.
func (e *Engine) isShuttingDown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shuttingDown
}

// SoftReset clears protocol and staging state only, without tearing down
// the transport (spec §4.5).
func (e *Engine) SoftReset() {
	e.handler.Reset()
	e.cache.Reset()
	e.mu.Lock()
	e.dec = frame.Decoder{}
	e.frameInProgress = false
	e.mu.Unlock()
}

// EmergencyShutdown is terminal: it puts GPIO in a safe state via the
// registered hook, locks flash, and stops the loop (spec §4.5, §5).
func (e *Engine) EmergencyShutdown(flashCtrl platform.FlashController) {
	if e.emergencyShutdown != nil {
		e.emergencyShutdown()
	}
	_ = flashCtrl.Lock()
	e.mu.Lock()
	e.shuttingDown = true
	e.mu.Unlock()
}
