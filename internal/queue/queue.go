// Package queue implements CockpitVM's interrupt-safe byte queue (C2): a
// single-producer/single-consumer ring buffer meant to sit between a UART
// receive interrupt (producer) and the protocol engine's poll loop
// (consumer), per spec §4.2. It follows the teacher's habit of coordinating
// concurrent readers/writers with raw sync/atomic load/store rather than a
// mutex where only simple flags and counters need to cross goroutines
// (miner/worker.go's atomic.StoreInt32/LoadInt32 running/interrupt flags,
// core/atomic/clock_sync.go's atomic timestamp metadata) — no ecosystem
// lock-free ring buffer appears anywhere in the retrieved pack, so the
// buffer itself is hand-rolled from the spec's exact capacity and overflow
// semantics.
package queue

import (
	"sync/atomic"

	"github.com/cockpitvm/hypervisor/internal/vmerr"
)

// DefaultCapacity is the queue's default size (spec §4.2): a power of two
// so the head/tail indices can wrap with a bitmask instead of a modulo.
const DefaultCapacity = 512

// Queue is a fixed-capacity, lock-free SPSC byte ring buffer. One goroutine
// may call Push (the "interrupt" side); a different single goroutine may
// call Pop (the "poll loop" side) concurrently. Capacity must be a power of
// two; NewQueue enforces this.
type Queue struct {
	buf  []byte
	mask uint32

	head uint32 // next write index, producer-owned
	tail uint32 // next read index, consumer-owned

	// count is updated by both sides via atomic add/sub so each side can
	// observe how full the buffer is without a mutex.
	count int32

	// overflow is sticky: once set it is never cleared by Pop, only by an
	// explicit Reset, matching spec §4.2's "the overflow condition must be
	// visible to the consumer even after space frees up."
	overflow uint32
}

// NewQueue builds a Queue with the given power-of-two capacity. Capacities
// that are not a power of two are rounded up to the next one.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	capacity = nextPowerOfTwo(capacity)
	return &Queue{
		buf:  make([]byte, capacity),
		mask: uint32(capacity - 1),
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Len returns the number of bytes currently queued.
func (q *Queue) Len() int {
	return int(atomic.LoadInt32(&q.count))
}

// Cap returns the queue's fixed capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Overflowed reports whether a Push has been dropped since the last Reset.
func (q *Queue) Overflowed() bool {
	return atomic.LoadUint32(&q.overflow) != 0
}

// Push enqueues one byte. If the queue is full, the byte is dropped, the
// sticky overflow flag is set, and Push returns a MemoryBounds error
// (spec §4.2: producer never blocks — an interrupt handler must not stall).
func (q *Queue) Push(b byte) error {
	if atomic.LoadInt32(&q.count) == int32(len(q.buf)) {
		atomic.StoreUint32(&q.overflow, 1)
		return vmerr.Newf(vmerr.MemoryBounds, "byte queue full at capacity %d", len(q.buf))
	}
	q.buf[q.head&q.mask] = b
	q.head++
	atomic.AddInt32(&q.count, 1)
	return nil
}

// Pop dequeues one byte. It returns MemoryBounds if the queue is empty.
func (q *Queue) Pop() (byte, error) {
	if atomic.LoadInt32(&q.count) == 0 {
		return 0, vmerr.New(vmerr.MemoryBounds)
	}
	b := q.buf[q.tail&q.mask]
	q.tail++
	atomic.AddInt32(&q.count, -1)
	return b, nil
}

// PopAll drains every currently queued byte into a fresh slice, in FIFO
// order. Used by the protocol engine's poll loop to hand a full batch to
// the frame decoder in one call.
func (q *Queue) PopAll() []byte {
	n := q.Len()
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		b, err := q.Pop()
		if err != nil {
			break
		}
		out = append(out, b)
	}
	return out
}

// Reset empties the queue and clears the sticky overflow flag.
func (q *Queue) Reset() {
	atomic.StoreInt32(&q.count, 0)
	atomic.StoreUint32(&q.overflow, 0)
	q.head = 0
	q.tail = 0
}
