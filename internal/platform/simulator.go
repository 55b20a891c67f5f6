package platform

import (
	"sync"
)

// Simulator is an in-process fake Platform used by the host simulator CLI
// and by tests. It has no external dependencies, mirroring how the
// teacher's own test suites (e.g. probe-lang/lang/vm/vm_test.go) prefer a
// bare in-memory fixture over mocking frameworks.
type Simulator struct {
	mu sync.Mutex

	tickMs uint32
	tickUs uint32

	pins    map[uint8]PinMode
	digital map[uint8]bool
	analog  map[uint8]uint16

	flashLocked bool
	flash       map[uint32][]byte // page base -> contents, for ErasePage/ProgramDoubleword bookkeeping
	pageSize    uint32

	rxQueue []byte
	txLog   []byte
}

// NewSimulator builds a Simulator with the given flash page size (bytes).
func NewSimulator(pageSize uint32) *Simulator {
	return &Simulator{
		pins:     make(map[uint8]PinMode),
		digital:  make(map[uint8]bool),
		analog:   make(map[uint8]uint16),
		flash:    make(map[uint32][]byte),
		pageSize: pageSize,
	}
}

func (s *Simulator) TickMs() uint32 { s.mu.Lock(); defer s.mu.Unlock(); return s.tickMs }
func (s *Simulator) TickUs() uint32 { s.mu.Lock(); defer s.mu.Unlock(); return s.tickUs }

// AdvanceMs moves the simulated clock forward; tests use this to exercise
// session/frame timeouts deterministically instead of sleeping.
func (s *Simulator) AdvanceMs(ms uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickMs += ms
	s.tickUs += ms * 1000
}

func (s *Simulator) DelayMs(ms uint32) { s.AdvanceMs(ms) }
func (s *Simulator) DelayUs(us uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickUs += us
	s.tickMs += us / 1000
}

func (s *Simulator) PinConfig(pin uint8, mode PinMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[pin] = mode
	return nil
}

func (s *Simulator) PinWrite(pin uint8, high bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digital[pin] = high
	return nil
}

func (s *Simulator) PinRead(pin uint8) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digital[pin], nil
}

func (s *Simulator) AnalogWrite(pin uint8, value uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analog[pin] = value
	return nil
}

func (s *Simulator) AnalogRead(pin uint8) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analog[pin], nil
}

func (s *Simulator) UartBegin(baud uint32) error { return nil }

func (s *Simulator) UartWrite(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txLog = append(s.txLog, b...)
	return len(b), nil
}

func (s *Simulator) UartReadByte() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rxQueue) == 0 {
		return 0, false
	}
	b := s.rxQueue[0]
	s.rxQueue = s.rxQueue[1:]
	return b, true
}

func (s *Simulator) UartAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rxQueue) > 0
}

// InjectRx feeds bytes into the simulated receive path, standing in for the
// receive ISR (spec §5: "The receive ISR may fire at any point; it executes
// only byte_queue.push").
func (s *Simulator) InjectRx(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rxQueue = append(s.rxQueue, b...)
}

// TxLog returns everything written via UartWrite, for test assertions.
func (s *Simulator) TxLog() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.txLog))
	copy(out, s.txLog)
	return out
}

func (s *Simulator) ErasePage(addr uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := addr - addr%s.pageSize
	s.flash[base] = make([]byte, s.pageSize)
	for i := range s.flash[base] {
		s.flash[base][i] = 0xFF
	}
	return nil
}

func (s *Simulator) ProgramDoubleword(addr uint32, word uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := addr - addr%s.pageSize
	page, ok := s.flash[base]
	if !ok {
		page = make([]byte, s.pageSize)
		for i := range page {
			page[i] = 0xFF
		}
		s.flash[base] = page
	}
	off := addr % s.pageSize
	for i := 0; i < 8; i++ {
		page[off+uint32(i)] = byte(word >> (8 * i))
	}
	return nil
}

func (s *Simulator) Lock() error   { s.flashLocked = true; return nil }
func (s *Simulator) Unlock() error { s.flashLocked = false; return nil }

// ReadFlash returns a copy of n bytes starting at addr, satisfying
// flash.Reader for the staging engine's verify step and for tests.
func (s *Simulator) ReadFlash(addr uint32, n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		a := addr + uint32(i)
		base := a - a%s.pageSize
		page := s.flash[base]
		off := a % s.pageSize
		if page != nil {
			out[i] = page[off]
		} else {
			out[i] = 0xFF
		}
	}
	return out, nil
}
