// Package platform defines the contracts the host firmware must satisfy
// (spec §6 "Platform interface") and the transport capability set the
// protocol engine is generic over (spec §9 "Polymorphism over the
// transport"). Nothing in this package is part of the core's
// responsibility: these are signatures and semantic contracts only, to be
// satisfied by a real HAL on target hardware or by the in-process
// Simulator below for host-side development and tests.
package platform

import "time"

// Timing is the platform's monotonic clock and busy-wait primitives.
type Timing interface {
	TickMs() uint32
	TickUs() uint32
	DelayMs(ms uint32)
	DelayUs(us uint32)
}

// PinMode mirrors the guest-visible GPIO pin modes.
type PinMode uint8

const (
	PinInput PinMode = iota
	PinOutput
	PinInputPullup
)

// GPIO is the whitelisted hardware surface the host API dispatch table
// (C8) calls into.
type GPIO interface {
	PinConfig(pin uint8, mode PinMode) error
	PinWrite(pin uint8, high bool) error
	PinRead(pin uint8) (bool, error)
	AnalogWrite(pin uint8, value uint16) error
	AnalogRead(pin uint8) (uint16, error)
}

// Serial is the byte-oriented transport the bootloader's receive path
// drains into the interrupt-safe byte queue (C2). UartReadByte/UartAvailable
// model the ISR-driven receive path described in spec §5.
type Serial interface {
	UartBegin(baud uint32) error
	UartWrite(b []byte) (int, error)
	UartReadByte() (byte, bool)
	UartAvailable() bool
}

// FlashController is the platform's raw flash programming surface that
// internal/flash builds its staging engine on top of.
type FlashController interface {
	ErasePage(addr uint32) error
	ProgramDoubleword(addr uint32, word uint64) error
	Lock() error
	Unlock() error
}

// Platform bundles every contract the core depends on. A real embedded
// target implements this over its HAL; Simulator implements it in-process.
type Platform interface {
	Timing
	GPIO
	Serial
	FlashController
}

// Transport is the capability set the protocol engine (C5) is generic
// over, modeling §9's "polymorphism over the transport" design note as a
// Go interface instead of the source's C-style vtable of function
// pointers: init, send, receive, available, flush, deinit, stats, name.
type Transport interface {
	Init() error
	Send(frame []byte) error
	Receive(timeout time.Duration) ([]byte, bool)
	Available() bool
	Flush() error
	Deinit() error
	Stats() TransportStats
	Name() string
}

// TransportStats is the minimal counter set every Transport implementation
// must expose for the debug server and CLI status tables.
type TransportStats struct {
	BytesSent     uint64
	BytesReceived uint64
	Errors        uint64
}
