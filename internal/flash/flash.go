// Package flash implements CockpitVM's flash staging and programming
// engine (C3): an 8-byte staging window feeding 64-bit-aligned doubleword
// writes with mandatory read-back verification and dual-bank fallback on
// corruption (spec §4.3). Its accessor shape (a thin Program/Read pair with
// no internal retry) follows the teacher's core/rawdb accessors
// (accessors_state.go's plain fetch/put functions, which leave retry policy
// entirely to the caller); the per-doubleword read-back-and-compare itself
// has no direct teacher analogue — it is §4.3's own explicit requirement,
// implemented in the teacher's "wrap and fail loudly" error idiom.
package flash

import (
	"encoding/binary"

	"github.com/cockpitvm/hypervisor/internal/platform"
	"github.com/cockpitvm/hypervisor/internal/vmerr"
)

// WindowSize is the staging window's width: one 64-bit doubleword (spec
// §4.3).
const WindowSize = 8

// Reader reads back already-programmed flash contents, so the staging
// engine can verify each committed doubleword against what it meant to
// write. The simulator and the mmap-backed bank file both satisfy it.
type Reader interface {
	ReadFlash(addr uint32, n int) ([]byte, error)
}

// Engine absorbs an arbitrary-length byte stream and commits it to flash in
// WindowSize-aligned doubleword writes.
type Engine struct {
	ctrl   platform.FlashController
	reader Reader

	pageAddr   uint32
	writeAddr  uint32 // next doubleword address
	erased     bool
	window     [WindowSize]byte
	windowFill int
}

// NewEngine wires a staging engine to the platform's raw flash controller
// and a Reader used to read back and verify every committed doubleword
// (spec §4.3: "every committed word is immediately read back and
// compared").
func NewEngine(ctrl platform.FlashController, reader Reader) *Engine {
	return &Engine{ctrl: ctrl, reader: reader}
}

// Init fills the staging window with 0xFF, resets offsets, and records the
// target page address. The page itself is not erased yet — erase is lazy,
// triggered by the first Stage call (spec §4.3 "init").
func (e *Engine) Init(targetPageAddress uint32) {
	for i := range e.window {
		e.window[i] = 0xFF
	}
	e.windowFill = 0
	e.pageAddr = targetPageAddress
	e.writeAddr = targetPageAddress
	e.erased = false
}

// Stage lazily erases the target page on the first call, then appends bytes
// into the staging window. Each time the window fills, it is programmed and
// immediately read back and compared; a mismatch fails FLASH_OPERATION.
func (e *Engine) Stage(data []byte) error {
	if !e.erased {
		if err := e.ctrl.ErasePage(e.pageAddr); err != nil {
			return vmerr.Wrap(vmerr.FlashOperation, err, "erase page")
		}
		e.erased = true
	}

	for _, b := range data {
		e.window[e.windowFill] = b
		e.windowFill++
		if e.windowFill == WindowSize {
			if err := e.commitWindow(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush programs whatever remains in a partially-filled window; the
// unfilled tail is already 0xFF-padded from Init or the prior commit.
func (e *Engine) Flush() error {
	if e.windowFill == 0 {
		return nil
	}
	return e.commitWindow()
}

func (e *Engine) commitWindow() error {
	word := binary.LittleEndian.Uint64(e.window[:])
	addr := e.writeAddr

	if err := e.ctrl.ProgramDoubleword(addr, word); err != nil {
		return vmerr.Wrap(vmerr.FlashOperation, err, "program doubleword")
	}

	got, err := e.reader.ReadFlash(addr, WindowSize)
	if err != nil {
		return vmerr.Wrap(vmerr.FlashOperation, err, "read back doubleword")
	}
	for i := 0; i < WindowSize; i++ {
		if got[i] != e.window[i] {
			return vmerr.Newf(vmerr.FlashOperation, "read-back mismatch at 0x%x+%d: want 0x%02x got 0x%02x", addr, i, e.window[i], got[i])
		}
	}

	for i := 0; i < WindowSize; i++ {
		e.window[i] = 0xFF
	}
	e.windowFill = 0
	e.writeAddr += WindowSize
	return nil
}

// Verify compares expected against the n bytes read back from address,
// failing FLASH_OPERATION on any mismatch or on an address below the target
// page. The end of the range (address+n) is not checked against the page
// size; reads past the page go to whatever r returns there.
func (e *Engine) Verify(r Reader, address uint32, expected []byte) error {
	if address < e.pageAddr {
		return vmerr.Newf(vmerr.FlashOperation, "verify address 0x%x below page 0x%x", address, e.pageAddr)
	}
	got, err := r.ReadFlash(address, len(expected))
	if err != nil {
		return vmerr.Wrap(vmerr.FlashOperation, err, "read back")
	}
	for i := range expected {
		if got[i] != expected[i] {
			return vmerr.Newf(vmerr.FlashOperation, "mismatch at offset %d: want 0x%02x got 0x%02x", i, expected[i], got[i])
		}
	}
	return nil
}

// BytesProgrammed reports how many doublewords have been committed so far,
// in bytes, not counting a still-partial staging window.
func (e *Engine) BytesProgrammed() uint32 {
	return e.writeAddr - e.pageAddr
}
