package flash

import (
	"encoding/binary"

	"github.com/cockpitvm/hypervisor/internal/platform"
)

// Bank identifies one of the two logical flash banks in the dual-bank
// fallback policy (spec §4.3).
type Bank uint8

const (
	BankA Bank = iota
	BankB
)

// healthCheckWindow is how many leading bytes of the active bank the
// corruption health check inspects (spec §4.3 and §9's "left at a 64-byte
// window" decision — see DESIGN.md).
const healthCheckWindow = 64

// BankSelector owns the two bank base addresses and decides, on bootloader
// entry only, which one is active.
type BankSelector struct {
	baseA, baseB uint32
	active       Bank
}

// NewBankSelector records the fixed addresses of both banks, defaulting to
// bank A active until a health check runs.
func NewBankSelector(baseA, baseB uint32) *BankSelector {
	return &BankSelector{baseA: baseA, baseB: baseB, active: BankA}
}

// Active returns the currently selected bank.
func (s *BankSelector) Active() Bank {
	return s.active
}

// ActiveAddress returns the base address of the currently selected bank.
func (s *BankSelector) ActiveAddress() uint32 {
	if s.active == BankA {
		return s.baseA
	}
	return s.baseB
}

// CheckHealth reads the leading healthCheckWindow bytes of the active bank
// via r. If every 32-bit word is all-zero or all-0xFF, the bank is
// considered corrupt (erased-but-never-programmed, or catastrophically
// wiped) and the active pointer switches to the other bank. This runs once,
// on bootloader entry — spec §4.3 is explicit that it never runs
// mid-session, so callers must not invoke this from the protocol engine's
// steady-state loop.
func (s *BankSelector) CheckHealth(r platform.Platform) error {
	addr := s.ActiveAddress()
	data, err := readerOf(r).ReadFlash(addr, healthCheckWindow)
	if err != nil {
		return err
	}
	if isAllZero(data) || isAllOnes(data) {
		if s.active == BankA {
			s.active = BankB
		} else {
			s.active = BankA
		}
	}
	return nil
}

// readerOf narrows a platform.Platform down to the flash.Reader capability
// the health check needs; the concrete Platform (Simulator, or a real HAL
// adapter) is expected to also implement Reader.
func readerOf(p platform.Platform) Reader {
	return p.(Reader)
}

func isAllZero(b []byte) bool {
	for i := 0; i+4 <= len(b); i += 4 {
		if binary.LittleEndian.Uint32(b[i:i+4]) != 0x00000000 {
			return false
		}
	}
	return true
}

func isAllOnes(b []byte) bool {
	for i := 0; i+4 <= len(b); i += 4 {
		if binary.LittleEndian.Uint32(b[i:i+4]) != 0xFFFFFFFF {
			return false
		}
	}
	return true
}
