package platform

import (
	"time"

	"github.com/karalabe/usb"

	"github.com/cockpitvm/hypervisor/internal/vmerr"
)

// USBTransport implements Transport over a real USB-CDC bootloader
// interface, grounded on the teacher's karalabe/usb usage for hardware
// wallet HID/CDC enumeration and raw read/write against the matched
// device (§9's "polymorphism over the transport" realized as a concrete
// hardware-facing implementation alongside the in-process Simulator).
type USBTransport struct {
	dev   usb.Device
	stats TransportStats
}

// OpenUSBTransport enumerates USB devices matching vendorID/productID and
// opens the first match.
func OpenUSBTransport(vendorID, productID uint16) (*USBTransport, error) {
	infos, err := usb.Enumerate(vendorID, productID)
	if err != nil {
		return nil, vmerr.Wrap(vmerr.HardwareFault, err, "enumerate USB devices")
	}
	if len(infos) == 0 {
		return nil, vmerr.Newf(vmerr.HardwareFault, "no USB device matching %04x:%04x", vendorID, productID)
	}
	dev, err := infos[0].Open()
	if err != nil {
		return nil, vmerr.Wrap(vmerr.HardwareFault, err, "open USB device")
	}
	return &USBTransport{dev: dev}, nil
}

func (t *USBTransport) Init() error { return nil }

func (t *USBTransport) Send(frame []byte) error {
	n, err := t.dev.Write(frame)
	if err != nil {
		return vmerr.Wrap(vmerr.HardwareFault, err, "USB write")
	}
	t.stats.BytesSent += uint64(n)
	return nil
}

func (t *USBTransport) Receive(timeout time.Duration) ([]byte, bool) {
	buf := make([]byte, 64)
	n, err := t.dev.Read(buf)
	if err != nil || n == 0 {
		t.stats.Errors++
		return nil, false
	}
	t.stats.BytesReceived += uint64(n)
	return buf[:n], true
}

func (t *USBTransport) Available() bool { return true }
func (t *USBTransport) Flush() error    { return nil }
func (t *USBTransport) Deinit() error   { return t.dev.Close() }
func (t *USBTransport) Stats() TransportStats { return t.stats }
func (t *USBTransport) Name() string    { return "usb-cdc" }
