package platform

import (
	"time"

	"gopkg.in/natefinch/npipe.v2"

	"github.com/cockpitvm/hypervisor/internal/vmerr"
)

// NamedPipeTransport implements Transport over a Windows named pipe,
// grounded on the teacher's go.mod-declared gopkg.in/natefinch/npipe.v2
// dependency: the host-side complement to USBTransport for bootloaders
// exposed as a virtual COM port backed by a named pipe rather than a raw
// USB-CDC endpoint.
type NamedPipeTransport struct {
	conn  *npipe.PipeConn
	stats TransportStats
}

// DialNamedPipe connects to an already-listening named pipe path, e.g.
// \\.\pipe\cockpitvm-bootloader.
func DialNamedPipe(path string, timeout time.Duration) (*NamedPipeTransport, error) {
	conn, err := npipe.DialTimeout(path, timeout)
	if err != nil {
		return nil, vmerr.Wrap(vmerr.HardwareFault, err, "dial named pipe")
	}
	return &NamedPipeTransport{conn: conn}, nil
}

func (t *NamedPipeTransport) Init() error { return nil }

func (t *NamedPipeTransport) Send(frame []byte) error {
	n, err := t.conn.Write(frame)
	if err != nil {
		return vmerr.Wrap(vmerr.HardwareFault, err, "named pipe write")
	}
	t.stats.BytesSent += uint64(n)
	return nil
}

func (t *NamedPipeTransport) Receive(timeout time.Duration) ([]byte, bool) {
	_ = t.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 256)
	n, err := t.conn.Read(buf)
	if err != nil || n == 0 {
		t.stats.Errors++
		return nil, false
	}
	t.stats.BytesReceived += uint64(n)
	return buf[:n], true
}

func (t *NamedPipeTransport) Available() bool           { return true }
func (t *NamedPipeTransport) Flush() error               { return nil }
func (t *NamedPipeTransport) Deinit() error              { return t.conn.Close() }
func (t *NamedPipeTransport) Stats() TransportStats      { return t.stats }
func (t *NamedPipeTransport) Name() string               { return "named-pipe" }
