package platform

import "time"

// SimTransport adapts a Serial implementation (the Simulator, in practice)
// to the Transport interface the protocol engine is generic over, mirroring
// the real bootloader's split between a byte-oriented UART driver and the
// framed transport built on top of it.
type SimTransport struct {
	serial Serial
	stats  TransportStats
}

// NewSimTransport wraps serial at the given baud rate.
func NewSimTransport(serial Serial, baud uint32) (*SimTransport, error) {
	if err := serial.UartBegin(baud); err != nil {
		return nil, err
	}
	return &SimTransport{serial: serial}, nil
}

func (t *SimTransport) Init() error { return nil }

func (t *SimTransport) Send(frame []byte) error {
	n, err := t.serial.UartWrite(frame)
	if err != nil {
		return err
	}
	t.stats.BytesSent += uint64(n)
	return nil
}

func (t *SimTransport) Receive(timeout time.Duration) ([]byte, bool) {
	deadline := time.Now().Add(timeout)
	var out []byte
	for {
		b, ok := t.serial.UartReadByte()
		if ok {
			out = append(out, b)
			t.stats.BytesReceived++
			continue
		}
		if len(out) > 0 || time.Now().After(deadline) {
			break
		}
	}
	return out, len(out) > 0
}

func (t *SimTransport) Available() bool { return t.serial.UartAvailable() }
func (t *SimTransport) Flush() error    { return nil }
func (t *SimTransport) Deinit() error   { return nil }
func (t *SimTransport) Stats() TransportStats { return t.stats }
func (t *SimTransport) Name() string    { return "sim-uart" }
