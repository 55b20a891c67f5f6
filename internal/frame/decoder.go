package frame

import "github.com/cockpitvm/hypervisor/internal/vmerr"

// decodeState is the frame decoder's state machine (spec §4.1): IDLE ->
// LENGTH_HI -> LENGTH_LO -> PAYLOAD -> CRC_HI -> CRC_LO -> END.
type decodeState uint8

const (
	stateIdle decodeState = iota
	stateLengthHi
	stateLengthLo
	statePayload
	stateCRCHi
	stateCRCLo
	stateEnd
)

// Decoder is a stateful, one-byte-at-a-time frame decoder. The zero value
// is ready to use (state IDLE).
type Decoder struct {
	state      decodeState
	length     uint16
	payload    []byte
	escPending bool
	crcRecv    uint16

	// ErrorCount increments once per decode failure (spec §7: frame-decoder
	// errors "increment an error counter"), and is exposed for the
	// session statistics the protocol engine surfaces.
	ErrorCount uint64
}

// reset returns the decoder to IDLE, used both on successful frame
// completion and on any error.
func (d *Decoder) reset() {
	d.state = stateIdle
	d.length = 0
	d.payload = nil
	d.escPending = false
	d.crcRecv = 0
}

// resync unconditionally moves to LENGTH_HI on any START byte seen outside
// IDLE, per spec §4.1: "the implementation must not deadlock on a lost
// END."
func (d *Decoder) resync() {
	d.state = stateLengthHi
	d.length = 0
	d.payload = nil
	d.escPending = false
	d.crcRecv = 0
}

// Step feeds one byte to the decoder. It returns a non-nil *Frame on a
// successfully completed, CRC-valid frame; a non-nil error on a malformed
// frame (the decoder has already reset to IDLE in that case); or
// (nil, nil) while still accumulating.
func (d *Decoder) Step(b byte) (*Frame, error) {
	if b == Start && d.state != stateIdle {
		d.resync()
		return nil, nil
	}

	switch d.state {
	case stateIdle:
		if b == Start {
			d.resync()
		}
		// Any other byte while idle is inter-frame noise; silently
		// discarded (spec §8 scenario 4).
		return nil, nil

	case stateLengthHi:
		d.length = uint16(b) << 8
		d.state = stateLengthLo
		return nil, nil

	case stateLengthLo:
		d.length |= uint16(b)
		if d.length > MaxPayload {
			d.reset()
			d.ErrorCount++
			return nil, vmerr.Newf(vmerr.PayloadTooLarge, "declared length %d", d.length)
		}
		d.payload = make([]byte, 0, d.length)
		if d.length == 0 {
			d.state = stateCRCHi
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		return d.stepPayload(b)

	case stateCRCHi:
		d.crcRecv = uint16(b) << 8
		d.state = stateCRCLo
		return nil, nil

	case stateCRCLo:
		d.crcRecv |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		if b != End {
			d.reset()
			d.ErrorCount++
			return nil, vmerr.Newf(vmerr.FrameInvalid, "expected END (0x%02x), got 0x%02x", End, b)
		}
		payload := d.payload
		want := CRC16(payload)
		got := d.crcRecv
		d.reset()
		if got != want {
			d.ErrorCount++
			return nil, vmerr.Newf(vmerr.CRCMismatch, "want 0x%04x, got 0x%04x", want, got)
		}
		return &Frame{Payload: payload}, nil

	default:
		d.reset()
		return nil, vmerr.New(vmerr.FrameInvalid)
	}
}

func (d *Decoder) stepPayload(b byte) (*Frame, error) {
	if d.escPending {
		d.escPending = false
		var actual byte
		switch b {
		case escEnd1:
			actual = Start
		case escEnd2:
			actual = End
		case escEscape:
			actual = Escape
		default:
			d.reset()
			d.ErrorCount++
			return nil, vmerr.Newf(vmerr.FrameInvalid, "invalid escape follower 0x%02x", b)
		}
		d.payload = append(d.payload, actual)
	} else if b == Escape {
		d.escPending = true
		return nil, nil
	} else {
		d.payload = append(d.payload, b)
	}

	if uint16(len(d.payload)) == d.length {
		d.state = stateCRCHi
	}
	return nil, nil
}
