package frame

import (
	"testing"

	"github.com/cockpitvm/hypervisor/internal/vmerr"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, d *Decoder, encoded []byte) (*Frame, error) {
	t.Helper()
	for i, b := range encoded {
		f, err := d.Step(b)
		if err != nil {
			return nil, err
		}
		if f != nil {
			assert.Equal(t, len(encoded)-1, i, "frame completed before last byte")
			return f, nil
		}
	}
	return nil, nil
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		{Start, End, Escape, Start, End},
		make([]byte, MaxPayload),
	}
	for _, p := range payloads {
		encoded, err := Encode(p)
		require.NoError(t, err)

		var d Decoder
		f, err := decodeAll(t, &d, encoded)
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Equal(t, p, f.Payload)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(make([]byte, MaxPayload+1))
	require.Error(t, err)
	ve, ok := err.(*vmerr.Error)
	require.True(t, ok)
	assert.Equal(t, vmerr.PayloadTooLarge, ve.Kind)
}

func TestEncodeIntoRejectsSmallBuffer(t *testing.T) {
	dst := make([]byte, 3)
	_, err := EncodeInto(dst, []byte{1, 2, 3, 4})
	require.Error(t, err)
}

func TestDecoderDetectsCRCMismatch(t *testing.T) {
	encoded, err := Encode([]byte{0xAA, 0xBB})
	require.NoError(t, err)
	// Flip a payload byte after the length prefix without touching the CRC.
	encoded[3] ^= 0xFF

	var d Decoder
	_, err = decodeAll(t, &d, encoded)
	require.Error(t, err)
	ve, ok := err.(*vmerr.Error)
	require.True(t, ok)
	assert.Equal(t, vmerr.CRCMismatch, ve.Kind)
	assert.Equal(t, uint64(1), d.ErrorCount)
}

// TestDesyncRecovery reproduces spec §8 scenario 4: noise on the wire
// (including a stray START that opens a partial frame) followed by a fresh
// START must resync and decode the valid frame that follows.
func TestDesyncRecovery(t *testing.T) {
	good, err := Encode([]byte{0x10, 0x20})
	require.NoError(t, err)

	noise := []byte{0x00, 0xFF, 0x11, Start, 0x00, 0x01} // stray START mid-noise
	stream := append(append([]byte{}, noise...), good...)

	var d Decoder
	var frame *Frame
	for _, b := range stream {
		f, stepErr := d.Step(b)
		if f != nil {
			frame = f
			break
		}
		_ = stepErr
	}
	require.NotNil(t, frame)
	assert.Equal(t, []byte{0x10, 0x20}, frame.Payload)
}

func TestDecoderHandlesEscapedBoundaryBytes(t *testing.T) {
	payload := []byte{Start, End, Escape}
	encoded, err := Encode(payload)
	require.NoError(t, err)

	var d Decoder
	f, err := decodeAll(t, &d, encoded)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, payload, f.Payload)
}

// TestEncodeDecodeFuzzCorpus round-trips a corpus of randomly sized and
// filled payloads, including ones dense with START/END/ESCAPE bytes, to
// shake out byte-stuffing edge cases a handful of hand-picked fixtures
// would miss.
func TestEncodeDecodeFuzzCorpus(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, MaxPayload)
	for i := 0; i < 200; i++ {
		var payload []byte
		f.Fuzz(&payload)

		encoded, err := Encode(payload)
		require.NoError(t, err)

		var d Decoder
		frame, err := decodeAll(t, &d, encoded)
		require.NoError(t, err)
		require.NotNil(t, frame)
		assert.Equal(t, payload, frame.Payload)
	}
}

func TestCRC16KnownVectors(t *testing.T) {
	assert.Equal(t, uint16(0x0000), CRC16(nil))
	assert.Equal(t, uint16(0x0000), CRC16([]byte{}))
	assert.NotEqual(t, uint16(0x0000), CRC16([]byte{0x01}))
}
