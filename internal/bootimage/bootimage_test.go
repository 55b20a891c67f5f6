package bootimage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParseRoundTrip(t *testing.T) {
	program := []byte{0x01, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 0x00} // two packed instructions
	strs := []string{"hello=%d\n", "x"}

	raw := Build(program, strs)
	img, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, Magic, img.Header.Magic)

	want := &Image{
		Header:  img.Header,
		Body:    program,
		Strings: strs,
	}
	if diff := cmp.Diff(want, img); diff != "" {
		t.Errorf("parsed image mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	raw := Build([]byte{0, 0, 0, 0}, nil)
	raw[0] ^= 0xFF
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestParseRejectsCRCMismatch(t *testing.T) {
	raw := Build([]byte{0, 0, 0, 0}, nil)
	raw[len(raw)-1] ^= 0xFF
	_, err := Parse(raw)
	require.Error(t, err)
}
