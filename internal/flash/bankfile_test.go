package flash

import (
	"os"
	"testing"

	"github.com/cockpitvm/hypervisor/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankFileReadsSeededFixture(t *testing.T) {
	path := testutil.CopyFixture(t, "testdata/golden.bin")

	fi, err := os.Stat(path)
	require.NoError(t, err)

	bf, err := OpenBankFile(path, int(fi.Size()))
	require.NoError(t, err)
	defer bf.Close()

	got, err := bf.ReadFlash(0, 16)
	require.NoError(t, err)
	want := make([]byte, 16)
	for i := range want {
		want[i] = byte(i)
	}
	assert.Equal(t, want, got)
}

func TestBankFileWriteAtAndSync(t *testing.T) {
	path := testutil.CopyFixture(t, "testdata/golden.bin")
	fi, err := os.Stat(path)
	require.NoError(t, err)

	bf, err := OpenBankFile(path, int(fi.Size()))
	require.NoError(t, err)
	defer bf.Close()

	require.NoError(t, bf.WriteAt(0, []byte{0xAA, 0xBB}))
	require.NoError(t, bf.Sync())

	got, err := bf.ReadFlash(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, got)
}
