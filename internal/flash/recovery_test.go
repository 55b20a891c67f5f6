package flash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveOpenCloseInMemory(t *testing.T) {
	a, err := OpenArchive("")
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestStoreRejectsMalformedPublicKey(t *testing.T) {
	a, err := OpenArchive("")
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Store([]byte("golden image bytes"), "not-a-signature", "not-a-public-key")
	assert.Error(t, err)
}

func TestFetchUnknownHashFails(t *testing.T) {
	a, err := OpenArchive("")
	require.NoError(t, err)
	defer a.Close()

	var hash [32]byte
	_, err = a.Fetch(hash)
	assert.Error(t, err)
}
