package protocol

import (
	"encoding/binary"

	"github.com/VictoriaMetrics/fastcache"
)

// responseCacheBytes bounds the dedup cache's footprint; a bootloader
// session only ever needs to remember the last few sequence IDs, so this
// stays small on purpose.
const responseCacheBytes = 64 * 1024

// ResponseCache deduplicates retransmitted requests by sequence_id: if the
// client's frame timeout fires and it resends the same request, the
// bootloader must reply with the cached response instead of re-running a
// side-effecting operation (notably Prepare's page erase) a second time.
// Grounded on the teacher's use of VictoriaMetrics/fastcache as a
// low-overhead, GC-friendly byte cache in front of more expensive lookups.
type ResponseCache struct {
	c *fastcache.Cache
}

// NewResponseCache builds a dedup cache sized for one active session.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{c: fastcache.New(responseCacheBytes)}
}

func seqKey(seq uint32) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], seq)
	return k[:]
}

// Put records the encoded response for seq.
func (rc *ResponseCache) Put(seq uint32, encoded []byte) {
	rc.c.Set(seqKey(seq), encoded)
}

// Get returns the previously cached encoded response for seq, if any.
func (rc *ResponseCache) Get(seq uint32) ([]byte, bool) {
	if !rc.c.Has(seqKey(seq)) {
		return nil, false
	}
	return rc.c.Get(nil, seqKey(seq)), true
}

// Reset clears the cache, called on every session reset (spec §4.5) since
// sequence IDs are only unique within one session.
func (rc *ResponseCache) Reset() {
	rc.c.Reset()
}
