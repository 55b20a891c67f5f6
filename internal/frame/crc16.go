// Package frame implements CockpitVM's frame codec (C1): encode/decode of
// length-prefixed, CRC16-protected, byte-stuffed payloads over a
// byte-oriented transport (spec §3, §4.1). It is grounded on the teacher's
// p2p/stellar FEC framing (p2p/stellar/reedsolomon.go, default_encap.go) —
// same shape of "wrap payload with sync bytes + integrity trailer" — and
// on the AOCS frame header pattern retrieved alongside the pack
// (other_examples, a 110-byte tagged header with a trailing CRC-16 field).
// No ecosystem CRC16-CCITT library exists anywhere in the retrieved pack
// (only CRC-32 implementations, via hash/crc32 and the teacher's stellar
// FEC helper); the table-driven CRC16 below is therefore hand-rolled from
// the spec's exact polynomial, the same way the teacher hand-rolls its
// XOR-fold FEC rather than reach for an external coding library.
package frame

// crc16Poly is the CCITT polynomial 0x1021, initial value 0x0000, no
// reflection, no final XOR (spec §4.1).
const crc16Poly = 0x1021

var crc16Table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for b := 0; b < 8; b++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
		crc16Table[i] = crc
	}
}

// CRC16 computes CRC16-CCITT (poly 0x1021, init 0x0000) over b. An empty
// slice yields 0x0000, matching spec §4.1's boundary case.
func CRC16(b []byte) uint16 {
	var crc uint16
	for _, c := range b {
		crc = (crc << 8) ^ crc16Table[byte(crc>>8)^c]
	}
	return crc
}
