package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	cases := []*Request{
		{SequenceID: 1, Kind: KindHandshake, Capabilities: "flash_program", MaxPacketSize: 256},
		{SequenceID: 2, Kind: KindFlashProgramPrepare, TotalDataLength: 16, VerifyAfterProgram: true},
		{SequenceID: 3, Kind: KindData, Offset: 0, Data: []byte{1, 2, 3}, DataCRC32: 0x1234},
		{SequenceID: 4, Kind: KindFlashProgramVerify, VerifyAfterProgram: true},
	}
	for _, req := range cases {
		encoded := EncodeRequest(req)
		got, err := DecodeRequest(encoded)
		require.NoError(t, err)
		assert.Equal(t, req, got)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	cases := []*Response{
		{SequenceID: 1, Result: ResultSuccess, Kind: KindHandshakeAck, BootloaderVersion: "1.0.0", SupportedCapabilities: "flash_program", FlashPageSize: 2048, TargetFlashAddress: 0x08008000},
		{SequenceID: 2, Result: ResultSuccess, Kind: KindAck, Success: true, Message: "ok"},
		{SequenceID: 3, Result: ResultSuccess, Kind: KindFlashResult, BytesProgrammed: 16, ActualDataLength: 16, VerificationHash: [4]byte{0xAA, 0xBB, 0xCC, 0xDD}},
	}
	for _, resp := range cases {
		encoded := EncodeResponse(resp)
		got, err := DecodeResponse(encoded)
		require.NoError(t, err)
		assert.Equal(t, resp, got)
	}
}
