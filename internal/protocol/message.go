// Package protocol implements CockpitVM's message handler (C4) and
// protocol engine (C5): the bootloader session state machine, its wire
// messages, and the foreground receive loop that drives it (spec §4.4,
// §4.5, §6). Wire encoding is grounded on the teacher's rlp package — a
// tagged, length-delimited encoding discipline — adapted here to
// google.golang.org/protobuf/encoding/protowire's hand-keyed tag/varint
// primitives instead of rlp's own scheme, since the wire messages are
// explicitly specified as protobuf-shaped records (spec §6) rather than
// RLP lists; no .proto files or generated code are used, matching how the
// teacher reaches for rlp.Encode/Decode directly against Go structs rather
// than an IDL pipeline.
package protocol

import (
	"github.com/cockpitvm/hypervisor/internal/vmerr"
	"google.golang.org/protobuf/encoding/protowire"
)

// ResultCode mirrors the protocol's response result enum (spec §6).
type ResultCode uint8

const (
	ResultSuccess ResultCode = iota
	ResultInvalidRequest
	ResultDataCorruption
	ResultFlashOperation
	ResultCommunication
)

// Field numbers shared across every message (spec §6: every request/response
// carries sequence_id; responses additionally carry result).
const (
	fieldSequenceID protowire.Number = 1
	fieldResult     protowire.Number = 2
	fieldKind       protowire.Number = 3
	// Type-specific fields start at 10; since exactly one request/response
	// kind is encoded per message, field numbers may be reused across kinds
	// without ambiguity.
	fieldA protowire.Number = 10
	fieldB protowire.Number = 11
	fieldC protowire.Number = 12
	fieldD protowire.Number = 13
)

// RequestKind tags which of the four request shapes a Request carries.
type RequestKind uint8

const (
	KindHandshake RequestKind = iota
	KindFlashProgramPrepare
	KindData
	KindFlashProgramVerify
)

// Request is the decoded form of any client-to-bootloader message (spec
// §4.4, §6).
type Request struct {
	SequenceID uint32
	Kind       RequestKind

	// Handshake
	Capabilities  string
	MaxPacketSize uint32

	// FlashProgramPrepare
	TotalDataLength    uint32
	VerifyAfterProgram bool

	// Data
	Offset    uint32
	Data      []byte
	DataCRC32 uint32
}

// ResponseKind tags which of the three response shapes a Response carries.
type ResponseKind uint8

const (
	KindHandshakeAck ResponseKind = iota
	KindAck
	KindFlashResult
)

// Response is the decoded form of any bootloader-to-client message (spec
// §4.4, §6).
type Response struct {
	SequenceID uint32
	Result     ResultCode
	Kind       ResponseKind

	// HandshakeAck
	BootloaderVersion     string
	SupportedCapabilities string
	FlashPageSize         uint32
	TargetFlashAddress    uint32

	// Ack
	Success bool
	Message string

	// FlashResult
	BytesProgrammed  uint32
	ActualDataLength uint32
	VerificationHash [4]byte
}

// EncodeRequest serializes req using hand-keyed protobuf wire tags.
func EncodeRequest(req *Request) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSequenceID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(req.SequenceID))
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(req.Kind))

	switch req.Kind {
	case KindHandshake:
		b = appendString(b, fieldA, req.Capabilities)
		b = appendVarint(b, fieldB, uint64(req.MaxPacketSize))
	case KindFlashProgramPrepare:
		b = appendVarint(b, fieldA, uint64(req.TotalDataLength))
		b = appendBool(b, fieldB, req.VerifyAfterProgram)
	case KindData:
		b = appendVarint(b, fieldA, uint64(req.Offset))
		b = appendBytes(b, fieldB, req.Data)
		b = appendVarint(b, fieldC, uint64(req.DataCRC32))
	case KindFlashProgramVerify:
		b = appendBool(b, fieldA, req.VerifyAfterProgram)
	}
	return b
}

// DecodeRequest parses bytes produced by EncodeRequest.
func DecodeRequest(b []byte) (*Request, error) {
	req := &Request{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, vmerr.New(vmerr.ProtobufDecode)
		}
		b = b[n:]
		switch num {
		case fieldSequenceID:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			req.SequenceID = uint32(v)
			b = b[n:]
		case fieldKind:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			req.Kind = RequestKind(v)
			b = b[n:]
		case fieldA:
			n, err := decodeRequestFieldA(req, b, typ)
			if err != nil {
				return nil, err
			}
			b = b[n:]
		case fieldB:
			n, err := decodeRequestFieldB(req, b, typ)
			if err != nil {
				return nil, err
			}
			b = b[n:]
		case fieldC:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			req.DataCRC32 = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, vmerr.New(vmerr.ProtobufDecode)
			}
			b = b[n:]
		}
	}
	return req, nil
}

func decodeRequestFieldA(req *Request, b []byte, typ protowire.Type) (int, error) {
	switch req.Kind {
	case KindHandshake:
		s, n, err := consumeString(b, typ)
		if err != nil {
			return 0, err
		}
		req.Capabilities = s
		return n, nil
	case KindFlashProgramPrepare:
		v, n, err := consumeVarint(b, typ)
		if err != nil {
			return 0, err
		}
		req.TotalDataLength = uint32(v)
		return n, nil
	case KindData:
		v, n, err := consumeVarint(b, typ)
		if err != nil {
			return 0, err
		}
		req.Offset = uint32(v)
		return n, nil
	case KindFlashProgramVerify:
		v, n, err := consumeVarint(b, typ)
		if err != nil {
			return 0, err
		}
		req.VerifyAfterProgram = v != 0
		return n, nil
	}
	return 0, vmerr.New(vmerr.ProtobufDecode)
}

func decodeRequestFieldB(req *Request, b []byte, typ protowire.Type) (int, error) {
	switch req.Kind {
	case KindHandshake:
		v, n, err := consumeVarint(b, typ)
		if err != nil {
			return 0, err
		}
		req.MaxPacketSize = uint32(v)
		return n, nil
	case KindFlashProgramPrepare:
		v, n, err := consumeVarint(b, typ)
		if err != nil {
			return 0, err
		}
		req.VerifyAfterProgram = v != 0
		return n, nil
	case KindData:
		v, n, err := consumeBytes(b, typ)
		if err != nil {
			return 0, err
		}
		req.Data = v
		return n, nil
	}
	return 0, vmerr.New(vmerr.ProtobufDecode)
}

// EncodeResponse serializes resp using hand-keyed protobuf wire tags.
func EncodeResponse(resp *Response) []byte {
	var b []byte
	b = appendVarint(b, fieldSequenceID, uint64(resp.SequenceID))
	b = appendVarint(b, fieldResult, uint64(resp.Result))
	b = appendVarint(b, fieldKind, uint64(resp.Kind))

	switch resp.Kind {
	case KindHandshakeAck:
		b = appendString(b, fieldA, resp.BootloaderVersion)
		b = appendString(b, fieldB, resp.SupportedCapabilities)
		b = appendVarint(b, fieldC, uint64(resp.FlashPageSize))
		b = appendVarint(b, fieldD, uint64(resp.TargetFlashAddress))
	case KindAck:
		b = appendBool(b, fieldA, resp.Success)
		b = appendString(b, fieldB, resp.Message)
	case KindFlashResult:
		b = appendVarint(b, fieldA, uint64(resp.BytesProgrammed))
		b = appendVarint(b, fieldB, uint64(resp.ActualDataLength))
		b = appendBytes(b, fieldC, resp.VerificationHash[:])
	}
	return b
}

// DecodeResponse parses bytes produced by EncodeResponse.
func DecodeResponse(b []byte) (*Response, error) {
	resp := &Response{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, vmerr.New(vmerr.ProtobufDecode)
		}
		b = b[n:]
		switch num {
		case fieldSequenceID:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			resp.SequenceID = uint32(v)
			b = b[n:]
		case fieldResult:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			resp.Result = ResultCode(v)
			b = b[n:]
		case fieldKind:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			resp.Kind = ResponseKind(v)
			b = b[n:]
		case fieldA:
			n, err := decodeResponseFieldA(resp, b, typ)
			if err != nil {
				return nil, err
			}
			b = b[n:]
		case fieldB:
			n, err := decodeResponseFieldB(resp, b, typ)
			if err != nil {
				return nil, err
			}
			b = b[n:]
		case fieldC:
			n, err := decodeResponseFieldC(resp, b, typ)
			if err != nil {
				return nil, err
			}
			b = b[n:]
		case fieldD:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			resp.TargetFlashAddress = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, vmerr.New(vmerr.ProtobufDecode)
			}
			b = b[n:]
		}
	}
	return resp, nil
}

func decodeResponseFieldA(resp *Response, b []byte, typ protowire.Type) (int, error) {
	switch resp.Kind {
	case KindHandshakeAck:
		s, n, err := consumeString(b, typ)
		if err != nil {
			return 0, err
		}
		resp.BootloaderVersion = s
		return n, nil
	case KindAck:
		v, n, err := consumeVarint(b, typ)
		if err != nil {
			return 0, err
		}
		resp.Success = v != 0
		return n, nil
	case KindFlashResult:
		v, n, err := consumeVarint(b, typ)
		if err != nil {
			return 0, err
		}
		resp.BytesProgrammed = uint32(v)
		return n, nil
	}
	return 0, vmerr.New(vmerr.ProtobufDecode)
}

func decodeResponseFieldB(resp *Response, b []byte, typ protowire.Type) (int, error) {
	switch resp.Kind {
	case KindHandshakeAck:
		s, n, err := consumeString(b, typ)
		if err != nil {
			return 0, err
		}
		resp.SupportedCapabilities = s
		return n, nil
	case KindAck:
		s, n, err := consumeString(b, typ)
		if err != nil {
			return 0, err
		}
		resp.Message = s
		return n, nil
	case KindFlashResult:
		v, n, err := consumeVarint(b, typ)
		if err != nil {
			return 0, err
		}
		resp.ActualDataLength = uint32(v)
		return n, nil
	}
	return 0, vmerr.New(vmerr.ProtobufDecode)
}

func decodeResponseFieldC(resp *Response, b []byte, typ protowire.Type) (int, error) {
	switch resp.Kind {
	case KindHandshakeAck:
		v, n, err := consumeVarint(b, typ)
		if err != nil {
			return 0, err
		}
		resp.FlashPageSize = uint32(v)
		return n, nil
	case KindFlashResult:
		v, n, err := consumeBytes(b, typ)
		if err != nil {
			return 0, err
		}
		copy(resp.VerificationHash[:], v)
		return n, nil
	}
	return 0, vmerr.New(vmerr.ProtobufDecode)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	n := uint64(0)
	if v {
		n = 1
	}
	return appendVarint(b, num, n)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func consumeVarint(b []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, vmerr.New(vmerr.ProtobufDecode)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, vmerr.New(vmerr.ProtobufDecode)
	}
	return v, n, nil
}

func consumeBytes(b []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, vmerr.New(vmerr.ProtobufDecode)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, vmerr.New(vmerr.ProtobufDecode)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, n, nil
}

func consumeString(b []byte, typ protowire.Type) (string, int, error) {
	v, n, err := consumeBytes(b, typ)
	if err != nil {
		return "", 0, err
	}
	return string(v), n, nil
}
