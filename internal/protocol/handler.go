package protocol

import (
	"hash/crc32"

	"github.com/cockpitvm/hypervisor/internal/flash"
	"github.com/cockpitvm/hypervisor/internal/log"
	"github.com/cockpitvm/hypervisor/internal/vmerr"
)

// State is one of the bootloader session's protocol states (spec §4.4).
type State uint8

const (
	StateIdle State = iota
	StateHandshakeComplete
	StateReadyForData
	StateDataReceived
	StateProgrammingComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateHandshakeComplete:
		return "HANDSHAKE_COMPLETE"
	case StateReadyForData:
		return "READY_FOR_DATA"
	case StateDataReceived:
		return "DATA_RECEIVED"
	case StateProgrammingComplete:
		return "PROGRAMMING_COMPLETE"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

const (
	bootloaderVersion  = "1.0.0"
	supportedCaps      = "flash_program"
	maxPacketSizeLimit = 1024
	verifyMaxAttempts  = 3
)

// Handler drives the bootloader protocol state machine (C4): it decodes
// structured requests, validates preconditions, invokes the flash staging
// engine, and produces structured responses (spec §4.4).
type Handler struct {
	state State

	eng        *flash.Engine
	reader     flash.Reader
	pageSize   uint32
	targetAddr uint32

	expectedLength uint32
	dataLength     uint32
}

// NewHandler wires a message handler to a flash staging engine and the
// page/address layout it programs against.
func NewHandler(eng *flash.Engine, reader flash.Reader, pageSize, targetAddr uint32) *Handler {
	return &Handler{
		state:      StateIdle,
		eng:        eng,
		reader:     reader,
		pageSize:   pageSize,
		targetAddr: targetAddr,
	}
}

// State returns the handler's current protocol state.
func (h *Handler) State() State {
	return h.state
}

// Reset returns the handler to IDLE without tearing down the underlying
// transport (spec §4.5: a soft session reset clears protocol and staging
// state only).
func (h *Handler) Reset() {
	h.state = StateIdle
	h.expectedLength = 0
	h.dataLength = 0
	h.eng.Init(h.targetAddr)
}

// Handle dispatches req against the current state, returning the response
// to transmit. Every failure, including a flash failure, is carried in the
// response's Result field (spec §7); Handle has no separate error return.
func (h *Handler) Handle(req *Request) *Response {
	switch req.Kind {
	case KindHandshake:
		return h.handleHandshake(req)
	case KindFlashProgramPrepare:
		return h.handlePrepare(req)
	case KindData:
		return h.handleData(req)
	case KindFlashProgramVerify:
		return h.handleVerify(req)
	default:
		log.Dump("unknown request kind received", req)
		return errorAck(req.SequenceID, ResultInvalidRequest, "unknown request kind")
	}
}

func (h *Handler) handleHandshake(req *Request) *Response {
	if h.state != StateIdle {
		return errorAck(req.SequenceID, ResultInvalidRequest, "handshake only valid from IDLE")
	}
	if req.Capabilities != supportedCaps {
		return errorAck(req.SequenceID, ResultInvalidRequest, "unsupported capabilities")
	}
	if req.MaxPacketSize > maxPacketSizeLimit {
		return &Response{
			SequenceID: req.SequenceID,
			Result:     ResultInvalidRequest,
			Kind:       KindAck,
			Success:    false,
			Message:    "max_packet_size exceeds limit",
		}
	}
	h.state = StateHandshakeComplete
	return &Response{
		SequenceID:            req.SequenceID,
		Result:                ResultSuccess,
		Kind:                  KindHandshakeAck,
		BootloaderVersion:     bootloaderVersion,
		SupportedCapabilities: supportedCaps,
		FlashPageSize:         h.pageSize,
		TargetFlashAddress:    h.targetAddr,
	}
}

func (h *Handler) handlePrepare(req *Request) *Response {
	if h.state != StateHandshakeComplete {
		return errorAck(req.SequenceID, ResultInvalidRequest, "prepare requires HANDSHAKE_COMPLETE")
	}
	if req.TotalDataLength == 0 || req.TotalDataLength > maxPacketSizeLimit {
		return errorAck(req.SequenceID, ResultInvalidRequest, "total_data_length out of range")
	}

	h.eng.Init(h.targetAddr)
	if err := h.eng.Stage(nil); err != nil { // triggers the lazy page erase
		return errorAck(req.SequenceID, ResultFlashOperation, vmerr.KindOf(err).String())
	}
	h.expectedLength = req.TotalDataLength
	h.state = StateReadyForData
	return successAck(req.SequenceID)
}

func (h *Handler) handleData(req *Request) *Response {
	if h.state != StateReadyForData {
		return errorAck(req.SequenceID, ResultInvalidRequest, "data requires READY_FOR_DATA")
	}
	if req.Offset != 0 || uint32(len(req.Data)) != h.expectedLength {
		return errorAck(req.SequenceID, ResultInvalidRequest, "single-packet data must match expected length")
	}
	if crc32.ChecksumIEEE(req.Data) != req.DataCRC32 {
		return &Response{SequenceID: req.SequenceID, Result: ResultDataCorruption, Kind: KindAck, Success: false, Message: "data CRC32 mismatch"}
	}
	if err := h.eng.Stage(req.Data); err != nil {
		return errorAck(req.SequenceID, ResultFlashOperation, vmerr.KindOf(err).String())
	}
	h.dataLength = uint32(len(req.Data))
	h.state = StateDataReceived
	return successAck(req.SequenceID)
}

func (h *Handler) handleVerify(req *Request) *Response {
	if h.state != StateDataReceived {
		return errorAck(req.SequenceID, ResultInvalidRequest, "verify requires DATA_RECEIVED")
	}

	var lastErr error
	for attempt := 0; attempt < verifyMaxAttempts; attempt++ {
		if err := h.eng.Flush(); err != nil {
			lastErr = err
			h.eng.Init(h.targetAddr)
			continue
		}
		got, err := h.reader.ReadFlash(h.targetAddr, int(h.dataLength))
		if err != nil {
			lastErr = err
			h.eng.Init(h.targetAddr)
			continue
		}
		if allOnesBytes(got) {
			lastErr = vmerr.New(vmerr.FlashOperation)
			h.eng.Init(h.targetAddr)
			continue
		}
		hash := crc32.ChecksumIEEE(got)
		var hb [4]byte
		hb[0] = byte(hash >> 24)
		hb[1] = byte(hash >> 16)
		hb[2] = byte(hash >> 8)
		hb[3] = byte(hash)

		h.state = StateProgrammingComplete
		return &Response{
			SequenceID:        req.SequenceID,
			Result:            ResultSuccess,
			Kind:              KindFlashResult,
			BytesProgrammed:  h.eng.BytesProgrammed(),
			ActualDataLength: h.dataLength,
			VerificationHash: hb,
		}
	}
	log.Error("flash verify failed after retries", "err", lastErr, "attempts", verifyMaxAttempts)
	return errorAck(req.SequenceID, ResultFlashOperation, "verify failed after retries: "+vmerr.KindOf(lastErr).String())
}

func allOnesBytes(b []byte) bool {
	for _, c := range b {
		if c != 0xFF {
			return false
		}
	}
	return len(b) > 0
}

func successAck(seq uint32) *Response {
	return &Response{SequenceID: seq, Result: ResultSuccess, Kind: KindAck, Success: true}
}

func errorAck(seq uint32, result ResultCode, msg string) *Response {
	return &Response{SequenceID: seq, Result: result, Kind: KindAck, Success: false, Message: msg}
}
