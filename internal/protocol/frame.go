package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the on-wire frame header length: version(1) + type(1) +
// reserved(2) + payload length(4).
const HeaderSize = 8

var (
	// ErrFrameTooShort is returned when a buffer is too small to hold a header.
	ErrFrameTooShort = errors.New("protocol: frame too short for header")
	// ErrFrameTruncated is returned when the declared payload length exceeds the buffer.
	ErrFrameTruncated = errors.New("protocol: frame truncated")
)

// Header is the fixed 8-byte frame header. Framing itself (splitting a
// byte stream into discrete frames) is the transport's responsibility;
// this header only identifies the payload once a frame boundary is known.
type Header struct {
	Version  uint8
	Type     MessageType
	Reserved uint16
	Length   uint32
}

// Frame pairs a header with its payload.
type Frame struct {
	Header  Header
	Payload []byte
}

var typeCodes = map[MessageType]uint8{
	MsgConnectionReady: 1,
	MsgIdentity:        2,
	MsgNoiseHandshake1: 3,
	MsgNoiseHandshake2: 4,
	MsgNoiseHandshake3: 5,
	MsgPairingRequest:  6,
	MsgPairingAccept:   7,
	MsgPairingCode:     8,
	MsgPairingCancel:   9,
	MsgContactRequest:  10,
	MsgContactAccept:   11,
	MsgContactReject:   12,
	MsgPing:            13,
	MsgAck:             14,
	MsgTextMessage:     15,
	MsgMeshRelay:       16,
	MsgQueueSync:       17,
	MsgRelayAck:        18,
}

var codeTypes = func() map[uint8]MessageType {
	m := make(map[uint8]MessageType, len(typeCodes))
	for t, c := range typeCodes {
		m[c] = t
	}
	return m
}()

// Encode serializes the frame into a single length-delimited byte slice.
func (f *Frame) Encode() ([]byte, error) {
	code, ok := typeCodes[f.Header.Type]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown message type %q", f.Header.Type)
	}
	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = ProtocolVersion
	buf[1] = code
	binary.BigEndian.PutUint16(buf[2:4], f.Header.Reserved)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf, nil
}

// DecodeFrame parses a complete frame from raw bytes.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, ErrFrameTooShort
	}
	version := data[0]
	code := data[1]
	reserved := binary.BigEndian.Uint16(data[2:4])
	length := binary.BigEndian.Uint32(data[4:8])
	if uint32(len(data)-HeaderSize) < length {
		return nil, ErrFrameTruncated
	}
	t, ok := codeTypes[code]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown message code 0x%02x", code)
	}
	return &Frame{
		Header: Header{
			Version:  version,
			Type:     t,
			Reserved: reserved,
			Length:   length,
		},
		Payload: data[HeaderSize : HeaderSize+length],
	}, nil
}

// NewFrame builds a frame of the given type carrying payload.
func NewFrame(t MessageType, payload []byte) *Frame {
	return &Frame{
		Header:  Header{Version: ProtocolVersion, Type: t, Length: uint32(len(payload))},
		Payload: payload,
	}
}
