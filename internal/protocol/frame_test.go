package protocol

import (
	"bytes"
	"testing"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		msgType MessageType
		payload []byte
	}{
		{"text message", MsgTextMessage, []byte("hello mesh")},
		{"empty payload", MsgPing, nil},
		{"mesh relay", MsgMeshRelay, []byte(`{"original_message_id":"m1"}`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFrame(tc.msgType, tc.payload)
			encoded, err := f.Encode()
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			decoded, err := DecodeFrame(encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if decoded.Header.Type != tc.msgType {
				t.Fatalf("type mismatch: got %s want %s", decoded.Header.Type, tc.msgType)
			}
			if !bytes.Equal(decoded.Payload, tc.payload) {
				t.Fatalf("payload mismatch: got %v want %v", decoded.Payload, tc.payload)
			}
		})
	}
}

func TestDecodeFrame_TooShort(t *testing.T) {
	_, err := DecodeFrame([]byte{1, 2, 3})
	if err != ErrFrameTooShort {
		t.Fatalf("expected ErrFrameTooShort, got %v", err)
	}
}

func TestDecodeFrame_Truncated(t *testing.T) {
	f := NewFrame(MsgPing, []byte("0123456789"))
	encoded, err := f.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = DecodeFrame(encoded[:len(encoded)-5])
	if err != ErrFrameTruncated {
		t.Fatalf("expected ErrFrameTruncated, got %v", err)
	}
}

func TestDecodeFrame_UnknownType(t *testing.T) {
	f := NewFrame(MsgPing, nil)
	encoded, err := f.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	encoded[1] = 0xff
	if _, err := DecodeFrame(encoded); err == nil {
		t.Fatal("expected error for unknown message code")
	}
}

func TestRelayEligible(t *testing.T) {
	eligible := []MessageType{MsgTextMessage, MsgMeshRelay, MsgQueueSync, MsgRelayAck}
	for _, m := range eligible {
		if !RelayEligible(m) {
			t.Errorf("expected %s to be relay eligible", m)
		}
	}
	ineligible := []MessageType{MsgPing, MsgNoiseHandshake1, MsgPairingRequest}
	for _, m := range ineligible {
		if RelayEligible(m) {
			t.Errorf("expected %s to not be relay eligible", m)
		}
	}
}
