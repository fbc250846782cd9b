// Package protocol defines the wire message taxonomy exchanged between
// mesh nodes and the request/response types used by the admin API.
package protocol

import "time"

// MessageType identifies the kind of payload carried by a Frame.
type MessageType string

const (
	MsgConnectionReady MessageType = "connection_ready"
	MsgIdentity        MessageType = "identity"
	MsgNoiseHandshake1 MessageType = "noise_handshake_1"
	MsgNoiseHandshake2 MessageType = "noise_handshake_2"
	MsgNoiseHandshake3 MessageType = "noise_handshake_3"
	MsgPairingRequest  MessageType = "pairing_request"
	MsgPairingAccept   MessageType = "pairing_accept"
	MsgPairingCode     MessageType = "pairing_code"
	MsgPairingCancel   MessageType = "pairing_cancel"
	MsgContactRequest  MessageType = "contact_request"
	MsgContactAccept   MessageType = "contact_accept"
	MsgContactReject   MessageType = "contact_reject"
	MsgPing            MessageType = "ping"
	MsgAck             MessageType = "ack"
	MsgTextMessage     MessageType = "text_message"
	MsgMeshRelay       MessageType = "mesh_relay"
	MsgQueueSync       MessageType = "queue_sync"
	MsgRelayAck        MessageType = "relay_ack"
)

// relayEligible is the fixed set of kinds the mesh relay engine may wrap
// and carry across hops. Every other enumerated kind is direct-peer-only.
var relayEligible = map[MessageType]bool{
	MsgTextMessage: true,
	MsgMeshRelay:   true,
	MsgQueueSync:   true,
	MsgRelayAck:    true,
}

// RelayEligible reports whether a message type may be relayed.
func RelayEligible(t MessageType) bool {
	return relayEligible[t]
}

// RejectionCode enumerates the reasons a frame or relay candidate can be
// rejected, exactly as named in the external interface contract.
type RejectionCode string

const (
	RejectMessageTypeNotEligible RejectionCode = "message_type_not_eligible"
	RejectNoRecipient            RejectionCode = "no_recipient"
	RejectTTLExceeded            RejectionCode = "ttl_exceeded"
	RejectSpam                   RejectionCode = "spam"
	RejectDuplicate              RejectionCode = "duplicate"
	RejectLoopDetected           RejectionCode = "loop_detected"
	RejectSelfOriginated         RejectionCode = "self_originated"
	RejectNoRoute                RejectionCode = "no_route"
)

// Message is the base envelope every control-plane JSON message shares.
type Message struct {
	Type MessageType `json:"type"`
}

// DirectMessage carries an encrypted or plaintext direct payload between
// two peers that can reach each other without relaying.
type DirectMessage struct {
	Type              MessageType `json:"type"`
	SenderPublicKey   string      `json:"sender_public_key"`
	IntendedRecipient string      `json:"intended_recipient,omitempty"`
	Payload           []byte      `json:"payload"`
}

// --- Admin API request/response types ---

// LoginRequest is the request body for admin authentication.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse contains the JWT token after successful login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RelayConfigUpdateRequest is the request body for tuning the relay config.
type RelayConfigUpdateRequest struct {
	Enabled          *bool `json:"enabled"`
	MaxRelayHops     *int  `json:"max_relay_hops"`
	BatteryThreshold *int  `json:"battery_threshold"`
}

// ContactView is the admin API's read model for a contact row.
type ContactView struct {
	EphemeralID   string    `json:"ephemeral_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	TrustStatus   string    `json:"trust_status"`
	SecurityLevel string    `json:"security_level"`
	SessionState  string    `json:"noise_session_state"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}
