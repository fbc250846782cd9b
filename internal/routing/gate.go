// Package routing implements the message routing gate: the small
// inbound filter that discards a node's own echoed frames and frames
// mis-addressed to someone else before they reach any other subsystem.
package routing

// DropReason names why the gate rejected an inbound frame.
type DropReason string

const (
	DropSelfEcho                  DropReason = "self_echo"
	DropIntendedRecipientMismatch DropReason = "intended_recipient_mismatch"
)

// Verdict is the gate's decision for one inbound frame.
type Verdict struct {
	Accept bool
	Reason DropReason
}

func accept() Verdict { return Verdict{Accept: true} }
func reject(reason DropReason) Verdict { return Verdict{Accept: false, Reason: reason} }

// Gate filters inbound frames against a node's own public key.
type Gate struct {
	selfPublicKey string
}

// New creates a gate for selfPublicKey.
func New(selfPublicKey string) *Gate {
	return &Gate{selfPublicKey: selfPublicKey}
}

// Evaluate applies the four-step filter from the spec:
//  1. sender == self -> drop self_echo.
//  2. a non-empty intendedRecipient that isn't self -> drop.
//  3. an encrypted direct message with no intended recipient -> accept
//     (treated as direct-to-peer).
//  4. anything else -> accept, deliver upward.
func (g *Gate) Evaluate(senderPublicKey, intendedRecipient string, isEncryptedDirect bool) Verdict {
	if senderPublicKey == g.selfPublicKey {
		return reject(DropSelfEcho)
	}
	if intendedRecipient != "" && intendedRecipient != g.selfPublicKey {
		return reject(DropIntendedRecipientMismatch)
	}
	if isEncryptedDirect && intendedRecipient == "" {
		return accept()
	}
	return accept()
}
