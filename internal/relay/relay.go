// Package relay implements the mesh relay engine: wrapping outgoing
// messages for multi-hop delivery, deciding what to do with an
// incoming relay frame (deliver, forward, drop, or reflect an ACK),
// and enforcing loop-freedom and TTL along the way.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/meshline/meshcore/internal/policy"
	"github.com/meshline/meshcore/internal/protocol"
	"github.com/meshline/meshcore/internal/queue"
)

var errLoopDetected = errors.New("relay: node already present in routing path")

// DecisionKind tags the variant held by a RelayDecision.
type DecisionKind int

const (
	DecisionDelivered DecisionKind = iota
	DecisionRelayed
	DecisionDropped
	DecisionAckReflected
)

// RelayDecision is the sum-type result of processing an incoming relay
// frame. Only the fields relevant to Kind are populated.
type RelayDecision struct {
	Kind    DecisionKind
	Content []byte                 // DecisionDelivered
	NextHop string                 // DecisionRelayed, DecisionAckReflected
	Reason  protocol.RejectionCode // DecisionDropped
}

func delivered(content []byte) RelayDecision {
	return RelayDecision{Kind: DecisionDelivered, Content: content}
}

func relayed(nextHop string) RelayDecision {
	return RelayDecision{Kind: DecisionRelayed, NextHop: nextHop}
}

func dropped(reason protocol.RejectionCode) RelayDecision {
	return RelayDecision{Kind: DecisionDropped, Reason: reason}
}

func ackReflected(nextHop string) RelayDecision {
	return RelayDecision{Kind: DecisionAckReflected, NextHop: nextHop}
}

// MeshRelayMessage wraps an opaque application payload for multi-hop
// transit. The relay engine never inspects OriginalContent.
type MeshRelayMessage struct {
	OriginalMessageID string   `json:"original_message_id"`
	OriginalContent   []byte   `json:"original_content"`
	Metadata          Metadata `json:"metadata"`
	RelayNodeID       string   `json:"relay_node_id"`
}

// AckFrame is the wire payload of a relay_ack frame: the original
// message id plus the reversed routing path still to traverse.
type AckFrame struct {
	OriginalMessageID string   `json:"original_message_id"`
	AckRoutingPath    []string `json:"ack_routing_path"`
}

// Statistics summarizes engine activity since the engine was created.
type Statistics struct {
	TotalRelayed   int
	TotalDelivered int
	TotalDropped   int
	DropsByReason  map[protocol.RejectionCode]int
}

// RelayEfficiency is TotalRelayed / (TotalRelayed + TotalDropped), or 0
// when no frames have been processed yet.
func (s Statistics) RelayEfficiency() float64 {
	total := s.TotalRelayed + s.TotalDropped
	if total == 0 {
		return 0
	}
	return float64(s.TotalRelayed) / float64(total)
}

// Engine is the mesh relay engine bound to one node identity.
type Engine struct {
	self      string
	cfg       *policy.RelayConfig
	spam      *policy.SpamPolicy
	queue     *queue.Queue
	onDeliver func(originalMessageID string, content []byte)

	mu    sync.Mutex
	stats Statistics
}

// New creates a relay engine for self, consulting cfg for
// enable/disable and hop ceiling, spam for duplicate/rate policy, and
// enqueuing forwarded and ACK frames into q. onDeliver is invoked for
// every frame addressed to self.
func New(self string, cfg *policy.RelayConfig, spam *policy.SpamPolicy, q *queue.Queue, onDeliver func(messageID string, content []byte)) *Engine {
	return &Engine{
		self:      self,
		cfg:       cfg,
		spam:      spam,
		queue:     q,
		onDeliver: onDeliver,
		stats:     Statistics{DropsByReason: make(map[protocol.RejectionCode]int)},
	}
}

// CreateOutgoingRelay wraps a message this node originates: routing
// path = [self], hop_count = 1, stamped with the current TTL ceiling.
func (e *Engine) CreateOutgoingRelay(originalMessageID string, originalContent []byte, finalRecipientPK string, priority queue.Priority) MeshRelayMessage {
	md := NewOutgoingMetadata(e.self, finalRecipientPK, priority, e.cfg.MaxRelayHops(), originalContent)
	return MeshRelayMessage{
		OriginalMessageID: originalMessageID,
		OriginalContent:   originalContent,
		Metadata:          md,
		RelayNodeID:       e.self,
	}
}

// ProcessIncomingRelay decides what to do with a relay frame received
// from fromNode, given the set of peers currently reachable for
// forwarding.
func (e *Engine) ProcessIncomingRelay(ctx context.Context, msg MeshRelayMessage, fromNode string, availableNextHops []string) (RelayDecision, error) {
	md := msg.Metadata

	if md.OriginalSender == e.self {
		return e.record(dropped(protocol.RejectSelfOriginated)), nil
	}
	if md.HasNodeInPath(e.self) {
		return e.record(dropped(protocol.RejectLoopDetected)), nil
	}

	switch e.spam.Evaluate(md.OriginalSender, md.MessageHash) {
	case policy.VerdictDropDuplicate:
		return e.record(dropped(protocol.RejectDuplicate)), nil
	case policy.VerdictDropRateLimited:
		return e.record(dropped(protocol.RejectSpam)), nil
	}

	if md.FinalRecipient == e.self {
		e.mu.Lock()
		e.stats.TotalDelivered++
		e.mu.Unlock()
		if e.onDeliver != nil {
			e.onDeliver(msg.OriginalMessageID, msg.OriginalContent)
		}
		if len(md.RoutingPath) > 0 {
			e.reflectAck(ctx, msg.OriginalMessageID, md.AckRoutingPath())
		}
		return delivered(msg.OriginalContent), nil
	}

	if !e.cfg.Enabled() {
		return e.record(dropped(protocol.RejectNoRoute)), nil
	}
	if md.HopCount >= md.TTL || md.HopCount >= e.cfg.MaxRelayHops() {
		return e.record(dropped(protocol.RejectTTLExceeded)), nil
	}

	nextHop, ok := e.chooseNextHop(md, availableNextHops)
	if !ok {
		return e.record(dropped(protocol.RejectNoRoute)), nil
	}

	forwarded := msg
	forwarded.Metadata = md.WithHop(e.self)
	forwarded.RelayNodeID = e.self

	if e.queue != nil {
		payload, err := json.Marshal(forwarded)
		if err == nil {
			frame := protocol.NewFrame(protocol.MsgMeshRelay, payload)
			encoded, encErr := frame.Encode()
			if encErr == nil {
				_, _ = e.queue.Enqueue(ctx, "", encoded, nextHop, e.self, md.Priority, msg.OriginalMessageID+":relay:"+nextHop, md.MessageHash)
			}
		}
	}

	e.mu.Lock()
	e.stats.TotalRelayed++
	e.mu.Unlock()
	return relayed(nextHop), nil
}

// chooseNextHop prefers final_recipient when reachable, otherwise any
// neighbor not already on the routing path, broken deterministically
// by sorted identifier so tests are reproducible.
func (e *Engine) chooseNextHop(md Metadata, availableNextHops []string) (string, bool) {
	for _, hop := range availableNextHops {
		if hop == md.FinalRecipient && !md.HasNodeInPath(hop) {
			return hop, true
		}
	}
	candidates := make([]string, 0, len(availableNextHops))
	for _, hop := range availableNextHops {
		if !md.HasNodeInPath(hop) {
			candidates = append(candidates, hop)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

// reflectAck enqueues an ack frame carrying the full ack routing path
// (reverse(routing_path) as observed at the final recipient) addressed
// to its first entry, the hop adjacent to us.
func (e *Engine) reflectAck(ctx context.Context, originalMessageID string, ackRoutingPath []string) {
	if e.queue == nil || len(ackRoutingPath) == 0 {
		return
	}
	e.sendAck(ctx, originalMessageID, ackRoutingPath, ackRoutingPath[0])
}

// ProcessIncomingAck resolves self's own awaiting-ack entry for
// originalMessageID, then advances the ack one more hop along
// ackRoutingPath — the entry immediately after self is the next hop
// toward the originator. If self is the last entry (the originator) or
// is not found on the path, there is nothing further to forward.
func (e *Engine) ProcessIncomingAck(ctx context.Context, originalMessageID string, ackRoutingPath []string) (RelayDecision, error) {
	if e.queue != nil {
		_ = e.queue.OnAck(ctx, originalMessageID, e.self)
	}

	idx := -1
	for i, node := range ackRoutingPath {
		if node == e.self {
			idx = i
			break
		}
	}
	if idx == -1 || idx == len(ackRoutingPath)-1 {
		return RelayDecision{Kind: DecisionAckReflected}, nil
	}
	nextHop := ackRoutingPath[idx+1]
	e.sendAck(ctx, originalMessageID, ackRoutingPath, nextHop)
	return ackReflected(nextHop), nil
}

func (e *Engine) sendAck(ctx context.Context, originalMessageID string, ackRoutingPath []string, nextHop string) {
	if e.queue == nil {
		return
	}
	payload, err := json.Marshal(AckFrame{OriginalMessageID: originalMessageID, AckRoutingPath: ackRoutingPath})
	if err != nil {
		return
	}
	frame := protocol.NewFrame(protocol.MsgRelayAck, payload)
	encoded, err := frame.Encode()
	if err != nil {
		return
	}
	_, _ = e.queue.Enqueue(ctx, "", encoded, nextHop, e.self, queue.PriorityHigh, originalMessageID+":ack:"+nextHop, HashContent(encoded))
}

func (e *Engine) record(d RelayDecision) RelayDecision {
	if d.Kind == DecisionDropped {
		e.mu.Lock()
		e.stats.TotalDropped++
		e.stats.DropsByReason[d.Reason]++
		e.mu.Unlock()
	}
	return d
}

// Statistics returns a snapshot of relay activity.
func (e *Engine) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.stats
	cp.DropsByReason = make(map[protocol.RejectionCode]int, len(e.stats.DropsByReason))
	for k, v := range e.stats.DropsByReason {
		cp.DropsByReason[k] = v
	}
	return cp
}
