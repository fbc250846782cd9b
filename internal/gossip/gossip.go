// Package gossip implements the gossip sync manager: it tracks the
// latest relay announcement per sender, answers sync requests by
// comparing queue-hash digests, and re-broadcasts announcements a peer
// is missing.
package gossip

import (
	"context"
	"sync"
	"time"

	"github.com/meshline/meshcore/internal/queue"
	"github.com/meshline/meshcore/internal/relay"
)

// AnnouncementKind distinguishes a gossip-tracked announcement from an
// ordinary broadcast, which this manager ignores (the offline queue
// owns ordinary broadcast delivery).
type AnnouncementKind string

const (
	KindAnnounce  AnnouncementKind = "announce"
	KindBroadcast AnnouncementKind = "broadcast"
)

// StaleAfter is how long an announcement remains eligible for
// re-broadcast before it is suppressed as stale.
const StaleAfter = 12 * time.Hour

// Announcement is the latest relay frame observed for one sender.
type Announcement struct {
	SenderID     string
	MessageID    string
	RelayMessage relay.MeshRelayMessage
	ObservedAt   time.Time
}

// SyncRequest is the payload of a queue_sync frame: the peer's known
// message ids and its queue digest.
type SyncRequest struct {
	MessageIDs []string
	NodeID     string
	QueueHash  string
}

// SendFunc ships a frame to a specific peer, used both for announcement
// re-broadcast and for the manager's own initial sync requests.
type SendFunc func(ctx context.Context, peer string, frame []byte)

// Manager owns the gossip actor loop and the per-sender announcement
// table.
type Manager struct {
	self   string
	q      *queue.Queue
	onSend SendFunc
	now    func() time.Time

	mu            sync.Mutex
	announcements map[string]Announcement

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a gossip manager for self, backed by q for digest and
// missing-id computation, shipping frames via onSend.
func New(self string, q *queue.Queue, onSend SendFunc) *Manager {
	return &Manager{
		self:          self,
		q:             q,
		onSend:        onSend,
		now:           time.Now,
		announcements: make(map[string]Announcement),
	}
}

// Start launches the maintenance loop that prunes stale announcements.
// Calling Start twice without an intervening Stop is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.maintenanceLoop(loopCtx)
}

// Stop halts the maintenance loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

func (m *Manager) maintenanceLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pruneStale()
		}
	}
}

func (m *Manager) pruneStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for sender, ann := range m.announcements {
		if now.Sub(ann.ObservedAt) >= StaleAfter {
			delete(m.announcements, sender)
		}
	}
}

// ScheduleInitialSync fires an initial sync request to every known
// peer after delay has elapsed, giving newly-connected peers time to
// settle before the first exchange. buildFrame encodes one SyncRequest
// into a queue_sync wire frame.
func (m *Manager) ScheduleInitialSync(ctx context.Context, delay time.Duration, peers func() []string, req SyncRequest, buildFrame func(SyncRequest) []byte) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if peers == nil || m.onSend == nil || buildFrame == nil {
			return
		}
		frame := buildFrame(req)
		for _, p := range peers() {
			m.onSend(ctx, p, frame)
		}
	}()
}

// TrackPublicMessage records a newly observed relay frame. Only
// "announce" kind frames are retained — "broadcast" is the offline
// queue's concern and is ignored here. Announcements older than
// StaleAfter are suppressed on arrival; a fresh announcement for a
// sender always evicts that sender's previous one.
func (m *Manager) TrackPublicMessage(messageID string, rm relay.MeshRelayMessage, kind AnnouncementKind) {
	if kind != KindAnnounce {
		return
	}
	now := m.now()
	if now.Sub(rm.Metadata.RelayTimestamp) >= StaleAfter {
		return
	}
	ann := Announcement{
		SenderID:     rm.Metadata.OriginalSender,
		MessageID:    messageID,
		RelayMessage: rm,
		ObservedAt:   now,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announcements[ann.SenderID] = ann
}

// RemoveAnnouncementForPeer evicts the tracked announcement for sender,
// used when a contact is removed or explicitly acknowledged out of band.
func (m *Manager) RemoveAnnouncementForPeer(sender string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.announcements, sender)
}

// Clear drops every tracked announcement.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announcements = make(map[string]Announcement)
}

// SyncResult reports what HandleSyncRequest did.
type SyncResult struct {
	// Matched is true when the peer's queue hash already equalled ours
	// and nothing was sent.
	Matched bool
	// SentAnnouncements lists the sender ids whose announcement frame
	// was shipped to the peer.
	SentAnnouncements []string
	// MissingMessageIDs lists queued message ids the peer lacks, left
	// for the caller to deliver via the offline queue's own flush.
	MissingMessageIDs []string
}

// HandleSyncRequest answers a queue_sync request from fromPeer. If the
// peer's queue hash matches ours, nothing is emitted. Otherwise every
// locally-held announcement is shipped to the peer (announcements are
// always sent ahead of ordinary queued messages of equal priority,
// since they are emitted synchronously inside this call before the
// caller's own flush runs), and the queue's locally-missing ids are
// returned for the caller to deliver separately.
func (m *Manager) HandleSyncRequest(ctx context.Context, fromPeer string, req SyncRequest) (SyncResult, error) {
	localHash, err := m.q.Hash(ctx, false)
	if err != nil {
		return SyncResult{}, err
	}
	if localHash == req.QueueHash {
		return SyncResult{Matched: true}, nil
	}

	missing, err := m.q.MissingIDs(ctx, req.MessageIDs)
	if err != nil {
		return SyncResult{}, err
	}

	m.mu.Lock()
	anns := make([]Announcement, 0, len(m.announcements))
	for _, a := range m.announcements {
		anns = append(anns, a)
	}
	m.mu.Unlock()

	sent := make([]string, 0, len(anns))
	for _, a := range anns {
		if m.onSend != nil {
			frame := encodeAnnouncement(a)
			m.onSend(ctx, fromPeer, frame)
		}
		sent = append(sent, a.SenderID)
	}

	return SyncResult{SentAnnouncements: sent, MissingMessageIDs: missing}, nil
}

func encodeAnnouncement(a Announcement) []byte {
	return a.RelayMessage.OriginalContent
}
