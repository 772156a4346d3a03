package application

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/averlane/beatlink-cli/internal/adapters/realtime"
	"github.com/averlane/beatlink-cli/internal/domain"
	"github.com/averlane/beatlink-cli/internal/ports"
	"go.uber.org/zap"
)

// Inbound frame types. Hyphenated spellings are accepted as aliases since
// both appear across server versions.
const (
	typeUnreadNotifications    = "unread_notifications"
	typeInvitationNotification = "invitation_notification"
)

type backlogEntry struct {
	ID        int64     `json:"id"`
	NotifType string    `json:"notif_type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	SenderID  int64     `json:"sender_id"`
}

type backlogPayload struct {
	Notifications []backlogEntry `json:"notifications"`
}

type invitationPayload struct {
	InviteID       int64  `json:"invite_id"`
	Sender         string `json:"sender"`
	SenderID       int64  `json:"sender_id"`
	DraftbeatTitle string `json:"draftbeat_title"`
}

// Stream reconciles backlog snapshots and live pushes into the canonical
// notification list: unique by id, sorted by timestamp descending. The merge
// is deterministic for a fixed input set regardless of arrival interleaving,
// so repeated snapshots (reconnects) are harmless.
type Stream struct {
	clock  ports.Clock
	logger *zap.Logger

	mu        sync.Mutex
	entries   []domain.Notification
	listeners map[int]func()
	nextID    int
}

func NewStream(clock ports.Clock, logger *zap.Logger) *Stream {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Stream{
		clock:     clock,
		logger:    logger,
		listeners: make(map[int]func()),
	}
}

// Attach subscribes the stream to a channel's fan-out and returns the
// detach func.
func (s *Stream) Attach(ch *realtime.Channel) func() {
	id := ch.AddListener(s.Handle)
	return func() { ch.RemoveListener(id) }
}

// Handle consumes one raw frame. Unknown types are ignored without error.
func (s *Stream) Handle(msg realtime.Message) {
	switch normalizeType(msg.Type) {
	case typeUnreadNotifications:
		s.handleBacklog(msg.Raw)
	case typeInvitationNotification:
		s.handleInvitation(msg.Raw)
	}
}

func (s *Stream) handleBacklog(raw json.RawMessage) {
	var payload backlogPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warn("decode backlog snapshot", zap.Error(err))
		return
	}

	incoming := make([]domain.Notification, 0, len(payload.Notifications))
	for _, entry := range payload.Notifications {
		incoming = append(incoming, domain.Notification{
			ID:        entry.ID,
			Kind:      backlogKind(entry.NotifType),
			Message:   entry.Message,
			Timestamp: entry.Timestamp,
			SenderID:  entry.SenderID,
		})
	}

	s.apply(incoming)
}

func (s *Stream) handleInvitation(raw json.RawMessage) {
	var payload invitationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warn("decode invitation push", zap.Error(err))
		return
	}

	entry := domain.Notification{
		ID:         payload.InviteID,
		Kind:       domain.NotificationInvitation,
		Message:    fmt.Sprintf("%s invited you to collaborate on '%s'.", payload.Sender, payload.DraftbeatTitle),
		Timestamp:  s.clock.Now(),
		SenderID:   payload.SenderID,
		DraftTitle: payload.DraftbeatTitle,
		Live:       true,
	}

	s.apply([]domain.Notification{entry})
}

// apply merges and notifies. An empty incoming set still notifies: an empty
// backlog snapshot is an answer, and surfaces waiting on it must wake up.
func (s *Stream) apply(incoming []domain.Notification) {
	s.mu.Lock()
	s.entries = reconcile(s.entries, incoming)
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	snapshot := make([]func(), 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range snapshot {
		fn()
	}
}

// Snapshot returns a copy of the visible list, newest first.
func (s *Stream) Snapshot() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Notification, len(s.entries))
	copy(out, s.entries)
	return out
}

// Subscribe registers a list-changed callback. Any number of display
// surfaces may subscribe; all observe the same list.
func (s *Stream) Subscribe(fn func()) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.listeners[s.nextID] = fn
	return s.nextID
}

func (s *Stream) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
}

// reconcile merges incoming entries into the list. A duplicate id replaces
// the earlier entry in place; the combined list is re-sorted by timestamp
// descending (id descending on ties, for determinism).
func reconcile(existing, incoming []domain.Notification) []domain.Notification {
	byID := make(map[int64]domain.Notification, len(existing)+len(incoming))
	for _, entry := range existing {
		byID[entry.ID] = entry
	}
	for _, entry := range incoming {
		byID[entry.ID] = entry
	}

	merged := make([]domain.Notification, 0, len(byID))
	for _, entry := range byID {
		merged = append(merged, entry)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.After(merged[j].Timestamp)
		}
		return merged[i].ID > merged[j].ID
	})
	return merged
}

func normalizeType(messageType string) string {
	return strings.ReplaceAll(messageType, "-", "_")
}

func backlogKind(notifType string) domain.NotificationKind {
	switch notifType {
	case "invitation":
		return domain.NotificationInvitation
	case "":
		return domain.NotificationBacklog
	default:
		return domain.NotificationGeneric
	}
}
