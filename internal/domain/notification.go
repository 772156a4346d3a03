package domain

import "time"

type NotificationKind string

const (
	NotificationBacklog    NotificationKind = "backlog"
	NotificationInvitation NotificationKind = "invitation"
	NotificationGeneric    NotificationKind = "generic"
)

// Notification is one entry of the collaboration feed. Identity is ID within
// a session: a later arrival with the same ID replaces the earlier entry.
type Notification struct {
	ID         int64            `json:"id"`
	Kind       NotificationKind `json:"kind"`
	Message    string           `json:"message"`
	Timestamp  time.Time        `json:"timestamp"`
	SenderID   int64            `json:"sender_id,omitempty"`
	DraftTitle string           `json:"draft_title,omitempty"`
	Live       bool             `json:"live,omitempty"`
}

// Toast is a transient one-at-a-time notice shown for a fixed dwell time.
type Toast struct {
	Message string `json:"message" toml:"message"`
	Level   string `json:"level" toml:"level"`
}
