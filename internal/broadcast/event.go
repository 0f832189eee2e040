// Package broadcast carries structured change events from the core to
// live subscribers. Delivery is fire-and-forget: a failed publish never
// affects the mutation that produced it.
package broadcast

import (
	"time"

	"hearth/api/internal/store"
)

type Kind string

const (
	KindCreated  Kind = "created"
	KindReplaced Kind = "replaced"
	KindRemoved  Kind = "removed"
)

// Intent tells subscribers what a Replaced event should refresh.
type Intent string

const (
	// IntentPresentation refreshes the message's own rendering.
	IntentPresentation Intent = "presentation"
	// IntentReplyCount refreshes a parent whose reply count changed.
	IntentReplyCount Intent = "reply-count"
	// IntentThreadChanged reconciles a message that moved between threads;
	// OldParentID and NewParentID carry the endpoints.
	IntentThreadChanged Intent = "thread-changed"
)

type MessageSnapshot struct {
	ID            int64     `json:"id"`
	RoomID        string    `json:"roomId"`
	CreatorID     string    `json:"creatorId"`
	Body          string    `json:"body"`
	ParentID      *int64    `json:"parentId,omitempty"`
	RootID        *int64    `json:"rootId,omitempty"`
	TodoState     string    `json:"todoState"`
	AttachmentKey string    `json:"attachmentKey,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func Snapshot(m store.Message) MessageSnapshot {
	return MessageSnapshot{
		ID:            m.ID,
		RoomID:        m.RoomID,
		CreatorID:     m.CreatorID,
		Body:          m.Body,
		ParentID:      m.ParentID,
		RootID:        m.RootID,
		TodoState:     string(m.TodoState),
		AttachmentKey: m.AttachmentKey,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// Event is one room-scoped change notification.
type Event struct {
	Kind        Kind            `json:"kind"`
	RoomID      string          `json:"roomId"`
	Message     MessageSnapshot `json:"message"`
	Intent      Intent          `json:"intent,omitempty"`
	OldParentID *int64          `json:"oldParentId,omitempty"`
	NewParentID *int64          `json:"newParentId,omitempty"`
}

func Created(m store.Message) Event {
	return Event{Kind: KindCreated, RoomID: m.RoomID, Message: Snapshot(m)}
}

func Removed(m store.Message) Event {
	return Event{Kind: KindRemoved, RoomID: m.RoomID, Message: Snapshot(m)}
}

func Replaced(m store.Message, intent Intent) Event {
	return Event{Kind: KindReplaced, RoomID: m.RoomID, Message: Snapshot(m), Intent: intent}
}

func ThreadChanged(m store.Message, oldParentID, newParentID *int64) Event {
	return Event{
		Kind:        KindReplaced,
		RoomID:      m.RoomID,
		Message:     Snapshot(m),
		Intent:      IntentThreadChanged,
		OldParentID: oldParentID,
		NewParentID: newParentID,
	}
}
