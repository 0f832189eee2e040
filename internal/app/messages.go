package app

import (
	"context"

	"hearth/api/internal/broadcast"
	"hearth/api/internal/metrics"
	"hearth/api/internal/store"
)

// CreateMessageInput is a new message. ParentID, when set, threads the
// message under the target's effective parent. ClientMessageID makes the
// create idempotent under client retry.
type CreateMessageInput struct {
	Body            string
	ClientMessageID string
	ParentID        *int64
	AttachmentKey   string
}

// CreateMessage posts a message to a room the actor can see. A threaded
// create also refreshes the parent's reply count for subscribers.
func (s *Service) CreateMessage(ctx context.Context, actorID, roomID string, input CreateMessageInput) (store.Message, error) {
	if input.Body == "" && input.AttachmentKey == "" {
		return store.Message{}, errBadRequest("message body is required")
	}
	if _, err := s.visibleRoom(ctx, actorID, roomID); err != nil {
		return store.Message{}, err
	}

	created, err := s.store.CreateMessage(ctx, store.Message{
		RoomID:          roomID,
		CreatorID:       actorID,
		Body:            input.Body,
		ClientMessageID: input.ClientMessageID,
		AttachmentKey:   input.AttachmentKey,
	}, input.ParentID)
	if err != nil {
		return store.Message{}, fromStoreErr(err, "parent message not found")
	}

	metrics.MessagesCreated.Inc()
	s.notify(ctx, broadcast.Created(created))
	if created.ParentID != nil {
		if parent, err := s.store.GetRoomMessage(ctx, roomID, *created.ParentID); err == nil {
			s.notify(ctx, broadcast.Replaced(parent, broadcast.IntentReplyCount))
		}
	}
	s.indexMessage(created)
	return created, nil
}

func (s *Service) GetMessage(ctx context.Context, actorID, roomID string, id int64) (store.Message, error) {
	if _, err := s.visibleRoom(ctx, actorID, roomID); err != nil {
		return store.Message{}, err
	}
	msg, err := s.store.GetRoomMessage(ctx, roomID, id)
	if err != nil {
		return store.Message{}, fromStoreErr(err, "message not found")
	}
	return msg, nil
}

// EditMessage replaces the body. Creator or room administrator only.
func (s *Service) EditMessage(ctx context.Context, actorID, roomID string, id int64, body string) (store.Message, error) {
	if body == "" {
		return store.Message{}, errBadRequest("message body is required")
	}
	msg, err := s.GetMessage(ctx, actorID, roomID, id)
	if err != nil {
		return store.Message{}, err
	}
	membership, err := s.store.GetMembership(ctx, roomID, actorID)
	if err != nil {
		return store.Message{}, fromStoreErr(err, "room not found")
	}
	if !canAdministerMessage(actorID, membership, msg) {
		return store.Message{}, errForbidden("only the creator or a room administrator can edit a message")
	}

	updated, err := s.store.UpdateMessageBody(ctx, roomID, id, body)
	if err != nil {
		return store.Message{}, fromStoreErr(err, "message not found")
	}
	s.notify(ctx, broadcast.Replaced(updated, broadcast.IntentPresentation))
	s.indexMessage(updated)
	return updated, nil
}

// ToggleTodo advances the message's todo state one step along the cycle
// none -> unchecked -> checked -> none. Any member of the room may toggle.
func (s *Service) ToggleTodo(ctx context.Context, actorID, roomID string, id int64) (store.Message, error) {
	if _, err := s.visibleRoom(ctx, actorID, roomID); err != nil {
		return store.Message{}, err
	}
	updated, err := s.store.ToggleTodo(ctx, roomID, id)
	if err != nil {
		return store.Message{}, fromStoreErr(err, "message not found")
	}
	s.notify(ctx, broadcast.Replaced(updated, broadcast.IntentPresentation))
	return updated, nil
}

// DestroyMessage deletes a message. Children of a deleted root survive as
// roots; a deleted child refreshes its parent's reply count.
func (s *Service) DestroyMessage(ctx context.Context, actorID, roomID string, id int64) error {
	msg, err := s.GetMessage(ctx, actorID, roomID, id)
	if err != nil {
		return err
	}
	membership, err := s.store.GetMembership(ctx, roomID, actorID)
	if err != nil {
		return fromStoreErr(err, "room not found")
	}
	if !canAdministerMessage(actorID, membership, msg) {
		return errForbidden("only the creator or a room administrator can delete a message")
	}

	res, err := s.store.DeleteMessage(ctx, roomID, id)
	if err != nil {
		return fromStoreErr(err, "message not found")
	}

	metrics.MessagesDestroyed.Inc()
	s.notify(ctx, broadcast.Removed(res.Message))
	if res.ParentTouched && res.ParentID != nil {
		if parent, err := s.store.GetRoomMessage(ctx, roomID, *res.ParentID); err == nil {
			s.notify(ctx, broadcast.Replaced(parent, broadcast.IntentReplyCount))
		}
	}
	s.unindexMessage(id)
	s.removeBlob(ctx, res.Message.AttachmentKey)
	return nil
}
