package app

import (
	"context"
	"database/sql"
	"errors"

	"hearth/api/internal/broadcast"
	"hearth/api/internal/metrics"
	"hearth/api/internal/store"
)

// moveChildFetchLimit bounds the reindex scan after a move. A thread holds
// far fewer children than this in practice.
const moveChildFetchLimit = 1000

// MoveToRoom relocates a message to another room the actor belongs to.
// Thread membership does not survive the move: the message arrives as a
// root, and its own direct children travel with it. The actor must be a
// member of the target room; a target room that does not exist at all is
// reported as missing.
func (s *Service) MoveToRoom(ctx context.Context, actorID, roomID string, messageID int64, targetRoomID string) (store.Message, error) {
	if _, err := s.visibleRoom(ctx, actorID, roomID); err != nil {
		return store.Message{}, err
	}
	if targetRoomID == roomID {
		return store.Message{}, errInvalidOperation("message is already in that room")
	}

	if _, err := s.store.GetRoom(ctx, targetRoomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Message{}, errNotFound("target room not found")
		}
		return store.Message{}, err
	}
	if _, err := s.store.GetMembership(ctx, targetRoomID, actorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Message{}, errForbidden("not a member of the target room")
		}
		return store.Message{}, err
	}

	res, err := s.store.MoveMessage(ctx, roomID, messageID, targetRoomID)
	if err != nil {
		return store.Message{}, fromStoreErr(err, "message not found")
	}

	metrics.MessagesMoved.Inc()
	// Source-room subscribers get the message as it looked before the
	// move, still in their room and thread.
	removed := broadcast.Snapshot(res.Message)
	removed.RoomID = res.OldRoomID
	removed.ParentID = res.OldParentID
	removed.RootID = res.OldParentID
	s.notify(ctx, broadcast.Event{
		Kind:    broadcast.KindRemoved,
		RoomID:  res.OldRoomID,
		Message: removed,
	})
	s.notify(ctx, broadcast.Created(res.Message))
	if res.OldParentID != nil {
		if oldParent, err := s.store.GetRoomMessage(ctx, res.OldRoomID, *res.OldParentID); err == nil {
			s.notify(ctx, broadcast.Replaced(oldParent, broadcast.IntentReplyCount))
		}
	}

	s.indexMessage(res.Message)
	if len(res.ChildIDs) > 0 && s.search != nil {
		// Children changed rooms too; refresh their index records.
		rootID := res.Message.ID
		children, err := s.store.ListWindow(ctx, store.Partition{RoomID: targetRoomID, RootID: &rootID}, store.ScanLast, nil, moveChildFetchLimit)
		if err == nil {
			for _, child := range children {
				s.indexMessage(child)
			}
		}
	}
	return res.Message, nil
}
