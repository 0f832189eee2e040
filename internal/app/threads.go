package app

import (
	"context"

	"hearth/api/internal/broadcast"
	"hearth/api/internal/store"
)

// AttachToThread places a message under the effective parent derived from
// the target: the target itself if it is a root, otherwise the target's
// root. Children of the attached message are re-pointed at the same
// effective parent so no thread ever exceeds one level of replies.
func (s *Service) AttachToThread(ctx context.Context, actorID, roomID string, messageID, targetID int64) (store.Message, error) {
	if _, err := s.visibleRoom(ctx, actorID, roomID); err != nil {
		return store.Message{}, err
	}
	if messageID == targetID {
		return store.Message{}, errInvalidOperation("message cannot join its own thread")
	}

	res, err := s.store.AttachMessage(ctx, roomID, messageID, targetID)
	if err != nil {
		return store.Message{}, fromStoreErr(err, "message not found")
	}
	if res.NoOp {
		return res.Message, nil
	}

	s.notify(ctx, broadcast.Replaced(res.EffectiveParent, broadcast.IntentReplyCount))
	s.notify(ctx, broadcast.ThreadChanged(res.Message, res.OldParentID, &res.EffectiveParent.ID))
	if res.OldParentID != nil {
		if oldParent, err := s.store.GetRoomMessage(ctx, roomID, *res.OldParentID); err == nil {
			s.notify(ctx, broadcast.Replaced(oldParent, broadcast.IntentReplyCount))
		}
	}
	return res.Message, nil
}

// DetachFromThread promotes a child back to a root. Detaching a root is a
// safe no-op.
func (s *Service) DetachFromThread(ctx context.Context, actorID, roomID string, messageID int64) (store.Message, error) {
	if _, err := s.visibleRoom(ctx, actorID, roomID); err != nil {
		return store.Message{}, err
	}

	msg, oldParentID, err := s.store.DetachMessage(ctx, roomID, messageID)
	if err != nil {
		return store.Message{}, fromStoreErr(err, "message not found")
	}
	if oldParentID == nil {
		return msg, nil
	}

	s.notify(ctx, broadcast.ThreadChanged(msg, oldParentID, nil))
	if oldParent, err := s.store.GetRoomMessage(ctx, roomID, *oldParentID); err == nil {
		s.notify(ctx, broadcast.Replaced(oldParent, broadcast.IntentReplyCount))
	}
	return msg, nil
}
