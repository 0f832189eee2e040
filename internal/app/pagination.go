package app

import (
	"context"

	"hearth/api/internal/store"
)

const maxPageSize = 200

// PageRequest selects a window of a partition. At most one of Before,
// After, Around may be set; all name a message id acting as the cursor.
// Zero means unset. Size of zero takes the configured default.
type PageRequest struct {
	Before int64
	After  int64
	Around int64
	Size   int
}

// Page is one contiguous window in creation order, oldest first.
type Page struct {
	Messages []store.Message `json:"messages"`
}

// PageRoots pages a room's root messages.
func (s *Service) PageRoots(ctx context.Context, actorID, roomID string, req PageRequest) (Page, error) {
	if _, err := s.visibleRoom(ctx, actorID, roomID); err != nil {
		return Page{}, err
	}
	return s.page(ctx, store.Partition{RoomID: roomID}, req)
}

// PageThread pages the children of one thread root.
func (s *Service) PageThread(ctx context.Context, actorID, roomID string, rootID int64, req PageRequest) (Page, error) {
	if _, err := s.visibleRoom(ctx, actorID, roomID); err != nil {
		return Page{}, err
	}
	root, err := s.store.GetRoomMessage(ctx, roomID, rootID)
	if err != nil {
		return Page{}, fromStoreErr(err, "thread not found")
	}
	if !root.IsRoot() {
		return Page{}, errNotFound("thread not found")
	}
	return s.page(ctx, store.Partition{RoomID: roomID, RootID: &root.ID}, req)
}

func (s *Service) page(ctx context.Context, p store.Partition, req PageRequest) (Page, error) {
	size := req.Size
	if size <= 0 {
		size = s.cfg.PageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	set := 0
	for _, cursor := range []int64{req.Before, req.After, req.Around} {
		if cursor != 0 {
			set++
		}
	}
	if set > 1 {
		return Page{}, errBadRequest("before, after, and around are mutually exclusive")
	}

	switch {
	case req.Before != 0:
		anchor, err := s.resolveAnchor(ctx, p, req.Before)
		if err != nil {
			return Page{}, err
		}
		messages, err := s.store.ListWindow(ctx, p, store.ScanBefore, &anchor, size)
		if err != nil {
			return Page{}, err
		}
		return Page{Messages: nonNilMessages(messages)}, nil

	case req.After != 0:
		anchor, err := s.resolveAnchor(ctx, p, req.After)
		if err != nil {
			return Page{}, err
		}
		messages, err := s.store.ListWindow(ctx, p, store.ScanAfter, &anchor, size)
		if err != nil {
			return Page{}, err
		}
		return Page{Messages: nonNilMessages(messages)}, nil

	case req.Around != 0:
		anchor, err := s.resolveAnchor(ctx, p, req.Around)
		if err != nil {
			return Page{}, err
		}
		// Split the window around the anchor. Either side may run out
		// near a partition edge; the other side backfills the slots so
		// the window only comes up short when the partition itself does.
		beforeWant := (size - 1) / 2
		before, err := s.store.ListWindow(ctx, p, store.ScanBefore, &anchor, beforeWant)
		if err != nil {
			return Page{}, err
		}
		afterWant := size - 1 - len(before)
		after, err := s.store.ListWindow(ctx, p, store.ScanAfter, &anchor, afterWant)
		if err != nil {
			return Page{}, err
		}
		if backfill := size - 1 - len(after); len(after) < afterWant && backfill > len(before) {
			before, err = s.store.ListWindow(ctx, p, store.ScanBefore, &anchor, backfill)
			if err != nil {
				return Page{}, err
			}
		}
		messages := make([]store.Message, 0, len(before)+1+len(after))
		messages = append(messages, before...)
		messages = append(messages, anchor)
		messages = append(messages, after...)
		return Page{Messages: nonNilMessages(messages)}, nil

	default:
		messages, err := s.store.ListWindow(ctx, p, store.ScanLast, nil, size)
		if err != nil {
			return Page{}, err
		}
		return Page{Messages: nonNilMessages(messages)}, nil
	}
}

// resolveAnchor loads the cursor message and checks it still belongs to
// the partition. A cursor whose message was deleted, moved, or re-threaded
// since the client got it is stale and reads as missing.
func (s *Service) resolveAnchor(ctx context.Context, p store.Partition, id int64) (store.Message, error) {
	msg, err := s.store.GetRoomMessage(ctx, p.RoomID, id)
	if err != nil {
		return store.Message{}, fromStoreErr(err, "cursor message not found")
	}
	if p.RootID != nil {
		if msg.RootID == nil || *msg.RootID != *p.RootID {
			return store.Message{}, errNotFound("cursor message not found")
		}
	} else if !msg.IsRoot() {
		return store.Message{}, errNotFound("cursor message not found")
	}
	return msg, nil
}

func nonNilMessages(messages []store.Message) []store.Message {
	if messages == nil {
		return []store.Message{}
	}
	return messages
}
