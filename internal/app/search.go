package app

import (
	"context"

	"hearth/api/internal/search"
)

// SearchMessages runs full-text search over rooms the actor belongs to.
// A roomID narrows the search to that room after a visibility check.
func (s *Service) SearchMessages(ctx context.Context, actorID, text, roomID string, limit, offset int) (search.Response, error) {
	if text == "" {
		return search.Response{Results: []search.Result{}}, nil
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}

	var roomIDs []string
	if roomID != "" {
		if _, err := s.visibleRoom(ctx, actorID, roomID); err != nil {
			return search.Response{}, err
		}
		roomIDs = []string{roomID}
	} else {
		rooms, err := s.store.ListRoomsForUser(ctx, actorID)
		if err != nil {
			return search.Response{}, err
		}
		for _, room := range rooms {
			roomIDs = append(roomIDs, room.ID)
		}
	}
	if len(roomIDs) == 0 {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}

	return s.search.Search(ctx, search.Query{
		Text:    text,
		RoomIDs: roomIDs,
		Limit:   limit,
		Offset:  offset,
	}), nil
}
