package app

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"hearth/api/internal/broadcast"
	"hearth/api/internal/metrics"
	"hearth/api/internal/store"
)

// RetireScope targets a whole room's roots or one thread's children.
type RetireScope struct {
	RoomID       string
	ThreadRootID *int64
}

// RetireResult aggregates a bulk retirement. DeletedCount is zero when
// nothing in scope was eligible; TouchedParents lists each parent whose
// reply count changed, once, in ascending order.
type RetireResult struct {
	DeletedCount   int     `json:"deletedCount"`
	TouchedParents []int64 `json:"touchedParents"`
}

// RetireCompletedTodos deletes every checked todo in scope that the actor
// can administer. Ineligible messages are skipped without error.
func (s *Service) RetireCompletedTodos(ctx context.Context, actorID string, scope RetireScope) (RetireResult, error) {
	return s.retire(ctx, actorID, scope, store.TodoChecked)
}

// RetireNonTodos deletes every message in scope with no todo marker that
// the actor can administer.
func (s *Service) RetireNonTodos(ctx context.Context, actorID string, scope RetireScope) (RetireResult, error) {
	return s.retire(ctx, actorID, scope, store.TodoNone)
}

func (s *Service) retire(ctx context.Context, actorID string, scope RetireScope, state store.TodoState) (RetireResult, error) {
	if _, err := s.visibleRoom(ctx, actorID, scope.RoomID); err != nil {
		return RetireResult{}, err
	}

	partition := store.Partition{RoomID: scope.RoomID}
	if scope.ThreadRootID != nil {
		root, err := s.store.GetRoomMessage(ctx, scope.RoomID, *scope.ThreadRootID)
		if err != nil {
			return RetireResult{}, fromStoreErr(err, "thread not found")
		}
		if !root.IsRoot() {
			return RetireResult{}, errNotFound("thread not found")
		}
		partition.RootID = &root.ID
	}

	candidates, err := s.store.ListByTodoState(ctx, partition, state)
	if err != nil {
		return RetireResult{}, err
	}

	membership, err := s.store.GetMembership(ctx, scope.RoomID, actorID)
	if err != nil {
		return RetireResult{}, fromStoreErr(err, "room not found")
	}

	result := RetireResult{}
	touched := map[int64]bool{}
	for _, candidate := range candidates {
		if !canAdministerMessage(actorID, membership, candidate) {
			continue
		}
		res, err := s.store.DeleteMessage(ctx, scope.RoomID, candidate.ID)
		if errors.Is(err, sql.ErrNoRows) {
			// Deleted concurrently; nothing left to retire.
			continue
		}
		if err != nil {
			return result, fromStoreErr(err, "message not found")
		}

		result.DeletedCount++
		metrics.MessagesDestroyed.Inc()
		s.notify(ctx, broadcast.Removed(res.Message))
		s.unindexMessage(res.Message.ID)
		s.removeBlob(ctx, res.Message.AttachmentKey)
		if res.ParentTouched && res.ParentID != nil {
			touched[*res.ParentID] = true
		}
	}

	// One reply-count refresh per surviving parent, however many of its
	// children were retired.
	for parentID := range touched {
		result.TouchedParents = append(result.TouchedParents, parentID)
	}
	sort.Slice(result.TouchedParents, func(i, j int) bool {
		return result.TouchedParents[i] < result.TouchedParents[j]
	})
	for _, parentID := range result.TouchedParents {
		if parent, err := s.store.GetRoomMessage(ctx, scope.RoomID, parentID); err == nil {
			s.notify(ctx, broadcast.Replaced(parent, broadcast.IntentReplyCount))
		}
	}
	return result, nil
}
