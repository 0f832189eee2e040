package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrInvalidParent reports a structurally impossible attach, such as a
// message joining the thread it anchors.
var ErrInvalidParent = errors.New("store: message cannot join its own thread")

// AttachResult describes a completed attach: the updated message, the
// effective parent it ended up under, and the parent it left (if any).
type AttachResult struct {
	Message           Message
	EffectiveParent   Message
	OldParentID       *int64
	RepointedChildren []int64
	NoOp              bool
}

// DeleteResult carries what a destroy changed so callers can notify.
type DeleteResult struct {
	Message          Message
	ParentID         *int64
	ParentTouched    bool
	PromotedChildren []int64
}

// MoveResult describes a cross-room relocation of a message and its
// direct children.
type MoveResult struct {
	Message     Message
	OldRoomID   string
	OldParentID *int64
	ChildIDs    []int64
}

// lockMessage takes a row lock. Deadlocks between composite mutations
// abort the loser here, so lock errors go through translateErr.
func lockMessage(ctx context.Context, tx *sql.Tx, roomID string, id int64) (Message, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 AND room_id = $2 FOR UPDATE`, id, roomID)
	m, err := scanMessage(row)
	if err != nil {
		return Message{}, translateErr(err)
	}
	return m, nil
}

func touchMessage(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE messages SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("touch message %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// effectiveParentOf flattens the attach target to its root so the depth
// cap holds: attaching to a child attaches to that child's root.
func effectiveParentOf(ctx context.Context, tx *sql.Tx, target Message) (Message, error) {
	if target.ParentID == nil {
		return target, nil
	}
	return lockMessage(ctx, tx, target.RoomID, *target.RootID)
}

// repointChildren moves every direct child of messageID under newParentID.
// A message being attached somewhere must never keep children of its own.
func repointChildren(ctx context.Context, tx *sql.Tx, messageID, newParentID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		UPDATE messages SET parent_id = $2, root_id = $2, updated_at = NOW()
		WHERE parent_id = $1
		RETURNING id
	`, messageID, newParentID)
	if err != nil {
		return nil, fmt.Errorf("repoint children of %d: %w", messageID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateMessage inserts a message, attaching it under the effective parent
// when parentID is given. The insert and the parent resolution share one
// transaction. A repeated client_message_id returns the original row.
func (s *PostgresStore) CreateMessage(ctx context.Context, m Message, parentID *int64) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin create message: %w", err)
	}
	defer tx.Rollback()

	if m.ClientMessageID != "" {
		row := tx.QueryRowContext(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE room_id = $1 AND client_message_id = $2`,
			m.RoomID, m.ClientMessageID)
		existing, err := scanMessage(row)
		if err == nil {
			return existing, tx.Commit()
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Message{}, fmt.Errorf("check client message id: %w", err)
		}
	}

	if parentID != nil {
		target, err := lockMessage(ctx, tx, m.RoomID, *parentID)
		if err != nil {
			return Message{}, err
		}
		effective, err := effectiveParentOf(ctx, tx, target)
		if err != nil {
			return Message{}, err
		}
		m.ParentID = &effective.ID
		m.RootID = &effective.ID
		if _, err := touchMessage(ctx, tx, effective.ID); err != nil {
			return Message{}, err
		}
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO messages (room_id, creator_id, body, client_message_id, parent_id, root_id, todo_state, attachment_key)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, COALESCE(NULLIF($7, ''), 'none'), $8)
		RETURNING `+messageColumns,
		m.RoomID, m.CreatorID, m.Body, m.ClientMessageID, m.ParentID, m.RootID, string(m.TodoState), m.AttachmentKey)
	created, err := scanMessage(row)
	if err != nil {
		return Message{}, translateErr(fmt.Errorf("insert message: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return Message{}, translateErr(fmt.Errorf("commit create message: %w", err))
	}
	return created, nil
}

// AttachMessage places a message under the effective parent derived from
// the target. The target, its root, the message, and the message's own
// children all change together or not at all.
func (s *PostgresStore) AttachMessage(ctx context.Context, roomID string, messageID, targetID int64) (AttachResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AttachResult{}, fmt.Errorf("begin attach: %w", err)
	}
	defer tx.Rollback()

	msg, err := lockMessage(ctx, tx, roomID, messageID)
	if err != nil {
		return AttachResult{}, err
	}
	target, err := lockMessage(ctx, tx, roomID, targetID)
	if err != nil {
		return AttachResult{}, err
	}
	effective, err := effectiveParentOf(ctx, tx, target)
	if err != nil {
		return AttachResult{}, err
	}
	if effective.ID == msg.ID {
		return AttachResult{}, ErrInvalidParent
	}

	oldParentID := msg.ParentID
	if oldParentID != nil && *oldParentID == effective.ID {
		// Already attached where requested; safe under retry.
		return AttachResult{Message: msg, EffectiveParent: effective, OldParentID: oldParentID, NoOp: true}, tx.Commit()
	}

	repointed, err := repointChildren(ctx, tx, msg.ID, effective.ID)
	if err != nil {
		return AttachResult{}, translateErr(err)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE messages SET parent_id = $2, root_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+messageColumns, msg.ID, effective.ID)
	updated, err := scanMessage(row)
	if err != nil {
		return AttachResult{}, translateErr(fmt.Errorf("attach message: %w", err))
	}

	if _, err := touchMessage(ctx, tx, effective.ID); err != nil {
		return AttachResult{}, translateErr(err)
	}
	if oldParentID != nil {
		if _, err := touchMessage(ctx, tx, *oldParentID); err != nil {
			return AttachResult{}, translateErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return AttachResult{}, translateErr(fmt.Errorf("commit attach: %w", err))
	}
	return AttachResult{
		Message:           updated,
		EffectiveParent:   effective,
		OldParentID:       oldParentID,
		RepointedChildren: repointed,
	}, nil
}

// DetachMessage clears the parent pointer. Detaching a root is a no-op.
func (s *PostgresStore) DetachMessage(ctx context.Context, roomID string, messageID int64) (Message, *int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, nil, fmt.Errorf("begin detach: %w", err)
	}
	defer tx.Rollback()

	msg, err := lockMessage(ctx, tx, roomID, messageID)
	if err != nil {
		return Message{}, nil, err
	}
	if msg.ParentID == nil {
		return msg, nil, tx.Commit()
	}

	oldParentID := msg.ParentID
	row := tx.QueryRowContext(ctx, `
		UPDATE messages SET parent_id = NULL, root_id = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING `+messageColumns, msg.ID)
	updated, err := scanMessage(row)
	if err != nil {
		return Message{}, nil, translateErr(fmt.Errorf("detach message: %w", err))
	}
	if _, err := touchMessage(ctx, tx, *oldParentID); err != nil {
		return Message{}, nil, translateErr(err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, nil, translateErr(fmt.Errorf("commit detach: %w", err))
	}
	return updated, oldParentID, nil
}

// DeleteMessage removes a message. Children of a deleted root are promoted
// to roots, never deleted. A deleted child touches its parent so the reply
// count recomputes.
func (s *PostgresStore) DeleteMessage(ctx context.Context, roomID string, messageID int64) (DeleteResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	msg, err := lockMessage(ctx, tx, roomID, messageID)
	if err != nil {
		return DeleteResult{}, err
	}

	rows, err := tx.QueryContext(ctx, `
		UPDATE messages SET parent_id = NULL, root_id = NULL, updated_at = NOW()
		WHERE parent_id = $1
		RETURNING id
	`, msg.ID)
	if err != nil {
		return DeleteResult{}, translateErr(fmt.Errorf("promote children: %w", err))
	}
	var promoted []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return DeleteResult{}, err
		}
		promoted = append(promoted, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return DeleteResult{}, err
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, msg.ID); err != nil {
		return DeleteResult{}, translateErr(fmt.Errorf("delete message: %w", err))
	}

	parentTouched := false
	if msg.ParentID != nil {
		// The parent may itself be gone under a concurrent delete.
		parentTouched, err = touchMessage(ctx, tx, *msg.ParentID)
		if err != nil {
			return DeleteResult{}, translateErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return DeleteResult{}, translateErr(fmt.Errorf("commit delete: %w", err))
	}
	return DeleteResult{
		Message:          msg,
		ParentID:         msg.ParentID,
		ParentTouched:    parentTouched,
		PromotedChildren: promoted,
	}, nil
}

// MoveMessage relocates a message to another room. Thread membership does
// not survive the move, so the message detaches first; its own direct
// children transfer with it, still pointing at it.
func (s *PostgresStore) MoveMessage(ctx context.Context, roomID string, messageID int64, targetRoomID string) (MoveResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MoveResult{}, fmt.Errorf("begin move: %w", err)
	}
	defer tx.Rollback()

	msg, err := lockMessage(ctx, tx, roomID, messageID)
	if err != nil {
		return MoveResult{}, err
	}
	oldParentID := msg.ParentID

	rows, err := tx.QueryContext(ctx, `
		UPDATE messages SET room_id = $2, updated_at = NOW()
		WHERE parent_id = $1
		RETURNING id
	`, msg.ID, targetRoomID)
	if err != nil {
		return MoveResult{}, translateErr(fmt.Errorf("move children: %w", err))
	}
	var childIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return MoveResult{}, err
		}
		childIDs = append(childIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return MoveResult{}, err
	}
	rows.Close()

	row := tx.QueryRowContext(ctx, `
		UPDATE messages SET room_id = $2, parent_id = NULL, root_id = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING `+messageColumns, msg.ID, targetRoomID)
	moved, err := scanMessage(row)
	if err != nil {
		return MoveResult{}, translateErr(fmt.Errorf("move message: %w", err))
	}

	if oldParentID != nil {
		if _, err := touchMessage(ctx, tx, *oldParentID); err != nil {
			return MoveResult{}, translateErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return MoveResult{}, translateErr(fmt.Errorf("commit move: %w", err))
	}
	return MoveResult{
		Message:     moved,
		OldRoomID:   roomID,
		OldParentID: oldParentID,
		ChildIDs:    childIDs,
	}, nil
}
