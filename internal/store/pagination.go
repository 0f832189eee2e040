package store

import (
	"context"
	"fmt"
)

// partitionClause renders the WHERE fragment selecting one pagination
// partition: a room's roots, or one thread's children.
func partitionClause(p Partition, args *[]any) string {
	if p.RootID != nil {
		*args = append(*args, *p.RootID)
		return fmt.Sprintf("root_id = $%d", len(*args))
	}
	*args = append(*args, p.RoomID)
	return fmt.Sprintf("room_id = $%d AND parent_id IS NULL", len(*args))
}

// ListWindow scans one contiguous window of a partition in creation order,
// ascending, with id as the tie-break. ScanLast takes the tail window;
// ScanBefore/ScanAfter exclude the anchor itself. New messages only ever
// append past the tail, so historical windows are stable.
func (s *PostgresStore) ListWindow(ctx context.Context, p Partition, dir Direction, anchor *Message, limit int) ([]Message, error) {
	args := []any{}
	where := partitionClause(p, &args)

	var query string
	switch dir {
	case ScanAfter:
		args = append(args, anchor.CreatedAt, anchor.ID)
		query = fmt.Sprintf(`
			SELECT %s FROM messages
			WHERE %s AND (created_at, id) > ($%d, $%d)
			ORDER BY created_at, id
			LIMIT %d`, messageColumns, where, len(args)-1, len(args), limit)
	case ScanBefore:
		args = append(args, anchor.CreatedAt, anchor.ID)
		query = fmt.Sprintf(`
			SELECT %s FROM (
				SELECT %s FROM messages
				WHERE %s AND (created_at, id) < ($%d, $%d)
				ORDER BY created_at DESC, id DESC
				LIMIT %d
			) window
			ORDER BY created_at, id`, messageColumns, messageColumns, where, len(args)-1, len(args), limit)
	default: // ScanLast
		query = fmt.Sprintf(`
			SELECT %s FROM (
				SELECT %s FROM messages
				WHERE %s
				ORDER BY created_at DESC, id DESC
				LIMIT %d
			) window
			ORDER BY created_at, id`, messageColumns, messageColumns, where, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan window: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan window row: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListByTodoState returns a partition's messages in a given todo state, in
// creation order. Retirement candidates come from here.
func (s *PostgresStore) ListByTodoState(ctx context.Context, p Partition, state TodoState) ([]Message, error) {
	args := []any{}
	where := partitionClause(p, &args)
	args = append(args, string(state))
	query := fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE %s AND todo_state = $%d
		ORDER BY created_at, id`, messageColumns, where, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list by todo state: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo row: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
