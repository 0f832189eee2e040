package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches messages with PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, so is the whole app.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if q.Text == "" || len(q.RoomIDs) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args := []any{q.Text}
	placeholders := make([]string, 0, len(q.RoomIDs))
	for _, roomID := range q.RoomIDs {
		args = append(args, roomID)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	where := fmt.Sprintf(
		`to_tsvector('english', body) @@ plainto_tsquery('english', $1) AND room_id IN (%s)`,
		strings.Join(placeholders, ", "))

	var total int
	if err := p.db.QueryRowContext(ctx,
		`SELECT count(*) FROM messages WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, room_id, creator_id,
			ts_headline('english', body, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM messages
		WHERE %s
		ORDER BY ts_rank(to_tsvector('english', body), plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.MessageID, &r.RoomID, &r.CreatorID, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every message for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]MessageRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, room_id, creator_id, body FROM messages`)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	records := make([]MessageRecord, 0)
	for rows.Next() {
		var rec MessageRecord
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.CreatorID, &rec.Body); err != nil {
			return nil, fmt.Errorf("scan message record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
