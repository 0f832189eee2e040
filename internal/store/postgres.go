package store

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const messageColumns = `id, room_id, creator_id, body, COALESCE(client_message_id, ''), parent_id, root_id, todo_state, attachment_key, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.RoomID, &m.CreatorID, &m.Body, &m.ClientMessageID,
		&m.ParentID, &m.RootID, &m.TodoState, &m.AttachmentKey,
		&m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateRoom inserts the room and makes the creator its administrator in
// one transaction.
func (s *PostgresStore) CreateRoom(ctx context.Context, room Room, creatorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create room: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO rooms (id, name) VALUES ($1, $2)`, room.ID, room.Name); err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memberships (room_id, user_id, role) VALUES ($1, $2, $3)
	`, room.ID, creatorID, RoleAdministrator); err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create room: %w", err)
	}
	return nil
}

// GetRoom resolves a room regardless of membership. Callers that act on
// behalf of a user almost always want GetRoomForUser instead.
func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (Room, error) {
	var room Room
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM rooms WHERE id = $1
	`, roomID).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

// GetRoomForUser resolves a room only if the user is a member. A room the
// user cannot see behaves exactly like a room that does not exist.
func (s *PostgresStore) GetRoomForUser(ctx context.Context, roomID, userID string) (Room, error) {
	var room Room
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.name, r.created_at
		FROM rooms r
		JOIN memberships m ON m.room_id = r.id
		WHERE r.id = $1 AND m.user_id = $2
	`, roomID, userID).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

func (s *PostgresStore) ListRoomsForUser(ctx context.Context, userID string) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.created_at
		FROM rooms r
		JOIN memberships m ON m.room_id = r.id
		WHERE m.user_id = $1
		ORDER BY r.created_at, r.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *PostgresStore) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddMember(ctx context.Context, roomID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (room_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, roomID, userID, role)
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMembership(ctx context.Context, roomID, userID string) (Membership, error) {
	var m Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT room_id, user_id, role, created_at
		FROM memberships WHERE room_id = $1 AND user_id = $2
	`, roomID, userID).Scan(&m.RoomID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		return Membership{}, err
	}
	return m, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id int64) (Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// GetRoomMessage looks up a message scoped to a room; a message in another
// room is indistinguishable from a missing one.
func (s *PostgresStore) GetRoomMessage(ctx context.Context, roomID string, id int64) (Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 AND room_id = $2`, id, roomID)
	return scanMessage(row)
}

// ToggleTodo advances the todo cycle in a single statement so concurrent
// toggles serialize on the row without an explicit lock.
func (s *PostgresStore) ToggleTodo(ctx context.Context, roomID string, id int64) (Message, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE messages
		SET todo_state = CASE todo_state
			WHEN 'none' THEN 'unchecked'
			WHEN 'unchecked' THEN 'checked'
			ELSE 'none'
		END,
		updated_at = NOW()
		WHERE id = $1 AND room_id = $2
		RETURNING `+messageColumns, id, roomID)
	m, err := scanMessage(row)
	if err != nil {
		return Message{}, translateErr(err)
	}
	return m, nil
}

// UpdateMessageBody edits the body without touching threading.
func (s *PostgresStore) UpdateMessageBody(ctx context.Context, roomID string, id int64, body string) (Message, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE messages SET body = $3, updated_at = NOW()
		WHERE id = $1 AND room_id = $2
		RETURNING `+messageColumns, id, roomID, body)
	m, err := scanMessage(row)
	if err != nil {
		return Message{}, translateErr(err)
	}
	return m, nil
}
