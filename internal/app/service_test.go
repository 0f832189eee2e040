package app

import (
	"context"
	"database/sql"
	"time"

	"hearth/api/internal/authpw"
	"hearth/api/internal/broadcast"
	"hearth/api/internal/config"
	"hearth/api/internal/store"
)

// fakeStore satisfies dataStore with overridable functions. Unset lookups
// succeed with plausible defaults so tests only pin what they care about.
type fakeStore struct {
	CreateUserFn        func(ctx context.Context, user store.User) error
	GetUserByEmailFn    func(ctx context.Context, email string) (store.User, error)
	GetUserByIDFn       func(ctx context.Context, userID string) (store.User, error)
	CreateRoomFn        func(ctx context.Context, room store.Room, creatorID string) error
	GetRoomFn           func(ctx context.Context, roomID string) (store.Room, error)
	GetRoomForUserFn    func(ctx context.Context, roomID, userID string) (store.Room, error)
	ListRoomsForUserFn  func(ctx context.Context, userID string) ([]store.Room, error)
	DeleteRoomFn        func(ctx context.Context, roomID string) error
	AddMemberFn         func(ctx context.Context, roomID, userID, role string) error
	GetMembershipFn     func(ctx context.Context, roomID, userID string) (store.Membership, error)
	CreateMessageFn     func(ctx context.Context, m store.Message, parentID *int64) (store.Message, error)
	GetRoomMessageFn    func(ctx context.Context, roomID string, id int64) (store.Message, error)
	UpdateMessageBodyFn func(ctx context.Context, roomID string, id int64, body string) (store.Message, error)
	ToggleTodoFn        func(ctx context.Context, roomID string, id int64) (store.Message, error)
	DeleteMessageFn     func(ctx context.Context, roomID string, messageID int64) (store.DeleteResult, error)
	AttachMessageFn     func(ctx context.Context, roomID string, messageID, targetID int64) (store.AttachResult, error)
	DetachMessageFn     func(ctx context.Context, roomID string, messageID int64) (store.Message, *int64, error)
	MoveMessageFn       func(ctx context.Context, roomID string, messageID int64, targetRoomID string) (store.MoveResult, error)
	ListWindowFn        func(ctx context.Context, p store.Partition, dir store.Direction, anchor *store.Message, limit int) ([]store.Message, error)
	ListByTodoStateFn   func(ctx context.Context, p store.Partition, state store.TodoState) ([]store.Message, error)
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	if f.CreateUserFn != nil {
		return f.CreateUserFn(ctx, user)
	}
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.GetUserByEmailFn != nil {
		return f.GetUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.GetUserByIDFn != nil {
		return f.GetUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID}, nil
}

func (f *fakeStore) CreateRoom(ctx context.Context, room store.Room, creatorID string) error {
	if f.CreateRoomFn != nil {
		return f.CreateRoomFn(ctx, room, creatorID)
	}
	return nil
}

func (f *fakeStore) GetRoom(ctx context.Context, roomID string) (store.Room, error) {
	if f.GetRoomFn != nil {
		return f.GetRoomFn(ctx, roomID)
	}
	return store.Room{ID: roomID}, nil
}

func (f *fakeStore) GetRoomForUser(ctx context.Context, roomID, userID string) (store.Room, error) {
	if f.GetRoomForUserFn != nil {
		return f.GetRoomForUserFn(ctx, roomID, userID)
	}
	return store.Room{ID: roomID}, nil
}

func (f *fakeStore) ListRoomsForUser(ctx context.Context, userID string) ([]store.Room, error) {
	if f.ListRoomsForUserFn != nil {
		return f.ListRoomsForUserFn(ctx, userID)
	}
	return nil, nil
}

func (f *fakeStore) DeleteRoom(ctx context.Context, roomID string) error {
	if f.DeleteRoomFn != nil {
		return f.DeleteRoomFn(ctx, roomID)
	}
	return nil
}

func (f *fakeStore) AddMember(ctx context.Context, roomID, userID, role string) error {
	if f.AddMemberFn != nil {
		return f.AddMemberFn(ctx, roomID, userID, role)
	}
	return nil
}

func (f *fakeStore) GetMembership(ctx context.Context, roomID, userID string) (store.Membership, error) {
	if f.GetMembershipFn != nil {
		return f.GetMembershipFn(ctx, roomID, userID)
	}
	return store.Membership{RoomID: roomID, UserID: userID, Role: store.RoleMember}, nil
}

func (f *fakeStore) CreateMessage(ctx context.Context, m store.Message, parentID *int64) (store.Message, error) {
	if f.CreateMessageFn != nil {
		return f.CreateMessageFn(ctx, m, parentID)
	}
	m.ID = 1
	if parentID != nil {
		m.ParentID = parentID
		m.RootID = parentID
	}
	m.TodoState = store.TodoNone
	return m, nil
}

func (f *fakeStore) GetRoomMessage(ctx context.Context, roomID string, id int64) (store.Message, error) {
	if f.GetRoomMessageFn != nil {
		return f.GetRoomMessageFn(ctx, roomID, id)
	}
	return store.Message{ID: id, RoomID: roomID, TodoState: store.TodoNone}, nil
}

func (f *fakeStore) UpdateMessageBody(ctx context.Context, roomID string, id int64, body string) (store.Message, error) {
	if f.UpdateMessageBodyFn != nil {
		return f.UpdateMessageBodyFn(ctx, roomID, id, body)
	}
	return store.Message{ID: id, RoomID: roomID, Body: body, TodoState: store.TodoNone}, nil
}

func (f *fakeStore) ToggleTodo(ctx context.Context, roomID string, id int64) (store.Message, error) {
	if f.ToggleTodoFn != nil {
		return f.ToggleTodoFn(ctx, roomID, id)
	}
	return store.Message{ID: id, RoomID: roomID, TodoState: store.TodoUnchecked}, nil
}

func (f *fakeStore) DeleteMessage(ctx context.Context, roomID string, messageID int64) (store.DeleteResult, error) {
	if f.DeleteMessageFn != nil {
		return f.DeleteMessageFn(ctx, roomID, messageID)
	}
	return store.DeleteResult{Message: store.Message{ID: messageID, RoomID: roomID}}, nil
}

func (f *fakeStore) AttachMessage(ctx context.Context, roomID string, messageID, targetID int64) (store.AttachResult, error) {
	if f.AttachMessageFn != nil {
		return f.AttachMessageFn(ctx, roomID, messageID, targetID)
	}
	msg := store.Message{ID: messageID, RoomID: roomID, ParentID: &targetID, RootID: &targetID}
	return store.AttachResult{Message: msg, EffectiveParent: store.Message{ID: targetID, RoomID: roomID}}, nil
}

func (f *fakeStore) DetachMessage(ctx context.Context, roomID string, messageID int64) (store.Message, *int64, error) {
	if f.DetachMessageFn != nil {
		return f.DetachMessageFn(ctx, roomID, messageID)
	}
	return store.Message{ID: messageID, RoomID: roomID}, nil, nil
}

func (f *fakeStore) MoveMessage(ctx context.Context, roomID string, messageID int64, targetRoomID string) (store.MoveResult, error) {
	if f.MoveMessageFn != nil {
		return f.MoveMessageFn(ctx, roomID, messageID, targetRoomID)
	}
	return store.MoveResult{
		Message:   store.Message{ID: messageID, RoomID: targetRoomID},
		OldRoomID: roomID,
	}, nil
}

func (f *fakeStore) ListWindow(ctx context.Context, p store.Partition, dir store.Direction, anchor *store.Message, limit int) ([]store.Message, error) {
	if f.ListWindowFn != nil {
		return f.ListWindowFn(ctx, p, dir, anchor, limit)
	}
	return nil, nil
}

func (f *fakeStore) ListByTodoState(ctx context.Context, p store.Partition, state store.TodoState) ([]store.Message, error) {
	if f.ListByTodoStateFn != nil {
		return f.ListByTodoStateFn(ctx, p, state)
	}
	return nil, nil
}

// fakeNotifier records every published event in order.
type fakeNotifier struct {
	events []broadcast.Event
}

func (f *fakeNotifier) Publish(ctx context.Context, event broadcast.Event) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeNotifier) ofIntent(intent broadcast.Intent) []broadcast.Event {
	var out []broadcast.Event
	for _, e := range f.events {
		if e.Intent == intent {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeNotifier) ofKind(kind broadcast.Kind) []broadcast.Event {
	var out []broadcast.Event
	for _, e := range f.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// fakeSessions keeps tokens in a map.
type fakeSessions struct {
	tokens map[string]store.User
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{tokens: make(map[string]store.User)}
}

func (f *fakeSessions) Save(ctx context.Context, token string, user store.User, ttl time.Duration) error {
	f.tokens[token] = user
	return nil
}

func (f *fakeSessions) Lookup(ctx context.Context, token string) (store.User, error) {
	user, ok := f.tokens[token]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeSessions) Revoke(ctx context.Context, token string) error {
	delete(f.tokens, token)
	return nil
}

func (f *fakeSessions) Ping(ctx context.Context) error { return nil }

// fakeBlobs records attachment keys removed from blob storage.
type fakeBlobs struct {
	removed []string
}

func (f *fakeBlobs) Remove(ctx context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

func newTestService(fs *fakeStore, fn *fakeNotifier) *Service {
	cfg := config.Config{PageSize: 40, SessionTTL: time.Hour}
	return New(cfg, fs, newFakeSessions(), fn, nil, nil, authpw.NewService(fs))
}

func int64ptr(v int64) *int64 { return &v }
