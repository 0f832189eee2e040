// Package app implements the chat core: rooms, messages, two-level
// threading, todo lifecycle, pagination, bulk retirement, and search,
// behind an HTTP API.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"hearth/api/internal/authpw"
	"hearth/api/internal/broadcast"
	"hearth/api/internal/config"
	"hearth/api/internal/logging"
	"hearth/api/internal/metrics"
	"hearth/api/internal/perm"
	"hearth/api/internal/search"
	"hearth/api/internal/store"
	"hearth/api/internal/util"
)

// dataStore is the storage surface the service needs.
type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user store.User) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)

	CreateRoom(ctx context.Context, room store.Room, creatorID string) error
	GetRoom(ctx context.Context, roomID string) (store.Room, error)
	GetRoomForUser(ctx context.Context, roomID, userID string) (store.Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]store.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
	AddMember(ctx context.Context, roomID, userID, role string) error
	GetMembership(ctx context.Context, roomID, userID string) (store.Membership, error)

	CreateMessage(ctx context.Context, m store.Message, parentID *int64) (store.Message, error)
	GetRoomMessage(ctx context.Context, roomID string, id int64) (store.Message, error)
	UpdateMessageBody(ctx context.Context, roomID string, id int64, body string) (store.Message, error)
	ToggleTodo(ctx context.Context, roomID string, id int64) (store.Message, error)
	DeleteMessage(ctx context.Context, roomID string, messageID int64) (store.DeleteResult, error)
	AttachMessage(ctx context.Context, roomID string, messageID, targetID int64) (store.AttachResult, error)
	DetachMessage(ctx context.Context, roomID string, messageID int64) (store.Message, *int64, error)
	MoveMessage(ctx context.Context, roomID string, messageID int64, targetRoomID string) (store.MoveResult, error)

	ListWindow(ctx context.Context, p store.Partition, dir store.Direction, anchor *store.Message, limit int) ([]store.Message, error)
	ListByTodoState(ctx context.Context, p store.Partition, state store.TodoState) ([]store.Message, error)
}

// notifier publishes room-scoped change events to live subscribers.
type notifier interface {
	Publish(ctx context.Context, event broadcast.Event) error
}

// sessionStore resolves and manages bearer session tokens.
type sessionStore interface {
	Save(ctx context.Context, token string, user store.User, ttl time.Duration) error
	Lookup(ctx context.Context, token string) (store.User, error)
	Revoke(ctx context.Context, token string) error
	Ping(ctx context.Context) error
}

// searchIndex is the optional full-text layer. Indexing is best-effort.
type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexMessage(rec search.MessageRecord)
	DeleteMessage(id int64)
}

// blobStore deletes attachment blobs once their message is gone.
type blobStore interface {
	Remove(ctx context.Context, key string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	notifier notifier
	search   searchIndex
	blobs    blobStore
	auth     *authpw.Service
	logger   zerolog.Logger
}

func New(cfg config.Config, st dataStore, sessions sessionStore, n notifier, idx searchIndex, blobs blobStore, auth *authpw.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		notifier: n,
		search:   idx,
		blobs:    blobs,
		auth:     auth,
		logger:   logging.WithComponent("app"),
	}
}

// notify publishes after the mutation committed. Failures are logged and
// never surfaced: subscribers reconcile on reconnect.
func (s *Service) notify(ctx context.Context, event broadcast.Event) {
	if s.notifier == nil {
		return
	}
	metrics.EventsPublished.WithLabelValues(string(event.Kind)).Inc()
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(event.Kind)).Str("room_id", event.RoomID).Msg("publish event")
	}
}

func (s *Service) indexMessage(m store.Message) {
	if s.search == nil {
		return
	}
	s.search.IndexMessage(search.MessageRecord{
		ID:        m.ID,
		RoomID:    m.RoomID,
		CreatorID: m.CreatorID,
		Body:      m.Body,
	})
}

func (s *Service) unindexMessage(id int64) {
	if s.search == nil {
		return
	}
	s.search.DeleteMessage(id)
}

// removeBlob cleans up an attachment blob after its message is deleted.
// Best-effort, like unindexing: a failed delete is logged and orphans the
// blob rather than failing the committed mutation.
func (s *Service) removeBlob(ctx context.Context, key string) {
	if s.blobs == nil || key == "" {
		return
	}
	if err := s.blobs.Remove(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("remove attachment blob")
	}
}

// visibleRoom resolves a room through the actor's membership. A room the
// actor cannot see is reported as missing, never as forbidden.
func (s *Service) visibleRoom(ctx context.Context, actorID, roomID string) (store.Room, error) {
	room, err := s.store.GetRoomForUser(ctx, roomID, actorID)
	if err != nil {
		return store.Room{}, fromStoreErr(err, "room not found")
	}
	return room, nil
}

// SignUp registers a user and opens a session for them.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (store.User, string, error) {
	user, err := s.auth.SignUp(ctx, req)
	if err != nil {
		return store.User{}, "", errBadRequest(err.Error())
	}
	token, err := s.openSession(ctx, user)
	if err != nil {
		return store.User{}, "", err
	}
	return user, token, nil
}

// SignIn authenticates and opens a session.
func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (store.User, string, error) {
	user, err := s.auth.SignIn(ctx, req)
	if err != nil {
		return store.User{}, "", errUnauthorized("invalid email or password")
	}
	token, err := s.openSession(ctx, user)
	if err != nil {
		return store.User{}, "", err
	}
	return user, token, nil
}

func (s *Service) openSession(ctx context.Context, user store.User) (string, error) {
	token, err := authpw.NewToken()
	if err != nil {
		return "", err
	}
	if err := s.sessions.Save(ctx, token, user, s.cfg.SessionTTL); err != nil {
		return "", err
	}
	return token, nil
}

// SignOut revokes the session token. Unknown tokens revoke silently.
func (s *Service) SignOut(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// UserFromToken resolves a bearer token to its user.
func (s *Service) UserFromToken(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, errUnauthorized("missing bearer token")
	}
	user, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return store.User{}, err
	}
	return user, nil
}

// CreateRoom makes a room with the actor as its administrator.
func (s *Service) CreateRoom(ctx context.Context, actorID, name string) (store.Room, error) {
	if name == "" {
		return store.Room{}, errBadRequest("room name is required")
	}
	room := store.Room{ID: util.NewID("room"), Name: name}
	if err := s.store.CreateRoom(ctx, room, actorID); err != nil {
		return store.Room{}, err
	}
	return room, nil
}

func (s *Service) ListRooms(ctx context.Context, actorID string) ([]store.Room, error) {
	return s.store.ListRoomsForUser(ctx, actorID)
}

func (s *Service) GetRoom(ctx context.Context, actorID, roomID string) (store.Room, error) {
	return s.visibleRoom(ctx, actorID, roomID)
}

// DestroyRoom deletes a room; administrators only.
func (s *Service) DestroyRoom(ctx context.Context, actorID, roomID string) error {
	room, err := s.visibleRoom(ctx, actorID, roomID)
	if err != nil {
		return err
	}
	membership, err := s.store.GetMembership(ctx, roomID, actorID)
	if err != nil {
		return fromStoreErr(err, "room not found")
	}
	if !canAdministerRoom(actorID, membership, room) {
		return errForbidden("only a room administrator can delete the room")
	}
	return s.store.DeleteRoom(ctx, roomID)
}

// AddMember grants a user membership in a room; administrators only.
func (s *Service) AddMember(ctx context.Context, actorID, roomID, userID, role string) error {
	room, err := s.visibleRoom(ctx, actorID, roomID)
	if err != nil {
		return err
	}
	membership, err := s.store.GetMembership(ctx, roomID, actorID)
	if err != nil {
		return fromStoreErr(err, "room not found")
	}
	if !canAdministerRoom(actorID, membership, room) {
		return errForbidden("only a room administrator can add members")
	}
	if role != store.RoleMember && role != store.RoleAdministrator {
		return errBadRequest("role must be member or administrator")
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return fromStoreErr(err, "user not found")
	}
	return s.store.AddMember(ctx, roomID, userID, role)
}

func canAdministerRoom(actorID string, membership store.Membership, room store.Room) bool {
	return perm.CanAdminister(actorID, membership, perm.RoomTarget{Room: room})
}

func canAdministerMessage(actorID string, membership store.Membership, m store.Message) bool {
	return perm.CanAdminister(actorID, membership, perm.MessageTarget{Message: m})
}

// Ready reports whether the backing services answer.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return err
	}
	return s.sessions.Ping(ctx)
}
