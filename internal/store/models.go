package store

import "time"

// TodoState is the per-message todo marker. The single toggle cycles
// none -> unchecked -> checked -> none.
type TodoState string

const (
	TodoNone      TodoState = "none"
	TodoUnchecked TodoState = "unchecked"
	TodoChecked   TodoState = "checked"
)

// NextTodoState advances the three-state toggle cycle.
func NextTodoState(s TodoState) TodoState {
	switch s {
	case TodoNone:
		return TodoUnchecked
	case TodoUnchecked:
		return TodoChecked
	default:
		return TodoNone
	}
}

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

const (
	RoleMember        = "member"
	RoleAdministrator = "administrator"
)

type Membership struct {
	RoomID    string
	UserID    string
	Role      string
	CreatedAt time.Time
}

// Message is the sole threaded entity. ParentID is set only on children;
// a child's parent is always a root, so RootID always equals ParentID. It
// is stored separately so partition scans never chase pointers.
type Message struct {
	ID              int64
	RoomID          string
	CreatorID       string
	Body            string
	ClientMessageID string
	ParentID        *int64
	RootID          *int64
	TodoState       TodoState
	AttachmentKey   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsRoot reports whether the message anchors a thread (or is unthreaded).
func (m Message) IsRoot() bool {
	return m.ParentID == nil
}

// Partition identifies the timeline slice a pagination window is computed
// over: a room's root messages, or one thread's children when RootID is set.
type Partition struct {
	RoomID string
	RootID *int64
}

// Direction selects which side of the anchor a window scan walks.
type Direction int

const (
	// ScanLast returns the tail window of the partition; no anchor.
	ScanLast Direction = iota
	// ScanBefore returns messages strictly preceding the anchor.
	ScanBefore
	// ScanAfter returns messages strictly following the anchor.
	ScanAfter
)
