package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
)

// Integration tests run against a real Postgres. They skip in short mode
// or when no database is reachable.

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "hearth")
	pass := envOr("POSTGRES_PASSWORD", "hearth")
	name := envOr("POSTGRES_DB", "hearth_test")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := ApplyMigrations(ctx, db, "../../db/migrations"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE users, rooms, memberships, messages RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewPostgresStore(db)
}

func seedRoom(t *testing.T, s *PostgresStore, roomID, userID string) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateUser(ctx, User{ID: userID, DisplayName: "tester", Email: userID + "@example.com", PasswordHash: "x"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := s.CreateRoom(ctx, Room{ID: roomID, Name: "test room"}, userID); err != nil {
		t.Fatalf("seed room: %v", err)
	}
}

func seedMessage(t *testing.T, s *PostgresStore, roomID, userID, body string, parentID *int64) Message {
	t.Helper()
	m, err := s.CreateMessage(context.Background(), Message{RoomID: roomID, CreatorID: userID, Body: body}, parentID)
	if err != nil {
		t.Fatalf("seed message %q: %v", body, err)
	}
	return m
}

func TestCreateMessageUnderChildFlattens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")

	root := seedMessage(t, s, "room_1", "usr_a", "root", nil)
	child := seedMessage(t, s, "room_1", "usr_a", "child", &root.ID)

	// Replying to the child lands under the root, never under the child.
	grandchild := seedMessage(t, s, "room_1", "usr_a", "reply to child", &child.ID)
	if grandchild.ParentID == nil || *grandchild.ParentID != root.ID {
		t.Fatalf("want parent %d, got %+v", root.ID, grandchild)
	}
	if grandchild.RootID == nil || *grandchild.RootID != root.ID {
		t.Fatalf("want root %d, got %+v", root.ID, grandchild)
	}

	var depthViolations int
	err := s.DB().QueryRowContext(ctx, `
		SELECT count(*) FROM messages child
		JOIN messages parent ON parent.id = child.parent_id
		WHERE parent.parent_id IS NOT NULL
	`).Scan(&depthViolations)
	if err != nil {
		t.Fatal(err)
	}
	if depthViolations != 0 {
		t.Fatalf("found %d children whose parent is itself a child", depthViolations)
	}
}

func TestCreateMessageClientIDIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")

	first, err := s.CreateMessage(ctx, Message{RoomID: "room_1", CreatorID: "usr_a", Body: "once", ClientMessageID: "cli-1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.CreateMessage(ctx, Message{RoomID: "room_1", CreatorID: "usr_a", Body: "twice", ClientMessageID: "cli-1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || second.Body != "once" {
		t.Fatalf("retry must return the original row, got %+v", second)
	}
}

func TestAttachToChildFlattensAndRepoints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")

	rootA := seedMessage(t, s, "room_1", "usr_a", "root a", nil)
	childA := seedMessage(t, s, "room_1", "usr_a", "child of a", &rootA.ID)
	rootB := seedMessage(t, s, "room_1", "usr_a", "root b", nil)
	childB := seedMessage(t, s, "room_1", "usr_a", "child of b", &rootB.ID)

	// Attaching rootB to childA must land rootB under rootA, and childB
	// must follow to rootA rather than stay under a now-child rootB.
	res, err := s.AttachMessage(ctx, "room_1", rootB.ID, childA.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.EffectiveParent.ID != rootA.ID {
		t.Fatalf("want effective parent %d, got %d", rootA.ID, res.EffectiveParent.ID)
	}
	if res.Message.ParentID == nil || *res.Message.ParentID != rootA.ID {
		t.Fatalf("want rootB under rootA, got %+v", res.Message)
	}
	if len(res.RepointedChildren) != 1 || res.RepointedChildren[0] != childB.ID {
		t.Fatalf("want childB repointed, got %v", res.RepointedChildren)
	}

	movedChild, err := s.GetMessage(ctx, childB.ID)
	if err != nil {
		t.Fatal(err)
	}
	if movedChild.ParentID == nil || *movedChild.ParentID != rootA.ID {
		t.Fatalf("childB should point at rootA, got %+v", movedChild)
	}
}

func TestAttachToOwnDescendantFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")

	root := seedMessage(t, s, "room_1", "usr_a", "root", nil)
	child := seedMessage(t, s, "room_1", "usr_a", "child", &root.ID)

	// The child's effective parent is the root itself.
	if _, err := s.AttachMessage(ctx, "room_1", root.ID, child.ID); !errors.Is(err, ErrInvalidParent) {
		t.Fatalf("want ErrInvalidParent, got %v", err)
	}
}

func TestAttachAlreadyAttachedIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")

	root := seedMessage(t, s, "room_1", "usr_a", "root", nil)
	child := seedMessage(t, s, "room_1", "usr_a", "child", &root.ID)

	res, err := s.AttachMessage(ctx, "room_1", child.ID, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.NoOp {
		t.Fatalf("re-attach to same parent should be a no-op, got %+v", res)
	}
}

func TestDetachPromotesChild(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")

	root := seedMessage(t, s, "room_1", "usr_a", "root", nil)
	child := seedMessage(t, s, "room_1", "usr_a", "child", &root.ID)

	detached, oldParentID, err := s.DetachMessage(ctx, "room_1", child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !detached.IsRoot() || detached.RootID != nil {
		t.Fatalf("want clean root, got %+v", detached)
	}
	if oldParentID == nil || *oldParentID != root.ID {
		t.Fatalf("want old parent %d, got %v", root.ID, oldParentID)
	}

	// Detaching a root reports no old parent.
	_, oldParentID, err = s.DetachMessage(ctx, "room_1", root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if oldParentID != nil {
		t.Fatalf("detaching a root must be a no-op, got old parent %v", oldParentID)
	}
}

func TestDeleteRootPromotesChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")

	root := seedMessage(t, s, "room_1", "usr_a", "root", nil)
	child1 := seedMessage(t, s, "room_1", "usr_a", "one", &root.ID)
	child2 := seedMessage(t, s, "room_1", "usr_a", "two", &root.ID)

	res, err := s.DeleteMessage(ctx, "room_1", root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.PromotedChildren) != 2 {
		t.Fatalf("want both children promoted, got %v", res.PromotedChildren)
	}

	for _, id := range []int64{child1.ID, child2.ID} {
		m, err := s.GetMessage(ctx, id)
		if err != nil {
			t.Fatalf("promoted child %d must survive: %v", id, err)
		}
		if !m.IsRoot() || m.RootID != nil {
			t.Fatalf("want promoted root, got %+v", m)
		}
	}
	if _, err := s.GetMessage(ctx, root.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("root must be gone, got %v", err)
	}
}

func TestDeleteChildTouchesParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")

	root := seedMessage(t, s, "room_1", "usr_a", "root", nil)
	child := seedMessage(t, s, "room_1", "usr_a", "child", &root.ID)

	before, err := s.GetMessage(ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.DeleteMessage(ctx, "room_1", child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.ParentTouched {
		t.Fatal("deleting a child must touch its parent")
	}

	after, err := s.GetMessage(ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Fatalf("parent updated_at must advance: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestMoveMessageTransfersChildrenAndDetaches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")
	if err := s.CreateRoom(ctx, Room{ID: "room_2", Name: "second"}, "usr_a"); err != nil {
		t.Fatal(err)
	}

	rootA := seedMessage(t, s, "room_1", "usr_a", "root a", nil)
	mover := seedMessage(t, s, "room_1", "usr_a", "mover", &rootA.ID)

	res, err := s.MoveMessage(ctx, "room_1", mover.ID, "room_2")
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.RoomID != "room_2" || !res.Message.IsRoot() {
		t.Fatalf("moved message must arrive as a root of room_2, got %+v", res.Message)
	}
	if res.OldParentID == nil || *res.OldParentID != rootA.ID {
		t.Fatalf("want old parent %d, got %v", rootA.ID, res.OldParentID)
	}

	// A root moves its own children with it.
	rootB := seedMessage(t, s, "room_1", "usr_a", "root b", nil)
	childB := seedMessage(t, s, "room_1", "usr_a", "child b", &rootB.ID)

	res, err = s.MoveMessage(ctx, "room_1", rootB.ID, "room_2")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.ChildIDs) != 1 || res.ChildIDs[0] != childB.ID {
		t.Fatalf("want child moved along, got %v", res.ChildIDs)
	}
	moved, err := s.GetMessage(ctx, childB.ID)
	if err != nil {
		t.Fatal(err)
	}
	if moved.RoomID != "room_2" || moved.ParentID == nil || *moved.ParentID != rootB.ID {
		t.Fatalf("child must stay under its root in the new room, got %+v", moved)
	}
}

func TestToggleTodoCyclePersists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")
	msg := seedMessage(t, s, "room_1", "usr_a", "task", nil)

	want := []TodoState{TodoUnchecked, TodoChecked, TodoNone}
	for _, state := range want {
		m, err := s.ToggleTodo(ctx, "room_1", msg.ID)
		if err != nil {
			t.Fatal(err)
		}
		if m.TodoState != state {
			t.Fatalf("want %s, got %s", state, m.TodoState)
		}
	}
}

func TestWindowScansAreContiguous(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")

	var all []Message
	for i := 0; i < 9; i++ {
		all = append(all, seedMessage(t, s, "room_1", "usr_a", fmt.Sprintf("m%d", i), nil))
	}
	p := Partition{RoomID: "room_1"}

	tail, err := s.ListWindow(ctx, p, ScanLast, nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 3 || tail[2].ID != all[8].ID {
		t.Fatalf("want tail ending at newest, got %+v", tail)
	}

	before, err := s.ListWindow(ctx, p, ScanBefore, &tail[0], 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != 3 || before[2].ID != all[5].ID || before[0].ID != all[3].ID {
		t.Fatalf("want window immediately before the tail, got %+v", before)
	}

	after, err := s.ListWindow(ctx, p, ScanAfter, &before[2], 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 3 || after[0].ID != all[6].ID {
		t.Fatalf("before/after must meet without gap or overlap, got %+v", after)
	}

	// Head-of-partition scans return short windows, not errors.
	short, err := s.ListWindow(ctx, p, ScanBefore, &all[1], 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(short) != 1 || short[0].ID != all[0].ID {
		t.Fatalf("want single head message, got %+v", short)
	}
}

func TestListByTodoStateScopesToPartition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")

	root := seedMessage(t, s, "room_1", "usr_a", "root", nil)
	child := seedMessage(t, s, "room_1", "usr_a", "child", &root.ID)
	loose := seedMessage(t, s, "room_1", "usr_a", "loose", nil)

	// loose -> checked, child -> checked
	for i := 0; i < 2; i++ {
		if _, err := s.ToggleTodo(ctx, "room_1", loose.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := s.ToggleTodo(ctx, "room_1", child.ID); err != nil {
			t.Fatal(err)
		}
	}

	roomChecked, err := s.ListByTodoState(ctx, Partition{RoomID: "room_1"}, TodoChecked)
	if err != nil {
		t.Fatal(err)
	}
	if len(roomChecked) != 1 || roomChecked[0].ID != loose.ID {
		t.Fatalf("room scope covers roots only, got %+v", roomChecked)
	}

	threadChecked, err := s.ListByTodoState(ctx, Partition{RoomID: "room_1", RootID: &root.ID}, TodoChecked)
	if err != nil {
		t.Fatal(err)
	}
	if len(threadChecked) != 1 || threadChecked[0].ID != child.ID {
		t.Fatalf("thread scope covers the thread's children, got %+v", threadChecked)
	}
}

func TestRoomVisibilityHidesNonMemberRooms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, s, "room_1", "usr_a")
	if err := s.CreateUser(ctx, User{ID: "usr_b", DisplayName: "b", Email: "b@example.com", PasswordHash: "x"}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetRoomForUser(ctx, "room_1", "usr_b"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("non-member must see the room as missing, got %v", err)
	}

	if err := s.AddMember(ctx, "room_1", "usr_b", RoleMember); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRoomForUser(ctx, "room_1", "usr_b"); err != nil {
		t.Fatalf("member must see the room: %v", err)
	}
}
