// Package perm answers "can this actor administer this target?" for the
// two kinds of administrable things: messages and rooms.
package perm

import "hearth/api/internal/store"

// Target is an administrable resource. Exactly two variants exist.
type Target interface {
	isTarget()
}

// MessageTarget wraps a message for an administer check.
type MessageTarget struct {
	Message store.Message
}

// RoomTarget wraps a room for an administer check.
type RoomTarget struct {
	Room store.Room
}

func (MessageTarget) isTarget() {}
func (RoomTarget) isTarget()    {}

// CanAdminister reports whether the actor may take destructive or
// administrative action on the target. The actor's membership must belong
// to the target's room; a zero membership denies.
//
// A message is administrable by its creator or by a room administrator.
// A room is administrable only by a room administrator.
func CanAdminister(actorID string, membership store.Membership, target Target) bool {
	switch t := target.(type) {
	case MessageTarget:
		if membership.RoomID != t.Message.RoomID || membership.UserID != actorID {
			return false
		}
		return t.Message.CreatorID == actorID || membership.Role == store.RoleAdministrator
	case RoomTarget:
		if membership.RoomID != t.Room.ID || membership.UserID != actorID {
			return false
		}
		return membership.Role == store.RoleAdministrator
	default:
		return false
	}
}
