package entity

import (
	"strings"
	"time"
)

type Room struct {
	Id        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsDirect reports whether the room is a two-party direct conversation.
// Direct room ids are the two user ids joined with an underscore.
func (r Room) IsDirect() bool {
	return strings.Contains(r.Id, "_")
}

// DirectPeer returns the other participant of a direct room, or "" when the
// room is not direct or userId is not part of it.
func DirectPeer(roomId, userId string) string {
	a, b, ok := strings.Cut(roomId, "_")
	if !ok {
		return ""
	}
	switch userId {
	case a:
		return b
	case b:
		return a
	}
	return ""
}

// DirectRoomId builds the canonical id for a direct room between two users.
// The smaller id goes first so both sides derive the same room.
func DirectRoomId(userId1, userId2 string) string {
	if userId2 < userId1 {
		userId1, userId2 = userId2, userId1
	}
	return userId1 + "_" + userId2
}
