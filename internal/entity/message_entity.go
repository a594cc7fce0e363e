package entity

import "time"

type Message struct {
	Id         string    `bson:"_id" json:"id"`
	RoomId     string    `bson:"roomId" json:"roomId"`
	SenderId   string    `bson:"senderId" json:"senderId"`
	SenderName string    `bson:"senderName" json:"senderName"`
	Text       string    `bson:"text" json:"text"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	HiddenFor  []string  `bson:"hiddenFor,omitempty" json:"-"`

	// ProvisionalId links a committed message back to the optimistic echo
	// the sender rendered before the round trip resolved.
	ProvisionalId string `bson:"provisionalId,omitempty" json:"-"`

	// Local-only echo state, never persisted. A pending message has no
	// authoritative CreatedAt yet and orders after every committed one.
	Pending bool `bson:"-" json:"pending,omitempty"`
	Failed  bool `bson:"-" json:"failed,omitempty"`
}

// HiddenForUser reports whether the message is soft-deleted for userId.
func (m Message) HiddenForUser(userId string) bool {
	for _, id := range m.HiddenFor {
		if id == userId {
			return true
		}
	}
	return false
}

// Before is the total order within a room: committed messages by
// (createdAt, id), pending echoes after all committed ones, ties by id.
func (m Message) Before(other Message) bool {
	if m.Pending != other.Pending {
		return other.Pending
	}
	if !m.Pending && !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.Id < other.Id
}

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

type Change struct {
	Kind    ChangeKind `json:"kind"`
	Message Message    `json:"message"`
}

// ChangeBatch is one delivery from a room feed stream. CatchUp marks the
// initial snapshot batch that opens every subscription.
type ChangeBatch struct {
	Changes []Change `json:"changes"`
	CatchUp bool     `json:"catchUp"`
}

type MessageHistoryFilter struct {
	RoomId string    `bson:"roomId"`
	After  time.Time `bson:"after"`
	Limit  int       `bson:"limit"`
}
