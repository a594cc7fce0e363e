package entity

import "time"

// RoomVisibility is the per-user visibility document: one per user, holding
// the "history cleared before" instant for every room the user has cleared.
// A cutoff only moves forward; clearing again tightens or repeats it.
type RoomVisibility struct {
	UserId    string               `bson:"_id" json:"userId"`
	ClearedAt map[string]time.Time `bson:"clearedAt,omitempty" json:"clearedAt,omitempty"`
}

// Cutoff returns the cleared-before instant for roomId, if one exists.
func (v RoomVisibility) Cutoff(roomId string) (time.Time, bool) {
	t, ok := v.ClearedAt[roomId]
	return t, ok
}
