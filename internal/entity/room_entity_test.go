package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectRoomIdIsCanonical(t *testing.T) {
	assert.Equal(t, "alice_bob", DirectRoomId("alice", "bob"))
	assert.Equal(t, "alice_bob", DirectRoomId("bob", "alice"))
}

func TestDirectPeer(t *testing.T) {
	assert.Equal(t, "bob", DirectPeer("alice_bob", "alice"))
	assert.Equal(t, "alice", DirectPeer("alice_bob", "bob"))
	assert.Equal(t, "", DirectPeer("alice_bob", "carol"))
	assert.Equal(t, "", DirectPeer("general", "alice"))
}

func TestRoomIsDirect(t *testing.T) {
	assert.True(t, Room{Id: "alice_bob"}.IsDirect())
	assert.False(t, Room{Id: "general"}.IsDirect())
}

func TestMessageOrder(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	earlier := Message{Id: "b", CreatedAt: base}
	later := Message{Id: "a", CreatedAt: base.Add(time.Second)}
	tied := Message{Id: "c", CreatedAt: base}
	pending := Message{Id: "0", CreatedAt: base.Add(-time.Hour), Pending: true}

	require.True(t, earlier.Before(later))
	require.False(t, later.Before(earlier))

	// Equal timestamps fall back to id.
	require.True(t, earlier.Before(tied))
	require.False(t, tied.Before(earlier))

	// Pending echoes sort after every committed message, whatever their
	// local timestamp or id says.
	require.True(t, later.Before(pending))
	require.False(t, pending.Before(later))
}

func TestMessageHiddenForUser(t *testing.T) {
	m := Message{Id: "m1", HiddenFor: []string{"alice", "bob"}}
	assert.True(t, m.HiddenForUser("alice"))
	assert.False(t, m.HiddenForUser("carol"))
	assert.False(t, Message{Id: "m2"}.HiddenForUser("alice"))
}
