package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAfterUnregisterIsNoOp(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient("alice", hub, nil)
	hub.RegisterClient(client)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 },
		time.Second, 2*time.Millisecond)

	hub.UnregisterClient(client)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 },
		time.Second, 2*time.Millisecond)

	// The event forwarder keeps calling Send until the engine drains; a
	// closed queue must reject the payload, not panic.
	assert.NotPanics(t, func() {
		assert.False(t, client.Send([]byte("late")))
	})
}

func TestDuplicateRegisterClosesOldClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	first := NewClient("alice", hub, nil)
	hub.RegisterClient(first)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 },
		time.Second, 2*time.Millisecond)

	second := NewClient("alice", hub, nil)
	hub.RegisterClient(second)

	// The replaced connection's queue shuts down; sends on it become no-ops
	// while the new connection keeps receiving.
	require.Eventually(t, func() bool {
		var rejected bool
		assert.NotPanics(t, func() { rejected = !first.Send([]byte("x")) })
		return rejected
	}, time.Second, 2*time.Millisecond)

	assert.True(t, second.Send([]byte("y")))
	assert.Equal(t, 1, hub.GetClientCount())
}

func TestCloseSendIsIdempotent(t *testing.T) {
	client := NewClient("alice", NewHub(), nil)

	assert.NotPanics(t, func() {
		client.CloseSend()
		client.CloseSend()
	})
	assert.False(t, client.Send([]byte("x")))
}
