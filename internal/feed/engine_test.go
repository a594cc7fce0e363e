package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"parley/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	batches chan entity.ChangeBatch
}

func (s *fakeStream) Next(ctx context.Context) (entity.ChangeBatch, error) {
	select {
	case b := <-s.batches:
		return b, nil
	case <-ctx.Done():
		return entity.ChangeBatch{}, ctx.Err()
	}
}

func (s *fakeStream) Close(ctx context.Context) error { return nil }

// fakeSource serves cutoffs and streams from memory. A gate can hold a room's
// cutoff lookup open to model a slow backend.
type fakeSource struct {
	mu        sync.Mutex
	cutoffs   map[string]time.Time
	catchUp   map[string][]entity.Message
	gates     map[string]chan struct{}
	streams   map[string]*fakeStream
	opens     map[string]int
	cutoffErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		cutoffs: map[string]time.Time{},
		catchUp: map[string][]entity.Message{},
		gates:   map[string]chan struct{}{},
		streams: map[string]*fakeStream{},
		opens:   map[string]int{},
	}
}

func (f *fakeSource) gate(roomId string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.gates[roomId] = g
	return g
}

func (f *fakeSource) Cutoff(ctx context.Context, userId, roomId string) (time.Time, bool, error) {
	f.mu.Lock()
	gate := f.gates[roomId]
	err := f.cutoffErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return time.Time{}, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.cutoffs[roomId]
	return at, ok, nil
}

func (f *fakeSource) Open(ctx context.Context, userId, roomId string, cutoff time.Time, bounded bool) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeStream{batches: make(chan entity.ChangeBatch, 16)}
	batch := entity.ChangeBatch{CatchUp: true}
	for _, m := range f.catchUp[roomId] {
		if bounded && !m.CreatedAt.After(cutoff) {
			continue
		}
		batch.Changes = append(batch.Changes, entity.Change{Kind: entity.ChangeAdded, Message: m})
	}
	s.batches <- batch
	f.streams[roomId] = s
	f.opens[roomId]++
	return s, nil
}

func (f *fakeSource) openCount(roomId string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[roomId]
}

// push delivers a live batch on the room's current stream, waiting for the
// subscription to open it first.
func (f *fakeSource) push(t *testing.T, roomId string, batch entity.ChangeBatch) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.streams[roomId] != nil
	}, time.Second, 2*time.Millisecond, "no stream opened for %s", roomId)

	f.mu.Lock()
	s := f.streams[roomId]
	f.mu.Unlock()
	s.batches <- batch
}

// fakeCommitter assigns server ids and, when wired to a source, mirrors the
// committed insert onto the room's stream the way a real backend would.
type fakeCommitter struct {
	mu     sync.Mutex
	source *fakeSource
	err    error
	seq    int
}

func (c *fakeCommitter) Commit(ctx context.Context, message entity.Message) (entity.Message, error) {
	c.mu.Lock()
	if c.err != nil {
		defer c.mu.Unlock()
		return entity.Message{}, c.err
	}
	c.seq++
	committed := message
	committed.Id = fmt.Sprintf("srv-%d", c.seq)
	committed.CreatedAt = time.Now().UTC()
	committed.Pending = false
	source := c.source
	c.mu.Unlock()

	if source != nil {
		source.mu.Lock()
		s := source.streams[message.RoomId]
		source.mu.Unlock()
		if s != nil {
			s.batches <- entity.ChangeBatch{Changes: []entity.Change{{Kind: entity.ChangeAdded, Message: committed}}}
		}
	}
	return committed, nil
}

type fakeVisibility struct {
	mu        sync.Mutex
	source    *fakeSource
	cutoffErr error
	hideErr   error
}

func (v *fakeVisibility) SetCutoff(ctx context.Context, userId, roomId string, clearedAt time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cutoffErr != nil {
		return v.cutoffErr
	}
	if v.source != nil {
		v.source.mu.Lock()
		if clearedAt.After(v.source.cutoffs[roomId]) {
			v.source.cutoffs[roomId] = clearedAt
		}
		v.source.mu.Unlock()
	}
	return nil
}

func (v *fakeVisibility) HideMessage(ctx context.Context, messageId, userId string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hideErr
}

func newTestEngine(t *testing.T, source Source, committer Committer, visibility Visibility) *Engine {
	t.Helper()
	e, err := NewEngine(entity.User{Id: "alice", Name: "Alice"}, source, committer, visibility)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func waitSnapshot(t *testing.T, events <-chan Event, cond func(SnapshotEvent) bool) SnapshotEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed while waiting for snapshot")
			if s, isSnap := ev.(SnapshotEvent); isSnap && cond(s) {
				return s
			}
		case <-timeout:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func waitError(t *testing.T, events <-chan Event) ErrorEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed while waiting for error")
			if e, isErr := ev.(ErrorEvent); isErr {
				return e
			}
		case <-timeout:
			t.Fatal("timed out waiting for error event")
		}
	}
}

func snapshotIds(s SnapshotEvent) []string {
	var ids []string
	for _, m := range s.Messages {
		ids = append(ids, m.Id)
	}
	return ids
}

func TestEngineRequiresIdentity(t *testing.T) {
	_, err := NewEngine(entity.User{}, newFakeSource(), &fakeCommitter{}, &fakeVisibility{})
	require.ErrorIs(t, err, ErrAuthRequired)
}

func TestEngineCatchUpThenLive(t *testing.T) {
	source := newFakeSource()
	source.catchUp["general"] = []entity.Message{msgAt("m1", 0), msgAt("m2", time.Minute)}
	e := newTestEngine(t, source, &fakeCommitter{}, &fakeVisibility{})

	e.SelectRoom("general")
	snap := waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 2 })
	assert.Equal(t, "general", snap.RoomId)
	assert.Equal(t, []string{"m1", "m2"}, snapshotIds(snap))
	assert.True(t, snap.ScrollToBottom, "initial load scrolls to newest")
	assert.False(t, snap.Unread)

	source.push(t, "general", added(msgAt("m3", 2*time.Minute)))
	snap = waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 3 })
	assert.Equal(t, []string{"m1", "m2", "m3"}, snapshotIds(snap))
	assert.True(t, snap.ScrollToBottom, "pinned view follows new messages")
}

func TestEngineUnreadWhileScrolledUp(t *testing.T) {
	source := newFakeSource()
	source.catchUp["general"] = []entity.Message{msgAt("m1", 0)}
	e := newTestEngine(t, source, &fakeCommitter{}, &fakeVisibility{})

	e.SelectRoom("general")
	waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 1 })

	e.ViewportScroll(scrolledFar())
	waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool {
		return len(s.Messages) == 1 && !s.ScrollToBottom
	})

	source.push(t, "general", added(msgAt("m2", time.Minute)))
	snap := waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 2 })
	assert.True(t, snap.Unread)
	assert.False(t, snap.ScrollToBottom, "reader in history is not yanked down")

	e.ScrollToBottom()
	snap = waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return s.ScrollToBottom })
	assert.False(t, snap.Unread)
}

func TestEngineOptimisticSubmit(t *testing.T) {
	source := newFakeSource()
	committer := &fakeCommitter{source: source}
	e := newTestEngine(t, source, committer, &fakeVisibility{})

	e.SelectRoom("general")
	waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return s.RoomId == "general" })

	e.Submit("  hello  ")

	echo := waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 1 })
	require.True(t, echo.Messages[0].Pending)
	assert.Equal(t, "hello", echo.Messages[0].Text)
	assert.True(t, echo.Messages[0].IsOwn)
	assert.True(t, echo.ScrollToBottom, "sending scrolls to the new message")

	// The commit result and the stream insert both resolve the echo; the
	// message must never show up twice in between.
	timeout := time.After(2 * time.Second)
	for {
		var snap SnapshotEvent
		select {
		case ev, ok := <-e.Events():
			require.True(t, ok)
			s, isSnap := ev.(SnapshotEvent)
			if !isSnap {
				continue
			}
			snap = s
		case <-timeout:
			t.Fatal("echo never resolved to the committed message")
		}
		require.LessOrEqual(t, len(snap.Messages), 1, "echo duplicated alongside committed message")
		if len(snap.Messages) == 1 && !snap.Messages[0].Pending {
			assert.Equal(t, "srv-1", snap.Messages[0].Id)
			assert.Equal(t, "hello", snap.Messages[0].Text)
			return
		}
	}
}

func TestEngineSubmitFailureMarksEcho(t *testing.T) {
	source := newFakeSource()
	committer := &fakeCommitter{err: errors.New("backend down")}
	e := newTestEngine(t, source, committer, &fakeVisibility{})

	e.SelectRoom("general")
	waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return s.RoomId == "general" })

	e.Submit("hello")
	snap := waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool {
		return len(s.Messages) == 1 && s.Messages[0].Failed
	})
	assert.Equal(t, "hello", snap.Messages[0].Text, "failed text stays for retry")

	errEv := waitError(t, e.Events())
	assert.ErrorIs(t, errEv.Kind, ErrSubmissionFailed)
}

func TestEngineSubmitWithoutRoom(t *testing.T) {
	e := newTestEngine(t, newFakeSource(), &fakeCommitter{}, &fakeVisibility{})

	e.Submit("hello")
	errEv := waitError(t, e.Events())
	assert.ErrorIs(t, errEv.Kind, ErrSubmissionFailed)
}

func TestEngineSwitchFencesStaleSubscription(t *testing.T) {
	source := newFakeSource()
	// "slow" carries a cleared-history cutoff and a slow lookup; "fast" has
	// older messages that the stale cutoff, if leaked, would wrongly exclude.
	source.cutoffs["slow"] = time.Now().UTC()
	source.catchUp["slow"] = []entity.Message{msgAt("s1", 0)}
	source.catchUp["fast"] = []entity.Message{msgAt("f1", -2*time.Hour)}
	gate := source.gate("slow")
	e := newTestEngine(t, source, &fakeCommitter{}, &fakeVisibility{})

	e.SelectRoom("slow")
	e.SelectRoom("fast")

	noLeak := func(s SnapshotEvent) {
		if s.RoomId == "slow" {
			require.Empty(t, s.Messages, "abandoned subscription leaked into the view")
		}
	}
	snap := waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool {
		noLeak(s)
		return s.RoomId == "fast" && len(s.Messages) == 1
	})
	assert.Equal(t, []string{"f1"}, snapshotIds(snap))

	// Let the abandoned lookup finish late; its cutoff must not bind the
	// current view.
	close(gate)
	source.push(t, "fast", added(msgAt("f2", -90*time.Minute)))
	snap = waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool {
		noLeak(s)
		return len(s.Messages) == 2
	})
	assert.Equal(t, []string{"f1", "f2"}, snapshotIds(snap))
}

func TestEngineClearHistoryResubscribes(t *testing.T) {
	source := newFakeSource()
	source.catchUp["general"] = []entity.Message{msgAt("m1", 0), msgAt("m2", time.Minute)}
	visibility := &fakeVisibility{source: source}
	e := newTestEngine(t, source, &fakeCommitter{}, visibility)

	e.SelectRoom("general")
	waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 2 })

	e.ClearHistory()
	require.Eventually(t, func() bool { return source.openCount("general") == 2 },
		time.Second, 2*time.Millisecond, "clearing history must re-subscribe")
	waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool {
		return s.RoomId == "general" && len(s.Messages) == 0
	})

	// Only messages after the clear are visible from here on.
	source.push(t, "general", added(entity.Message{
		Id: "m3", RoomId: "general", SenderId: "bob", SenderName: "Bob",
		Text: "fresh", CreatedAt: time.Now().UTC().Add(time.Hour),
	}))
	snap := waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 1 })
	assert.Equal(t, []string{"m3"}, snapshotIds(snap))
}

func TestEngineClearHistoryFailureKeepsView(t *testing.T) {
	source := newFakeSource()
	source.catchUp["general"] = []entity.Message{msgAt("m1", 0)}
	visibility := &fakeVisibility{cutoffErr: errors.New("write refused")}
	e := newTestEngine(t, source, &fakeCommitter{}, visibility)

	e.SelectRoom("general")
	waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 1 })

	e.ClearHistory()
	errEv := waitError(t, e.Events())
	assert.ErrorIs(t, errEv.Kind, ErrVisibilityWriteFailed)
	assert.Equal(t, 1, source.openCount("general"), "failed clear must not re-subscribe")
}

func TestEngineHideAppliedViaStream(t *testing.T) {
	source := newFakeSource()
	source.catchUp["general"] = []entity.Message{msgAt("m1", 0), msgAt("m2", time.Minute)}
	e := newTestEngine(t, source, &fakeCommitter{}, &fakeVisibility{})

	e.SelectRoom("general")
	waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 2 })

	e.HideMessage("m2")
	hidden := msgAt("m2", time.Minute)
	hidden.HiddenFor = []string{"alice"}
	source.push(t, "general", entity.ChangeBatch{Changes: []entity.Change{
		{Kind: entity.ChangeModified, Message: hidden},
	}})

	snap := waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 1 })
	assert.Equal(t, []string{"m1"}, snapshotIds(snap))
}

func TestEngineHideTwiceMatchesHideOnce(t *testing.T) {
	source := newFakeSource()
	source.catchUp["general"] = []entity.Message{msgAt("m1", 0), msgAt("m2", time.Minute)}
	e := newTestEngine(t, source, &fakeCommitter{}, &fakeVisibility{})

	e.SelectRoom("general")
	waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 2 })

	hidden := msgAt("m2", time.Minute)
	hidden.HiddenFor = []string{"alice"}
	modified := entity.ChangeBatch{Changes: []entity.Change{
		{Kind: entity.ChangeModified, Message: hidden},
	}}

	e.HideMessage("m2")
	source.push(t, "general", modified)
	snap := waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 1 })
	assert.Equal(t, []string{"m1"}, snapshotIds(snap))

	// A second hide of the same message redelivers the same update; the
	// view must not change. The marker message proves the second update
	// was processed without any other effect.
	e.HideMessage("m2")
	source.push(t, "general", modified)
	source.push(t, "general", added(msgAt("m3", 2*time.Minute)))
	snap = waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 2 })
	assert.Equal(t, []string{"m1", "m3"}, snapshotIds(snap))
}

func TestEngineHideFailureSurfaced(t *testing.T) {
	source := newFakeSource()
	source.catchUp["general"] = []entity.Message{msgAt("m1", 0)}
	visibility := &fakeVisibility{hideErr: errors.New("write refused")}
	e := newTestEngine(t, source, &fakeCommitter{}, visibility)

	e.SelectRoom("general")
	waitSnapshot(t, e.Events(), func(s SnapshotEvent) bool { return len(s.Messages) == 1 })

	e.HideMessage("m1")
	errEv := waitError(t, e.Events())
	assert.ErrorIs(t, errEv.Kind, ErrVisibilityWriteFailed)
}

func TestEngineCutoffLookupFailsClosed(t *testing.T) {
	source := newFakeSource()
	source.catchUp["general"] = []entity.Message{msgAt("m1", 0)}
	source.cutoffErr = errors.New("lookup down")
	e := newTestEngine(t, source, &fakeCommitter{}, &fakeVisibility{})

	e.SelectRoom("general")
	errEv := waitError(t, e.Events())
	assert.ErrorIs(t, errEv.Kind, ErrSubscriptionFailed)
	assert.Equal(t, 0, source.openCount("general"), "no stream may open without a resolved cutoff")
}

func TestEngineErrorSurvivesBackpressure(t *testing.T) {
	source := newFakeSource()
	e := newTestEngine(t, source, &fakeCommitter{}, &fakeVisibility{})

	// Saturate the event channel with unconsumed snapshots, then trigger a
	// failure. The error must still reach the consumer once it drains.
	for i := 0; i < 100; i++ {
		e.ViewportScroll(scrolledFar())
	}
	e.Submit("hello")

	errEv := waitError(t, e.Events())
	assert.ErrorIs(t, errEv.Kind, ErrSubmissionFailed)
}

func TestEngineCloseClosesEvents(t *testing.T) {
	source := newFakeSource()
	e := newTestEngine(t, source, &fakeCommitter{}, &fakeVisibility{})

	e.SelectRoom("general")
	e.Close()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-e.Events():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("event channel not closed")
		}
	}
}
