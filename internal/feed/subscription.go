package feed

import (
	"context"
	"fmt"
	"time"

	"parley/internal/entity"
)

type slotState int

const (
	slotIdle slotState = iota
	slotSubscribing
	slotActive
	slotClosing
)

func (s slotState) String() string {
	switch s {
	case slotIdle:
		return "idle"
	case slotSubscribing:
		return "subscribing"
	case slotActive:
		return "active"
	case slotClosing:
		return "closing"
	}
	return "unknown"
}

// subscription is one generation of the per-view feed slot. The engine never
// holds more than one non-closing subscription; a room switch closes the old
// generation and every delivery is tagged so stale ones are discarded.
type subscription struct {
	gen    uint64
	roomId string
	state  slotState
	cancel context.CancelFunc
	done   chan struct{}
}

// streamEvent is a delivery from a subscription goroutine to the engine loop.
type streamEvent struct {
	gen       uint64
	activated bool
	cutoff    time.Time
	bounded   bool
	batch     *entity.ChangeBatch
	err       error
}

func newSubscription(gen uint64, roomId string) *subscription {
	return &subscription{
		gen:    gen,
		roomId: roomId,
		state:  slotIdle,
		done:   make(chan struct{}),
	}
}

// close moves the slot to Closing and cancels the goroutine. Idempotent.
func (s *subscription) close() {
	if s.state == slotClosing {
		return
	}
	s.state = slotClosing
	if s.cancel != nil {
		s.cancel()
	}
}

// run resolves the cutoff, opens the stream, and forwards batches until the
// stream ends or the subscription is closed. The cutoff is resolved before
// the stream opens so the filter is captured atomically; a lookup error
// fails closed and no stream is opened.
func (s *subscription) run(ctx context.Context, userId string, source Source, inbox chan<- streamEvent) {
	defer close(s.done)

	cutoff, bounded, err := source.Cutoff(ctx, userId, s.roomId)
	if err != nil {
		s.send(ctx, inbox, streamEvent{gen: s.gen, err: fmt.Errorf("resolve cutoff: %w", err)})
		return
	}

	stream, err := source.Open(ctx, userId, s.roomId, cutoff, bounded)
	if err != nil {
		s.send(ctx, inbox, streamEvent{gen: s.gen, err: fmt.Errorf("open stream: %w", err)})
		return
	}
	defer stream.Close(context.Background())

	if !s.send(ctx, inbox, streamEvent{gen: s.gen, activated: true, cutoff: cutoff, bounded: bounded}) {
		return
	}

	for {
		batch, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.send(ctx, inbox, streamEvent{gen: s.gen, err: err})
			return
		}
		if !s.send(ctx, inbox, streamEvent{gen: s.gen, batch: &batch}) {
			return
		}
	}
}

func (s *subscription) send(ctx context.Context, inbox chan<- streamEvent, ev streamEvent) bool {
	select {
	case inbox <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
