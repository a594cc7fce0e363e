package feed

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"parley/internal/entity"

	"github.com/google/uuid"
)

// Event is one engine output delivered to the UI layer.
type Event interface {
	isEvent()
}

// SnapshotEvent is the full view state after a change: the visible ordered
// messages, their day grouping, the unread indicator, and whether the view
// should scroll to the newest message.
type SnapshotEvent struct {
	RoomId         string            `json:"roomId"`
	Messages       []RenderedMessage `json:"messages"`
	Days           []DayGroup        `json:"days"`
	Unread         bool              `json:"unread"`
	ScrollToBottom bool              `json:"scrollToBottom"`
}

// ErrorEvent surfaces a failed operation as a discrete event. Kind is one of
// the package sentinels; the reconciled list is left in its last good state.
type ErrorEvent struct {
	RoomId string
	Kind   error
	Err    error
}

func (SnapshotEvent) isEvent() {}
func (ErrorEvent) isEvent()    {}

type commandOp int

const (
	opSelectRoom commandOp = iota
	opSubmit
	opViewportScroll
	opScrollToBottom
	opClearHistory
	opHideMessage
)

type command struct {
	op        commandOp
	roomId    string
	text      string
	viewport  Viewport
	messageId string
}

type resultKind int

const (
	resultCommit resultKind = iota
	resultClear
	resultHide
)

type asyncResult struct {
	gen           uint64
	kind          resultKind
	roomId        string
	provisionalId string
	committed     entity.Message
	err           error
}

// Engine drives one open conversation view: the active feed subscription,
// the reconciled message list, and the scroll/unread state. All state is
// owned by the run goroutine; commands, stream deliveries, and async results
// are serialized onto it, so the engine needs no locks.
type Engine struct {
	userId   string
	userName string

	source     Source
	committer  Committer
	visibility Visibility

	cmds    chan command
	inbox   chan streamEvent
	results chan asyncResult
	out     chan Event
	quit    chan struct{}
	once    sync.Once

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// Owned by the run goroutine.
	gen    uint64
	active *subscription
	rec    *Reconciler
	scroll *ScrollTracker
}

// NewEngine builds and starts an engine for one signed-in user's view.
// An absent identity is not authorized to subscribe.
func NewEngine(user entity.User, source Source, committer Committer, visibility Visibility) (*Engine, error) {
	if user.Id == "" {
		return nil, ErrAuthRequired
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		userId:     user.Id,
		userName:   user.Name,
		source:     source,
		committer:  committer,
		visibility: visibility,
		cmds:       make(chan command, 16),
		inbox:      make(chan streamEvent, 16),
		results:    make(chan asyncResult, 16),
		out:        make(chan Event, 64),
		quit:       make(chan struct{}),
		baseCtx:    ctx,
		baseCancel: cancel,
		rec:        NewReconciler(user.Id),
		scroll:     NewScrollTracker(),
	}

	go e.run()
	return e, nil
}

// Events is the engine's output. It is closed by Close.
func (e *Engine) Events() <-chan Event {
	return e.out
}

func (e *Engine) SelectRoom(roomId string) {
	e.enqueue(command{op: opSelectRoom, roomId: roomId})
}

func (e *Engine) Submit(text string) {
	e.enqueue(command{op: opSubmit, text: text})
}

func (e *Engine) ViewportScroll(v Viewport) {
	e.enqueue(command{op: opViewportScroll, viewport: v})
}

func (e *Engine) ScrollToBottom() {
	e.enqueue(command{op: opScrollToBottom})
}

func (e *Engine) ClearHistory() {
	e.enqueue(command{op: opClearHistory})
}

func (e *Engine) HideMessage(messageId string) {
	e.enqueue(command{op: opHideMessage, messageId: messageId})
}

// Close tears down the active subscription and closes the event channel.
func (e *Engine) Close() {
	e.once.Do(func() {
		close(e.quit)
		e.baseCancel()
	})
}

func (e *Engine) enqueue(cmd command) {
	select {
	case e.cmds <- cmd:
	case <-e.quit:
	}
}

func (e *Engine) run() {
	for {
		select {
		case <-e.quit:
			if e.active != nil {
				e.active.close()
				<-e.active.done
			}
			close(e.out)
			return
		case cmd := <-e.cmds:
			e.handleCommand(cmd)
		case ev := <-e.inbox:
			e.handleStream(ev)
		case res := <-e.results:
			e.handleResult(res)
		}
	}
}

func (e *Engine) handleCommand(cmd command) {
	switch cmd.op {
	case opSelectRoom:
		e.openRoom(cmd.roomId)

	case opSubmit:
		e.submit(cmd.text)

	case opViewportScroll:
		e.scroll.OnViewportScroll(cmd.viewport)
		e.emitSnapshot(false)

	case opScrollToBottom:
		e.emitSnapshot(e.scroll.OnUserAction())

	case opClearHistory:
		e.clearHistory()

	case opHideMessage:
		e.hideMessage(cmd.messageId)
	}
}

// openRoom tears down the previous subscription (fire-and-forget; deliveries
// from it are fenced off by the generation counter) and opens the next one.
func (e *Engine) openRoom(roomId string) {
	e.gen++
	if e.active != nil {
		e.active.close()
	}
	e.rec.Reset()
	e.scroll.Reset()

	sub := newSubscription(e.gen, roomId)
	ctx, cancel := context.WithCancel(e.baseCtx)
	sub.cancel = cancel
	sub.state = slotSubscribing
	e.active = sub

	go sub.run(ctx, e.userId, e.source, e.inbox)

	e.emitSnapshot(true)
}

func (e *Engine) submit(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if e.active == nil {
		e.emitError("", ErrSubmissionFailed, errors.New("no room selected"))
		return
	}
	roomId := e.active.roomId

	echo := entity.Message{
		Id:         uuid.New().String(),
		RoomId:     roomId,
		SenderId:   e.userId,
		SenderName: e.userName,
		Text:       text,
		CreatedAt:  time.Now().UTC(), // display only; server assigns the real one
		Pending:    true,
	}
	e.rec.AppendEcho(echo)
	e.emitSnapshot(e.scroll.OnUserAction())

	gen := e.gen
	go func() {
		msg := echo
		msg.ProvisionalId = echo.Id
		committed, err := e.committer.Commit(e.baseCtx, msg)
		e.deliver(asyncResult{
			gen:           gen,
			kind:          resultCommit,
			roomId:        roomId,
			provisionalId: echo.Id,
			committed:     committed,
			err:           err,
		})
	}()
}

func (e *Engine) clearHistory() {
	if e.active == nil {
		return
	}
	roomId := e.active.roomId
	clearedAt := time.Now().UTC()
	gen := e.gen

	go func() {
		err := e.visibility.SetCutoff(e.baseCtx, e.userId, roomId, clearedAt)
		e.deliver(asyncResult{gen: gen, kind: resultClear, roomId: roomId, err: err})
	}()
}

func (e *Engine) hideMessage(messageId string) {
	if messageId == "" {
		return
	}
	roomId := ""
	if e.active != nil {
		roomId = e.active.roomId
	}
	gen := e.gen

	go func() {
		err := e.visibility.HideMessage(e.baseCtx, messageId, e.userId)
		e.deliver(asyncResult{gen: gen, kind: resultHide, roomId: roomId, err: err})
	}()
}

func (e *Engine) handleStream(ev streamEvent) {
	if ev.gen != e.gen {
		// Stale generation: a delivery from an abandoned subscription.
		return
	}
	roomId := ""
	if e.active != nil {
		roomId = e.active.roomId
	}

	if ev.err != nil {
		if e.active != nil {
			e.active.state = slotIdle
		}
		e.emitError(roomId, ErrSubscriptionFailed, ev.err)
		return
	}

	if ev.activated {
		e.active.state = slotActive
		e.rec.SetCutoff(ev.cutoff, ev.bounded)
		return
	}

	if ev.batch != nil {
		added := e.rec.Apply(*ev.batch)
		scrollToBottom := false
		if added > 0 {
			scrollToBottom = e.scroll.OnAdded(ev.batch.CatchUp)
		}
		e.emitSnapshot(scrollToBottom)
	}
}

func (e *Engine) handleResult(res asyncResult) {
	switch res.kind {
	case resultCommit:
		if res.err != nil {
			if res.gen == e.gen && e.rec.FailEcho(res.provisionalId) {
				e.emitSnapshot(false)
			}
			e.emitError(res.roomId, ErrSubmissionFailed, res.err)
			return
		}
		if res.gen != e.gen {
			// View moved on; that list was discarded with its subscription.
			return
		}
		e.rec.ResolveEcho(res.provisionalId, res.committed)
		e.emitSnapshot(false)

	case resultClear:
		if res.err != nil {
			e.emitError(res.roomId, ErrVisibilityWriteFailed, res.err)
			return
		}
		if res.gen == e.gen && e.active != nil && e.active.roomId == res.roomId {
			// Re-subscribe so the new cutoff takes effect from scratch.
			e.openRoom(res.roomId)
		}

	case resultHide:
		if res.err != nil {
			e.emitError(res.roomId, ErrVisibilityWriteFailed, res.err)
		}
		// Success needs no local apply: the stream delivers the hiddenFor
		// update as a modified change.
	}
}

func (e *Engine) deliver(res asyncResult) {
	select {
	case e.results <- res:
	case <-e.quit:
	}
}

func (e *Engine) emitSnapshot(scrollToBottom bool) {
	roomId := ""
	if e.active != nil {
		roomId = e.active.roomId
	}

	visible := e.rec.Visible()
	rendered := make([]RenderedMessage, 0, len(visible))
	for _, m := range visible {
		rendered = append(rendered, render(m, e.userId))
	}

	e.emit(SnapshotEvent{
		RoomId:         roomId,
		Messages:       rendered,
		Days:           GroupByDay(rendered),
		Unread:         e.scroll.Unread(),
		ScrollToBottom: scrollToBottom,
	})
}

func (e *Engine) emitError(roomId string, kind, err error) {
	e.emit(ErrorEvent{RoomId: roomId, Kind: kind, Err: err})
}

// emit delivers an event to the consumer. Snapshots are droppable under
// backpressure (a later one supersedes them); error events are not, so those
// block until consumed or the engine shuts down.
func (e *Engine) emit(ev Event) {
	if _, isErr := ev.(ErrorEvent); isErr {
		select {
		case e.out <- ev:
		case <-e.quit:
		}
		return
	}
	select {
	case e.out <- ev:
	default:
		log.Printf("Dropped feed snapshot for user %s", e.userId)
	}
}
