package websocket

import (
	"encoding/json"
	"errors"

	"parley/internal/feed"
)

// Command is one client request on the feed socket.
type Command struct {
	Type         string  `json:"type"`
	RoomId       string  `json:"roomId,omitempty"`
	Text         string  `json:"text,omitempty"`
	MessageId    string  `json:"messageId,omitempty"`
	ScrollTop    float64 `json:"scrollTop,omitempty"`
	ScrollHeight float64 `json:"scrollHeight,omitempty"`
	ClientHeight float64 `json:"clientHeight,omitempty"`
}

const (
	CmdSelect         = "select"
	CmdSubmit         = "submit"
	CmdScroll         = "scroll"
	CmdScrollToBottom = "scrollToBottom"
	CmdClearHistory   = "clearHistory"
	CmdHideMessage    = "hideMessage"
)

// SnapshotPayload mirrors feed.SnapshotEvent on the wire.
type SnapshotPayload struct {
	Type           string                 `json:"type"`
	RoomId         string                 `json:"roomId"`
	Messages       []feed.RenderedMessage `json:"messages"`
	Days           []feed.DayGroup        `json:"days"`
	Unread         bool                   `json:"unread"`
	ScrollToBottom bool                   `json:"scrollToBottom"`
}

type ErrorPayload struct {
	Type    string `json:"type"`
	RoomId  string `json:"roomId,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ActivityPayload notifies a connected user of new activity in a room they
// are not currently viewing.
type ActivityPayload struct {
	Type       string `json:"type"`
	RoomId     string `json:"roomId"`
	SenderId   string `json:"senderId"`
	SenderName string `json:"senderName"`
	MessageId  string `json:"messageId"`
}

func encodeEvent(ev feed.Event) ([]byte, error) {
	switch e := ev.(type) {
	case feed.SnapshotEvent:
		return json.Marshal(SnapshotPayload{
			Type:           "snapshot",
			RoomId:         e.RoomId,
			Messages:       e.Messages,
			Days:           e.Days,
			Unread:         e.Unread,
			ScrollToBottom: e.ScrollToBottom,
		})
	case feed.ErrorEvent:
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return json.Marshal(ErrorPayload{
			Type:    "error",
			RoomId:  e.RoomId,
			Kind:    errorKind(e.Kind),
			Message: msg,
		})
	}
	return nil, errors.New("unknown feed event")
}

func errorKind(kind error) string {
	switch {
	case errors.Is(kind, feed.ErrAuthRequired):
		return "authRequired"
	case errors.Is(kind, feed.ErrSubscriptionFailed):
		return "subscriptionFailed"
	case errors.Is(kind, feed.ErrSubmissionFailed):
		return "submissionFailed"
	case errors.Is(kind, feed.ErrVisibilityWriteFailed):
		return "visibilityWriteFailed"
	}
	return "internal"
}
