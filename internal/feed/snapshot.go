package feed

import (
	"time"

	"parley/internal/entity"
)

const (
	dayLabelFormat = "January 02, 2006"
	timeFormat     = "15:04"
)

// RenderedMessage is one visible message as exposed to the UI layer.
type RenderedMessage struct {
	Id         string    `json:"id"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	Time       string    `json:"time"`
	IsOwn      bool      `json:"isOwn"`
	Pending    bool      `json:"pending,omitempty"`
	Failed     bool      `json:"failed,omitempty"`
}

// DayGroup is a run of consecutive messages sharing a calendar day, used for
// date separator headers. Display-only; ordering comes from the flat list.
type DayGroup struct {
	Label    string            `json:"label"`
	Messages []RenderedMessage `json:"messages"`
}

func render(m entity.Message, userId string) RenderedMessage {
	return RenderedMessage{
		Id:         m.Id,
		SenderName: m.SenderName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
		Time:       m.CreatedAt.Format(timeFormat),
		IsOwn:      m.SenderId == userId,
		Pending:    m.Pending,
		Failed:     m.Failed,
	}
}

// GroupByDay splits an ordered message list into per-calendar-day groups.
func GroupByDay(messages []RenderedMessage) []DayGroup {
	var groups []DayGroup
	for _, m := range messages {
		label := m.CreatedAt.Format(dayLabelFormat)
		if len(groups) == 0 || groups[len(groups)-1].Label != label {
			groups = append(groups, DayGroup{Label: label})
		}
		last := len(groups) - 1
		groups[last].Messages = append(groups[last].Messages, m)
	}
	return groups
}
