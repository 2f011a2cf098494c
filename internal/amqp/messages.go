package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"finbot/internal/events"
)

// DailyReportMessage carries a rendered daily report to the chat transport.
type DailyReportMessage struct {
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"` // YYYY-MM-DD of the summarised day
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func NewDailyReportMessage(userID string, day time.Time, text string) *DailyReportMessage {
	return &DailyReportMessage{
		UserID:    userID,
		Date:      day.Format("2006-01-02"),
		Text:      text,
		Timestamp: time.Now(),
	}
}

func (m *DailyReportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DailyReportMessageFromJSON(data []byte) (*DailyReportMessage, error) {
	var msg DailyReportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errors.New("daily report message without user_id")
	}
	return &msg, nil
}

// EventMessage wraps a ledger event with its publish time.
type EventMessage struct {
	Event     events.Event `json:"event"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewEventMessage(ev events.Event) *EventMessage {
	return &EventMessage{Event: ev, Timestamp: time.Now()}
}

func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
