package realtime

import (
	"reliefdesk/internal/domain/notification"
)

type EventType string

// Server to client.
const (
	EventReady        EventType = "ready"
	EventNotification EventType = "notification"
	EventReadState    EventType = "read_state"
	EventPong         EventType = "pong"
	EventError        EventType = "error"
)

// Client to server.
const (
	MessageAuth = "auth"
	MessagePing = "ping"
)

// Event is one frame pushed to a session.
type Event struct {
	Type         EventType               `json:"type"`
	SessionID    string                  `json:"session_id,omitempty"`
	UserID       int64                   `json:"user_id,omitempty"`
	Notification *notification.Item      `json:"notification,omitempty"`
	UnreadDelta  int                     `json:"unread_delta,omitempty"`
	ReadState    *notification.ReadState `json:"read_state,omitempty"`
	Code         string                  `json:"code,omitempty"`
	Message      string                  `json:"message,omitempty"`
}

// ClientMessage is a frame sent by the client.
type ClientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

func NewReadyEvent(sessionID string, userID int64) Event {
	return Event{Type: EventReady, SessionID: sessionID, UserID: userID}
}

func NewNotificationEvent(item notification.Item) Event {
	return Event{Type: EventNotification, Notification: &item, UnreadDelta: notification.UnreadDelta}
}

func NewReadStateEvent(st notification.ReadState) Event {
	return Event{Type: EventReadState, ReadState: &st}
}

func NewPongEvent() Event {
	return Event{Type: EventPong}
}

func NewErrorEvent(code, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}
