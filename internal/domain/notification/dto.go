package notification

import (
	"encoding/json"

	"reliefdesk/internal/domain/directory"
)

// SendRequest is the body of POST /notifications.
type SendRequest struct {
	Title    string           `json:"title" validate:"required,max=200"`
	Body     string           `json:"body" validate:"max=4000"`
	Type     Category         `json:"type" validate:"required"`
	Priority string           `json:"priority,omitempty"`
	Payload  json.RawMessage  `json:"payload,omitempty"`
	Ref      *EntityRef       `json:"ref,omitempty"`
	Target   directory.Target `json:"target"`
}

// Content converts the request into domain content, decoding the payload for Type.
func (r SendRequest) Content() (Content, error) {
	p, err := DecodePayload(r.Type, r.Payload)
	if err != nil {
		return Content{}, err
	}
	return Content{
		Title:    r.Title,
		Body:     r.Body,
		Priority: Priority(r.Priority),
		Payload:  p,
		Ref:      r.Ref,
	}, nil
}

type SendResponse struct {
	ID         int64 `json:"id"`
	Recipients int   `json:"recipients"`
}

type ListResponse struct {
	Items       []Item `json:"items"`
	NextCursor  string `json:"next_cursor,omitempty"`
	UnreadCount int64  `json:"unread_count"`
}

type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

type MarkReadRequest struct {
	IDs []int64 `json:"ids" validate:"max=500"`
}
