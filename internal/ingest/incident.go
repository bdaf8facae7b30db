package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"reliefdesk/internal/domain/directory"
	"reliefdesk/internal/domain/notification"
	"reliefdesk/internal/pkg/validator"
)

const SeverityCritical = "critical"

// IncidentEvent is published by the incident subsystem when a report is created.
type IncidentEvent struct {
	IncidentID  int64    `json:"incident_id" validate:"required,gt=0"`
	VillageID   int64    `json:"village_id" validate:"gte=0"`
	Severity    string   `json:"severity" validate:"required,oneof=low medium high critical"`
	Title       string   `json:"title" validate:"max=200"`
	Description string   `json:"description" validate:"max=4000"`
	ReportedBy  int64    `json:"reported_by" validate:"gte=0"`
	Lat         *float64 `json:"lat,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Lng         *float64 `json:"lng,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

func decodeIncident(raw []byte) (IncidentEvent, error) {
	var ev IncidentEvent
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&ev); err != nil {
		return IncidentEvent{}, fmt.Errorf("decode incident event: %w", err)
	}
	ev.Severity = strings.ToLower(strings.TrimSpace(ev.Severity))
	if errs := validator.Validate(ev); errs != nil {
		return IncidentEvent{}, fmt.Errorf("invalid incident event: %v", errs)
	}
	return ev, nil
}

// Notification maps the event to content and audience. Field officers get
// every incident; critical ones go to all staff with urgent priority.
func (ev IncidentEvent) Notification() (notification.Content, directory.Target) {
	title := strings.TrimSpace(ev.Title)
	if title == "" {
		title = fmt.Sprintf("Incident #%d reported", ev.IncidentID)
	}

	c := notification.Content{
		Title:    title,
		Body:     ev.Description,
		Priority: priorityFor(ev.Severity),
		Payload: notification.IncidentPayload{
			IncidentID: ev.IncidentID,
			VillageID:  ev.VillageID,
			Severity:   ev.Severity,
			Latitude:   ev.Lat,
			Longitude:  ev.Lng,
		},
		Ref: &notification.EntityRef{Type: "incident", ID: ev.IncidentID},
	}

	target := directory.GroupTarget(directory.GroupAllFieldOfficers)
	if ev.Severity == SeverityCritical {
		target = directory.GroupTarget(directory.GroupAllStaff)
	}
	return c, target
}

func priorityFor(severity string) notification.Priority {
	switch severity {
	case SeverityCritical:
		return notification.PriorityUrgent
	case "high":
		return notification.PriorityHigh
	case "low":
		return notification.PriorityLow
	default:
		return notification.PriorityNormal
	}
}
