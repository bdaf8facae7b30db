package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Payload is the category specific part of a notification. The set of
// implementations is closed; switch on the concrete type.
type Payload interface {
	Category() Category
	isPayload()
}

type IncidentPayload struct {
	IncidentID int64    `json:"incident_id"`
	VillageID  int64    `json:"village_id,omitempty"`
	Severity   string   `json:"severity,omitempty"`
	Latitude   *float64 `json:"lat,omitempty"`
	Longitude  *float64 `json:"lng,omitempty"`
}

type EvacuationPayload struct {
	VillageIDs []int64    `json:"village_ids"`
	Shelter    string     `json:"shelter,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

type WeatherAlertPayload struct {
	Hazard     string     `json:"hazard"`
	Region     string     `json:"region,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

type AssignmentPayload struct {
	TaskID       int64  `json:"task_id"`
	Instructions string `json:"instructions,omitempty"`
}

type AnnouncementPayload struct {
	Link string `json:"link,omitempty"`
}

type SystemPayload struct {
	Code string `json:"code,omitempty"`
}

func (IncidentPayload) Category() Category     { return CategoryIncident }
func (EvacuationPayload) Category() Category   { return CategoryEvacuation }
func (WeatherAlertPayload) Category() Category { return CategoryWeatherAlert }
func (AssignmentPayload) Category() Category   { return CategoryAssignment }
func (AnnouncementPayload) Category() Category { return CategoryAnnouncement }
func (SystemPayload) Category() Category       { return CategorySystem }

func (IncidentPayload) isPayload()     {}
func (EvacuationPayload) isPayload()   {}
func (WeatherAlertPayload) isPayload() {}
func (AssignmentPayload) isPayload()   {}
func (AnnouncementPayload) isPayload() {}
func (SystemPayload) isPayload()       {}

var payloadFactories = map[Category]func([]byte) (Payload, error){
	CategoryIncident:     decodeInto[IncidentPayload],
	CategoryEvacuation:   decodeInto[EvacuationPayload],
	CategoryWeatherAlert: decodeInto[WeatherAlertPayload],
	CategoryAssignment:   decodeInto[AssignmentPayload],
	CategoryAnnouncement: decodeInto[AnnouncementPayload],
	CategorySystem:       decodeInto[SystemPayload],
}

func decodeInto[T Payload](raw []byte) (Payload, error) {
	var v T
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodePayload parses raw JSON into the variant for category. An empty
// document yields the zero variant.
func DecodePayload(category Category, raw []byte) (Payload, error) {
	decode, ok := payloadFactories[category]
	if !ok {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidContent, category)
	}
	p, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrInvalidContent, category, err)
	}
	return p, nil
}

func EncodePayload(p Payload) (datatypes.JSON, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: payload is required", ErrInvalidContent)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func validatePayload(p Payload) error {
	switch v := p.(type) {
	case IncidentPayload:
		if v.IncidentID <= 0 {
			return fmt.Errorf("%w: incident_id must be positive", ErrInvalidContent)
		}
		if (v.Latitude == nil) != (v.Longitude == nil) {
			return fmt.Errorf("%w: lat and lng go together", ErrInvalidContent)
		}
	case EvacuationPayload:
		if len(v.VillageIDs) == 0 {
			return fmt.Errorf("%w: village_ids is required", ErrInvalidContent)
		}
	case WeatherAlertPayload:
		if v.Hazard == "" {
			return fmt.Errorf("%w: hazard is required", ErrInvalidContent)
		}
	case AssignmentPayload:
		if v.TaskID <= 0 {
			return fmt.Errorf("%w: task_id must be positive", ErrInvalidContent)
		}
	case AnnouncementPayload, SystemPayload:
	case nil:
		return fmt.Errorf("%w: payload is required", ErrInvalidContent)
	default:
		return fmt.Errorf("%w: unsupported payload %T", ErrInvalidContent, p)
	}
	return nil
}

type itemJSON struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Type      Category        `json:"type"`
	Priority  Priority        `json:"priority"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Ref       *EntityRef      `json:"ref,omitempty"`
	SenderID  int64           `json:"sender_id"`
	CreatedAt time.Time       `json:"created_at"`
	IsRead    bool            `json:"is_read"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
}

func (it Item) MarshalJSON() ([]byte, error) {
	out := itemJSON{
		ID:        it.ID,
		Title:     it.Title,
		Body:      it.Body,
		Type:      it.Category,
		Priority:  it.Priority,
		Ref:       it.Ref,
		SenderID:  it.SenderID,
		CreatedAt: it.CreatedAt,
		IsRead:    it.IsRead,
		ReadAt:    it.ReadAt,
	}
	if it.Payload != nil {
		b, err := json.Marshal(it.Payload)
		if err != nil {
			return nil, err
		}
		out.Payload = b
	}
	return json.Marshal(out)
}

func (it *Item) UnmarshalJSON(b []byte) error {
	var in itemJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	p, err := DecodePayload(in.Type, in.Payload)
	if err != nil {
		return err
	}
	*it = Item{
		ID:        in.ID,
		Title:     in.Title,
		Body:      in.Body,
		Category:  in.Type,
		Priority:  in.Priority,
		Payload:   p,
		Ref:       in.Ref,
		SenderID:  in.SenderID,
		CreatedAt: in.CreatedAt,
		IsRead:    in.IsRead,
		ReadAt:    in.ReadAt,
	}
	return nil
}
