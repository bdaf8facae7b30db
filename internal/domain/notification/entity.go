package notification

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Category selects the payload variant of a notification.
type Category string

const (
	CategoryIncident     Category = "incident"
	CategoryEvacuation   Category = "evacuation"
	CategoryWeatherAlert Category = "weather_alert"
	CategoryAssignment   Category = "assignment"
	CategoryAnnouncement Category = "announcement"
	CategorySystem       Category = "system"
)

func (c Category) Valid() bool {
	_, ok := payloadFactories[c]
	return ok
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority accepts any letter case; empty input means normal.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return PriorityNormal, true
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, true
	}
	return "", false
}

// EntityRef points at the portal record a notification is about.
type EntityRef struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// Notification is immutable once stored.
type Notification struct {
	ID        int64          `gorm:"column:id;primaryKey"`
	Title     string         `gorm:"column:title;size:200;not null"`
	Body      string         `gorm:"column:body;type:text"`
	Category  Category       `gorm:"column:category;size:32;not null"`
	Priority  Priority       `gorm:"column:priority;size:16;not null"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	RefType   *string        `gorm:"column:ref_type;size:32"`
	RefID     *int64         `gorm:"column:ref_id"`
	SenderID  int64          `gorm:"column:sender_id;index"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;index"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) Ref() *EntityRef {
	if n.RefType == nil || n.RefID == nil {
		return nil
	}
	return &EntityRef{Type: *n.RefType, ID: *n.RefID}
}

// Recipient holds the read state of one user for one notification.
type Recipient struct {
	ID             int64         `gorm:"column:id;primaryKey"`
	NotificationID int64         `gorm:"column:notification_id;not null;uniqueIndex:idx_recipient_pair,priority:1"`
	UserID         int64         `gorm:"column:user_id;not null;uniqueIndex:idx_recipient_pair,priority:2;index:idx_recipient_user_read,priority:1;index:idx_recipient_user_created,priority:1"`
	IsRead         bool          `gorm:"column:is_read;not null;default:false;index:idx_recipient_user_read,priority:2"`
	ReadAt         *time.Time    `gorm:"column:read_at"`
	CreatedAt      time.Time     `gorm:"column:created_at;not null;index:idx_recipient_user_created,priority:2"`
	Notification   *Notification `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE"`
}

func (Recipient) TableName() string { return "notification_recipients" }

// Models lists the tables owned by this package, in migration order.
func Models() []any {
	return []any{&Notification{}, &Recipient{}}
}

// Item is a notification as seen by one recipient.
type Item struct {
	ID        int64
	Title     string
	Body      string
	Category  Category
	Priority  Priority
	Payload   Payload
	Ref       *EntityRef
	SenderID  int64
	CreatedAt time.Time
	IsRead    bool
	ReadAt    *time.Time
}

// ReadState is the result of a mark operation, pushed to every device of the user.
type ReadState struct {
	IDs         []int64 `json:"ids,omitempty"`
	All         bool    `json:"all,omitempty"`
	UnreadCount int64   `json:"unread_count"`
}
