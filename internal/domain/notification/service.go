package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"reliefdesk/internal/domain/directory"
)

const (
	maxTitleLen = 200
	maxBodyLen  = 4000
)

// Pusher delivers live events to connected sessions. Implementations must
// not block on slow sessions; delivery is best effort.
type Pusher interface {
	PushNotification(ctx context.Context, recipients []int64, item Item)
	PushReadState(ctx context.Context, userID int64, state ReadState)
}

type TargetResolver interface {
	Resolve(ctx context.Context, t directory.Target) ([]int64, error)
}

// Content is what a producer submits; the store assigns id and timestamp.
type Content struct {
	Title    string
	Body     string
	Priority Priority
	Payload  Payload
	Ref      *EntityRef
}

type SendResult struct {
	ID         int64
	Recipients int
	Item       Item
}

type Service struct {
	store    *Store
	resolver TargetResolver
	unread   *Aggregator
	pusher   Pusher
	log      logrus.FieldLogger
}

func NewService(store *Store, resolver TargetResolver, pusher Pusher, log logrus.FieldLogger) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		unread:   NewAggregator(store),
		pusher:   pusher,
		log:      log,
	}
}

func (s *Service) Store() *Store { return s.store }

// Send resolves target, stores the notification with one row per recipient
// and pushes it to connected recipients after commit.
func (s *Service) Send(ctx context.Context, senderID int64, c Content, target directory.Target) (*SendResult, error) {
	n, err := buildNotification(senderID, c)
	if err != nil {
		return nil, err
	}

	recipients, err := s.resolver.Resolve(ctx, target)
	if err != nil {
		if errors.Is(err, directory.ErrInvalidTarget) || errors.Is(err, directory.ErrUnknownGroup) {
			return nil, err
		}
		return nil, storeError("resolve target", err)
	}
	if len(recipients) == 0 {
		return nil, ErrEmptyAudience
	}

	if err := s.store.Create(ctx, n, recipients); err != nil {
		s.log.WithFields(logrus.Fields{
			"target":     target.String(),
			"recipients": len(recipients),
		}).WithError(err).Error("notification create failed")
		return nil, err
	}

	item := Item{
		ID:        n.ID,
		Title:     n.Title,
		Body:      n.Body,
		Category:  n.Category,
		Priority:  n.Priority,
		Payload:   c.Payload,
		Ref:       n.Ref(),
		SenderID:  n.SenderID,
		CreatedAt: n.CreatedAt,
	}

	s.log.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"category":        n.Category,
		"target":          target.String(),
		"recipients":      len(recipients),
	}).Info("notification created")

	if s.pusher != nil {
		s.pusher.PushNotification(ctx, recipients, item)
	}

	return &SendResult{ID: n.ID, Recipients: len(recipients), Item: item}, nil
}

func buildNotification(senderID int64, c Content) (*Notification, error) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidContent)
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return nil, fmt.Errorf("%w: title exceeds %d characters", ErrInvalidContent, maxTitleLen)
	}
	if utf8.RuneCountInString(c.Body) > maxBodyLen {
		return nil, fmt.Errorf("%w: body exceeds %d characters", ErrInvalidContent, maxBodyLen)
	}

	prio, ok := ParsePriority(string(c.Priority))
	if !ok {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidContent, c.Priority)
	}
	if err := validatePayload(c.Payload); err != nil {
		return nil, err
	}
	raw, err := EncodePayload(c.Payload)
	if err != nil {
		return nil, err
	}

	n := &Notification{
		Title:    title,
		Body:     c.Body,
		Category: c.Payload.Category(),
		Priority: prio,
		Payload:  raw,
		SenderID: senderID,
	}
	if c.Ref != nil {
		if c.Ref.Type == "" || c.Ref.ID <= 0 {
			return nil, fmt.Errorf("%w: ref needs type and positive id", ErrInvalidContent)
		}
		refType, refID := c.Ref.Type, c.Ref.ID
		n.RefType, n.RefID = &refType, &refID
	}
	return n, nil
}

// MarkRead is idempotent; ids the user never received are ignored. When
// anything changed, every session of the user receives the new read state.
func (s *Service) MarkRead(ctx context.Context, userID int64, ids []int64) (ReadState, error) {
	ids = uniqueIDs(ids)
	changed, err := s.store.MarkRead(ctx, userID, ids)
	if err != nil {
		return ReadState{}, err
	}
	return s.afterMark(ctx, userID, ids, false, changed)
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) (ReadState, error) {
	changed, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return ReadState{}, err
	}
	return s.afterMark(ctx, userID, nil, true, changed)
}

func (s *Service) afterMark(ctx context.Context, userID int64, ids []int64, all bool, changed int64) (ReadState, error) {
	st, err := s.unread.ReadState(ctx, userID, ids, all)
	if err != nil {
		return ReadState{}, err
	}
	if changed > 0 && s.pusher != nil {
		s.pusher.PushReadState(ctx, userID, st)
	}
	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"all":     all,
		"changed": changed,
		"unread":  st.UnreadCount,
	}).Debug("notifications marked read")
	return st, nil
}

func (s *Service) List(ctx context.Context, q ListQuery) (Page, error) {
	return s.store.List(ctx, q)
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.unread.Count(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, notificationID int64) (Item, error) {
	return s.store.Get(ctx, userID, notificationID)
}
