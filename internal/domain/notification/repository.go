package notification

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"reliefdesk/internal/database"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	recipientBatchSize = 500
)

var errBadCursor = errors.New("malformed cursor")

type ListQuery struct {
	UserID      int64
	IncludeRead bool
	Limit       int
	Cursor      string
}

type Page struct {
	Items      []Item
	NextCursor string
}

// Store persists notifications and their per-recipient read state.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: database.Now}
}

// WithClock replaces the timestamp source. Tests use it to force ties.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Create inserts n and one unread row per recipient in a single transaction.
func (s *Store) Create(ctx context.Context, n *Notification, recipients []int64) error {
	ids := uniqueIDs(recipients)
	if len(ids) == 0 {
		return ErrEmptyAudience
	}

	n.ID = 0
	n.CreatedAt = s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(n).Error; err != nil {
			return err
		}

		rows := make([]Recipient, 0, len(ids))
		for _, uid := range ids {
			rows = append(rows, Recipient{
				NotificationID: n.ID,
				UserID:         uid,
				CreatedAt:      n.CreatedAt,
			})
		}
		return tx.CreateInBatches(rows, recipientBatchSize).Error
	})
	if err != nil {
		n.ID = 0
		return storeError("create", err)
	}
	return nil
}

// MarkRead marks the caller's unread rows among ids. Ids the user never
// received are ignored.
func (s *Store) MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).
		Model(&Recipient{}).
		Where("user_id = ? AND notification_id IN ? AND is_read = ?", userID, ids, false).
		Updates(map[string]any{"is_read": true, "read_at": s.now()})
	if res.Error != nil {
		return 0, storeError("mark read", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&Recipient{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": s.now()})
	if res.Error != nil {
		return 0, storeError("mark all read", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&Recipient{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, storeError("unread count", err)
	}
	return n, nil
}

type itemRow struct {
	NotificationID int64
	Title          string
	Body           string
	Category       Category
	Priority       Priority
	Payload        datatypes.JSON
	RefType        *string
	RefID          *int64
	SenderID       int64
	CreatedAt      time.Time
	IsRead         bool
	ReadAt         *time.Time
}

func (r itemRow) item() (Item, error) {
	p, err := DecodePayload(r.Category, r.Payload)
	if err != nil {
		return Item{}, err
	}
	it := Item{
		ID:        r.NotificationID,
		Title:     r.Title,
		Body:      r.Body,
		Category:  r.Category,
		Priority:  r.Priority,
		Payload:   p,
		SenderID:  r.SenderID,
		CreatedAt: r.CreatedAt.UTC(),
		IsRead:    r.IsRead,
		ReadAt:    r.ReadAt,
	}
	if r.RefType != nil && r.RefID != nil {
		it.Ref = &EntityRef{Type: *r.RefType, ID: *r.RefID}
	}
	return it, nil
}

func (s *Store) itemQuery(ctx context.Context, userID int64) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("notification_recipients AS r").
		Select("r.notification_id, n.title, n.body, n.category, n.priority, n.payload, " +
			"n.ref_type, n.ref_id, n.sender_id, r.created_at, r.is_read, r.read_at").
		Joins("JOIN notifications n ON n.id = r.notification_id").
		Where("r.user_id = ?", userID)
}

// List returns one page, newest first, ordered by (created_at, id) descending.
func (s *Store) List(ctx context.Context, q ListQuery) (Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	tx := s.itemQuery(ctx, q.UserID)
	if !q.IncludeRead {
		tx = tx.Where("r.is_read = ?", false)
	}
	if q.Cursor != "" {
		at, id, err := decodeCursor(q.Cursor)
		if err != nil {
			return Page{}, fmt.Errorf("%w: %v", ErrInvalidContent, err)
		}
		tx = tx.Where("(r.created_at < ? OR (r.created_at = ? AND r.notification_id < ?))", at, at, id)
	}

	var rows []itemRow
	err := tx.Order("r.created_at DESC").
		Order("r.notification_id DESC").
		Limit(limit + 1).
		Scan(&rows).Error
	if err != nil {
		return Page{}, storeError("list", err)
	}

	page := Page{Items: make([]Item, 0, min(len(rows), limit))}
	for i, row := range rows {
		if i == limit {
			last := page.Items[len(page.Items)-1]
			page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
			break
		}
		it, err := row.item()
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, it)
	}
	return page, nil
}

// All walks every page of q lazily. Ranging over it again starts from q.Cursor.
func (s *Store) All(ctx context.Context, q ListQuery) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		cur := q
		for {
			page, err := s.List(ctx, cur)
			if err != nil {
				yield(Item{}, err)
				return
			}
			for _, it := range page.Items {
				if !yield(it, nil) {
					return
				}
			}
			if page.NextCursor == "" {
				return
			}
			cur.Cursor = page.NextCursor
		}
	}
}

func (s *Store) Get(ctx context.Context, userID, notificationID int64) (Item, error) {
	var rows []itemRow
	err := s.itemQuery(ctx, userID).
		Where("r.notification_id = ?", notificationID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return Item{}, storeError("get", err)
	}
	if len(rows) == 0 {
		return Item{}, ErrNotFound
	}
	return rows[0].item()
}

// PurgeRead deletes up to batch notifications created before cutoff whose
// rows are all read. Rows go first, then the notifications, in one transaction.
func (s *Store) PurgeRead(ctx context.Context, cutoff time.Time, batch int) (int64, error) {
	if batch <= 0 {
		batch = recipientBatchSize
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int64
		err := tx.Model(&Notification{}).
			Where("created_at < ?", cutoff).
			Where("NOT EXISTS (SELECT 1 FROM notification_recipients r WHERE r.notification_id = notifications.id AND r.is_read = ?)", false).
			Order("id ASC").
			Limit(batch).
			Pluck("id", &ids).Error
		if err != nil || len(ids) == 0 {
			return err
		}

		if err := tx.Where("notification_id IN ?", ids).Delete(&Recipient{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&Notification{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, storeError("purge", err)
	}
	return deleted, nil
}

func encodeCursor(at time.Time, id int64) string {
	raw := strconv.FormatInt(at.UnixNano(), 10) + "_" + strconv.FormatInt(id, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(c string) (time.Time, int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil {
		return time.Time{}, 0, errBadCursor
	}
	ts, id, ok := strings.Cut(string(raw), "_")
	if !ok {
		return time.Time{}, 0, errBadCursor
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, 0, errBadCursor
	}
	nid, err := strconv.ParseInt(id, 10, 64)
	if err != nil || nid <= 0 {
		return time.Time{}, 0, errBadCursor
	}
	return time.Unix(0, nanos).UTC(), nid, nil
}

// uniqueIDs returns the positive ids sorted ascending without duplicates.
func uniqueIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
