package client

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"reliefdesk/internal/domain/notification"
	"reliefdesk/internal/realtime"
)

type ItemState string

const (
	ItemUnread    ItemState = "unread"
	ItemPending   ItemState = "pending"
	ItemConfirmed ItemState = "confirmed"
)

type Mode string

const (
	ModeStarting Mode = "starting"
	ModePush     Mode = "push"
	ModeOffline  Mode = "offline"
	ModePolling  Mode = "polling"
)

// Entry is the local view of one notification.
type Entry struct {
	Item  notification.Item
	State ItemState
}

// Alert is raised once for every notification first seen through push.
type Alert struct {
	Item notification.Item
}

// NotificationAPI is the subset of *API the synchronizer needs.
type NotificationAPI interface {
	List(ctx context.Context, opts ListOptions) (notification.ListResponse, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, ids []int64) (notification.ReadState, error)
	MarkAllRead(ctx context.Context) (notification.ReadState, error)
}

// Stream is the push side, satisfied by *Channel.
type Stream interface {
	Run(ctx context.Context) error
	Events() <-chan StreamEvent
}

type SyncConfig struct {
	ResyncInterval time.Duration
	PageSize       int
	AlertBuffer    int
	ErrorBuffer    int
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{ResyncInterval: 30 * time.Second, PageSize: notification.DefaultPageSize, AlertBuffer: 16, ErrorBuffer: 8}
}

// Synchronizer keeps a local notification list and unread count in step
// with the server, using push when available and polling otherwise.
type Synchronizer struct {
	api    NotificationAPI
	stream Stream
	cfg    SyncConfig
	log    logrus.FieldLogger

	mu        sync.Mutex
	entries   map[int64]*Entry
	order     []int64
	unread    int64
	inFlight  int
	mode      Mode
	connected bool

	alerts chan Alert
	errs   chan error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSynchronizer(api NotificationAPI, stream Stream, cfg SyncConfig, log logrus.FieldLogger) *Synchronizer {
	def := DefaultSyncConfig()
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = def.ResyncInterval
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.AlertBuffer <= 0 {
		cfg.AlertBuffer = def.AlertBuffer
	}
	if cfg.ErrorBuffer <= 0 {
		cfg.ErrorBuffer = def.ErrorBuffer
	}
	return &Synchronizer{
		api:     api,
		stream:  stream,
		cfg:     cfg,
		log:     log,
		entries: make(map[int64]*Entry),
		mode:    ModeStarting,
		alerts:  make(chan Alert, cfg.AlertBuffer),
		errs:    make(chan error, cfg.ErrorBuffer),
	}
}

// Start performs the cold start and then runs push consumption and the
// resync ticker in the background until ctx ends or Close is called.
func (s *Synchronizer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.Resync(ctx); err != nil {
		cancel()
		return err
	}

	if s.stream != nil {
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			if err := s.stream.Run(ctx); errors.Is(err, ErrChannelUnavailable) {
				s.log.Warn("push channel unavailable, polling")
			}
		}()
		go func() {
			defer s.wg.Done()
			s.consume(ctx)
		}()
	} else {
		s.setMode(ModePolling)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.ResyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.tick(ctx); err != nil && ctx.Err() == nil {
					s.log.WithError(err).Warn("notification resync failed")
				}
			}
		}
	}()
	return nil
}

// Close stops background work and tears down the push connection.
func (s *Synchronizer) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Synchronizer) Alerts() <-chan Alert { return s.alerts }

func (s *Synchronizer) Errors() <-chan error { return s.errs }

func (s *Synchronizer) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Synchronizer) Unread() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Entries returns a snapshot, newest first.
func (s *Synchronizer) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.entries[id])
	}
	return out
}

// Resync fetches the first page and the unread count and merges them.
func (s *Synchronizer) Resync(ctx context.Context) error {
	page, err := s.api.List(ctx, ListOptions{IncludeRead: true, Limit: s.cfg.PageSize})
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, item := range page.Items {
		s.mergeLocked(item)
	}
	s.mu.Unlock()

	return s.refreshCount(ctx)
}

func (s *Synchronizer) refreshCount(ctx context.Context) error {
	n, err := s.api.UnreadCount(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == 0 {
		s.unread = n
	}
	return nil
}

// tick is one background resync: count only while push is up, the list as
// well otherwise.
func (s *Synchronizer) tick(ctx context.Context) error {
	switch s.Mode() {
	case ModePush:
		return s.refreshCount(ctx)
	default:
		return s.Resync(ctx)
	}
}

func (s *Synchronizer) consume(ctx context.Context) {
	events := s.stream.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-events:
			s.handleStream(ctx, msg)
		}
	}
}

func (s *Synchronizer) handleStream(ctx context.Context, msg StreamEvent) {
	switch msg.Kind {
	case KindConnected:
		s.mu.Lock()
		reconnect := s.connected
		s.connected = true
		s.mode = ModePush
		s.mu.Unlock()
		if reconnect {
			if err := s.Resync(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Warn("resync after reconnect failed")
			}
		}
	case KindDisconnected:
		s.setMode(ModeOffline)
	case KindUnavailable:
		s.setMode(ModePolling)
	case KindEvent:
		s.applyEvent(msg.Event)
	}
}

func (s *Synchronizer) applyEvent(ev realtime.Event) {
	switch ev.Type {
	case realtime.EventNotification:
		if ev.Notification == nil {
			return
		}
		s.applyNotification(*ev.Notification, int64(ev.UnreadDelta))
	case realtime.EventReadState:
		if ev.ReadState == nil {
			return
		}
		s.applyReadState(*ev.ReadState)
	}
}

func (s *Synchronizer) applyNotification(item notification.Item, delta int64) {
	s.mu.Lock()
	if _, ok := s.entries[item.ID]; ok {
		s.mu.Unlock()
		return
	}
	s.insertLocked(&Entry{Item: item, State: ItemUnread})
	s.unread += delta
	s.mu.Unlock()

	select {
	case s.alerts <- Alert{Item: item}:
	default:
		s.log.WithField("notification_id", item.ID).Debug("alert dropped")
	}
}

func (s *Synchronizer) applyReadState(st notification.ReadState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	confirm := func(e *Entry) {
		e.State = ItemConfirmed
		e.Item.IsRead = true
	}
	if st.All {
		for _, e := range s.entries {
			confirm(e)
		}
	} else {
		for _, id := range st.IDs {
			if e, ok := s.entries[id]; ok {
				confirm(e)
			}
		}
	}
	if s.inFlight == 0 {
		s.unread = st.UnreadCount
	}
}

// MarkRead marks ids read optimistically and confirms or rolls back once
// the server answers.
func (s *Synchronizer) MarkRead(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	marked := s.beginMark(func(e *Entry) bool { return slices.Contains(ids, e.Item.ID) })
	st, err := s.api.MarkRead(ctx, ids)
	return s.finishMark(marked, st, err)
}

// MarkAllRead applies MarkRead semantics to every locally unread entry.
func (s *Synchronizer) MarkAllRead(ctx context.Context) error {
	marked := s.beginMark(func(*Entry) bool { return true })
	st, err := s.api.MarkAllRead(ctx)
	return s.finishMark(marked, st, err)
}

func (s *Synchronizer) beginMark(match func(*Entry) bool) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var marked []int64
	for _, id := range s.order {
		e := s.entries[id]
		if e.State == ItemUnread && match(e) {
			e.State = ItemPending
			marked = append(marked, id)
		}
	}
	s.unread = max(0, s.unread-int64(len(marked)))
	s.inFlight++
	return marked
}

func (s *Synchronizer) finishMark(marked []int64, st notification.ReadState, err error) error {
	s.mu.Lock()
	s.inFlight--
	for _, id := range marked {
		e, ok := s.entries[id]
		if !ok || e.State != ItemPending {
			continue
		}
		if err != nil {
			e.State = ItemUnread
			s.unread++
		} else {
			e.State = ItemConfirmed
			e.Item.IsRead = true
		}
	}
	if err == nil && s.inFlight == 0 {
		s.unread = st.UnreadCount
	}
	s.mu.Unlock()

	if err != nil {
		select {
		case s.errs <- err:
		default:
		}
	}
	return err
}

func (s *Synchronizer) mergeLocked(item notification.Item) {
	e, ok := s.entries[item.ID]
	if !ok {
		state := ItemUnread
		if item.IsRead {
			state = ItemConfirmed
		}
		s.insertLocked(&Entry{Item: item, State: state})
		return
	}
	if item.IsRead && e.State == ItemUnread {
		e.State = ItemConfirmed
		e.Item.IsRead = true
		e.Item.ReadAt = item.ReadAt
	}
}

func (s *Synchronizer) insertLocked(e *Entry) {
	s.entries[e.Item.ID] = e
	pos, _ := slices.BinarySearchFunc(s.order, e.Item, func(id int64, target notification.Item) int {
		cur := s.entries[id].Item
		switch {
		case cur.CreatedAt.After(target.CreatedAt):
			return -1
		case cur.CreatedAt.Before(target.CreatedAt):
			return 1
		case cur.ID > target.ID:
			return -1
		case cur.ID < target.ID:
			return 1
		}
		return 0
	})
	s.order = slices.Insert(s.order, pos, e.Item.ID)
}

func (s *Synchronizer) setMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}
