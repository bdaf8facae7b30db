package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"reliefdesk/internal/domain/directory"
	applog "reliefdesk/internal/pkg/logger"
)

func discardLogger() logrus.FieldLogger { return applog.Discard() }

type recordingPusher struct {
	mu         sync.Mutex
	pushed     []pushedNotification
	readStates map[int64][]ReadState
}

type pushedNotification struct {
	recipients []int64
	item       Item
}

func (p *recordingPusher) PushNotification(_ context.Context, recipients []int64, item Item) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, pushedNotification{recipients: recipients, item: item})
}

func (p *recordingPusher) PushReadState(_ context.Context, userID int64, st ReadState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readStates == nil {
		p.readStates = map[int64][]ReadState{}
	}
	p.readStates[userID] = append(p.readStates[userID], st)
}

type serviceFixture struct {
	db      *gorm.DB
	clock   *fakeClock
	service *Service
	pusher  *recordingPusher
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()
	db := setupTestDB(t)
	clock := newFakeClock()
	pusher := &recordingPusher{}
	resolver := directory.NewResolver(directory.NewUserRepository(db))
	svc := NewService(NewStore(db).WithClock(clock.Now), resolver, pusher, discardLogger())
	return &serviceFixture{db: db, clock: clock, service: svc, pusher: pusher}
}

func (f *serviceFixture) addUser(t *testing.T, name string, role directory.Role) int64 {
	t.Helper()
	u := directory.User{Name: name, Email: name + "@relief.test", Role: role, Active: true}
	require.NoError(t, f.db.Create(&u).Error)
	return u.ID
}

func announcement(title string) Content {
	return Content{Title: title, Body: "details", Payload: AnnouncementPayload{}}
}

func TestServiceSend_StoresThenPushes(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	a := f.addUser(t, "officer-a", directory.RoleFieldOfficer)
	b := f.addUser(t, "officer-b", directory.RoleFieldOfficer)
	f.addUser(t, "reporter", directory.RoleReporter)

	lat, lng := 41.31, 69.28
	res, err := f.service.Send(ctx, 99, Content{
		Title:    "Landslide near Chorvoq",
		Body:     "Road blocked",
		Priority: "HIGH",
		Payload:  IncidentPayload{IncidentID: 12, VillageID: 3, Severity: "high", Latitude: &lat, Longitude: &lng},
		Ref:      &EntityRef{Type: "incident", ID: 12},
	}, directory.GroupTarget(directory.GroupAllFieldOfficers))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Recipients)
	assert.Equal(t, PriorityHigh, res.Item.Priority)

	require.Len(t, f.pusher.pushed, 1)
	pushed := f.pusher.pushed[0]
	assert.Equal(t, []int64{a, b}, pushed.recipients)
	assert.Equal(t, res.ID, pushed.item.ID)
	assert.False(t, pushed.item.IsRead)

	stored, err := f.service.Get(ctx, a, res.ID)
	require.NoError(t, err)
	assert.Equal(t, pushed.item.Payload, stored.Payload)
	assert.Equal(t, CategoryIncident, stored.Category)
}

func TestServiceSend_EmptyGroupFailsWithoutWriting(t *testing.T) {
	f := setupService(t)
	f.addUser(t, "only-reporter", directory.RoleReporter)

	_, err := f.service.Send(context.Background(), 1, announcement("hello"), directory.GroupTarget(directory.GroupAllAdmins))
	require.ErrorIs(t, err, ErrEmptyAudience)
	assert.Empty(t, f.pusher.pushed)
	assert.Zero(t, countRows(t, f.db, &Notification{}))
}

func TestServiceSend_RejectsBadInput(t *testing.T) {
	f := setupService(t)
	u := f.addUser(t, "someone", directory.RoleCoordinator)
	ctx := context.Background()

	cases := []struct {
		name    string
		content Content
		target  directory.Target
		want    error
	}{
		{"blank title", Content{Title: "  ", Payload: SystemPayload{}}, directory.UsersTarget(u), ErrInvalidContent},
		{"no payload", Content{Title: "x"}, directory.UsersTarget(u), ErrInvalidContent},
		{"bad priority", Content{Title: "x", Priority: "critical", Payload: SystemPayload{}}, directory.UsersTarget(u), ErrInvalidContent},
		{"incident without id", Content{Title: "x", Payload: IncidentPayload{}}, directory.UsersTarget(u), ErrInvalidContent},
		{"half a ref", Content{Title: "x", Payload: SystemPayload{}, Ref: &EntityRef{Type: "incident"}}, directory.UsersTarget(u), ErrInvalidContent},
		{"unknown user", announcement("x"), directory.UsersTarget(u, 4040), directory.ErrInvalidTarget},
		{"unknown group", announcement("x"), directory.GroupTarget("all_volunteers"), directory.ErrUnknownGroup},
		{"no target", announcement("x"), directory.Target{}, directory.ErrInvalidTarget},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Send(ctx, 1, tc.content, tc.target)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, countRows(t, f.db, &Notification{}))
}

func TestServiceSend_SnapshotOfGroupAtSendTime(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	early := f.addUser(t, "early", directory.RoleReporter)

	res, err := f.service.Send(ctx, 1, announcement("drill"), directory.GroupTarget(directory.GroupAllReporters))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Recipients)

	late := f.addUser(t, "late", directory.RoleReporter)

	n, err := f.service.UnreadCount(ctx, late)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = f.service.Get(ctx, late, res.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err = f.service.UnreadCount(ctx, early)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

// Two officers receive N1 and N2; A reads N1.
func TestService_TwoRecipientsReadIndependently(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	a := f.addUser(t, "a", directory.RoleFieldOfficer)
	b := f.addUser(t, "b", directory.RoleFieldOfficer)
	target := directory.GroupTarget(directory.GroupAllFieldOfficers)

	n1, err := f.service.Send(ctx, 1, announcement("N1"), target)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	n2, err := f.service.Send(ctx, 1, announcement("N2"), target)
	require.NoError(t, err)

	st, err := f.service.MarkRead(ctx, a, []int64{n1.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.UnreadCount)
	assert.Equal(t, []int64{n1.ID}, st.IDs)

	countA, err := f.service.UnreadCount(ctx, a)
	require.NoError(t, err)
	countB, err := f.service.UnreadCount(ctx, b)
	require.NoError(t, err)
	assert.EqualValues(t, 1, countA)
	assert.EqualValues(t, 2, countB)

	pageA, err := f.service.List(ctx, ListQuery{UserID: a})
	require.NoError(t, err)
	require.Len(t, pageA.Items, 1)
	assert.Equal(t, n2.ID, pageA.Items[0].ID)

	pageB, err := f.service.List(ctx, ListQuery{UserID: b})
	require.NoError(t, err)
	require.Len(t, pageB.Items, 2)
	assert.Equal(t, n2.ID, pageB.Items[0].ID)
	assert.Equal(t, n1.ID, pageB.Items[1].ID)

	require.Len(t, f.pusher.readStates[a], 1)
	assert.Empty(t, f.pusher.readStates[b])
}

func TestService_GroupThenDirectSendKeepsReadStatePerUser(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	a := f.addUser(t, "a", directory.RoleFieldOfficer)
	b := f.addUser(t, "b", directory.RoleFieldOfficer)

	unread := func(user int64) int64 {
		t.Helper()
		n, err := f.service.UnreadCount(ctx, user)
		require.NoError(t, err)
		return n
	}
	listAll := func(user int64) []Item {
		t.Helper()
		page, err := f.service.List(ctx, ListQuery{UserID: user, IncludeRead: true})
		require.NoError(t, err)
		return page.Items
	}

	n1, err := f.service.Send(ctx, 1, announcement("N1"), directory.GroupTarget(directory.GroupAllFieldOfficers))
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread(a))
	assert.EqualValues(t, 1, unread(b))
	require.Len(t, listAll(a), 1)
	require.Len(t, listAll(b), 1)
	assert.Equal(t, n1.ID, listAll(b)[0].ID)

	_, err = f.service.MarkRead(ctx, a, []int64{n1.ID})
	require.NoError(t, err)
	assert.Zero(t, unread(a))
	assert.EqualValues(t, 1, unread(b))
	before := listAll(a)

	st, err := f.service.MarkRead(ctx, a, []int64{n1.ID})
	require.NoError(t, err)
	assert.Zero(t, st.UnreadCount)
	assert.Equal(t, before, listAll(a))
	assert.EqualValues(t, 1, unread(b))

	f.clock.Advance(time.Second)
	n2, err := f.service.Send(ctx, 1, announcement("N2"), directory.UsersTarget(b))
	require.NoError(t, err)

	itemsA := listAll(a)
	require.Len(t, itemsA, 1)
	assert.Equal(t, n1.ID, itemsA[0].ID)
	assert.True(t, itemsA[0].IsRead)

	itemsB := listAll(b)
	require.Len(t, itemsB, 2)
	assert.Equal(t, n2.ID, itemsB[0].ID)
	assert.False(t, itemsB[0].IsRead)
	assert.Equal(t, n1.ID, itemsB[1].ID)
	assert.False(t, itemsB[1].IsRead)
	assert.EqualValues(t, 2, unread(b))
}

func TestServiceMarkRead_PushesOnlyWhenSomethingChanged(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	u := f.addUser(t, "u", directory.RoleAdmin)

	res, err := f.service.Send(ctx, 1, announcement("x"), directory.UsersTarget(u))
	require.NoError(t, err)

	_, err = f.service.MarkRead(ctx, u, []int64{res.ID})
	require.NoError(t, err)
	st, err := f.service.MarkRead(ctx, u, []int64{res.ID})
	require.NoError(t, err)
	assert.Zero(t, st.UnreadCount)

	all, err := f.service.MarkAllRead(ctx, u)
	require.NoError(t, err)
	assert.True(t, all.All)
	assert.Nil(t, all.IDs)

	require.Len(t, f.pusher.readStates[u], 1)
	assert.Equal(t, ReadState{IDs: []int64{res.ID}, UnreadCount: 0}, f.pusher.readStates[u][0])
}
