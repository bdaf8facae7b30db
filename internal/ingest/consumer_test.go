package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reliefdesk/internal/domain/directory"
	"reliefdesk/internal/domain/notification"
	applog "reliefdesk/internal/pkg/logger"
)

type fakeKafkaReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	fetchErr  error
}

func (f *fakeKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.fetchErr != nil {
		err := f.fetchErr
		f.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeKafkaReader) Close() error { return nil }

func (f *fakeKafkaReader) Committed() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, senderID int64, c notification.Content, t directory.Target) (*notification.SendResult, error) {
	args := m.Called(ctx, senderID, c, t)
	res, _ := args.Get(0).(*notification.SendResult)
	return res, args.Error(1)
}

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Offset: offset, Value: []byte(value)}
}

func runConsumer(t *testing.T, c *Consumer, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, until, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestNewKafkaConsumerValidation(t *testing.T) {
	log := applog.Discard()
	sender := &MockSender{}

	_, err := NewKafkaConsumer(KafkaConfig{Topic: "incidents", GroupID: "g"}, sender, log)
	assert.Error(t, err)
	_, err = NewKafkaConsumer(KafkaConfig{Brokers: []string{" "}, Topic: "incidents", GroupID: "g"}, sender, log)
	assert.Error(t, err)
	_, err = NewKafkaConsumer(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, GroupID: "g"}, sender, log)
	assert.Error(t, err)
	_, err = NewKafkaConsumer(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "incidents"}, sender, log)
	assert.Error(t, err)

	c, err := NewKafkaConsumer(KafkaConfig{Brokers: []string{"\t", "127.0.0.1:9092"}, Topic: "incidents", GroupID: "g"}, sender, log)
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestConsumer_RoutesBySeverity(t *testing.T) {
	reader := &fakeKafkaReader{msgs: []kafka.Message{
		message(1, `{"incident_id":5,"village_id":2,"severity":"medium","title":"Flooded bridge","reported_by":9}`),
		message(2, `{"incident_id":6,"village_id":3,"severity":"CRITICAL","description":"Dam overflow","lat":41.5,"lng":70.1}`),
	}}
	sender := &MockSender{}
	sender.On("Send", mock.Anything, int64(9), mock.MatchedBy(func(c notification.Content) bool {
		p, ok := c.Payload.(notification.IncidentPayload)
		return ok && p.IncidentID == 5 && c.Title == "Flooded bridge" && c.Priority == notification.PriorityNormal
	}), directory.GroupTarget(directory.GroupAllFieldOfficers)).
		Return(&notification.SendResult{ID: 1, Recipients: 3}, nil).Once()
	sender.On("Send", mock.Anything, int64(0), mock.MatchedBy(func(c notification.Content) bool {
		p, ok := c.Payload.(notification.IncidentPayload)
		return ok && p.IncidentID == 6 && p.Severity == "critical" && p.Latitude != nil &&
			c.Priority == notification.PriorityUrgent && c.Title == "Incident #6 reported"
	}), directory.GroupTarget(directory.GroupAllStaff)).
		Return(&notification.SendResult{ID: 2, Recipients: 8}, nil).Once()

	c := newConsumer(reader, sender, applog.Discard())
	runConsumer(t, c, func() bool { return len(reader.Committed()) == 2 })

	sender.AssertExpectations(t)
	assert.Equal(t, []int64{1, 2}, reader.Committed())
}

func TestConsumer_SkipsMalformedAndRejectedEvents(t *testing.T) {
	reader := &fakeKafkaReader{msgs: []kafka.Message{
		message(1, `not json`),
		message(2, `{"incident_id":0,"severity":"high"}`),
		message(3, `{"incident_id":7,"severity":"apocalyptic"}`),
		message(4, `{"incident_id":8,"severity":"high"}`),
	}}
	sender := &MockSender{}
	sender.On("Send", mock.Anything, int64(0), mock.Anything, mock.Anything).
		Return(nil, notification.ErrEmptyAudience).Once()

	c := newConsumer(reader, sender, applog.Discard())
	runConsumer(t, c, func() bool { return len(reader.Committed()) == 4 })

	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestConsumer_RetriesWhileStoreUnavailable(t *testing.T) {
	reader := &fakeKafkaReader{msgs: []kafka.Message{
		message(1, `{"incident_id":3,"severity":"high"}`),
	}}
	unavailable := &notification.StoreError{Op: "create", Err: errors.New("connection refused"), Retryable: true}

	sender := &MockSender{}
	sender.On("Send", mock.Anything, int64(0), mock.Anything, mock.Anything).Return(nil, unavailable).Twice()
	sender.On("Send", mock.Anything, int64(0), mock.Anything, mock.Anything).
		Return(&notification.SendResult{ID: 4, Recipients: 1}, nil).Once()

	c := newConsumer(reader, sender, applog.Discard())
	c.retryBase = time.Millisecond
	c.retryMax = 2 * time.Millisecond
	runConsumer(t, c, func() bool { return len(reader.Committed()) == 1 })

	sender.AssertNumberOfCalls(t, "Send", 3)
}

func TestConsumer_SkipsPermanentStoreErrors(t *testing.T) {
	reader := &fakeKafkaReader{msgs: []kafka.Message{
		message(1, `{"incident_id":3,"severity":"high"}`),
		message(2, `{"incident_id":4,"severity":"high"}`),
	}}
	broken := &notification.StoreError{Op: "create", Err: errors.New("no such table: notifications")}

	sender := &MockSender{}
	sender.On("Send", mock.Anything, int64(0), mock.Anything, mock.Anything).Return(nil, broken).Once()
	sender.On("Send", mock.Anything, int64(0), mock.Anything, mock.Anything).
		Return(&notification.SendResult{ID: 5, Recipients: 2}, nil).Once()

	c := newConsumer(reader, sender, applog.Discard())
	runConsumer(t, c, func() bool { return len(reader.Committed()) == 2 })

	sender.AssertNumberOfCalls(t, "Send", 2)
	assert.Equal(t, []int64{1, 2}, reader.Committed())
}

func TestConsumer_StopsRetryingWhenContextEnds(t *testing.T) {
	reader := &fakeKafkaReader{msgs: []kafka.Message{
		message(1, `{"incident_id":3,"severity":"low"}`),
	}}
	unavailable := &notification.StoreError{Op: "create", Err: errors.New("timeout"), Retryable: true}
	sender := &MockSender{}
	sender.On("Send", mock.Anything, int64(0), mock.Anything, mock.Anything).Return(nil, unavailable)

	c := newConsumer(reader, sender, applog.Discard())
	c.retryBase = time.Millisecond
	c.retryMax = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx))
	assert.Empty(t, reader.Committed())
}

func TestConsumer_FetchErrorIsReturned(t *testing.T) {
	unreachable := errors.New("dial tcp 127.0.0.1:9092: connection refused")
	reader := &fakeKafkaReader{fetchErr: unreachable}
	c := newConsumer(reader, &MockSender{}, applog.Discard())

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, unreachable)
}
