package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applog "reliefdesk/internal/pkg/logger"
)

func activeSession(t *testing.T, userID int64, buffer int) *Session {
	t.Helper()
	s := NewSession(buffer)
	require.NoError(t, s.Authenticate(userID, "field_officer"))
	require.NoError(t, s.Activate())
	return s
}

func nextEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case raw := <-s.send:
		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	default:
		t.Fatalf("session %s has no queued event", s.ID)
		return Event{}
	}
}

func TestRegistry_DeliversToEveryDeviceOfUser(t *testing.T) {
	reg := NewRegistry(applog.Discard())
	phone := activeSession(t, 1, 4)
	laptop := activeSession(t, 1, 4)
	other := activeSession(t, 2, 4)
	reg.Register(phone)
	reg.Register(laptop)
	reg.Register(other)

	assert.Equal(t, 3, reg.Count())
	assert.True(t, reg.Online(1))

	n := reg.SendToUser(1, NewPongEvent())
	assert.Equal(t, 2, n)
	assert.Equal(t, EventPong, nextEvent(t, phone).Type)
	assert.Equal(t, EventPong, nextEvent(t, laptop).Type)
	assert.Empty(t, other.send)

	reg.Unregister(phone)
	assert.Equal(t, 1, reg.SendToUser(1, NewPongEvent()))
	reg.Unregister(laptop)
	assert.False(t, reg.Online(1))
	assert.Zero(t, reg.SendToUser(1, NewPongEvent()))
}

func TestRegistry_SlowSessionDoesNotBlockOthers(t *testing.T) {
	reg := NewRegistry(applog.Discard())
	slow := activeSession(t, 1, 1)
	fast := activeSession(t, 2, 8)
	reg.Register(slow)
	reg.Register(fast)

	for i := 0; i < 5; i++ {
		reg.Deliver([]int64{1, 2}, NewPongEvent())
	}
	assert.Len(t, slow.send, 1)
	assert.Len(t, fast.send, 5)
}

func TestRegistry_CloseEndsSessions(t *testing.T) {
	reg := NewRegistry(applog.Discard())
	s := activeSession(t, 3, 1)
	reg.Register(s)

	reg.Close()
	assert.Zero(t, reg.Count())
	select {
	case <-s.Done():
	default:
		t.Fatal("session not closed")
	}
}
