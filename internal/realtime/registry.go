package realtime

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry tracks live sessions per user. One instance is created at startup
// and shared by the websocket handler and the broker.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]map[string]*Session
	log      logrus.FieldLogger
}

func NewRegistry(log logrus.FieldLogger) *Registry {
	return &Registry{
		sessions: make(map[int64]map[string]*Session),
		log:      log,
	}
}

func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.sessions[s.UserID]
	if !ok {
		byID = make(map[string]*Session)
		r.sessions[s.UserID] = byID
	}
	byID[s.ID] = s
}

func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.sessions[s.UserID]
	if !ok {
		return
	}
	if existing, ok := byID[s.ID]; ok && existing == s {
		delete(byID, s.ID)
	}
	if len(byID) == 0 {
		delete(r.sessions, s.UserID)
	}
}

// SendToUser queues ev on every session of userID and returns how many took it.
func (r *Registry) SendToUser(userID int64, ev Event) int {
	return r.Deliver([]int64{userID}, ev)
}

// Deliver queues ev for every session of the given users. Full buffers drop
// the frame for that session only.
func (r *Registry) Deliver(userIDs []int64, ev Event) int {
	data, err := json.Marshal(ev)
	if err != nil {
		r.log.WithError(err).WithField("type", ev.Type).Error("marshal event")
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, uid := range userIDs {
		for _, s := range r.sessions[uid] {
			if s.Enqueue(data) {
				delivered++
				continue
			}
			r.log.WithFields(logrus.Fields{
				"user_id":    uid,
				"session_id": s.ID,
				"type":       ev.Type,
			}).Warn("event dropped for slow or closing session")
		}
	}
	return delivered
}

func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID]) > 0
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, byID := range r.sessions {
		n += len(byID)
	}
	return n
}

// Close ends every session. Their pumps notice and close the connections.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, byID := range r.sessions {
		for _, s := range byID {
			s.close()
		}
		delete(r.sessions, uid)
	}
}
