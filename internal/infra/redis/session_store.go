package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore tracks which competitions have live websocket viewers on this
// instance and mirrors that liveness into Redis with a TTL, so other
// instances (and operators) can see which competitions are hot. For true
// cross-instance fan-out this would pair with a pub/sub projector.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration

	mu      sync.Mutex
	viewers map[string]int
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:  client,
		ttl:     ttl,
		viewers: make(map[string]int),
	}
}

// Add registers a viewer for the competition and refreshes the liveness key.
func (s *SessionStore) Add(competitionID string) {
	s.mu.Lock()
	s.viewers[competitionID]++
	s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(competitionID), "1", s.ttl).Err()
}

// Remove drops a viewer; the liveness key is deleted when the last viewer
// on this instance leaves.
func (s *SessionStore) Remove(competitionID string) {
	s.mu.Lock()
	n := s.viewers[competitionID] - 1
	if n <= 0 {
		delete(s.viewers, competitionID)
	} else {
		s.viewers[competitionID] = n
	}
	s.mu.Unlock()
	if n <= 0 {
		_ = s.client.Del(context.Background(), s.key(competitionID)).Err()
	}
}

// Viewers returns the viewer count for a competition on this instance.
func (s *SessionStore) Viewers(competitionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewers[competitionID]
}

func (s *SessionStore) key(competitionID string) string {
	return "competition:live:" + competitionID
}
