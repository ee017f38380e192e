package app

import (
	"sync"

	"quiz-competition-service/internal/domain"
)

// session fans competition snapshots and chat messages out to subscribers.
// Persistent state lives in the repository; the session only carries the
// in-process change feed.
type session struct {
	competitionID string

	mu       sync.Mutex
	subs     map[chan CompetitionUpdate]struct{}
	chatSubs map[chan domain.ChatMessage]struct{}
}

func newSession(competitionID string) *session {
	return &session{
		competitionID: competitionID,
		subs:          make(map[chan CompetitionUpdate]struct{}),
		chatSubs:      make(map[chan domain.ChatMessage]struct{}),
	}
}

func (s *session) subscribe(initial CompetitionUpdate) (<-chan CompetitionUpdate, func()) {
	ch := make(chan CompetitionUpdate, 8)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *session) subscribeChat() (<-chan domain.ChatMessage, func()) {
	ch := make(chan domain.ChatMessage, 16)

	s.mu.Lock()
	s.chatSubs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.chatSubs[ch]; ok {
			delete(s.chatSubs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *session) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs) == 0 && len(s.chatSubs) == 0
}

// broadcast pushes the snapshot to every subscriber. A slow subscriber's
// stale snapshot is dropped in favor of the newest one so one client cannot
// block the fan-out.
func (s *session) broadcast(update CompetitionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- update:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

func (s *session) broadcastChat(msg domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.chatSubs {
		select {
		case ch <- msg:
		default:
			// Full buffer: drop the oldest message rather than block.
			select {
			case <-ch:
			default:
			}
			ch <- msg
		}
	}
}
