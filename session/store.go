package session

import (
	"sync"
	"time"

	"github.com/m3rciful/paybot/core/logger"
	"log/slog"
)

type entry struct {
	mu       sync.Mutex
	sess     Session
	lastSeen time.Time
}

// Store maps user identity to Session. The outer map is guarded by an
// RWMutex so independent users never serialize on each other; each entry
// carries its own mutex so all transitions for one user happen one at a
// time, in order.
type Store struct {
	mu      sync.RWMutex
	entries map[int64]*entry

	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

// NewStore creates a store. A positive idle TTL starts a janitor goroutine
// that evicts sessions untouched for longer than ttl; zero disables eviction
// (logout-only lifecycle).
func NewStore(ttl time.Duration) *Store {
	s := &Store{
		entries: make(map[int64]*entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	if ttl > 0 {
		go s.janitor()
	}
	return s
}

// Do runs fn with the user's session lock held, creating the session on
// first contact. This is the only mutation path; it guarantees at most one
// state transition in flight per user.
func (s *Store) Do(userID int64, fn func(*Session)) {
	e := s.acquire(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = time.Now()
	fn(&e.sess)
}

// Get returns a copy of the user's session, if present. The copy is safe to
// read without holding any lock.
func (s *Store) Get(userID int64) (Session, bool) {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess, true
}

// Delete removes the session entirely (logout).
func (s *Store) Delete(userID int64) {
	s.mu.Lock()
	delete(s.entries, userID)
	s.mu.Unlock()
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the janitor. Sessions themselves need no teardown.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *Store) acquire(userID int64) *entry {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[userID]; ok {
		return e
	}
	e = &entry{
		sess:     Session{State: StateStart},
		lastSeen: time.Now(),
	}
	s.entries[userID] = e
	return e
}

func (s *Store) janitor() {
	interval := s.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictIdle(time.Now())
		}
	}
}

func (s *Store) evictIdle(now time.Time) {
	s.mu.Lock()
	evicted := 0
	for id, e := range s.entries {
		// lastSeen is written under the entry lock; a busy entry is by
		// definition not idle, so skip it instead of blocking the sweep.
		if !e.mu.TryLock() {
			continue
		}
		idle := now.Sub(e.lastSeen) > s.ttl
		e.mu.Unlock()
		if idle {
			delete(s.entries, id)
			evicted++
		}
	}
	remaining := len(s.entries)
	s.mu.Unlock()

	if evicted > 0 {
		logger.Info(logger.Background(), "session", "evict.idle",
			slog.Int("evicted", evicted),
			slog.Int("sessions", remaining),
		)
	}
}
