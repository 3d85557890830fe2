package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoCreatesSessionAtStart(t *testing.T) {
	s := NewStore(0)
	defer s.Close()

	var state State
	s.Do(1, func(sess *Session) { state = sess.State })
	assert.Equal(t, StateStart, state)
	assert.Equal(t, 1, s.Len())
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore(0)
	defer s.Close()

	s.Do(1, func(sess *Session) { sess.Email = "a@b.co" })
	copy1, ok := s.Get(1)
	require.True(t, ok)
	copy1.Email = "mutated@b.co"

	copy2, _ := s.Get(1)
	assert.Equal(t, "a@b.co", copy2.Email, "mutating the copy must not leak back")
}

func TestDoSerializesPerUser(t *testing.T) {
	s := NewStore(0)
	defer s.Close()

	const workers = 32
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				s.Do(7, func(sess *Session) {
					// Read-modify-write: lost updates would show up as a
					// short final count.
					n := len(sess.Email)
					sess.Email = sess.Email[:n]
					sess.Form.Amount++
				})
			}
		}()
	}
	wg.Wait()

	sess, _ := s.Get(7)
	assert.Equal(t, float64(workers*perWorker), sess.Form.Amount)
}

func TestIndependentUsersDoNotShareState(t *testing.T) {
	s := NewStore(0)
	defer s.Close()

	s.Do(1, func(sess *Session) { sess.State = "main_menu" })
	s.Do(2, func(sess *Session) { sess.Token = "tok-2" })

	s1, _ := s.Get(1)
	s2, _ := s.Get(2)
	assert.Equal(t, State("main_menu"), s1.State)
	assert.Empty(t, s1.Token)
	assert.Equal(t, StateStart, s2.State)
	assert.Equal(t, "tok-2", s2.Token)
}

func TestDelete(t *testing.T) {
	s := NewStore(0)
	defer s.Close()

	s.Do(1, func(*Session) {})
	s.Delete(1)
	_, ok := s.Get(1)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestEvictIdle(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	s.Do(1, func(*Session) {})
	s.Do(2, func(*Session) {})
	require.Equal(t, 2, s.Len())

	// Touch user 2 and evict relative to a future instant.
	s.mu.Lock()
	s.entries[1].lastSeen = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()

	s.evictIdle(time.Now())
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get(1)
	assert.False(t, ok)
	_, ok = s.Get(2)
	assert.True(t, ok)
}

func TestEvictIdleSkipsBusyEntry(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	s.Do(1, func(*Session) {})

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.Do(1, func(*Session) {
			close(entered)
			<-release
		})
		close(done)
	}()

	<-entered
	// The callback is mid-flight, so the entry must survive even when the
	// sweep instant makes it look idle.
	s.evictIdle(time.Now().Add(time.Hour))
	assert.Equal(t, 1, s.Len())

	close(release)
	<-done
}

func TestEvictIdleConcurrentWithDo(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.Do(1, func(sess *Session) { sess.Form.Amount++ })
		}
	}()

	for {
		select {
		case <-done:
			sess, ok := s.Get(1)
			require.True(t, ok, "a freshly touched session must not be evicted")
			assert.Equal(t, float64(200), sess.Form.Amount)
			return
		default:
			s.evictIdle(time.Now())
		}
	}
}

func TestResetSemantics(t *testing.T) {
	sess := Session{
		State: "email_confirm",
		Email: "a@b.co",
		Token: "tok",
		Form:  Form{Type: TransferEmail, RecipientEmail: "b@c.de", Amount: 10},
	}

	sess.ResetForm()
	assert.Equal(t, Form{}, sess.Form)
	assert.Equal(t, "tok", sess.Token, "form reset keeps credentials")

	sess.ResetAuth()
	assert.False(t, sess.Authenticated())
	assert.Empty(t, sess.Token)
}
