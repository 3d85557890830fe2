package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	userID int64
	text   string
	count  int
}

func newSubscriber(cfg Config) (*Subscriber, *captured) {
	got := &captured{}
	s := New(cfg, nil, func(userID int64, text string) {
		got.userID = userID
		got.text = text
		got.count++
	})
	return s, got
}

func TestEnabled(t *testing.T) {
	s, _ := newSubscriber(Config{})
	assert.False(t, s.Enabled())

	s, _ = newSubscriber(Config{Key: "k", Cluster: "mt1"})
	assert.True(t, s.Enabled())
}

func TestEndpoint(t *testing.T) {
	s, _ := newSubscriber(Config{Key: "appkey", Cluster: "mt1"})
	assert.Equal(t, "wss://ws-mt1.pusher.com/app/appkey?protocol=7", s.endpoint())
}

func TestSubscribeDisabledIsNoop(t *testing.T) {
	s, _ := newSubscriber(Config{})
	s.Subscribe(context.Background(), 1, "org-1", "tok")
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.subs)
}

func TestSubscribeRequiresOrg(t *testing.T) {
	s, _ := newSubscriber(Config{Key: "k", Cluster: "mt1"})
	defer s.Close()
	s.Subscribe(context.Background(), 1, "", "tok")
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.subs)
}

func TestUnsubscribeUnknownUser(t *testing.T) {
	s, _ := newSubscriber(Config{Key: "k", Cluster: "mt1"})
	s.Unsubscribe(99)
}

func TestDepositFrameDelivery(t *testing.T) {
	s, got := newSubscriber(Config{Key: "k", Cluster: "mt1"})
	ctx := context.Background()

	frame := []byte(`{"event":"deposit","channel":"private-org-1","data":"{\"amount\":\"42.5\",\"network\":\"Polygon\"}"}`)
	s.handleFrame(ctx, 7, "private-org-1", frame)

	assert.Equal(t, 1, got.count)
	assert.Equal(t, int64(7), got.userID)
	assert.Contains(t, got.text, "42.5 USDC")
	assert.Contains(t, got.text, "Polygon")
	assert.Contains(t, got.text, "Deposit Received")
}

func TestDepositFrameWithoutAmount(t *testing.T) {
	s, got := newSubscriber(Config{Key: "k", Cluster: "mt1"})

	frame := []byte(`{"event":"deposit","data":"{}"}`)
	s.handleFrame(context.Background(), 7, "private-org-1", frame)

	assert.Equal(t, 1, got.count)
	assert.Contains(t, got.text, "A new deposit")
}

func TestWriteIsSafeFromConcurrentGoroutines(t *testing.T) {
	// The ping ticker and the read loop's pong replies share one connection,
	// so frame writes must be serialized.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	ws := &wsConn{conn: conn}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, ws.write(`{"event":"pusher:ping","data":"{}"}`))
			}
		}()
	}
	wg.Wait()
}

func TestNonDepositFramesAreIgnored(t *testing.T) {
	s, got := newSubscriber(Config{Key: "k", Cluster: "mt1"})
	ctx := context.Background()

	for _, frame := range []string{
		`{"event":"pusher:pong"}`,
		`{"event":"pusher_internal:subscription_succeeded","channel":"private-org-1"}`,
		`{"event":"pusher:error","data":"{\"message\":\"bad auth\"}"}`,
		`{"event":"unknown:event"}`,
	} {
		s.handleFrame(ctx, 7, "private-org-1", []byte(frame))
	}
	assert.Zero(t, got.count)
}
