// Package notify maintains per-user Pusher subscriptions and turns deposit
// events into chat messages.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/m3rciful/paybot/core/logger"
)

const (
	protocolVersion = "7"
	dialTimeout     = 10 * time.Second
	writeTimeout    = 10 * time.Second
	readTimeout     = 2 * time.Minute
	pingInterval    = 30 * time.Second

	reconnectMin = 5 * time.Second
	reconnectMax = time.Minute
)

// Authorizer signs private-channel subscriptions. *payapi.Client satisfies it.
type Authorizer interface {
	NotificationsAuth(ctx context.Context, token, socketID, channel string) (string, error)
}

// Notifier delivers a deposit alert to a user. The app layer decides the
// transport and applies the user's notification preference.
type Notifier func(userID int64, text string)

// Config carries the Pusher app credentials. An empty Key disables the
// subscriber entirely.
type Config struct {
	Key     string
	Cluster string
}

// Subscriber runs one websocket connection per signed-in user, subscribed to
// that user's organization channel. A new login for the same user replaces
// the previous subscription.
type Subscriber struct {
	cfg    Config
	auth   Authorizer
	notify Notifier

	mu   sync.Mutex
	subs map[int64]context.CancelFunc
}

func New(cfg Config, auth Authorizer, notify Notifier) *Subscriber {
	return &Subscriber{cfg: cfg, auth: auth, notify: notify, subs: make(map[int64]context.CancelFunc)}
}

// Enabled reports whether Pusher credentials are configured.
func (s *Subscriber) Enabled() bool { return s.cfg.Key != "" }

// Subscribe starts (or restarts) the deposit stream for a user. It returns
// immediately; the connection is maintained in the background until
// Unsubscribe, Close, or parent context cancellation.
func (s *Subscriber) Subscribe(ctx context.Context, userID int64, orgID, token string) {
	if !s.Enabled() || orgID == "" {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if prev, ok := s.subs[userID]; ok {
		prev()
	}
	s.subs[userID] = cancel
	s.mu.Unlock()

	channel := "private-org-" + orgID
	logger.Info(ctx, "notify", "subscribe",
		slog.Int64("user_id", userID), slog.String("channel", channel))
	go s.run(runCtx, userID, channel, token)
}

// Unsubscribe tears down the user's stream, if any.
func (s *Subscriber) Unsubscribe(userID int64) {
	s.mu.Lock()
	cancel, ok := s.subs[userID]
	if ok {
		delete(s.subs, userID)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Close tears down every active stream.
func (s *Subscriber) Close() {
	s.mu.Lock()
	for id, cancel := range s.subs {
		cancel()
		delete(s.subs, id)
	}
	s.mu.Unlock()
}

func (s *Subscriber) endpoint() string {
	return fmt.Sprintf("wss://ws-%s.pusher.com/app/%s?protocol=%s", s.cfg.Cluster, s.cfg.Key, protocolVersion)
}

// run keeps one connection alive, reconnecting with backoff until the
// context is canceled. Failures are logged and retried, never surfaced to
// the user.
func (s *Subscriber) run(ctx context.Context, userID int64, channel, token string) {
	backoff := reconnectMin
	for {
		err := s.connectAndListen(ctx, userID, channel, token)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn(ctx, "notify", "stream.fail",
				slog.Int64("user_id", userID),
				slog.String("channel", channel),
				slog.String("err", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (s *Subscriber) connectAndListen(ctx context.Context, userID int64, channel, token string) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, s.endpoint(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	ws := &wsConn{conn: conn}

	// The first frame must be connection_established with our socket id.
	socketID, err := awaitSocketID(conn)
	if err != nil {
		return err
	}

	signature, err := s.auth.NotificationsAuth(ctx, token, socketID, channel)
	if err != nil {
		return fmt.Errorf("channel auth: %w", err)
	}
	sub := fmt.Sprintf(`{"event":"pusher:subscribe","data":{"auth":%q,"channel":%q}}`, signature, channel)
	if err := ws.write(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	go func() {
		for {
			select {
			case <-ping.C:
				if err := ws.write(`{"event":"pusher:ping","data":"{}"}`); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if gjson.GetBytes(msg, "event").String() == "pusher:ping" {
			if err := ws.write(`{"event":"pusher:pong","data":"{}"}`); err != nil {
				return fmt.Errorf("pong: %w", err)
			}
			continue
		}
		s.handleFrame(ctx, userID, channel, msg)
	}
}

func awaitSocketID(conn *websocket.Conn) (string, error) {
	conn.SetReadDeadline(time.Now().Add(dialTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("handshake read: %w", err)
	}
	if ev := gjson.GetBytes(msg, "event").String(); ev != "pusher:connection_established" {
		return "", fmt.Errorf("unexpected handshake event %q", ev)
	}
	// Pusher double-encodes the data payload as a JSON string.
	socketID := gjson.Parse(gjson.GetBytes(msg, "data").String()).Get("socket_id").String()
	if socketID == "" {
		return "", fmt.Errorf("handshake missing socket_id")
	}
	return socketID, nil
}

// wsConn serializes frame writes. The ping ticker goroutine and the read
// loop's pong replies both write to the same connection, and the websocket
// supports at most one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) write(payload string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

func (s *Subscriber) handleFrame(ctx context.Context, userID int64, channel string, msg []byte) {
	event := gjson.GetBytes(msg, "event").String()
	switch event {
	case "pusher:pong":
	case "pusher_internal:subscription_succeeded":
		logger.Info(ctx, "notify", "subscribed",
			slog.Int64("user_id", userID), slog.String("channel", channel))
	case "pusher:error":
		logger.Warn(ctx, "notify", "pusher.error",
			slog.Int64("user_id", userID),
			slog.String("err", gjson.GetBytes(msg, "data").String()))
	case "deposit":
		s.deliverDeposit(ctx, userID, gjson.GetBytes(msg, "data").String())
	}
}

func (s *Subscriber) deliverDeposit(ctx context.Context, userID int64, data string) {
	payload := gjson.Parse(data)
	amount := payload.Get("amount").String()
	network := payload.Get("network").String()

	text := "💰 Deposit Received\n\n"
	if amount != "" {
		text += amount + " USDC"
	} else {
		text += "A new deposit"
	}
	if network != "" {
		text += " on " + network
	}
	text += " has arrived in your wallet."

	logger.Info(ctx, "notify", "deposit",
		slog.Int64("user_id", userID), slog.String("amount", amount))
	if s.notify != nil {
		s.notify(userID, text)
	}
}
