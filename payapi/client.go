// Package payapi is the gateway to the remote payments API. All calls are
// JSON over HTTPS with bearer auth after login, and every failure collapses
// into *Error: callers never see transport error types.
package payapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/m3rciful/paybot/core/logger"
	"log/slog"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultDialTimeout  = 5 * time.Second
	defaultTLSHandshake = 5 * time.Second
	defaultIdleConn     = 30 * time.Second

	maxBodyBytes = 1 << 20
)

// Config configures the gateway client.
type Config struct {
	BaseURL string
	// Timeout bounds a single call end to end; 0 -> 10s.
	// There is deliberately no retry: a failed payments call is reported,
	// never replayed.
	Timeout time.Duration
}

// Client issues calls against the payments API.
type Client struct {
	base string
	hc   *http.Client
}

// New builds a Client with a tuned transport and a bounded per-call timeout.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     defaultIdleConn,
		TLSHandshakeTimeout: defaultTLSHandshake,
	}
	return &Client{
		base: cfg.BaseURL,
		hc: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// request performs one API call and normalizes the outcome. The returned
// result is the response payload with the optional {"data": ...} envelope
// already unwrapped.
func (c *Client) request(ctx context.Context, method, path, token string, body any) (gjson.Result, *Error) {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, transportErr(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return gjson.Result{}, transportErr(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		logger.Warn(ctx, "api", "request.fail",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return gjson.Result{}, transportErr(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, transportErr(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(raw, "message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		logger.Warn(ctx, "api", "request.fail",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.Duration("duration", logger.Took(start)),
		)
		return gjson.Result{}, &Error{Status: resp.StatusCode, Message: msg}
	}

	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, &Error{Status: resp.StatusCode, Message: "malformed response body"}
	}

	logger.Debug(ctx, "api", "request.ok",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("http_status", resp.StatusCode),
		slog.Duration("duration", logger.Took(start)),
	)

	parsed := gjson.ParseBytes(raw)
	if data := parsed.Get("data"); data.Exists() {
		return data, nil
	}
	return parsed, nil
}

func decodeInto(res gjson.Result, out any) *Error {
	if err := json.Unmarshal([]byte(res.Raw), out); err != nil {
		return &Error{Message: "unexpected response shape: " + err.Error()}
	}
	return nil
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// RequestOTP triggers one-time passcode delivery to the given email.
func (c *Client) RequestOTP(ctx context.Context, email string) error {
	if _, err := c.request(ctx, http.MethodPost, "/auth/email-otp/request", "", map[string]string{"email": email}); err != nil {
		return err
	}
	return nil
}

// Authenticate exchanges email and OTP code for a bearer token.
func (c *Client) Authenticate(ctx context.Context, email, code string) (string, error) {
	res, err := c.request(ctx, http.MethodPost, "/auth/email-otp/authenticate", "", map[string]string{
		"email": email,
		"code":  code,
	})
	if err != nil {
		return "", err
	}
	token := res.Get("token").String()
	if token == "" {
		return "", &Error{Message: "authentication response missing token"}
	}
	return token, nil
}

// Me fetches the authenticated account profile.
func (c *Client) Me(ctx context.Context, token string) (Profile, error) {
	res, err := c.request(ctx, http.MethodGet, "/auth/me", token, nil)
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if derr := decodeInto(res, &p); derr != nil {
		return Profile{}, derr
	}
	return p, nil
}

// Wallets lists all wallets of the account.
func (c *Client) Wallets(ctx context.Context, token string) ([]Wallet, error) {
	res, err := c.request(ctx, http.MethodGet, "/wallets", token, nil)
	if err != nil {
		return nil, err
	}
	var ws []Wallet
	if derr := decodeInto(res, &ws); derr != nil {
		return nil, derr
	}
	return ws, nil
}

// Balances fetches per-wallet balances. Number encoding varies upstream, so
// values are extracted leniently instead of decoded into a fixed shape.
func (c *Client) Balances(ctx context.Context, token string) ([]Balance, error) {
	res, err := c.request(ctx, http.MethodGet, "/wallets/balances", token, nil)
	if err != nil {
		return nil, err
	}
	var out []Balance
	res.ForEach(func(_, v gjson.Result) bool {
		out = append(out, Balance{
			WalletID: v.Get("walletId").String(),
			Balance:  v.Get("balance").String(),
		})
		return true
	})
	return out, nil
}

// DefaultWallet fetches the wallet designated to receive deposits.
func (c *Client) DefaultWallet(ctx context.Context, token string) (Wallet, error) {
	res, err := c.request(ctx, http.MethodGet, "/wallets/default", token, nil)
	if err != nil {
		return Wallet{}, err
	}
	var w Wallet
	if derr := decodeInto(res, &w); derr != nil {
		return Wallet{}, derr
	}
	if w.ID == "" {
		return Wallet{}, &Error{Message: "no default wallet configured"}
	}
	return w, nil
}

// SetDefaultWallet designates walletID as the deposit target.
func (c *Client) SetDefaultWallet(ctx context.Context, token, walletID string) error {
	if _, err := c.request(ctx, http.MethodPut, "/wallets/default", token, map[string]string{"walletId": walletID}); err != nil {
		return err
	}
	return nil
}

// KYCStatus fetches the live verification state. Never cached: the bank
// withdrawal gate re-checks on every entry.
func (c *Client) KYCStatus(ctx context.Context, token string) (KYC, error) {
	res, err := c.request(ctx, http.MethodGet, "/kycs", token, nil)
	if err != nil {
		return KYC{}, err
	}
	return KYC{
		Status: res.Get("status").String(),
		Type:   res.Get("type").String(),
	}, nil
}

// SendToEmail submits an email transfer.
func (c *Client) SendToEmail(ctx context.Context, token string, amount float64, email, message string) (Transfer, error) {
	res, err := c.request(ctx, http.MethodPost, "/transfers/send", token, map[string]string{
		"amount":  formatAmount(amount),
		"email":   email,
		"message": message,
	})
	if err != nil {
		return Transfer{}, err
	}
	var t Transfer
	if derr := decodeInto(res, &t); derr != nil {
		return Transfer{}, derr
	}
	return t, nil
}

// WithdrawToWallet submits a withdrawal to an external wallet address.
func (c *Client) WithdrawToWallet(ctx context.Context, token string, amount float64, toAddress, walletID string) (Transfer, error) {
	res, err := c.request(ctx, http.MethodPost, "/transfers/wallet-withdraw", token, map[string]string{
		"amount":    formatAmount(amount),
		"toAddress": toAddress,
		"walletId":  walletID,
	})
	if err != nil {
		return Transfer{}, err
	}
	var t Transfer
	if derr := decodeInto(res, &t); derr != nil {
		return Transfer{}, derr
	}
	return t, nil
}

// Offramp submits a bank withdrawal in the given fiat currency.
func (c *Client) Offramp(ctx context.Context, token string, amount float64, currency string) (Transfer, error) {
	res, err := c.request(ctx, http.MethodPost, "/transfers/offramp", token, map[string]string{
		"amount":   formatAmount(amount),
		"currency": currency,
	})
	if err != nil {
		return Transfer{}, err
	}
	var t Transfer
	if derr := decodeInto(res, &t); derr != nil {
		return Transfer{}, derr
	}
	return t, nil
}

// Transfers fetches a page of the transfer history.
func (c *Client) Transfers(ctx context.Context, token string, page, limit int) ([]Transfer, error) {
	path := "/transfers?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
	res, err := c.request(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	var ts []Transfer
	if derr := decodeInto(res, &ts); derr != nil {
		return nil, derr
	}
	return ts, nil
}

// NotificationsAuth signs a private push channel subscription for the given
// socket. The returned signature is forwarded verbatim to the push service.
func (c *Client) NotificationsAuth(ctx context.Context, token, socketID, channel string) (string, error) {
	res, err := c.request(ctx, http.MethodPost, "/notifications/auth", token, map[string]string{
		"socket_id":    socketID,
		"channel_name": channel,
	})
	if err != nil {
		return "", err
	}
	auth := res.Get("auth").String()
	if auth == "" {
		return "", &Error{Message: "notification auth response missing signature"}
	}
	return auth, nil
}
