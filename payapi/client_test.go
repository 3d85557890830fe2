package payapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL})
}

func TestAuthenticateReturnsToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/email-otp/authenticate", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"), "no bearer before login")
		w.Write([]byte(`{"token":"tok-99"}`))
	})

	token, err := c.Authenticate(context.Background(), "a@b.co", "123456")
	require.NoError(t, err)
	assert.Equal(t, "tok-99", token)
}

func TestAuthenticateMissingToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := c.Authenticate(context.Background(), "a@b.co", "123456")
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
}

func TestBearerHeaderOnAuthenticatedCalls(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"name":"Ada","email":"ada@example.com"}`))
	})

	p, err := c.Me(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.Name)
}

func TestEnvelopeUnwrap(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data":[{"id":"w1","network":"Polygon","isDefault":true,"address":"0xabc"}]}`))
	})

	ws, err := c.Wallets(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, "w1", ws[0].ID)
	assert.True(t, ws[0].IsDefault)
}

func TestErrorShapeFromUpstreamMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"minimum amount not met"}`))
	})

	_, err := c.SendToEmail(context.Background(), "tok-1", 1, "b@c.de", "")
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "minimum amount not met")
}

func TestErrorShapeWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Balances(context.Background(), "tok-1")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}

func TestTransportFailureCollapsesToError(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})

	_, err := c.Wallets(context.Background(), "tok-1")
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr, "transport errors still surface as *Error")
	assert.Zero(t, apiErr.Status)
}

func TestBalancesLenientParsing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		// Upstream is inconsistent about number encoding.
		w.Write([]byte(`[{"walletId":"w1","balance":"12.5"},{"walletId":"w2","balance":3}]`))
	})

	bs, err := c.Balances(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Len(t, bs, 2)
	assert.Equal(t, 12.5, bs[0].Amount())
	assert.Equal(t, 3.0, bs[1].Amount())
	assert.Equal(t, 15.5, TotalBalance(bs))
}

func TestTransfersPagination(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"data":[{"id":"t1","status":"success"}]}`))
	})

	ts, err := c.Transfers(context.Background(), "tok-1", 1, 10)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "t1", ts[0].ID)
}

func TestAmountsSerializedAsDecimalStrings(t *testing.T) {
	assert.Equal(t, "25.5", formatAmount(25.5))
	assert.Equal(t, "100", formatAmount(100))
	assert.Equal(t, "0.1", formatAmount(0.1))
}

func TestNotificationsAuth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/auth", r.URL.Path)
		w.Write([]byte(`{"auth":"key:signature"}`))
	})

	sig, err := c.NotificationsAuth(context.Background(), "tok-1", "123.456", "private-org-1")
	require.NoError(t, err)
	assert.Equal(t, "key:signature", sig)
}
