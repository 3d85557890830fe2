package flow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/paybot/payapi"
	"github.com/m3rciful/paybot/session"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	otpErr      error
	authErr     error
	token       string
	profile     payapi.Profile
	profileErr  error
	wallets     []payapi.Wallet
	walletsErr  error
	balances    []payapi.Balance
	balancesErr error
	kyc         payapi.KYC
	kycErr      error
	transfer    payapi.Transfer
	transferErr error
	history     []payapi.Transfer

	sentEmail     string
	sentAmount    float64
	sentAddress   string
	sentWalletID  string
	offrampAmount float64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:    make(map[string]int),
		token:    "tok-1",
		profile:  payapi.Profile{Name: "Ada", Email: "ada@example.com", OrganizationID: "org-1"},
		wallets:  []payapi.Wallet{{ID: "w1", Network: "Polygon", Address: "0x1234567890abcdef12345678", IsDefault: true}},
		balances: []payapi.Balance{{WalletID: "w1", Balance: "100"}},
		kyc:      payapi.KYC{Status: payapi.KYCApproved},
		transfer: payapi.Transfer{ID: "t-1", Status: "pending"},
	}
}

func (f *fakeAPI) count(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) RequestOTP(_ context.Context, _ string) error {
	f.count("RequestOTP")
	return f.otpErr
}

func (f *fakeAPI) Authenticate(_ context.Context, _, _ string) (string, error) {
	f.count("Authenticate")
	if f.authErr != nil {
		return "", f.authErr
	}
	return f.token, nil
}

func (f *fakeAPI) Me(_ context.Context, _ string) (payapi.Profile, error) {
	f.count("Me")
	return f.profile, f.profileErr
}

func (f *fakeAPI) Wallets(_ context.Context, _ string) ([]payapi.Wallet, error) {
	f.count("Wallets")
	return f.wallets, f.walletsErr
}

func (f *fakeAPI) Balances(_ context.Context, _ string) ([]payapi.Balance, error) {
	f.count("Balances")
	return f.balances, f.balancesErr
}

func (f *fakeAPI) DefaultWallet(_ context.Context, _ string) (payapi.Wallet, error) {
	f.count("DefaultWallet")
	if f.walletsErr != nil {
		return payapi.Wallet{}, f.walletsErr
	}
	return f.wallets[0], nil
}

func (f *fakeAPI) SetDefaultWallet(_ context.Context, _, walletID string) error {
	f.count("SetDefaultWallet")
	f.sentWalletID = walletID
	return nil
}

func (f *fakeAPI) KYCStatus(_ context.Context, _ string) (payapi.KYC, error) {
	f.count("KYCStatus")
	return f.kyc, f.kycErr
}

func (f *fakeAPI) SendToEmail(_ context.Context, _ string, amount float64, email, _ string) (payapi.Transfer, error) {
	f.count("SendToEmail")
	f.sentAmount = amount
	f.sentEmail = email
	return f.transfer, f.transferErr
}

func (f *fakeAPI) WithdrawToWallet(_ context.Context, _ string, amount float64, address, walletID string) (payapi.Transfer, error) {
	f.count("WithdrawToWallet")
	f.sentAmount = amount
	f.sentAddress = address
	f.sentWalletID = walletID
	return f.transfer, f.transferErr
}

func (f *fakeAPI) Offramp(_ context.Context, _ string, amount float64, _ string) (payapi.Transfer, error) {
	f.count("Offramp")
	f.offrampAmount = amount
	return f.transfer, f.transferErr
}

func (f *fakeAPI) Transfers(_ context.Context, _ string, _, _ int) ([]payapi.Transfer, error) {
	f.count("Transfers")
	return f.history, nil
}

type recorder struct {
	texts []string
	kbs   [][][]Button
}

func (r *recorder) Send(text string, kb [][]Button) error {
	r.texts = append(r.texts, text)
	r.kbs = append(r.kbs, kb)
	return nil
}

func (r *recorder) Edit(text string, kb [][]Button) error {
	return r.Send(text, kb)
}

func (r *recorder) last() string {
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

func (r *recorder) lastActions() []string {
	if len(r.kbs) == 0 {
		return nil
	}
	var actions []string
	for _, row := range r.kbs[len(r.kbs)-1] {
		for _, b := range row {
			actions = append(actions, b.Action)
		}
	}
	return actions
}

type fixture struct {
	store  *session.Store
	api    *fakeAPI
	engine *Engine
	rec    *recorder
	ctx    context.Context
}

const testUser int64 = 42

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := session.NewStore(0)
	t.Cleanup(store.Close)
	api := newFakeAPI()
	return &fixture{
		store:  store,
		api:    api,
		engine: New(store, api, opts...),
		rec:    &recorder{},
		ctx:    context.Background(),
	}
}

func (f *fixture) state(t *testing.T) session.State {
	t.Helper()
	sess, ok := f.store.Get(testUser)
	require.True(t, ok, "session must exist")
	return sess.State
}

func (f *fixture) text(t *testing.T, s string) {
	t.Helper()
	require.NoError(t, f.engine.HandleText(f.ctx, f.rec, testUser, s))
}

func (f *fixture) action(t *testing.T, action string) {
	t.Helper()
	f.actionWith(t, action, "")
}

func (f *fixture) actionWith(t *testing.T, action, payload string) {
	t.Helper()
	require.NoError(t, f.engine.HandleAction(f.ctx, f.rec, testUser, action, payload))
}

// login drives the happy auth path to the main menu.
func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.Start(f.ctx, f.rec, testUser))
	f.action(t, ActLogin)
	f.text(t, "ada@example.com")
	f.text(t, "123456")
	require.Equal(t, StateMainMenu, f.state(t))
}

func TestLoginHappyPath(t *testing.T) {
	var hookOrg string
	f := newFixture(t, WithLoginHook(func(_ context.Context, _ int64, orgID, _ string) {
		hookOrg = orgID
	}))

	require.NoError(t, f.engine.Start(f.ctx, f.rec, testUser))
	assert.Equal(t, StateStart, f.state(t))

	f.action(t, ActLogin)
	assert.Equal(t, StateAuthEmail, f.state(t))

	f.text(t, "ada@example.com")
	assert.Equal(t, 1, f.api.callCount("RequestOTP"))
	assert.Equal(t, StateAuthOTP, f.state(t))

	f.text(t, "123456")
	assert.Equal(t, 1, f.api.callCount("Authenticate"))
	assert.Equal(t, 1, f.api.callCount("Me"))
	assert.Equal(t, StateMainMenu, f.state(t))
	assert.Contains(t, f.rec.last(), "Ada")
	assert.Equal(t, "org-1", hookOrg)

	sess, _ := f.store.Get(testUser)
	assert.Equal(t, "tok-1", sess.Token)
	assert.True(t, sess.NotifyEnabled)
}

func TestLoginRejectsMalformedEmail(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Start(f.ctx, f.rec, testUser))
	f.action(t, ActLogin)

	f.text(t, "not-an-email")
	assert.Equal(t, StateAuthEmail, f.state(t), "state must not advance")
	assert.Zero(t, f.api.callCount("RequestOTP"))
	assert.Contains(t, f.rec.last(), "valid email")
}

func TestLoginBadCodeReturnsToStart(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Start(f.ctx, f.rec, testUser))
	f.action(t, ActLogin)
	f.text(t, "ada@example.com")

	f.api.authErr = &payapi.Error{Status: 401, Message: "invalid otp"}
	f.text(t, "000000")
	assert.Equal(t, StateStart, f.state(t))

	sess, _ := f.store.Get(testUser)
	assert.False(t, sess.Authenticated())
}

func TestExpiredSessionPromptsLogin(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	// Simulate upstream token expiry.
	f.api.walletsErr = &payapi.Error{Status: 401, Message: "unauthorized"}
	f.action(t, ActWalletMenu)

	assert.Equal(t, StateStart, f.state(t))
	assert.Contains(t, f.rec.last(), "session has expired")
	sess, _ := f.store.Get(testUser)
	assert.False(t, sess.Authenticated())
}

func TestEmailTransferHappyPath(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.action(t, ActTransferMenu)
	f.action(t, ActEmailTransfer)
	assert.Equal(t, StateEmailRecipient, f.state(t))

	f.text(t, "bob@example.com")
	assert.Equal(t, StateEmailAmount, f.state(t))

	f.text(t, "25.5")
	assert.Equal(t, StateEmailConfirm, f.state(t))
	assert.Contains(t, f.rec.last(), "25.5 USDC")
	assert.Contains(t, f.rec.lastActions(), ActConfirmEmail)
	assert.Zero(t, f.api.callCount("SendToEmail"), "nothing sent before confirm")

	f.action(t, ActConfirmEmail)
	assert.Equal(t, 1, f.api.callCount("SendToEmail"))
	assert.Equal(t, 25.5, f.api.sentAmount)
	assert.Equal(t, "bob@example.com", f.api.sentEmail)
	assert.Equal(t, StateTransferMenu, f.state(t))
	assert.Contains(t, f.rec.last(), "t-1")

	sess, _ := f.store.Get(testUser)
	assert.Zero(t, sess.Form.Amount, "form must be discarded after confirm")
	assert.Empty(t, sess.Form.RecipientEmail)
}

func TestEmailTransferInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.api.balances = []payapi.Balance{{WalletID: "w1", Balance: "50"}}

	f.action(t, ActTransferMenu)
	f.action(t, ActEmailTransfer)
	f.text(t, "bob@example.com")
	f.text(t, "100")

	assert.Equal(t, StateTransferMenu, f.state(t))
	assert.Contains(t, f.rec.last(), "Insufficient funds")
	assert.Contains(t, f.rec.last(), "50")
	assert.Zero(t, f.api.callCount("SendToEmail"))
}

func TestAmountValidationReprompts(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.action(t, ActTransferMenu)
	f.action(t, ActEmailTransfer)
	f.text(t, "bob@example.com")

	for _, bad := range []string{"abc", "-5", "0"} {
		f.text(t, bad)
		assert.Equal(t, StateEmailAmount, f.state(t), "input %q must not advance", bad)
	}
	assert.Zero(t, f.api.callCount("Balances"), "no balance check for invalid input")
}

func TestCancelDiscardsDraft(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.action(t, ActTransferMenu)
	f.action(t, ActEmailTransfer)
	f.text(t, "bob@example.com")
	f.text(t, "10")
	require.Equal(t, StateEmailConfirm, f.state(t))

	// Cancel routes back to the transfer menu.
	f.action(t, ActTransferMenu)
	assert.Equal(t, StateTransferMenu, f.state(t))
	sess, _ := f.store.Get(testUser)
	assert.Empty(t, sess.Form.RecipientEmail)
	assert.Zero(t, f.api.callCount("SendToEmail"))
}

func TestWalletTransferHappyPath(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.action(t, ActTransferMenu)
	f.action(t, ActWalletTransfer)

	f.text(t, "0xabcdefabcdefabcdefabcdef")
	assert.Equal(t, StateWalletNetwork, f.state(t))
	assert.Equal(t, 1, f.api.callCount("Wallets"))

	f.actionWith(t, ActNetwork, "w1|Polygon")
	assert.Equal(t, StateWalletAmount, f.state(t))

	f.text(t, "30")
	assert.Equal(t, StateWalletConfirm, f.state(t))
	assert.Contains(t, f.rec.last(), "Polygon")

	f.action(t, ActConfirmWallet)
	assert.Equal(t, 1, f.api.callCount("WithdrawToWallet"))
	assert.Equal(t, 30.0, f.api.sentAmount)
	assert.Equal(t, "0xabcdefabcdefabcdefabcdef", f.api.sentAddress)
	assert.Equal(t, "w1", f.api.sentWalletID)
	assert.Equal(t, StateTransferMenu, f.state(t))
}

func TestWalletTransferRejectsShortAddress(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.action(t, ActTransferMenu)
	f.action(t, ActWalletTransfer)

	f.text(t, "0x123")
	assert.Equal(t, StateWalletAddress, f.state(t))
	assert.Zero(t, f.api.callCount("Wallets"))
}

func TestBankWithdrawalKYCGate(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.api.kyc = payapi.KYC{Status: payapi.KYCPending}

	f.action(t, ActTransferMenu)
	f.action(t, ActBankWithdrawal)

	assert.Equal(t, StateTransferMenu, f.state(t), "gate must not open the amount prompt")
	assert.Contains(t, f.rec.last(), "KYC")
	assert.Zero(t, f.api.callCount("Offramp"))
}

func TestBankWithdrawalChecksKYCEachEntry(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.action(t, ActTransferMenu)
	f.action(t, ActBankWithdrawal)
	assert.Equal(t, StateBankAmount, f.state(t))

	f.action(t, ActTransferMenu)
	f.action(t, ActBankWithdrawal)
	assert.Equal(t, 2, f.api.callCount("KYCStatus"), "status is fetched live on every entry")
}

func TestBankWithdrawalMinimumAndFee(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.action(t, ActTransferMenu)
	f.action(t, ActBankWithdrawal)

	f.text(t, "5")
	assert.Equal(t, StateBankAmount, f.state(t))
	assert.Contains(t, f.rec.last(), "Minimum withdrawal")

	f.text(t, "100")
	assert.Equal(t, StateBankConfirm, f.state(t))
	assert.Contains(t, f.rec.last(), "Estimated fee: 5 USDC")
	assert.Contains(t, f.rec.last(), "~95 USD")

	f.action(t, ActConfirmBank)
	assert.Equal(t, 1, f.api.callCount("Offramp"))
	assert.Equal(t, 100.0, f.api.offrampAmount)
	assert.Equal(t, StateTransferMenu, f.state(t))
}

func TestStaleConfirmIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	// A confirm button from an old message must not fire from the menu,
	// and the user hears why nothing happened.
	f.action(t, ActConfirmEmail)
	assert.Equal(t, StateMainMenu, f.state(t))
	assert.Zero(t, f.api.callCount("SendToEmail"))
	assert.Contains(t, f.rec.last(), "no longer active")
}

func TestStaleConfirmAfterEvictionPromptsLogin(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	// Idle eviction dropped the session; the old confirm keyboard is still
	// on screen.
	f.store.Delete(testUser)

	f.action(t, ActConfirmEmail)
	assert.Equal(t, StateStart, f.state(t))
	assert.Zero(t, f.api.callCount("SendToEmail"))
	assert.Contains(t, f.rec.last(), "log in")
}

func TestLogoutClearsSession(t *testing.T) {
	var loggedOut int64
	f := newFixture(t, WithLogoutHook(func(userID int64) { loggedOut = userID }))
	f.login(t)

	f.action(t, ActLogout)
	assert.Equal(t, testUser, loggedOut)
	_, ok := f.store.Get(testUser)
	assert.False(t, ok, "session must be removed")
}

func TestStartKeepsAuthenticatedSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	require.NoError(t, f.engine.Start(f.ctx, f.rec, testUser))
	assert.Equal(t, StateMainMenu, f.state(t))
	sess, _ := f.store.Get(testUser)
	assert.True(t, sess.Authenticated())
}

func TestExpectsText(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.engine.ExpectsText(testUser), "no session yet")

	require.NoError(t, f.engine.Start(f.ctx, f.rec, testUser))
	assert.False(t, f.engine.ExpectsText(testUser))

	f.action(t, ActLogin)
	assert.True(t, f.engine.ExpectsText(testUser))

	f.text(t, "ada@example.com")
	f.text(t, "123456")
	assert.False(t, f.engine.ExpectsText(testUser))
}

func TestWalletMenuAndSetDefault(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.action(t, ActWalletMenu)
	assert.Equal(t, StateWalletMenu, f.state(t))
	assert.Contains(t, f.rec.last(), "Polygon")
	assert.Contains(t, f.rec.last(), "Total: 100 USDC")

	f.action(t, ActDefaultPicker)
	f.actionWith(t, ActSetDefault, "w1")
	assert.Equal(t, 1, f.api.callCount("SetDefaultWallet"))
	assert.Equal(t, "w1", f.api.sentWalletID)
}

func TestHistoryEmpty(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.action(t, ActHistory)
	assert.Equal(t, 1, f.api.callCount("Transfers"))
	assert.Contains(t, f.rec.last(), "any transfers yet")
	assert.Equal(t, StateMainMenu, f.state(t))
}

func TestNotifyToggle(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.action(t, ActSettings)
	f.action(t, ActToggleNotify)
	sess, _ := f.store.Get(testUser)
	assert.False(t, sess.NotifyEnabled)

	f.action(t, ActToggleNotify)
	sess, _ = f.store.Get(testUser)
	assert.True(t, sess.NotifyEnabled)
}

func TestUpstreamErrorShapeIsUniform(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.api.balancesErr = &payapi.Error{Status: 500, Message: "boom"}

	f.action(t, ActTransferMenu)
	f.action(t, ActEmailTransfer)
	f.text(t, "bob@example.com")
	f.text(t, "10")

	assert.Equal(t, StateTransferMenu, f.state(t), "API failure routes to a safe state")
	assert.Zero(t, f.api.callCount("SendToEmail"))
}
