package flow

import (
	"context"
	"log/slog"

	"github.com/m3rciful/paybot/core/logger"
	"github.com/m3rciful/paybot/session"
)

// LoginHook is invoked after a successful sign-in, with the organization the
// user belongs to. The app layer uses it to start deposit notifications.
type LoginHook func(ctx context.Context, userID int64, orgID, token string)

// LogoutHook is invoked when a session ends, before it is dropped.
type LogoutHook func(userID int64)

// Engine drives the conversation. Every entry point runs its handler inside
// the session store's per-user critical section, so transitions for one user
// are strictly ordered.
type Engine struct {
	store *session.Store
	api   API

	onLogin  LoginHook
	onLogout LogoutHook
}

// Option configures an Engine.
type Option func(*Engine)

func WithLoginHook(h LoginHook) Option { return func(e *Engine) { e.onLogin = h } }

func WithLogoutHook(h LogoutHook) Option { return func(e *Engine) { e.onLogout = h } }

func New(store *session.Store, api API, opts ...Option) *Engine {
	e := &Engine{store: store, api: api}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// handlerCtx carries per-update state into handlers. viaCallback selects
// whether reply edits the originating message or posts a new one.
type handlerCtx struct {
	ctx         context.Context
	r           Responder
	userID      int64
	sess        *session.Session
	viaCallback bool
}

func (h *handlerCtx) reply(text string, kb [][]Button) error {
	if h.viaCallback {
		return h.r.Edit(text, kb)
	}
	return h.r.Send(text, kb)
}

type textHandler func(e *Engine, h *handlerCtx, text string) error

type actionHandler func(e *Engine, h *handlerCtx, payload string) error

// step describes what a state permits: at most one free-text handler and a
// set of actions. authed states additionally require a live token.
type step struct {
	authed  bool
	onText  textHandler
	actions map[string]actionHandler
}

// transitions is the single source of truth for the state machine. A state
// absent from the map accepts nothing beyond the global actions.
var transitions = map[session.State]step{
	StateStart: {
		actions: map[string]actionHandler{
			ActLogin:       (*Engine).actionLogin,
			ActAbout:       (*Engine).actionAbout,
			ActBackToStart: (*Engine).actionBackToStart,
		},
	},
	StateAuthEmail: {onText: (*Engine).textAuthEmail},
	StateAuthOTP:   {onText: (*Engine).textAuthOTP},

	StateMainMenu: {
		authed: true,
		actions: map[string]actionHandler{
			ActWalletMenu:   (*Engine).actionWalletMenu,
			ActProfile:      (*Engine).actionProfile,
			ActKYC:          (*Engine).actionKYC,
			ActHistory:      (*Engine).actionHistory,
			ActSettings:     (*Engine).actionSettings,
			ActToggleNotify: (*Engine).actionToggleNotify,
		},
	},
	StateWalletMenu: {
		authed: true,
		actions: map[string]actionHandler{
			ActWalletMenu:    (*Engine).actionWalletMenu,
			ActDeposit:       (*Engine).actionDeposit,
			ActDefaultPicker: (*Engine).actionDefaultPicker,
			ActSetDefault:    (*Engine).actionSetDefault,
			ActHistory:       (*Engine).actionHistory,
		},
	},
	StateTransferMenu: {
		authed: true,
		actions: map[string]actionHandler{
			ActEmailTransfer:  (*Engine).actionEmailTransfer,
			ActWalletTransfer: (*Engine).actionWalletTransfer,
			ActBankWithdrawal: (*Engine).actionBankWithdrawal,
			ActHistory:        (*Engine).actionHistory,
		},
	},

	StateEmailRecipient: {authed: true, onText: (*Engine).textEmailRecipient},
	StateEmailAmount:    {authed: true, onText: (*Engine).textEmailAmount},
	StateEmailConfirm: {
		authed:  true,
		actions: map[string]actionHandler{ActConfirmEmail: (*Engine).actionConfirmEmail},
	},

	StateWalletAddress: {authed: true, onText: (*Engine).textWalletAddress},
	StateWalletNetwork: {
		authed:  true,
		actions: map[string]actionHandler{ActNetwork: (*Engine).actionNetwork},
	},
	StateWalletAmount: {authed: true, onText: (*Engine).textWalletAmount},
	StateWalletConfirm: {
		authed:  true,
		actions: map[string]actionHandler{ActConfirmWallet: (*Engine).actionConfirmWallet},
	},

	StateBankAmount: {authed: true, onText: (*Engine).textBankAmount},
	StateBankConfirm: {
		authed:  true,
		actions: map[string]actionHandler{ActConfirmBank: (*Engine).actionConfirmBank},
	},
}

// globalActions are reachable from any authenticated state, so a user can
// always bail out of a flow.
var globalActions = map[string]actionHandler{
	ActLogout:       (*Engine).actionLogout,
	ActMainMenu:     (*Engine).actionMainMenu,
	ActTransferMenu: (*Engine).actionTransferMenu,
}

// Start handles the /start command: the session restarts at the welcome
// screen, keeping credentials if the user is already signed in.
func (e *Engine) Start(ctx context.Context, r Responder, userID int64) error {
	var err error
	e.store.Do(userID, func(sess *session.Session) {
		h := &handlerCtx{ctx: ctx, r: r, userID: userID, sess: sess}
		sess.ResetForm()
		if sess.Authenticated() {
			err = e.showMainMenu(h)
			return
		}
		err = e.showWelcome(h)
	})
	return err
}

// ExpectsText reports whether the user's current state consumes free text.
// The message router uses it to decide routing before commands.
func (e *Engine) ExpectsText(userID int64) bool {
	sess, ok := e.store.Get(userID)
	if !ok {
		return false
	}
	return transitions[sess.State].onText != nil
}

// HandleText feeds a free-text message into the state machine. Text arriving
// in a state with no text handler is ignored.
func (e *Engine) HandleText(ctx context.Context, r Responder, userID int64, text string) error {
	var err error
	e.store.Do(userID, func(sess *session.Session) {
		st := transitions[sess.State]
		if st.onText == nil {
			logger.Debug(ctx, "flow", "text.skip",
				slog.String("state", string(sess.State)),
				slog.Int64("user_id", userID))
			return
		}
		h := &handlerCtx{ctx: ctx, r: r, userID: userID, sess: sess}
		if st.authed && !sess.Authenticated() {
			err = e.loginRequired(h)
			return
		}
		err = st.onText(e, h, text)
	})
	return err
}

// HandleAction feeds a button press into the state machine. Actions outside
// the current state's permitted set come from stale buttons on old messages;
// the user gets told the button is dead instead of silence.
func (e *Engine) HandleAction(ctx context.Context, r Responder, userID int64, action, payload string) error {
	var err error
	e.store.Do(userID, func(sess *session.Session) {
		st := transitions[sess.State]
		handler, ok := st.actions[action]
		authed := st.authed
		if !ok {
			if handler, ok = globalActions[action]; ok {
				authed = true
			}
		}
		if !ok {
			logger.Debug(ctx, "flow", "action.skip",
				slog.String("state", string(sess.State)),
				slog.String("action", action),
				slog.Int64("user_id", userID))
			h := &handlerCtx{ctx: ctx, r: r, userID: userID, sess: sess, viaCallback: true}
			if !sess.Authenticated() {
				err = e.loginRequired(h)
				return
			}
			err = h.reply("That button is no longer active. Send /start to open the menu.", nil)
			return
		}
		h := &handlerCtx{ctx: ctx, r: r, userID: userID, sess: sess, viaCallback: true}
		if authed && !sess.Authenticated() {
			err = e.loginRequired(h)
			return
		}
		err = handler(e, h, payload)
	})
	return err
}

// transition moves the session to the next state and logs the edge.
func (e *Engine) transition(h *handlerCtx, next session.State) {
	if h.sess.State == next {
		return
	}
	logger.Debug(h.ctx, "flow", "state.transition",
		slog.String("state", string(h.sess.State)),
		slog.String("next_state", string(next)),
		slog.Int64("user_id", h.userID))
	h.sess.State = next
}

// loginRequired drops stale credentials and points the user back at login.
func (e *Engine) loginRequired(h *handlerCtx) error {
	authErr := &AuthError{Reason: "missing or expired token"}
	logger.Info(h.ctx, "flow", "auth.required",
		slog.Int64("user_id", h.userID),
		slog.String("err_code", authErr.Code()))
	h.sess.ResetAuth()
	e.transition(h, StateStart)
	return h.reply("Your session has expired. Please log in again.",
		[][]Button{row(btn("🔐 Login", ActLogin))})
}
