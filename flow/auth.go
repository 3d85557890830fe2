package flow

import (
	"log/slog"
	"strings"

	"github.com/m3rciful/paybot/core/logger"
)

const aboutText = "Payout Bot connects your payments account to Telegram.\n\n" +
	"• Check wallet balances and deposit addresses\n" +
	"• Send USDC to an email or an external wallet\n" +
	"• Withdraw to your bank account\n" +
	"• Get notified when deposits arrive\n\n" +
	"Sign in with the email linked to your account to get started."

func (e *Engine) showWelcome(h *handlerCtx) error {
	e.transition(h, StateStart)
	return h.reply("Welcome to Payout Bot! 🚀\n\nManage your account, check balances, and move funds without leaving Telegram.",
		[][]Button{
			row(btn("🔐 Login", ActLogin)),
			row(btn("ℹ️ About", ActAbout)),
		})
}

func (e *Engine) actionLogin(h *handlerCtx, _ string) error {
	e.transition(h, StateAuthEmail)
	return h.reply("Please enter the email address linked to your account:", nil)
}

func (e *Engine) actionAbout(h *handlerCtx, _ string) error {
	return h.reply(aboutText, [][]Button{
		row(btn("🔐 Login", ActLogin)),
		row(btn("« Back", ActBackToStart)),
	})
}

func (e *Engine) actionBackToStart(h *handlerCtx, _ string) error {
	return e.showWelcome(h)
}

func (e *Engine) textAuthEmail(h *handlerCtx, text string) error {
	email := strings.TrimSpace(text)
	if !validEmail(email) {
		return h.reply("That doesn't look like a valid email address. Please try again:", nil)
	}
	if err := e.api.RequestOTP(h.ctx, email); err != nil {
		logger.Warn(h.ctx, "flow", "auth.otp_request.fail",
			slog.Int64("user_id", h.userID), slog.String("err", err.Error()))
		e.transition(h, StateStart)
		return h.reply("Could not send a code: "+err.Error()+"\n\nPlease try again later with /start.", nil)
	}
	h.sess.Email = email
	e.transition(h, StateAuthOTP)
	return h.reply("A one-time code has been sent to "+email+". Please enter it:", nil)
}

func (e *Engine) textAuthOTP(h *handlerCtx, text string) error {
	code := strings.TrimSpace(text)
	token, err := e.api.Authenticate(h.ctx, h.sess.Email, code)
	if err != nil {
		logger.Warn(h.ctx, "flow", "auth.verify.fail",
			slog.Int64("user_id", h.userID), slog.String("err", err.Error()))
		e.transition(h, StateStart)
		return h.reply("Invalid code or authentication failed. Send /start to try again.", nil)
	}
	h.sess.Token = token

	profile, err := e.api.Me(h.ctx, token)
	if err != nil {
		logger.Warn(h.ctx, "flow", "auth.profile.fail",
			slog.Int64("user_id", h.userID), slog.String("err", err.Error()))
		e.transition(h, StateStart)
		return h.reply("Signed in, but fetching your profile failed. Send /start to try again.", nil)
	}
	h.sess.Profile = profile
	h.sess.NotifyEnabled = true

	logger.Info(h.ctx, "flow", "auth.login",
		slog.Int64("user_id", h.userID),
		slog.String("org_id", profile.OrganizationID))
	if e.onLogin != nil && profile.OrganizationID != "" {
		e.onLogin(h.ctx, h.userID, profile.OrganizationID, token)
	}
	return e.showMainMenu(h)
}
