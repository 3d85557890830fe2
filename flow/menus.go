package flow

import (
	"log/slog"

	"github.com/m3rciful/paybot/core/logger"
	"github.com/m3rciful/paybot/payapi"
	"github.com/m3rciful/paybot/session"
)

func backToMain() [][]Button {
	return [][]Button{row(btn("« Main Menu", ActMainMenu))}
}

func backToWallets() [][]Button {
	return [][]Button{row(btn("« Back to Wallets", ActWalletMenu))}
}

func (e *Engine) showMainMenu(h *handlerCtx) error {
	name := h.sess.Profile.Name
	if name == "" {
		name = "there"
	}
	e.transition(h, StateMainMenu)
	return h.reply("Hello, "+name+"! 👋\n\nWhat would you like to do?",
		[][]Button{
			row(btn("👛 Wallets", ActWalletMenu), btn("💸 Transfers", ActTransferMenu)),
			row(btn("👤 Profile", ActProfile), btn("🔑 KYC Status", ActKYC)),
			row(btn("📜 History", ActHistory), btn("⚙️ Settings", ActSettings)),
			row(btn("🚪 Logout", ActLogout)),
		})
}

func (e *Engine) actionMainMenu(h *handlerCtx, _ string) error {
	h.sess.ResetForm()
	return e.showMainMenu(h)
}

func (e *Engine) actionWalletMenu(h *handlerCtx, _ string) error {
	wallets, err := e.api.Wallets(h.ctx, h.sess.Token)
	if err != nil {
		return e.reportAPIError(h, "wallet.list.fail", err,
			"Failed to fetch wallet information. Please try again later.", backToMain(), StateMainMenu)
	}
	balances, err := e.api.Balances(h.ctx, h.sess.Token)
	if err != nil {
		return e.reportAPIError(h, "wallet.balances.fail", err,
			"Failed to fetch wallet balances. Please try again later.", backToMain(), StateMainMenu)
	}

	e.transition(h, StateWalletMenu)
	return h.reply(renderWallets(wallets, balances),
		[][]Button{
			row(btn("📥 Deposit", ActDeposit), btn("⭐ Set Default", ActDefaultPicker)),
			row(btn("📜 History", ActHistory)),
			row(btn("« Main Menu", ActMainMenu)),
		})
}

func (e *Engine) actionDeposit(h *handlerCtx, _ string) error {
	w, err := e.api.DefaultWallet(h.ctx, h.sess.Token)
	if err != nil {
		return e.reportAPIError(h, "wallet.default.fail", err,
			"Could not determine your default wallet. Please try again later.", backToWallets(), StateWalletMenu)
	}
	text := "📥 Deposit\n\n" +
		"Send USDC on " + w.Network + " to:\n\n" + w.Address + "\n\n" +
		"Only send USDC on the " + w.Network + " network to this address. " +
		"You'll get a notification here once the deposit arrives."
	return h.reply(text, backToWallets())
}

func (e *Engine) actionDefaultPicker(h *handlerCtx, _ string) error {
	wallets, err := e.api.Wallets(h.ctx, h.sess.Token)
	if err != nil {
		return e.reportAPIError(h, "wallet.list.fail", err,
			"Failed to fetch wallet information. Please try again later.", backToWallets(), StateWalletMenu)
	}
	kb := make([][]Button, 0, len(wallets)+1)
	for _, w := range wallets {
		label := w.Network
		if w.IsDefault {
			label = "✅ " + label
		}
		kb = append(kb, row(Button{Label: label, Action: ActSetDefault, Data: w.ID}))
	}
	kb = append(kb, row(btn("« Back to Wallets", ActWalletMenu)))
	return h.reply("Select the wallet to use as your default:", kb)
}

func (e *Engine) actionSetDefault(h *handlerCtx, walletID string) error {
	if walletID == "" {
		return h.reply("Could not identify that wallet. Please try again.", backToWallets())
	}
	if err := e.api.SetDefaultWallet(h.ctx, h.sess.Token, walletID); err != nil {
		return e.reportAPIError(h, "wallet.set_default.fail", err,
			"Setting the default wallet failed: "+err.Error(), backToWallets(), StateWalletMenu)
	}
	logger.Info(h.ctx, "flow", "wallet.set_default",
		slog.Int64("user_id", h.userID), slog.String("wallet_id", walletID))
	return h.reply("✅ Default wallet updated.", backToWallets())
}

func (e *Engine) actionProfile(h *handlerCtx, _ string) error {
	p, err := e.api.Me(h.ctx, h.sess.Token)
	if err != nil {
		return e.reportAPIError(h, "profile.fetch.fail", err,
			"Failed to fetch your profile. Please try again later.", backToMain(), StateMainMenu)
	}
	h.sess.Profile = p
	e.transition(h, StateMainMenu)
	return h.reply(renderProfile(p), backToMain())
}

func (e *Engine) actionKYC(h *handlerCtx, _ string) error {
	k, err := e.api.KYCStatus(h.ctx, h.sess.Token)
	if err != nil {
		return e.reportAPIError(h, "kyc.fetch.fail", err,
			"Failed to fetch your KYC status. Please try again later.", backToMain(), StateMainMenu)
	}
	e.transition(h, StateMainMenu)
	return h.reply(renderKYC(k), backToMain())
}

func (e *Engine) actionHistory(h *handlerCtx, _ string) error {
	transfers, err := e.api.Transfers(h.ctx, h.sess.Token, 1, 10)
	if err != nil {
		return e.reportAPIError(h, "history.fetch.fail", err,
			"Failed to fetch your transfer history. Please try again later.", backToMain(), StateMainMenu)
	}
	e.transition(h, StateMainMenu)
	return h.reply(renderTransfers(transfers), backToMain())
}

func (e *Engine) actionSettings(h *handlerCtx, _ string) error {
	e.transition(h, StateMainMenu)
	return h.reply("⚙️ Settings", e.settingsKeyboard(h))
}

func (e *Engine) actionToggleNotify(h *handlerCtx, _ string) error {
	h.sess.NotifyEnabled = !h.sess.NotifyEnabled
	logger.Info(h.ctx, "flow", "settings.notify.toggle",
		slog.Int64("user_id", h.userID), slog.Bool("enabled", h.sess.NotifyEnabled))
	text := "⚙️ Settings\n\nDeposit notifications are now off."
	if h.sess.NotifyEnabled {
		text = "⚙️ Settings\n\nDeposit notifications are now on."
	}
	return h.reply(text, e.settingsKeyboard(h))
}

func (e *Engine) settingsKeyboard(h *handlerCtx) [][]Button {
	label := "🔔 Enable Notifications"
	if h.sess.NotifyEnabled {
		label = "🔕 Disable Notifications"
	}
	return [][]Button{
		row(btn(label, ActToggleNotify)),
		row(btn("« Main Menu", ActMainMenu)),
	}
}

func (e *Engine) actionLogout(h *handlerCtx, _ string) error {
	logger.Info(h.ctx, "flow", "auth.logout", slog.Int64("user_id", h.userID))
	if e.onLogout != nil {
		e.onLogout(h.userID)
	}
	h.sess.ResetAuth()
	e.store.Delete(h.userID)
	return h.reply("You have been logged out. See you soon!",
		[][]Button{row(btn("🔐 Login Again", ActLogin))})
}

func (e *Engine) actionTransferMenu(h *handlerCtx, _ string) error {
	h.sess.ResetForm()
	e.transition(h, StateTransferMenu)
	return h.reply("💸 Transfers\n\nSelect an option:",
		[][]Button{
			row(btn("📧 Send to Email", ActEmailTransfer)),
			row(btn("🌐 Send to External Wallet", ActWalletTransfer)),
			row(btn("🏦 Withdraw to Bank", ActBankWithdrawal)),
			row(btn("📜 Recent Transfers", ActHistory)),
			row(btn("« Main Menu", ActMainMenu)),
		})
}

// reportAPIError logs an upstream failure, shows the fallback message, and
// routes the user to a safe state.
func (e *Engine) reportAPIError(h *handlerCtx, event string, err error, msg string, kb [][]Button, next session.State) error {
	logger.Warn(h.ctx, "flow", event,
		slog.Int64("user_id", h.userID),
		slog.String("err", err.Error()))
	if apiErr, ok := err.(*payapi.Error); ok && apiErr.Status == 401 {
		return e.loginRequired(h)
	}
	h.sess.ResetForm()
	e.transition(h, next)
	return h.reply(msg, kb)
}
