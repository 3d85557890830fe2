package flow

import (
	"log/slog"
	"strings"

	"github.com/m3rciful/paybot/core/logger"
	"github.com/m3rciful/paybot/payapi"
	"github.com/m3rciful/paybot/session"
)

func backToTransfers() [][]Button {
	return [][]Button{row(btn("« Back to Transfers", ActTransferMenu))}
}

func confirmKeyboard(confirmAction string) [][]Button {
	return [][]Button{
		row(btn("✅ Confirm", confirmAction), btn("❌ Cancel", ActTransferMenu)),
	}
}

// checkBalance verifies the total balance covers the requested amount. A nil
// error with ok=false means the shortfall message was already delivered.
func (e *Engine) checkBalance(h *handlerCtx, amount float64) (ok bool, err error) {
	balances, err := e.api.Balances(h.ctx, h.sess.Token)
	if err != nil {
		return false, e.reportAPIError(h, "transfer.balances.fail", err,
			"Failed to check your balance. Please try again later.", backToTransfers(), StateTransferMenu)
	}
	total := payapi.TotalBalance(balances)
	if total < amount {
		insufficient := &InsufficientFundsError{Balance: total, Requested: amount}
		logger.Debug(h.ctx, "flow", "transfer.insufficient",
			slog.Int64("user_id", h.userID),
			slog.String("amount", fmtAmount(amount)),
			slog.String("err_code", insufficient.Code()))
		h.sess.ResetForm()
		e.transition(h, StateTransferMenu)
		return false, h.reply(
			"Insufficient funds. Your current balance is "+fmtAmount(total)+" USDC.",
			backToTransfers())
	}
	return true, nil
}

// --- send to email ---

func (e *Engine) actionEmailTransfer(h *handlerCtx, _ string) error {
	h.sess.Form = session.Form{Type: session.TransferEmail}
	e.transition(h, StateEmailRecipient)
	return h.reply("Please enter the recipient's email address:", nil)
}

func (e *Engine) textEmailRecipient(h *handlerCtx, text string) error {
	email := strings.TrimSpace(text)
	if !validEmail(email) {
		return h.reply("That doesn't look like a valid email address. Please try again:", nil)
	}
	h.sess.Form.RecipientEmail = email
	e.transition(h, StateEmailAmount)
	return h.reply("Please enter the amount in USDC to send to "+email+":", nil)
}

func (e *Engine) textEmailAmount(h *handlerCtx, text string) error {
	amount, err := parseAmount(text)
	if err != nil {
		return h.reply("Please enter a valid positive amount:", nil)
	}
	if ok, err := e.checkBalance(h, amount); !ok {
		return err
	}
	h.sess.Form.Amount = amount
	e.transition(h, StateEmailConfirm)
	return h.reply("Please confirm the transfer:\n\n"+
		"To: "+h.sess.Form.RecipientEmail+"\n"+
		"Amount: "+fmtAmount(amount)+" USDC",
		confirmKeyboard(ActConfirmEmail))
}

func (e *Engine) actionConfirmEmail(h *handlerCtx, _ string) error {
	form := h.sess.Form
	h.sess.ResetForm()
	e.transition(h, StateTransferMenu)

	t, err := e.api.SendToEmail(h.ctx, h.sess.Token, form.Amount, form.RecipientEmail, "Sent via Telegram bot")
	if err != nil {
		logger.Warn(h.ctx, "flow", "transfer.email.fail",
			slog.Int64("user_id", h.userID), slog.String("err", err.Error()))
		return h.reply("Transfer failed: "+err.Error(), backToTransfers())
	}
	logger.Info(h.ctx, "flow", "transfer.email.sent",
		slog.Int64("user_id", h.userID),
		slog.String("transfer_id", t.ID),
		slog.String("amount", fmtAmount(form.Amount)))
	return h.reply("✅ Success! "+fmtAmount(form.Amount)+" USDC has been sent to "+form.RecipientEmail+".\n\n"+
		"Transfer ID: "+t.ID, backToTransfers())
}

// --- send to external wallet ---

func (e *Engine) actionWalletTransfer(h *handlerCtx, _ string) error {
	h.sess.Form = session.Form{Type: session.TransferWallet}
	e.transition(h, StateWalletAddress)
	return h.reply("Please enter the recipient's wallet address:", nil)
}

func (e *Engine) textWalletAddress(h *handlerCtx, text string) error {
	address := strings.TrimSpace(text)
	if !validAddress(address) {
		return h.reply("That address looks too short. Please check it and try again:", nil)
	}
	h.sess.Form.RecipientAddress = address

	wallets, err := e.api.Wallets(h.ctx, h.sess.Token)
	if err != nil {
		return e.reportAPIError(h, "transfer.wallets.fail", err,
			"Failed to fetch available networks. Please try again later.", backToTransfers(), StateTransferMenu)
	}
	kb := make([][]Button, 0, len(wallets)+1)
	for _, w := range wallets {
		kb = append(kb, row(Button{Label: w.Network, Action: ActNetwork, Data: w.ID + "|" + w.Network}))
	}
	kb = append(kb, row(btn("❌ Cancel", ActTransferMenu)))
	e.transition(h, StateWalletNetwork)
	return h.reply("Select the network for this transfer:", kb)
}

func (e *Engine) actionNetwork(h *handlerCtx, payload string) error {
	walletID, network, _ := strings.Cut(payload, "|")
	if walletID == "" {
		return h.reply("Could not identify that network. Please try again.", backToTransfers())
	}
	h.sess.Form.WalletID = walletID
	h.sess.Form.Network = network
	e.transition(h, StateWalletAmount)
	return h.reply("Please enter the amount in USDC to send:", nil)
}

func (e *Engine) textWalletAmount(h *handlerCtx, text string) error {
	amount, err := parseAmount(text)
	if err != nil {
		return h.reply("Please enter a valid positive amount:", nil)
	}
	if ok, err := e.checkBalance(h, amount); !ok {
		return err
	}
	h.sess.Form.Amount = amount
	e.transition(h, StateWalletConfirm)
	return h.reply("Please confirm the withdrawal:\n\n"+
		"To: "+shortAddress(h.sess.Form.RecipientAddress)+"\n"+
		"Network: "+h.sess.Form.Network+"\n"+
		"Amount: "+fmtAmount(amount)+" USDC\n\n"+
		"Network fees vary and are deducted on settlement.",
		confirmKeyboard(ActConfirmWallet))
}

func (e *Engine) actionConfirmWallet(h *handlerCtx, _ string) error {
	form := h.sess.Form
	h.sess.ResetForm()
	e.transition(h, StateTransferMenu)

	t, err := e.api.WithdrawToWallet(h.ctx, h.sess.Token, form.Amount, form.RecipientAddress, form.WalletID)
	if err != nil {
		logger.Warn(h.ctx, "flow", "transfer.wallet.fail",
			slog.Int64("user_id", h.userID), slog.String("err", err.Error()))
		return h.reply("Withdrawal failed: "+err.Error(), backToTransfers())
	}
	logger.Info(h.ctx, "flow", "transfer.wallet.sent",
		slog.Int64("user_id", h.userID),
		slog.String("transfer_id", t.ID),
		slog.String("amount", fmtAmount(form.Amount)))
	return h.reply("✅ Success! "+fmtAmount(form.Amount)+" USDC is on its way to "+
		shortAddress(form.RecipientAddress)+".\n\nTransfer ID: "+t.ID, backToTransfers())
}

// --- withdraw to bank ---

func (e *Engine) actionBankWithdrawal(h *handlerCtx, _ string) error {
	kyc, err := e.api.KYCStatus(h.ctx, h.sess.Token)
	if err != nil {
		return e.reportAPIError(h, "transfer.kyc.fail", err,
			"Failed to verify your KYC status. Please try again later.", backToTransfers(), StateTransferMenu)
	}
	if kyc.Status != payapi.KYCApproved {
		gate := &KYCError{Status: kyc.Status}
		logger.Info(h.ctx, "flow", "transfer.kyc.blocked",
			slog.Int64("user_id", h.userID),
			slog.String("status", kyc.Status),
			slog.String("err_code", gate.Code()))
		return h.reply("🏦 Bank withdrawals require completed KYC verification.\n\n"+
			"Your current status: "+kyc.Status+". Please complete verification on the web platform first.",
			backToTransfers())
	}
	h.sess.Form = session.Form{Type: session.TransferBank}
	e.transition(h, StateBankAmount)
	return h.reply("Please enter the amount in USDC to withdraw to your bank account (minimum "+
		fmtAmount(minBankWithdrawal)+" USDC):", nil)
}

func (e *Engine) textBankAmount(h *handlerCtx, text string) error {
	amount, err := parseAmount(text)
	if err != nil {
		return h.reply("Please enter a valid positive amount:", nil)
	}
	if amount < minBankWithdrawal {
		return h.reply("Minimum withdrawal amount is "+fmtAmount(minBankWithdrawal)+
			" USDC. Please enter a higher amount:", nil)
	}
	if ok, err := e.checkBalance(h, amount); !ok {
		return err
	}
	h.sess.Form.Amount = amount
	fee := estimateFee(amount)
	e.transition(h, StateBankConfirm)
	return h.reply("Please confirm the bank withdrawal:\n\n"+
		"Amount: "+fmtAmount(amount)+" USDC\n"+
		"Estimated fee: "+fmtAmount(fee)+" USDC\n"+
		"You receive: ~"+fmtAmount(amount-fee)+" USD\n\n"+
		"The exact fee is settled upstream. Funds go to your default bank account.",
		confirmKeyboard(ActConfirmBank))
}

func (e *Engine) actionConfirmBank(h *handlerCtx, _ string) error {
	form := h.sess.Form
	h.sess.ResetForm()
	e.transition(h, StateTransferMenu)

	t, err := e.api.Offramp(h.ctx, h.sess.Token, form.Amount, "USD")
	if err != nil {
		logger.Warn(h.ctx, "flow", "transfer.bank.fail",
			slog.Int64("user_id", h.userID), slog.String("err", err.Error()))
		return h.reply("Bank withdrawal failed: "+err.Error(), backToTransfers())
	}
	logger.Info(h.ctx, "flow", "transfer.bank.sent",
		slog.Int64("user_id", h.userID),
		slog.String("transfer_id", t.ID),
		slog.String("amount", fmtAmount(form.Amount)))
	return h.reply("✅ Bank withdrawal initiated for "+fmtAmount(form.Amount)+
		" USDC.\n\nTransfer ID: "+t.ID+"\nProcessing usually takes 1-3 business days.", backToTransfers())
}
