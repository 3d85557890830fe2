// Package flow implements the conversation engine: a finite-state machine
// that walks a user through login, wallet management, and transfer flows.
// All transitions live in one table (see engine.go); handlers validate
// input, call the payments API where the table allows it, and move the
// session to the next state.
//
// The engine is transport-neutral. It consumes a Responder and emits button
// rows; the app layer maps those onto the chat transport.
package flow

import "github.com/m3rciful/paybot/session"

// Conversation states. StateStart is owned by the session package because a
// fresh session must begin there.
const (
	StateStart     = session.StateStart
	StateAuthEmail session.State = "auth_email"
	StateAuthOTP   session.State = "auth_otp"
	StateMainMenu  session.State = "main_menu"

	StateWalletMenu   session.State = "wallet_menu"
	StateTransferMenu session.State = "transfer_menu"

	StateEmailRecipient session.State = "email_recipient"
	StateEmailAmount    session.State = "email_amount"
	StateEmailConfirm   session.State = "email_confirm"

	StateWalletAddress session.State = "wallet_address"
	StateWalletNetwork session.State = "wallet_network"
	StateWalletAmount  session.State = "wallet_amount"
	StateWalletConfirm session.State = "wallet_confirm"

	StateBankAmount  session.State = "bank_amount"
	StateBankConfirm session.State = "bank_confirm"
)

// Action keys. These double as the callback identifiers on inline buttons.
const (
	ActLogin       = "login"
	ActAbout       = "about"
	ActBackToStart = "back_to_start"

	ActMainMenu     = "main_menu"
	ActWalletMenu   = "wallet_menu"
	ActTransferMenu = "transfer_menu"

	ActProfile      = "profile"
	ActKYC          = "kyc_status"
	ActHistory      = "history"
	ActSettings     = "settings"
	ActToggleNotify = "toggle_notify"
	ActLogout       = "logout"

	ActDeposit       = "deposit"
	ActDefaultPicker = "wallet_default"
	ActSetDefault    = "wallet_default_set"

	ActEmailTransfer  = "email_transfer"
	ActWalletTransfer = "wallet_transfer"
	ActBankWithdrawal = "bank_withdrawal"
	ActNetwork        = "network"

	ActConfirmEmail  = "confirm_email"
	ActConfirmWallet = "confirm_wallet"
	ActConfirmBank   = "confirm_bank"
)

// Actions returns every action key the engine understands, for callback
// registration at wiring time.
func Actions() []string {
	return []string{
		ActLogin, ActAbout, ActBackToStart,
		ActMainMenu, ActWalletMenu, ActTransferMenu,
		ActProfile, ActKYC, ActHistory, ActSettings, ActToggleNotify, ActLogout,
		ActDeposit, ActDefaultPicker, ActSetDefault,
		ActEmailTransfer, ActWalletTransfer, ActBankWithdrawal, ActNetwork,
		ActConfirmEmail, ActConfirmWallet, ActConfirmBank,
	}
}
