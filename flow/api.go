package flow

import (
	"context"

	"github.com/m3rciful/paybot/payapi"
)

// API is the payments surface the engine talks to. *payapi.Client satisfies
// it; tests substitute a fake.
type API interface {
	RequestOTP(ctx context.Context, email string) error
	Authenticate(ctx context.Context, email, code string) (string, error)
	Me(ctx context.Context, token string) (payapi.Profile, error)
	Wallets(ctx context.Context, token string) ([]payapi.Wallet, error)
	Balances(ctx context.Context, token string) ([]payapi.Balance, error)
	DefaultWallet(ctx context.Context, token string) (payapi.Wallet, error)
	SetDefaultWallet(ctx context.Context, token, walletID string) error
	KYCStatus(ctx context.Context, token string) (payapi.KYC, error)
	SendToEmail(ctx context.Context, token string, amount float64, email, message string) (payapi.Transfer, error)
	WithdrawToWallet(ctx context.Context, token string, amount float64, address, walletID string) (payapi.Transfer, error)
	Offramp(ctx context.Context, token string, amount float64, currency string) (payapi.Transfer, error)
	Transfers(ctx context.Context, token string, page, limit int) ([]payapi.Transfer, error)
}

// Button is one inline keyboard button. Data rides along with Action in the
// callback payload.
type Button struct {
	Label  string
	Action string
	Data   string
}

// Responder delivers engine output to the chat. Send posts a new message,
// Edit rewrites the message the user last interacted with (falling back to
// Send when there is nothing to edit).
type Responder interface {
	Send(text string, kb [][]Button) error
	Edit(text string, kb [][]Button) error
}

func row(btns ...Button) []Button { return btns }

func btn(label, action string) Button { return Button{Label: label, Action: action} }
