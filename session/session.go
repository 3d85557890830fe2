// Package session keeps per-user conversation state in memory. Sessions are
// ephemeral: they never survive a restart and are evicted on logout or after
// an idle TTL.
package session

import (
	"github.com/m3rciful/paybot/payapi"
)

// State identifies a conversation step. The flow package owns the values.
type State string

// StateStart is the unauthenticated entry state of every fresh session.
const StateStart State = "start"

// TransferType tags which transfer flow owns the current form draft.
type TransferType string

const (
	TransferEmail  TransferType = "email"
	TransferWallet TransferType = "wallet"
	TransferBank   TransferType = "bank"
)

// Form accumulates fields across the steps of one transfer flow. It is owned
// exclusively by its Session and discarded atomically on confirm or cancel.
type Form struct {
	Type             TransferType
	RecipientEmail   string
	RecipientAddress string
	WalletID         string
	Network          string
	Amount           float64
}

// Session is the conversation state for one user identity. Access goes
// through Store.Do, which holds the per-user lock; callers must not retain
// the pointer past the callback.
type Session struct {
	State State

	// Email is the login email being verified; kept across the OTP step.
	Email string
	// Token is empty until authentication succeeds. Every operation past
	// login requires it.
	Token   string
	Profile payapi.Profile

	Form Form

	NotifyEnabled bool
}

// Authenticated reports whether the session carries a usable credential.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != ""
}

// ResetForm discards the in-progress transfer draft.
func (s *Session) ResetForm() {
	s.Form = Form{}
}

// ResetAuth clears everything acquired through login, returning the session
// to the entry state.
func (s *Session) ResetAuth() {
	s.Email = ""
	s.Token = ""
	s.Profile = payapi.Profile{}
	s.Form = Form{}
	s.State = StateStart
}
