package flow

import "fmt"

// ValidationError reports user input that failed a local check before any
// API call was made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason) }

func (e *ValidationError) Code() string { return "VALIDATION" }

// InsufficientFundsError is returned when a requested transfer exceeds the
// user's total balance.
type InsufficientFundsError struct {
	Balance   float64
	Requested float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: have %s, requested %s",
		fmtAmount(e.Balance), fmtAmount(e.Requested))
}

func (e *InsufficientFundsError) Code() string { return "INSUFFICIENT_FUNDS" }

// AuthError is returned when an operation requires a live token and the
// session has none.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

func (e *AuthError) Code() string { return "AUTH" }

// KYCError is returned when a gated operation is attempted with a
// verification status other than approved.
type KYCError struct {
	Status string
}

func (e *KYCError) Error() string { return "kyc gate: status " + e.Status }

func (e *KYCError) Code() string { return "KYC_GATE" }
