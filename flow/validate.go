package flow

import (
	"strconv"
	"strings"
)

const (
	minAddressLen     = 20
	minBankWithdrawal = 10.0

	feeFloor = 5.0
	feeRate  = 0.01
)

func validEmail(s string) bool {
	return strings.Contains(s, "@") && strings.Contains(s, ".")
}

func validAddress(s string) bool {
	return len(s) >= minAddressLen
}

// parseAmount accepts a decimal amount and requires it to be positive.
func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &ValidationError{Field: "amount", Reason: "not a number"}
	}
	if v <= 0 {
		return 0, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return v, nil
}

// estimateFee approximates the bank withdrawal fee as 1% with a 5 USDC
// floor. The authoritative fee is settled upstream; the estimate is shown
// to the user as provisional.
func estimateFee(amount float64) float64 {
	fee := amount * feeRate
	if fee < feeFloor {
		fee = feeFloor
	}
	return fee
}

func fmtAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
