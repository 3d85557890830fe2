package payapi

import "strconv"

// Profile is the account owner as reported by GET /auth/me.
type Profile struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	OrganizationID   string `json:"organizationId"`
	OrganizationName string `json:"organizationName"`
	CreatedAt        string `json:"createdAt"`
}

// Wallet is a read-only projection of an account wallet. It is never
// mutated locally; every view re-fetches it.
type Wallet struct {
	ID        string `json:"id"`
	Network   string `json:"network"`
	Address   string `json:"address"`
	IsDefault bool   `json:"isDefault"`
}

// Balance holds the upstream amount for a single wallet. The raw value is
// kept as a string because the API is inconsistent about number encoding.
type Balance struct {
	WalletID string
	Balance  string
}

// Amount parses the balance as a float; unparseable values count as zero.
func (b Balance) Amount() float64 {
	v, err := strconv.ParseFloat(b.Balance, 64)
	if err != nil {
		return 0
	}
	return v
}

// TotalBalance sums all wallet balances.
func TotalBalance(balances []Balance) float64 {
	var total float64
	for _, b := range balances {
		total += b.Amount()
	}
	return total
}

// KYC is the verification state gating regulated operations.
type KYC struct {
	Status string `json:"status"`
	Type   string `json:"type"`
}

// KYC status values used by the bank withdrawal gate.
const (
	KYCApproved   = "APPROVED"
	KYCPending    = "PENDING"
	KYCRejected   = "REJECTED"
	KYCNotStarted = "NOT_STARTED"
)

// Transfer is created by a submit call and only ever displayed afterwards.
type Transfer struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}
