package flow

import (
	"strings"
	"time"

	"github.com/m3rciful/paybot/payapi"
)

// shortAddress truncates long wallet addresses for display.
func shortAddress(addr string) string {
	if len(addr) <= 20 {
		return addr
	}
	return addr[:10] + "..." + addr[len(addr)-10:]
}

func renderWallets(wallets []payapi.Wallet, balances []payapi.Balance) string {
	byWallet := make(map[string]string, len(balances))
	for _, b := range balances {
		byWallet[b.WalletID] = b.Balance
	}

	var sb strings.Builder
	sb.WriteString("👛 Your Wallets\n\n")
	for _, w := range wallets {
		if w.IsDefault {
			sb.WriteString("✅ ")
		} else {
			sb.WriteString("• ")
		}
		sb.WriteString(w.Network)
		if bal, ok := byWallet[w.ID]; ok && bal != "" {
			sb.WriteString(": " + bal + " USDC")
		}
		sb.WriteString("\n   " + shortAddress(w.Address) + "\n")
	}
	sb.WriteString("\nTotal: " + fmtAmount(payapi.TotalBalance(balances)) + " USDC")
	return sb.String()
}

func renderProfile(p payapi.Profile) string {
	var sb strings.Builder
	sb.WriteString("👤 Your Profile\n\n")
	sb.WriteString("Name: " + orDash(p.Name) + "\n")
	sb.WriteString("Email: " + orDash(p.Email) + "\n")
	sb.WriteString("Organization: " + orDash(p.OrganizationName) + "\n")
	if t, err := time.Parse(time.RFC3339, p.CreatedAt); err == nil {
		sb.WriteString("Member since: " + t.Format("January 2, 2006") + "\n")
	}
	return sb.String()
}

func renderKYC(k payapi.KYC) string {
	var line string
	switch k.Status {
	case payapi.KYCApproved:
		line = "✅ Approved. All features are available."
	case payapi.KYCPending:
		line = "⏳ Pending review. Bank withdrawals unlock once verification completes."
	case payapi.KYCRejected:
		line = "❌ Rejected. Please contact support or resubmit on the web platform."
	default:
		line = "⚪ Not started. Complete verification on the web platform to enable bank withdrawals."
	}
	return "🔑 KYC Status\n\n" + line
}

func renderTransfers(transfers []payapi.Transfer) string {
	if len(transfers) == 0 {
		return "📜 Transfer History\n\nYou don't have any transfers yet."
	}
	var sb strings.Builder
	sb.WriteString("📜 Recent Transfers\n\n")
	for _, t := range transfers {
		sb.WriteString(directionIcon(t.Type) + " " + t.Amount + " USDC")
		if t.Type != "" {
			sb.WriteString(" (" + t.Type + ")")
		}
		sb.WriteString(" - " + t.Status)
		if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
			sb.WriteString(" - " + ts.Format("Jan 2"))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func directionIcon(transferType string) string {
	switch transferType {
	case "deposit", "receive":
		return "⬇️"
	default:
		return "⬆️"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
