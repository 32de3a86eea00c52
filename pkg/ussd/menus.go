package ussd

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	mainMenu = "CON Welcome to Mobile Banking\n" +
		"1. My Account\n" +
		"2. Money Transfer\n" +
		"3. Transaction History\n" +
		"4. Loan Services\n" +
		"5. Settings"

	accountMenu = "CON Account Information\n" +
		"1. Account Number\n" +
		"2. Account Balance\n" +
		"3. Account Details\n" +
		"0. Back to Main Menu"

	loanMenu = "CON Loan Services\n" +
		"1. Check Loan Eligibility\n" +
		"2. Loan Application\n" +
		"3. Check Loan Status\n" +
		"0. Back to Main Menu"

	settingsMenu = "CON Settings\n" +
		"1. Change PIN\n" +
		"2. Language Settings\n" +
		"3. Register\n" +
		"0. Back to Main Menu"

	languageMenu = "CON Select Language\n" +
		"1. English\n" +
		"2. Swahili\n" +
		"3. French"

	invalidSelection   = "END Invalid selection. Please try again."
	lockedOut          = "END Too many incorrect PIN attempts. Please try again later."
	userNotFound       = "END User information not found"
	genericError       = "END An error occurred. Please try again later."
	noTransactions     = "END No recent transactions found"
	invalidAmount      = "END Please enter a valid amount"
	invalidOTP         = "END Invalid OTP. Transfer cancelled."
	recipientPrompt    = "CON Enter recipient's phone number"
	newPINPrompt       = "CON Enter new 4-digit PIN"
	confirmPINPrompt   = "CON Confirm new PIN"
	pinFormatError     = "END PIN must be 4 digits"
	pinMismatch        = "END PINs do not match. PIN not changed."
	pinChanged         = "END PIN changed successfully"
	invalidLanguage    = "END Invalid language selection"
	invalidLoan        = "END Invalid loan service selection"
	invalidSettings    = "END Invalid settings selection"
	loanNotEligible    = "END You are not currently eligible for a loan. Maintain a minimum balance of KES 1,000 to qualify."
	loanComingSoon     = "END Loan application service coming soon!"
	noActiveLoans      = "END You have no active loans at this time."
	registerSent       = "END We've sent you a link via SMS to get started."
	registerComingSoon = "END Registration service coming soon!"
)

// GenericError is the reply for any internal fault.
const GenericError = genericError

var (
	loanMinimumBalance = decimal.NewFromInt(1000)
	loanRatio          = decimal.RequireFromString("0.5")
)

// formatAmount renders d exactly with thousands separators and two decimals.
func formatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	var b strings.Builder
	if strings.HasPrefix(s, "-") {
		b.WriteByte('-')
		s = s[1:]
	}
	whole, frac := s[:len(s)-3], s[len(s)-3:]
	for i := 0; i < len(whole); i++ {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(whole[i])
	}
	b.WriteString(frac)
	return b.String()
}
