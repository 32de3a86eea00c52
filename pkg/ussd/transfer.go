package ussd

import (
	"fmt"
	"regexp"
	"strings"

	"kazichain-ussd/pkg/account"
	"kazichain-ussd/pkg/payment"
	"kazichain-ussd/pkg/session"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Transfer steps after authentication: recipient, amount, OTP.
func transferStep(c *call) (string, error) {
	base := c.state.AuthIndex
	recipient, _ := c.token(base + 1)

	switch c.step {
	case 0:
		return recipientPrompt, nil
	case 1:
		return "CON Enter amount to send to " + recipient, nil
	case 2:
		amount, ok := parseAmount(c.tokens[base+2])
		if !ok {
			return invalidAmount, nil
		}
		otp, err := c.draft(recipient, amount)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("CON You're about to send KES %s to %s\nEnter OTP: %s to confirm",
			formatAmount(amount), recipient, otp), nil
	case 3:
		return c.confirmTransfer(recipient, c.tokens[base+2], c.tokens[base+3])
	default:
		return invalidSelection, nil
	}
}

// amountPattern admits plain decimals only: no sign, exponent or grouping.
var amountPattern = regexp.MustCompile(`^[0-9]{1,12}(\.[0-9]{1,2})?$`)

// parseAmount accepts a positive amount with at most two decimals.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// draft stores a pending transfer and returns its OTP. A retransmitted
// amount step gets the OTP already issued for the same draft.
func (c *call) draft(recipient string, amount decimal.Decimal) (string, error) {
	st := c.state
	if p := st.PendingTransfer; p != nil && st.PendingOTP != "" &&
		p.Recipient == recipient && p.Amount.Equal(amount) {
		return st.PendingOTP, nil
	}

	otp, err := c.engine.newOTP()
	if err != nil {
		return "", err
	}
	st.PendingOTP = otp
	st.PendingTransfer = &session.PendingTransfer{Recipient: recipient, Amount: amount}
	return otp, nil
}

func (c *call) confirmTransfer(recipient, amountText, otp string) (string, error) {
	want, draft := c.state.ClearPending()
	amount, ok := parseAmount(amountText)
	if draft == nil || !ok || !otpEqual(want, otp) ||
		draft.Recipient != recipient || !draft.Amount.Equal(amount) {
		c.logger.Warn("otp rejected", zap.Int("step", c.step))
		return invalidOTP, nil
	}

	sender := c.req.PhoneNumber
	receipt, err := c.engine.payments.Transfer(c.ctx, sender, recipient, amount)
	if payment.IsRejection(err) {
		return "END Transfer failed: " + account.Reason(err), nil
	}
	if err != nil {
		return "", fmt.Errorf("transfer: %w", err)
	}

	amt := formatAmount(receipt.Amount)
	c.queue(sender, fmt.Sprintf("KaziChain: You sent KES %s to %s. New balance KES %s. Ref %s",
		amt, recipient, formatAmount(receipt.SenderBalance), receipt.Reference))
	c.queue(recipient, fmt.Sprintf("KaziChain: You received KES %s from %s. New balance KES %s. Ref %s",
		amt, sender, formatAmount(receipt.RecipientBalance), receipt.Reference))

	return fmt.Sprintf("END Transfer successful. KES %s sent to %s", amt, recipient), nil
}
