package ussd

import (
	"errors"
	"fmt"

	"kazichain-ussd/pkg/account"
)

func accountStep(c *call) (string, error) {
	switch c.step {
	case 0:
		return accountMenu, nil
	case 1:
	default:
		return invalidSelection, nil
	}

	idx := c.state.AuthIndex + 1
	sel, _ := c.token(idx)
	phone := c.req.PhoneNumber
	accounts := c.engine.accounts

	var (
		resp string
		err  error
	)
	switch sel {
	case "1":
		num, e := accounts.GetAccountNumber(c.ctx, phone)
		if err = e; err == nil {
			resp = "END Your account number is " + num
		}
	case "2":
		bal, e := accounts.GetBalance(c.ctx, phone)
		if err = e; err == nil {
			resp = "END Your balance is KES " + formatAmount(bal)
		}
	case "3":
		d, e := accounts.GetDetails(c.ctx, phone)
		if err = e; err == nil {
			resp = fmt.Sprintf("END Account Details\nName: %s\nAccount: %s\nBalance: KES %s\nPhone: %s",
				d.Name, d.AccountNumber, formatAmount(d.Balance), phone)
		}
	case "0":
		return c.back(idx)
	default:
		return invalidSelection, nil
	}

	if errors.Is(err, account.ErrAccountNotFound) {
		return userNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("account lookup: %w", err)
	}
	return resp, nil
}

func historyStep(c *call) (string, error) {
	if c.step != 0 {
		return invalidSelection, nil
	}

	records, err := c.engine.accounts.GetHistory(c.ctx, c.req.PhoneNumber, c.engine.config.HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("history: %w", err)
	}
	if len(records) == 0 {
		return noTransactions, nil
	}

	resp := "END Recent Transactions:"
	for i, r := range records {
		line := fmt.Sprintf("%d. %s: KES %s", i+1, r.Type, formatAmount(r.Amount))
		if r.Counterparty != "" {
			line += " - " + r.Counterparty
		}
		resp += "\n" + line + " (" + r.Timestamp.Format("02/01/2006") + ")"
	}
	return resp, nil
}

func loanMenuStep(c *call, path []string) (string, error) {
	if len(path) == 1 {
		return loanMenu, nil
	}
	if len(path) > 2 && path[1] != "0" {
		return invalidLoan, nil
	}

	switch path[1] {
	case "1":
		bal, err := c.engine.accounts.GetBalance(c.ctx, c.req.PhoneNumber)
		if errors.Is(err, account.ErrAccountNotFound) {
			return loanNotEligible, nil
		}
		if err != nil {
			return "", fmt.Errorf("loan eligibility: %w", err)
		}
		if bal.LessThan(loanMinimumBalance) {
			return loanNotEligible, nil
		}
		return "END You are eligible for a loan up to KES " + formatAmount(bal.Mul(loanRatio)), nil
	case "2":
		return loanComingSoon, nil
	case "3":
		return noActiveLoans, nil
	case "0":
		return c.back(c.state.Root + 1)
	default:
		return invalidLoan, nil
	}
}
