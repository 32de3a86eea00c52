package ussd

import (
	"context"
	"fmt"

	"kazichain-ussd/pkg/logging"
	"kazichain-ussd/pkg/notify"
	"kazichain-ussd/pkg/session"

	"go.uber.org/zap"
)

// Branch labels used in logs and metrics.
const (
	branchMain      = "main"
	branchAccount   = "account"
	branchTransfer  = "transfer"
	branchHistory   = "history"
	branchLoan      = "loan"
	branchSettings  = "settings"
	branchChangePIN = "change_pin"
	branchInvalid   = "invalid"
)

// call is the evaluation of one callback against one session state.
type call struct {
	ctx    context.Context
	engine *Engine
	req    Request
	tokens []string
	state  *session.State
	logger *logging.Logger

	branch   string
	step     int
	response string
	outbox   []notify.Message
}

type handlerFunc func(c *call) (string, error)

// route dispatches on the first token at or after the session root.
func (c *call) route() (string, error) {
	if c.state.Root > len(c.tokens) {
		c.state.Root = 0
	}
	path := c.tokens[c.state.Root:]
	if len(path) == 0 {
		c.branch = branchMain
		return mainMenu, nil
	}

	switch path[0] {
	case "1":
		c.branch = branchAccount
		return c.gated(c.state.Root, "CON Please enter your PIN to access account information", accountStep)
	case "2":
		c.branch = branchTransfer
		return c.gated(c.state.Root, "CON Enter your PIN to make a transfer", transferStep)
	case "3":
		c.branch = branchHistory
		return c.gated(c.state.Root, "CON Enter your PIN to view transactions", historyStep)
	case "4":
		c.branch = branchLoan
		return loanMenuStep(c, path)
	case "5":
		c.branch = branchSettings
		return settingsStep(c, path)
	default:
		c.branch = branchInvalid
		return invalidSelection, nil
	}
}

// back returns to the main menu from the selection at token index idx and
// replays whatever the user typed after it.
func (c *call) back(idx int) (string, error) {
	c.state.Root = idx + 1
	if c.state.Root < len(c.tokens) {
		return c.route()
	}
	c.branch = branchMain
	return mainMenu, nil
}

// token returns the token at index i, if present.
func (c *call) token(i int) (string, bool) {
	if i < 0 || i >= len(c.tokens) {
		return "", false
	}
	return c.tokens[i], true
}

// gated runs next behind the PIN gate anchored at token index base. Each
// token after base is a PIN attempt until one verifies.
func (c *call) gated(base int, prompt string, next handlerFunc) (string, error) {
	st := c.state
	if st.LockedOut() {
		c.engine.metrics.RecordLockout(c.branch)
		return lockedOut, nil
	}

	if !st.Authenticated {
		if st.GateBase != base {
			st.GateBase = base
			st.GateAttempts = 0
		}
		for {
			idx := base + 1 + st.GateAttempts
			pin, ok := c.token(idx)
			if !ok {
				break
			}
			verified, err := c.engine.accounts.VerifyPIN(c.ctx, c.req.PhoneNumber, pin)
			if err != nil {
				return "", fmt.Errorf("verify pin: %w", err)
			}
			if verified {
				st.Authenticated = true
				st.AuthIndex = idx
				c.logger.Info("authenticated", zap.String("branch", c.branch))
				break
			}

			st.PINAttempts++
			st.GateAttempts++
			c.engine.metrics.RecordAuthFailure(c.branch)
			c.logger.Warn("incorrect pin", zap.String("branch", c.branch), zap.Int("attempts", st.PINAttempts))
			if st.LockedOut() {
				c.engine.metrics.RecordLockout(c.branch)
				return lockedOut, nil
			}
		}
		if !st.Authenticated {
			if st.GateAttempts == 0 {
				return prompt, nil
			}
			return fmt.Sprintf("CON Incorrect PIN. Try again (%d attempts left)", st.AttemptsLeft()), nil
		}
	} else if st.AuthIndex < base || st.AuthIndex >= len(c.tokens) {
		// Already signed in and arriving from the main menu.
		st.AuthIndex = base
	}

	c.step = len(c.tokens) - 1 - st.AuthIndex
	return next(c)
}

// queue schedules an SMS to be sent after the session is saved.
func (c *call) queue(to, body string) {
	c.outbox = append(c.outbox, notify.Message{To: to, Body: body})
}
