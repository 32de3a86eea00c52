package ussd

import (
	"errors"
	"fmt"

	"kazichain-ussd/pkg/account"

	"go.uber.org/zap"
)

var languages = map[string]account.Language{
	"1": account.English,
	"2": account.Swahili,
	"3": account.French,
}

func settingsStep(c *call, path []string) (string, error) {
	if len(path) == 1 {
		return settingsMenu, nil
	}

	sel := c.state.Root + 1
	switch path[1] {
	case "1":
		c.branch = branchChangePIN
		return c.gated(sel, "CON Enter your current PIN", changePINStep)
	case "2":
		return languageStep(c, path[2:])
	case "3":
		if len(path) > 2 {
			return invalidSettings, nil
		}
		return c.register()
	case "0":
		return c.back(sel)
	default:
		return invalidSettings, nil
	}
}

func changePINStep(c *call) (string, error) {
	base := c.state.AuthIndex
	switch c.step {
	case 0:
		return newPINPrompt, nil
	case 1:
		if !account.ValidPIN(c.tokens[base+1]) {
			return pinFormatError, nil
		}
		return confirmPINPrompt, nil
	case 2:
		pin, confirm := c.tokens[base+1], c.tokens[base+2]
		if !account.ValidPIN(pin) {
			return pinFormatError, nil
		}
		if pin != confirm {
			return pinMismatch, nil
		}
		err := c.engine.accounts.ChangePIN(c.ctx, c.req.PhoneNumber, pin)
		if errors.Is(err, account.ErrAccountNotFound) {
			return userNotFound, nil
		}
		if err != nil {
			return "", fmt.Errorf("change pin: %w", err)
		}
		c.logger.Info("pin changed")
		return pinChanged, nil
	default:
		return invalidSelection, nil
	}
}

func languageStep(c *call, rest []string) (string, error) {
	switch len(rest) {
	case 0:
		return languageMenu, nil
	case 1:
	default:
		return invalidLanguage, nil
	}

	lang, ok := languages[rest[0]]
	if !ok {
		return invalidLanguage, nil
	}
	// Unregistered callers still get the acknowledgement.
	err := c.engine.accounts.SetLanguage(c.ctx, c.req.PhoneNumber, lang)
	if err != nil && !errors.Is(err, account.ErrAccountNotFound) {
		return "", fmt.Errorf("set language: %w", err)
	}
	c.logger.Info("language updated", zap.String("language", lang.Tag().String()))
	return "END Language set to " + string(lang), nil
}

func (c *call) register() (string, error) {
	link := c.engine.config.WebAppLink
	if link == "" {
		return registerComingSoon, nil
	}
	c.queue(c.req.PhoneNumber, "Welcome to KaziChain! Access the web app here: "+link)
	return registerSent, nil
}
