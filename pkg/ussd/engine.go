// Package ussd implements the mobile banking menu state machine driven by
// USSD gateway callbacks.
package ussd

import (
	"context"
	"errors"
	"strings"
	"time"

	"kazichain-ussd/pkg/account"
	"kazichain-ussd/pkg/logging"
	"kazichain-ussd/pkg/metrics"
	"kazichain-ussd/pkg/notify"
	"kazichain-ussd/pkg/payment"
	"kazichain-ussd/pkg/session"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultHistoryLimit is the number of ledger entries shown in history.
	DefaultHistoryLimit = 5

	DefaultTimeout = 12 * time.Second
)

var ErrInvalidRequest = errors.New("ussd: sessionId and phoneNumber are required")

// Request is one gateway callback.
type Request struct {
	SessionID   string
	ServiceCode string
	PhoneNumber string

	// Text is every input of the session so far joined with '*'.
	Text string
}

// Config configures an Engine.
type Config struct {
	// ServiceCode is the code this deployment is registered under. Callbacks
	// for other codes are answered but logged.
	ServiceCode string

	// WebAppLink is sent by SMS from Settings > Register. Empty disables it.
	WebAppLink string

	// SenderID is stamped on outgoing SMS.
	SenderID string

	HistoryLimit int

	// Timeout bounds one evaluation, which runs detached from the callers'
	// contexts.
	Timeout time.Duration

	Metrics metrics.Collector
}

// Engine turns callbacks into CON/END responses.
type Engine struct {
	accounts account.Store
	sessions *session.Store
	payments payment.Service
	notifier notify.Sender
	config   Config
	metrics  metrics.Collector
	logger   *logging.Logger
	sf       singleflight.Group

	newOTP func() (string, error)
}

// New creates an engine. A nil notifier discards notifications.
func New(accounts account.Store, sessions *session.Store, payments payment.Service, notifier notify.Sender, config Config) *Engine {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}
	return &Engine{
		accounts: accounts,
		sessions: sessions,
		payments: payments,
		notifier: notifier,
		config:   config,
		metrics:  config.Metrics,
		logger:   logging.Global().Named("ussd"),
		newOTP:   generateOTP,
	}
}

// Handle processes a callback. Identical concurrent callbacks for the same
// session are collapsed into one evaluation.
func (e *Engine) Handle(ctx context.Context, req Request) (string, error) {
	if req.SessionID == "" || req.PhoneNumber == "" {
		return "", ErrInvalidRequest
	}

	ch := e.sf.DoChan(req.SessionID+"|"+req.Text, func() (interface{}, error) {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Timeout)
		defer cancel()
		return e.handle(hctx, req)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Engine) handle(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	logger := e.logger.ForSession(req.SessionID, req.PhoneNumber, req.Text)
	if want := e.config.ServiceCode; want != "" && req.ServiceCode != "" && req.ServiceCode != want {
		logger.Warn("unexpected service code", zap.String("service_code", req.ServiceCode))
	}

	c := &call{
		ctx:    ctx,
		engine: e,
		req:    req,
		tokens: tokenize(req.Text),
		logger: logger,
		branch: branchMain,
	}
	err := e.sessions.Update(ctx, req.SessionID, func(st *session.State) error {
		c.state = st
		resp, err := c.route()
		c.response = resp
		return err
	})
	duration := time.Since(start)

	if err != nil {
		e.metrics.RecordCallback(c.branch, metrics.OutcomeError, duration)
		logger.Error("callback failed",
			zap.String("branch", c.branch),
			zap.Int("step", c.step),
			zap.Error(err),
		)
		return "", err
	}

	e.flush(ctx, c.outbox, logger)

	outcome := metrics.OutcomeEnd
	if strings.HasPrefix(c.response, "CON ") {
		outcome = metrics.OutcomeContinue
	}
	e.metrics.RecordCallback(c.branch, outcome, duration)
	logger.Debug("callback handled",
		zap.String("branch", c.branch),
		zap.Int("step", c.step),
		zap.String("outcome", outcome),
		zap.Duration("duration", duration),
	)
	return c.response, nil
}

// flush hands queued notifications to the notifier once the session has
// been saved. Failures are logged only.
func (e *Engine) flush(ctx context.Context, outbox []notify.Message, logger *logging.Logger) {
	if e.notifier == nil {
		return
	}
	for _, msg := range outbox {
		if msg.SenderID == "" {
			msg.SenderID = e.config.SenderID
		}
		if err := e.notifier.Send(ctx, msg); err != nil {
			logger.Warn("notification not queued", zap.String("to", msg.To), zap.Error(err))
		}
	}
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "*")
}
