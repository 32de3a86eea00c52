// Package payment executes transfers against the account ledger under a
// deadline and circuit breaker.
package payment

import (
	"context"
	"time"

	"kazichain-ussd/pkg/account"
	"kazichain-ussd/pkg/logging"
	"kazichain-ussd/pkg/metrics"
	"kazichain-ussd/pkg/resilience"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single transfer.
const DefaultTimeout = 10 * time.Second

// Transfer outcomes reported to metrics.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Service moves money between accounts.
type Service interface {
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (account.Receipt, error)
}

// LedgerService executes transfers directly against an account.Store.
type LedgerService struct {
	store   account.Store
	guard   *resilience.Guard
	metrics metrics.Collector
	logger  *logging.Logger
}

// NewLedgerService wraps store. Domain rejections (insufficient funds,
// unknown recipient) do not count as breaker failures.
func NewLedgerService(store account.Store, timeout time.Duration, collector metrics.Collector) *LedgerService {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	config := resilience.DefaultConfig().
		WithTimeout(timeout).
		WithIgnore(IsRejection)

	return &LedgerService{
		store:   store,
		guard:   resilience.NewGuard("payment", config, collector),
		metrics: collector,
		logger:  logging.Global().Named("payment"),
	}
}

// IsRejection reports whether err is a user-facing refusal rather than a fault.
func IsRejection(err error) bool {
	return account.Reason(err) != ""
}

// Transfer debits from and credits to. The amount is rounded to cents.
func (s *LedgerService) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (account.Receipt, error) {
	amount = amount.Round(2)
	start := time.Now()

	receipt, err := resilience.Do(ctx, s.guard, "transfer", func(ctx context.Context) (account.Receipt, error) {
		return s.store.Transfer(ctx, from, to, amount)
	})
	duration := time.Since(start)

	switch {
	case err == nil:
		s.metrics.RecordTransfer(OutcomeSuccess, duration)
		s.logger.Info("transfer committed",
			zap.String("reference", receipt.Reference),
			zap.String("from", from),
			zap.String("to", to),
			zap.String("amount", amount.StringFixed(2)),
			zap.Duration("duration", duration),
		)
	case IsRejection(err):
		s.metrics.RecordTransfer(OutcomeRejected, duration)
		s.logger.Info("transfer rejected",
			zap.String("from", from),
			zap.String("to", to),
			zap.String("reason", account.Reason(err)),
		)
	default:
		s.metrics.RecordTransfer(OutcomeFailed, duration)
		s.logger.Error("transfer failed",
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err),
		)
	}
	return receipt, err
}

// Guard exposes the breaker for status reporting.
func (s *LedgerService) Guard() *resilience.Guard {
	return s.guard
}

var _ Service = (*LedgerService)(nil)
