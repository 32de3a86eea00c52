package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. Each account has its own mutex;
// transfers lock both accounts in phone-number order.
type MemoryStore struct {
	mu       sync.RWMutex // guards accounts and ledger
	accounts map[string]*memAccount
	ledger   map[string][]TransactionRecord
	now      func() time.Time
}

type memAccount struct {
	mu sync.Mutex
	Account
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*memAccount),
		ledger:   make(map[string][]TransactionRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) lookup(phone string) (*memAccount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[phone]
	return a, ok
}

// CreateAccount registers a new account.
func (s *MemoryStore) CreateAccount(ctx context.Context, acct NewAccount) error {
	if !ValidPIN(acct.PIN) {
		return ErrInvalidPIN
	}
	if acct.OpeningBalance.IsNegative() {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.PhoneNumber]; ok {
		return ErrAccountExists
	}
	s.accounts[acct.PhoneNumber] = &memAccount{Account: Account{
		PhoneNumber:   acct.PhoneNumber,
		PINHash:       HashPIN(acct.PIN),
		AccountNumber: acct.AccountNumber,
		Balance:       acct.OpeningBalance.Round(2),
		Name:          acct.Name,
		Language:      English,
		CreatedAt:     s.now(),
	}}
	return nil
}

// GetBalance returns the current balance.
func (s *MemoryStore) GetBalance(ctx context.Context, phone string) (decimal.Decimal, error) {
	a, ok := s.lookup(phone)
	if !ok {
		return decimal.Zero, ErrAccountNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Balance, nil
}

// GetAccountNumber returns the account number.
func (s *MemoryStore) GetAccountNumber(ctx context.Context, phone string) (string, error) {
	a, ok := s.lookup(phone)
	if !ok {
		return "", ErrAccountNotFound
	}
	return a.AccountNumber, nil
}

// GetDetails returns name, account number and balance.
func (s *MemoryStore) GetDetails(ctx context.Context, phone string) (Details, error) {
	a, ok := s.lookup(phone)
	if !ok {
		return Details{}, ErrAccountNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return Details{Name: a.Name, AccountNumber: a.AccountNumber, Balance: a.Balance}, nil
}

// VerifyPIN checks pin against the stored digest. Unknown phones never verify.
func (s *MemoryStore) VerifyPIN(ctx context.Context, phone, pin string) (bool, error) {
	a, ok := s.lookup(phone)
	if !ok {
		return false, nil
	}
	a.mu.Lock()
	hash := a.PINHash
	a.mu.Unlock()
	return CheckPIN(hash, pin), nil
}

// RecordTransaction appends a ledger entry without touching the balance.
func (s *MemoryStore) RecordTransaction(ctx context.Context, phone string, typ TransactionType, amount decimal.Decimal, counterparty string) error {
	if !typ.Valid() {
		return ErrInvalidType
	}
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if _, ok := s.lookup(phone); !ok {
		return ErrAccountNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(uuid.NewString(), phone, typ, amount, counterparty, s.now())
	return nil
}

func (s *MemoryStore) appendLocked(ref, phone string, typ TransactionType, amount decimal.Decimal, counterparty string, at time.Time) {
	s.ledger[phone] = append(s.ledger[phone], TransactionRecord{
		ID:           uuid.NewString(),
		Reference:    ref,
		PhoneNumber:  phone,
		Type:         typ,
		Amount:       amount,
		Counterparty: counterparty,
		Timestamp:    at,
	})
}

// GetHistory returns up to limit entries, most recent first.
func (s *MemoryStore) GetHistory(ctx context.Context, phone string, limit int) ([]TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledger[phone]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]TransactionRecord, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// Transfer moves amount from sender to recipient atomically.
func (s *MemoryStore) Transfer(ctx context.Context, sender, recipient string, amount decimal.Decimal) (Receipt, error) {
	if err := ValidateAmount(amount); err != nil {
		return Receipt{}, err
	}
	if sender == recipient {
		return Receipt{}, ErrSameAccount
	}

	from, ok := s.lookup(sender)
	if !ok {
		return Receipt{}, ErrAccountNotFound
	}
	to, ok := s.lookup(recipient)
	if !ok {
		return Receipt{}, ErrRecipientNotFound
	}

	first, second := from, to
	if recipient < sender {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if from.Balance.LessThan(amount) {
		return Receipt{}, ErrInsufficientFunds
	}

	from.Balance = from.Balance.Sub(amount)
	to.Balance = to.Balance.Add(amount)

	ref := uuid.NewString()
	at := s.now()
	s.mu.Lock()
	s.appendLocked(ref, sender, TransferOut, amount, recipient, at)
	s.appendLocked(ref, recipient, TransferIn, amount, sender, at)
	s.mu.Unlock()

	return Receipt{
		Reference:        ref,
		Sender:           sender,
		Recipient:        recipient,
		Amount:           amount,
		SenderBalance:    from.Balance,
		RecipientBalance: to.Balance,
		Timestamp:        at,
	}, nil
}

// Deposit credits amount and records a DEPOSIT entry.
func (s *MemoryStore) Deposit(ctx context.Context, phone string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	a, ok := s.lookup(phone)
	if !ok {
		return decimal.Zero, ErrAccountNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.Balance = a.Balance.Add(amount)

	s.mu.Lock()
	s.appendLocked(uuid.NewString(), phone, Deposit, amount, "", s.now())
	s.mu.Unlock()
	return a.Balance, nil
}

// ChangePIN replaces the stored PIN digest.
func (s *MemoryStore) ChangePIN(ctx context.Context, phone, newPIN string) error {
	if !ValidPIN(newPIN) {
		return ErrInvalidPIN
	}
	a, ok := s.lookup(phone)
	if !ok {
		return ErrAccountNotFound
	}
	a.mu.Lock()
	a.PINHash = HashPIN(newPIN)
	a.mu.Unlock()
	return nil
}

// SetLanguage stores the preferred language.
func (s *MemoryStore) SetLanguage(ctx context.Context, phone string, lang Language) error {
	a, ok := s.lookup(phone)
	if !ok {
		return ErrAccountNotFound
	}
	a.mu.Lock()
	a.Language = lang
	a.mu.Unlock()
	return nil
}

// Language returns the stored language preference.
func (s *MemoryStore) Language(phone string) (Language, bool) {
	a, ok := s.lookup(phone)
	if !ok {
		return "", false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Language, true
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
