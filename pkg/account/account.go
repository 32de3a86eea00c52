package account

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransferIn  TransactionType = "TRANSFER_IN"
	TransferOut TransactionType = "TRANSFER_OUT"
	Deposit     TransactionType = "DEPOSIT"
	Withdrawal  TransactionType = "WITHDRAWAL"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransferIn, TransferOut, Deposit, Withdrawal:
		return true
	}
	return false
}

// Language is the user's preferred menu language.
type Language string

const (
	English Language = "English"
	Swahili Language = "Swahili"
	French  Language = "French"
)

// Tag returns the BCP 47 tag for l. Unknown languages map to English.
func (l Language) Tag() language.Tag {
	switch l {
	case Swahili:
		return language.Swahili
	case French:
		return language.French
	default:
		return language.English
	}
}

// Account is a registered mobile banking user.
type Account struct {
	PhoneNumber   string          `json:"phone_number"`
	PINHash       string          `json:"-"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	Name          string          `json:"name"`
	Language      Language        `json:"language"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Details is the read-only view shown in the account details menu.
type Details struct {
	Name          string
	AccountNumber string
	Balance       decimal.Decimal
}

// TransactionRecord is an append-only ledger entry.
type TransactionRecord struct {
	ID           string          `json:"id"`
	Reference    string          `json:"reference"`
	PhoneNumber  string          `json:"phone_number"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Counterparty string          `json:"counterparty,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Receipt describes a committed transfer.
type Receipt struct {
	Reference        string
	Sender           string
	Recipient        string
	Amount           decimal.Decimal
	SenderBalance    decimal.Decimal
	RecipientBalance decimal.Decimal
	Timestamp        time.Time
}

// NewAccount holds the fields needed to register a user.
type NewAccount struct {
	PhoneNumber    string
	PIN            string
	AccountNumber  string
	Name           string
	OpeningBalance decimal.Decimal
}

var (
	ErrAccountNotFound   = errors.New("account: not found")
	ErrAccountExists     = errors.New("account: already exists")
	ErrRecipientNotFound = errors.New("account: recipient not found")
	ErrInsufficientFunds = errors.New("account: insufficient funds")
	ErrSameAccount       = errors.New("account: sender and recipient are the same")
	ErrInvalidAmount     = errors.New("account: amount must be positive")
	ErrInvalidType       = errors.New("account: invalid transaction type")
	ErrInvalidPIN        = errors.New("account: PIN must be 4 digits")
)

// Reason returns the user-facing explanation for a transfer failure,
// or "" if err is not a domain failure.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "Insufficient funds"
	case errors.Is(err, ErrRecipientNotFound):
		return "Recipient not found"
	case errors.Is(err, ErrSameAccount):
		return "Cannot send money to your own account"
	case errors.Is(err, ErrInvalidAmount):
		return "Invalid amount"
	default:
		return ""
	}
}

// Store persists accounts and their ledger.
//
// Transfer must be atomic: both balance mutations and both ledger entries are
// committed together, and concurrent transfers touching the same account are
// serialized so a balance can never go negative.
type Store interface {
	GetBalance(ctx context.Context, phone string) (decimal.Decimal, error)
	GetAccountNumber(ctx context.Context, phone string) (string, error)
	GetDetails(ctx context.Context, phone string) (Details, error)
	VerifyPIN(ctx context.Context, phone, pin string) (bool, error)
	RecordTransaction(ctx context.Context, phone string, typ TransactionType, amount decimal.Decimal, counterparty string) error
	GetHistory(ctx context.Context, phone string, limit int) ([]TransactionRecord, error)
	Transfer(ctx context.Context, sender, recipient string, amount decimal.Decimal) (Receipt, error)

	CreateAccount(ctx context.Context, acct NewAccount) error
	Deposit(ctx context.Context, phone string, amount decimal.Decimal) (decimal.Decimal, error)
	ChangePIN(ctx context.Context, phone, newPIN string) error
	SetLanguage(ctx context.Context, phone string, lang Language) error

	Close() error
}

// ValidateAmount rejects zero and negative amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Demo account seeded on first start so the menus can be exercised.
var DemoAccount = NewAccount{
	PhoneNumber:    "+254758750620",
	PIN:            "1234",
	AccountNumber:  "ACC1001",
	Name:           "Demo User",
	OpeningBalance: decimal.NewFromInt(10000),
}

// SeedDemo creates DemoAccount unless it already exists.
func SeedDemo(ctx context.Context, s Store) error {
	err := s.CreateAccount(ctx, DemoAccount)
	if err != nil && !errors.Is(err, ErrAccountExists) {
		return err
	}
	return nil
}
