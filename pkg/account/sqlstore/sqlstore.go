// Package sqlstore provides SQLite and PostgreSQL implementations of account.Store.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"kazichain-ussd/pkg/account"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// Store persists accounts and the transaction ledger in a SQL database.
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// OpenSQLite opens (or creates) a SQLite database file and ensures the schema.
// Writers are serialized through a single connection.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlstore: sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	return open(ctx, db, dialectSQLite)
}

// OpenPostgres connects to PostgreSQL using a lib/pq connection string.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return open(ctx, db, dialectPostgres)
}

func open(ctx context.Context, db *sql.DB, d dialect) (*Store, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", d, err)
	}

	s := &Store{db: db, dialect: d, now: time.Now}
	if err := s.initTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: init tables: %w", err)
	}
	return s, nil
}

func (s *Store) initTables(ctx context.Context) error {
	ledgerKey := "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	money := "TEXT"
	if s.dialect == dialectPostgres {
		ledgerKey = "seq BIGSERIAL PRIMARY KEY"
		money = "NUMERIC(15,2)"
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			phone_number TEXT PRIMARY KEY,
			pin_hash TEXT NOT NULL,
			account_number TEXT NOT NULL UNIQUE,
			balance ` + money + ` NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT 'English',
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			` + ledgerKey + `,
			id TEXT NOT NULL UNIQUE,
			reference TEXT NOT NULL,
			phone_number TEXT NOT NULL REFERENCES accounts(phone_number),
			type TEXT NOT NULL,
			amount ` + money + ` NOT NULL,
			counterparty TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_phone ON transactions(phone_number, created_at DESC)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.rebind(query), args...)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the dialect name.
func (s *Store) Driver() string {
	return s.dialect.String()
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, acct account.NewAccount) error {
	if !account.ValidPIN(acct.PIN) {
		return account.ErrInvalidPIN
	}
	if acct.OpeningBalance.IsNegative() {
		return account.ErrInvalidAmount
	}

	_, err := s.exec(ctx, s.db,
		`INSERT INTO accounts (phone_number, pin_hash, account_number, balance, name, language, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		acct.PhoneNumber, account.HashPIN(acct.PIN), acct.AccountNumber,
		acct.OpeningBalance.Round(2), acct.Name, string(account.English), toMillis(s.now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrAccountExists
		}
		return fmt.Errorf("sqlstore: create account: %w", err)
	}
	return nil
}

// GetBalance returns the current balance.
func (s *Store) GetBalance(ctx context.Context, phone string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.queryRow(ctx, s.db, `SELECT balance FROM accounts WHERE phone_number = ?`, phone).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, account.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("sqlstore: get balance: %w", err)
	}
	return balance, nil
}

// GetAccountNumber returns the account number.
func (s *Store) GetAccountNumber(ctx context.Context, phone string) (string, error) {
	var number string
	err := s.queryRow(ctx, s.db, `SELECT account_number FROM accounts WHERE phone_number = ?`, phone).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return "", account.ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlstore: get account number: %w", err)
	}
	return number, nil
}

// GetDetails returns name, account number and balance.
func (s *Store) GetDetails(ctx context.Context, phone string) (account.Details, error) {
	var d account.Details
	err := s.queryRow(ctx, s.db,
		`SELECT name, account_number, balance FROM accounts WHERE phone_number = ?`, phone,
	).Scan(&d.Name, &d.AccountNumber, &d.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Details{}, account.ErrAccountNotFound
	}
	if err != nil {
		return account.Details{}, fmt.Errorf("sqlstore: get details: %w", err)
	}
	return d, nil
}

// VerifyPIN checks pin against the stored digest. Unknown phones never verify.
func (s *Store) VerifyPIN(ctx context.Context, phone, pin string) (bool, error) {
	var hash string
	err := s.queryRow(ctx, s.db, `SELECT pin_hash FROM accounts WHERE phone_number = ?`, phone).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlstore: verify pin: %w", err)
	}
	return account.CheckPIN(hash, pin), nil
}

// RecordTransaction appends a ledger entry without touching the balance.
func (s *Store) RecordTransaction(ctx context.Context, phone string, typ account.TransactionType, amount decimal.Decimal, counterparty string) error {
	if !typ.Valid() {
		return account.ErrInvalidType
	}
	if err := account.ValidateAmount(amount); err != nil {
		return err
	}
	if _, err := s.GetAccountNumber(ctx, phone); err != nil {
		return err
	}
	return s.insertEntry(ctx, s.db, uuid.NewString(), phone, typ, amount, counterparty, s.now())
}

func (s *Store) insertEntry(ctx context.Context, q querier, ref, phone string, typ account.TransactionType, amount decimal.Decimal, counterparty string, at time.Time) error {
	_, err := s.exec(ctx, q,
		`INSERT INTO transactions (id, reference, phone_number, type, amount, counterparty, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), ref, phone, string(typ), amount, counterparty, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: insert ledger entry: %w", err)
	}
	return nil
}

// GetHistory returns up to limit entries, most recent first.
func (s *Store) GetHistory(ctx context.Context, phone string, limit int) ([]account.TransactionRecord, error) {
	if limit <= 0 {
		limit = -1
		if s.dialect == dialectPostgres {
			limit = 1 << 30
		}
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, reference, phone_number, type, amount, counterparty, created_at
		 FROM transactions
		 WHERE phone_number = ?
		 ORDER BY created_at DESC, seq DESC
		 LIMIT ?`), phone, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query history: %w", err)
	}
	defer rows.Close()

	var records []account.TransactionRecord
	for rows.Next() {
		var (
			r  account.TransactionRecord
			ts int64
		)
		if err := rows.Scan(&r.ID, &r.Reference, &r.PhoneNumber, &r.Type, &r.Amount, &r.Counterparty, &ts); err != nil {
			return nil, fmt.Errorf("sqlstore: scan history: %w", err)
		}
		r.Timestamp = fromMillis(ts)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterate history: %w", err)
	}
	return records, nil
}

// lockBalance reads a balance inside tx, taking a row lock on PostgreSQL.
func (s *Store) lockBalance(ctx context.Context, tx *sql.Tx, phone string) (decimal.Decimal, bool, error) {
	query := `SELECT balance FROM accounts WHERE phone_number = ?`
	if s.dialect == dialectPostgres {
		query += ` FOR UPDATE`
	}
	var balance decimal.Decimal
	err := s.queryRow(ctx, tx, query, phone).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return balance, true, nil
}

// Transfer moves amount from sender to recipient in one database transaction.
func (s *Store) Transfer(ctx context.Context, sender, recipient string, amount decimal.Decimal) (account.Receipt, error) {
	if err := account.ValidateAmount(amount); err != nil {
		return account.Receipt{}, err
	}
	if sender == recipient {
		return account.Receipt{}, account.ErrSameAccount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return account.Receipt{}, fmt.Errorf("sqlstore: begin transfer: %w", err)
	}
	defer tx.Rollback()

	phones := []string{sender, recipient}
	sort.Strings(phones)
	balances := make(map[string]decimal.Decimal, 2)
	for _, phone := range phones {
		bal, ok, err := s.lockBalance(ctx, tx, phone)
		if err != nil {
			return account.Receipt{}, fmt.Errorf("sqlstore: lock account: %w", err)
		}
		if !ok {
			if phone == sender {
				return account.Receipt{}, account.ErrAccountNotFound
			}
			return account.Receipt{}, account.ErrRecipientNotFound
		}
		balances[phone] = bal
	}

	if balances[sender].LessThan(amount) {
		return account.Receipt{}, account.ErrInsufficientFunds
	}
	senderBal := balances[sender].Sub(amount)
	recipientBal := balances[recipient].Add(amount)

	update := `UPDATE accounts SET balance = ? WHERE phone_number = ?`
	if _, err := s.exec(ctx, tx, update, senderBal, sender); err != nil {
		return account.Receipt{}, fmt.Errorf("sqlstore: debit sender: %w", err)
	}
	if _, err := s.exec(ctx, tx, update, recipientBal, recipient); err != nil {
		return account.Receipt{}, fmt.Errorf("sqlstore: credit recipient: %w", err)
	}

	ref := uuid.NewString()
	at := s.now().UTC()
	if err := s.insertEntry(ctx, tx, ref, sender, account.TransferOut, amount, recipient, at); err != nil {
		return account.Receipt{}, err
	}
	if err := s.insertEntry(ctx, tx, ref, recipient, account.TransferIn, amount, sender, at); err != nil {
		return account.Receipt{}, err
	}

	if err := tx.Commit(); err != nil {
		return account.Receipt{}, fmt.Errorf("sqlstore: commit transfer: %w", err)
	}

	return account.Receipt{
		Reference:        ref,
		Sender:           sender,
		Recipient:        recipient,
		Amount:           amount,
		SenderBalance:    senderBal,
		RecipientBalance: recipientBal,
		Timestamp:        at,
	}, nil
}

// Deposit credits amount and records a DEPOSIT entry.
func (s *Store) Deposit(ctx context.Context, phone string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := account.ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sqlstore: begin deposit: %w", err)
	}
	defer tx.Rollback()

	bal, ok, err := s.lockBalance(ctx, tx, phone)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sqlstore: lock account: %w", err)
	}
	if !ok {
		return decimal.Zero, account.ErrAccountNotFound
	}
	bal = bal.Add(amount)

	if _, err := s.exec(ctx, tx, `UPDATE accounts SET balance = ? WHERE phone_number = ?`, bal, phone); err != nil {
		return decimal.Zero, fmt.Errorf("sqlstore: credit account: %w", err)
	}
	if err := s.insertEntry(ctx, tx, uuid.NewString(), phone, account.Deposit, amount, "", s.now()); err != nil {
		return decimal.Zero, err
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("sqlstore: commit deposit: %w", err)
	}
	return bal, nil
}

// ChangePIN replaces the stored PIN digest.
func (s *Store) ChangePIN(ctx context.Context, phone, newPIN string) error {
	if !account.ValidPIN(newPIN) {
		return account.ErrInvalidPIN
	}
	return s.updateOne(ctx, `UPDATE accounts SET pin_hash = ? WHERE phone_number = ?`, account.HashPIN(newPIN), phone)
}

// SetLanguage stores the preferred language.
func (s *Store) SetLanguage(ctx context.Context, phone string, lang account.Language) error {
	return s.updateOne(ctx, `UPDATE accounts SET language = ? WHERE phone_number = ?`, string(lang), phone)
}

func (s *Store) updateOne(ctx context.Context, query string, value, phone string) error {
	res, err := s.exec(ctx, s.db, query, value, phone)
	if err != nil {
		return fmt.Errorf("sqlstore: update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: update account: %w", err)
	}
	if n == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}

// Language returns the stored language preference.
func (s *Store) Language(ctx context.Context, phone string) (account.Language, error) {
	var lang string
	err := s.queryRow(ctx, s.db, `SELECT language FROM accounts WHERE phone_number = ?`, phone).Scan(&lang)
	if errors.Is(err, sql.ErrNoRows) {
		return "", account.ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlstore: get language: %w", err)
	}
	return account.Language(lang), nil
}

var _ account.Store = (*Store)(nil)
