package sqlstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"kazichain-ussd/pkg/account"

	"github.com/shopspring/decimal"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ussd.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s account.Store) {
	t.Helper()
	ctx := context.Background()
	if err := account.SeedDemo(ctx, s); err != nil {
		t.Fatalf("SeedDemo failed: %v", err)
	}
	err := s.CreateAccount(ctx, account.NewAccount{
		PhoneNumber:    "+254700000001",
		PIN:            "5678",
		AccountNumber:  "ACC1002",
		Name:           "Jane",
		OpeningBalance: decimal.NewFromInt(250),
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: dialectPostgres}
	got := pg.rebind(`UPDATE accounts SET balance = ? WHERE phone_number = ?`)
	want := `UPDATE accounts SET balance = $1 WHERE phone_number = $2`
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	lite := &Store{dialect: dialectSQLite}
	if q := lite.rebind("SELECT ?"); q != "SELECT ?" {
		t.Errorf("Expected sqlite query unchanged, got %q", q)
	}
}

func TestSQLite_SeedIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seed(t, s)

	if err := account.SeedDemo(ctx, s); err != nil {
		t.Fatalf("Second SeedDemo failed: %v", err)
	}
	if err := s.CreateAccount(ctx, account.DemoAccount); !errors.Is(err, account.ErrAccountExists) {
		t.Errorf("Expected ErrAccountExists, got %v", err)
	}

	d, err := s.GetDetails(ctx, account.DemoAccount.PhoneNumber)
	if err != nil {
		t.Fatalf("GetDetails failed: %v", err)
	}
	if d.Name != "Demo User" || d.AccountNumber != "ACC1001" {
		t.Errorf("Unexpected details: %+v", d)
	}
	if !d.Balance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Expected 10000, got %s", d.Balance)
	}
}

func TestSQLite_VerifyPIN(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seed(t, s)

	if ok, err := s.VerifyPIN(ctx, "+254758750620", "1234"); err != nil || !ok {
		t.Errorf("Expected PIN to verify, got %v %v", ok, err)
	}
	if ok, _ := s.VerifyPIN(ctx, "+254758750620", "4321"); ok {
		t.Error("Expected wrong PIN to fail")
	}
	if ok, err := s.VerifyPIN(ctx, "+254799999999", "1234"); err != nil || ok {
		t.Errorf("Expected unknown phone to fail quietly, got %v %v", ok, err)
	}
}

func TestSQLite_Transfer(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seed(t, s)

	amount := decimal.RequireFromString("500.50")
	receipt, err := s.Transfer(ctx, "+254758750620", "+254700000001", amount)
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if !receipt.SenderBalance.Equal(decimal.RequireFromString("9499.50")) {
		t.Errorf("Unexpected sender balance %s", receipt.SenderBalance)
	}

	bal, _ := s.GetBalance(ctx, "+254700000001")
	if !bal.Equal(decimal.RequireFromString("750.50")) {
		t.Errorf("Expected 750.50, got %s", bal)
	}

	out, err := s.GetHistory(ctx, "+254758750620", 5)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(out) != 1 || out[0].Type != account.TransferOut || !out[0].Amount.Equal(amount) {
		t.Fatalf("Unexpected sender history: %+v", out)
	}
	in, _ := s.GetHistory(ctx, "+254700000001", 5)
	if len(in) != 1 || in[0].Reference != out[0].Reference {
		t.Errorf("Expected paired TRANSFER_IN sharing reference, got %+v", in)
	}
}

func TestSQLite_TransferErrors(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seed(t, s)

	if _, err := s.Transfer(ctx, "+254700000001", "+254758750620", decimal.NewFromInt(251)); !errors.Is(err, account.ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := s.Transfer(ctx, "+254758750620", "+254711111111", decimal.NewFromInt(1)); !errors.Is(err, account.ErrRecipientNotFound) {
		t.Errorf("Expected ErrRecipientNotFound, got %v", err)
	}
	if _, err := s.Transfer(ctx, "+254758750620", "+254758750620", decimal.NewFromInt(1)); !errors.Is(err, account.ErrSameAccount) {
		t.Errorf("Expected ErrSameAccount, got %v", err)
	}

	bal, _ := s.GetBalance(ctx, "+254700000001")
	if !bal.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Expected balance unchanged, got %s", bal)
	}
	if h, _ := s.GetHistory(ctx, "+254758750620", 5); len(h) != 0 {
		t.Errorf("Expected empty ledger after failed transfers, got %d entries", len(h))
	}
}

func TestSQLite_ConcurrentTransfers(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seed(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transfer(ctx, "+254700000001", "+254758750620", decimal.NewFromInt(50))
			if err != nil && !errors.Is(err, account.ErrInsufficientFunds) {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	a, _ := s.GetBalance(ctx, "+254700000001")
	b, _ := s.GetBalance(ctx, "+254758750620")
	if a.IsNegative() {
		t.Fatalf("Balance went negative: %s", a)
	}
	if !a.Equal(decimal.Zero) {
		t.Errorf("Expected 250 drained to 0, got %s", a)
	}
	if total := a.Add(b); !total.Equal(decimal.NewFromInt(10250)) {
		t.Errorf("Expected total conserved, got %s", total)
	}
}

func TestSQLite_HistoryLimitAndOrder(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seed(t, s)

	for i := 1; i <= 6; i++ {
		if _, err := s.Deposit(ctx, "+254700000001", decimal.NewFromInt(int64(i))); err != nil {
			t.Fatalf("Deposit failed: %v", err)
		}
	}
	if err := s.RecordTransaction(ctx, "+254700000001", account.Withdrawal, decimal.NewFromInt(99), ""); err != nil {
		t.Fatalf("RecordTransaction failed: %v", err)
	}

	h, err := s.GetHistory(ctx, "+254700000001", 5)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(h) != 5 {
		t.Fatalf("Expected 5 entries, got %d", len(h))
	}
	if h[0].Type != account.Withdrawal {
		t.Errorf("Expected newest entry first, got %s", h[0].Type)
	}
	if !h[1].Amount.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected second entry to be the last deposit, got %s", h[1].Amount)
	}

	bal, _ := s.GetBalance(ctx, "+254700000001")
	if !bal.Equal(decimal.NewFromInt(271)) {
		t.Errorf("Expected 271, got %s", bal)
	}
}

func TestSQLite_Settings(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seed(t, s)

	if err := s.ChangePIN(ctx, "+254758750620", "0000"); err != nil {
		t.Fatalf("ChangePIN failed: %v", err)
	}
	if ok, _ := s.VerifyPIN(ctx, "+254758750620", "0000"); !ok {
		t.Error("Expected new PIN to verify")
	}
	if err := s.ChangePIN(ctx, "+254799999999", "0000"); !errors.Is(err, account.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}

	if err := s.SetLanguage(ctx, "+254758750620", account.French); err != nil {
		t.Fatalf("SetLanguage failed: %v", err)
	}
	lang, err := s.Language(ctx, "+254758750620")
	if err != nil {
		t.Fatalf("Language failed: %v", err)
	}
	if lang != account.French {
		t.Errorf("Expected French, got %s", lang)
	}
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ussd.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	seed(t, s)
	s.Close()

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()

	if _, err := s.GetBalance(ctx, "+254700000001"); err != nil {
		t.Errorf("Expected data to survive reopen, got %v", err)
	}
}

func TestPostgres_Transfer(t *testing.T) {
	dsn := os.Getenv("KAZICHAIN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("KAZICHAIN_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	s, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres failed: %v", err)
	}
	defer s.Close()

	for _, q := range []string{`DELETE FROM transactions`, `DELETE FROM accounts`} {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			t.Fatalf("cleanup failed: %v", err)
		}
	}
	seed(t, s)

	if _, err := s.Transfer(ctx, "+254758750620", "+254700000001", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	bal, _ := s.GetBalance(ctx, "+254700000001")
	if !bal.Equal(decimal.NewFromInt(350)) {
		t.Errorf("Expected 350, got %s", bal)
	}
}
