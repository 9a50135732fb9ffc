package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// fixture is an account and an import session to hang transactions on.
type fixture struct {
	tx      *gorm.DB
	account *Account
	session *ImportSession
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	tx := newTestTx(t)
	return fixture{tx: tx, account: newAccount(t, tx, "Test Account", "Test Bank"), session: newSession(t, tx, "test.csv")}
}

func (f fixture) record(date time.Time, amount, description, category string) Transaction {
	return Transaction{
		AccountID:       f.account.ID,
		ImportSessionID: f.session.ID,
		Date:            date,
		Amount:          decimal.RequireFromString(amount),
		Description:     description,
		Category:        category,
		Type:            Debit,
	}
}

func (f fixture) create(t *testing.T, records ...Transaction) []Transaction {
	t.Helper()
	created, err := NewTransactionRepository(f.tx).CreateBulk(records)
	if err != nil {
		t.Fatalf("failed to create transactions: %v", err)
	}
	return created
}

func transactionDays(txs []Transaction) []int {
	days := make([]int, len(txs))
	for i, tx := range txs {
		days[i] = tx.Date.Day()
	}
	return days
}

func TestTransactionCreateAndGet(t *testing.T) {
	f := newFixture(t)
	repo := NewTransactionRepository(f.tx)

	rec := f.record(day(15), "-42.50", "Coffee Shop", "Food")
	rec.SourceHash = rec.CalculateHash()
	rec.ExtraData = datatypes.JSONMap{"memo": "latte", "tags": []any{"coffee"}}

	created, err := repo.Create(&rec)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := repo.Get(created.ID)
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if diff := cmp.Diff(created, got, cmpopts.IgnoreFields(Transaction{}, "CreatedAt", "UpdatedAt")); diff != "" {
		t.Errorf("Get() mismatch (-created +got):\n%s", diff)
	}
	if !got.Amount.Equal(decimal.RequireFromString("-42.5")) {
		t.Errorf("Amount = %s, want -42.50", got.Amount)
	}
}

func TestTransactionAmountRounding(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, f.record(day(1), "10.005", "Rounded", ""))

	got, err := NewTransactionRepository(f.tx).Get(created[0].ID)
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if want := decimal.RequireFromString("10.01"); !got.Amount.Equal(want) {
		t.Errorf("Amount = %s, want %s", got.Amount, want)
	}
}

func TestTransactionCreateRequiresParents(t *testing.T) {
	f := newFixture(t)
	repo := NewTransactionRepository(f.tx)

	tests := []struct {
		name   string
		mutate func(*Transaction)
	}{
		{"unknown account", func(tx *Transaction) { tx.AccountID = "no-such-account" }},
		{"unknown import session", func(tx *Transaction) { tx.ImportSessionID = "no-such-session" }},
		{"missing description", func(tx *Transaction) { tx.Description = "" }},
		{"missing account", func(tx *Transaction) { tx.AccountID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.record(day(1), "1.00", "Orphan", "")
			tt.mutate(&rec)
			_, err := repo.Create(&rec)
			if !IsConstraintViolation(err) {
				t.Fatalf("expected constraint violation, got %v", err)
			}
		})
	}

	if n, _ := repo.Count(nil); n != 0 {
		t.Errorf("expected no transactions stored, got %d", n)
	}
}

func TestCreateBulk(t *testing.T) {
	f := newFixture(t)

	var records []Transaction
	for i := 0; i < 5; i++ {
		records = append(records, f.record(day(i+1), fmt.Sprintf("%d.00", 100+i), fmt.Sprintf("Transaction %d", i), "Test"))
	}
	preset := "feedface"
	records[4].SourceHash = preset

	created := f.create(t, records...)
	if len(created) != 5 {
		t.Fatalf("expected 5 transactions, got %d", len(created))
	}

	repo := NewTransactionRepository(f.tx)
	for i, c := range created {
		got, err := repo.Get(c.ID)
		if err != nil || got == nil {
			t.Fatalf("Get(%s) = %v, %v", c.ID, got, err)
		}
		if got.Description != fmt.Sprintf("Transaction %d", i) {
			t.Errorf("Description = %q, want Transaction %d", got.Description, i)
		}
		if got.SourceHash == "" {
			t.Errorf("transaction %d has no source hash", i)
		}
	}

	if created[4].SourceHash != preset {
		t.Errorf("caller supplied hash replaced: %q", created[4].SourceHash)
	}
	if want := records[0].CalculateHash(); created[0].SourceHash != want {
		t.Errorf("SourceHash = %q, want %q", created[0].SourceHash, want)
	}

	empty, err := repo.CreateBulk(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("CreateBulk(nil) = %v, %v; want empty", empty, err)
	}
}

func TestCreateBulkIsAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var accountID, sessionID string
	err := db.WithSession(ctx, func(tx *gorm.DB) error {
		accountID = newAccount(t, tx, "Test Account", "Test Bank").ID
		sessionID = newSession(t, tx, "bulk.csv").ID
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	batch := func(descriptions ...string) []Transaction {
		var out []Transaction
		for i, d := range descriptions {
			out = append(out, Transaction{
				AccountID:       accountID,
				ImportSessionID: sessionID,
				Date:            day(i + 1),
				Amount:          decimal.NewFromInt(int64(i + 1)),
				Description:     d,
				Type:            Credit,
			})
		}
		return out
	}

	// A bad record aborts the whole batch.
	err = db.WithSession(ctx, func(tx *gorm.DB) error {
		_, err := NewTransactionRepository(tx).CreateBulk(batch("one", "two", ""))
		return err
	})
	if !IsConstraintViolation(err) {
		t.Fatalf("expected constraint violation, got %v", err)
	}

	// A scope that fails after the insert discards it too.
	errLater := errors.New("later failure")
	err = db.WithSession(ctx, func(tx *gorm.DB) error {
		if _, err := NewTransactionRepository(tx).CreateBulk(batch("one", "two", "three")); err != nil {
			return err
		}
		return errLater
	})
	if !errors.Is(err, errLater) {
		t.Fatalf("expected original error, got %v", err)
	}

	err = db.WithSession(ctx, func(tx *gorm.DB) error {
		n, err := NewTransactionRepository(tx).Count(nil)
		if err != nil {
			return err
		}
		if n != 0 {
			t.Errorf("expected no transactions, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGetByAccount(t *testing.T) {
	f := newFixture(t)
	other := newAccount(t, f.tx, "Other", "Other Bank")

	var records []Transaction
	for _, d := range []int{3, 1, 10, 7, 5, 2, 9, 4, 8, 6} {
		records = append(records, f.record(day(d), "1.00", fmt.Sprintf("Day %d", d), ""))
	}
	stray := f.record(day(11), "1.00", "Other account", "")
	stray.AccountID = other.ID
	f.create(t, append(records, stray)...)

	repo := NewTransactionRepository(f.tx)
	all, err := repo.GetByAccount(f.account.ID, 0)
	if err != nil {
		t.Fatalf("GetByAccount() error = %v", err)
	}
	if diff := cmp.Diff([]int{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, transactionDays(all)); diff != "" {
		t.Errorf("GetByAccount() order mismatch (-want +got):\n%s", diff)
	}

	limited, err := repo.GetByAccount(f.account.ID, 5)
	if err != nil {
		t.Fatalf("GetByAccount(limit) error = %v", err)
	}
	if diff := cmp.Diff([]int{10, 9, 8, 7, 6}, transactionDays(limited)); diff != "" {
		t.Errorf("GetByAccount(limit) mismatch (-want +got):\n%s", diff)
	}
}

func TestGetByDateRange(t *testing.T) {
	f := newFixture(t)
	var records []Transaction
	for _, d := range []int{25, 5, 15, 10, 20} {
		records = append(records, f.record(day(d), "1.00", fmt.Sprintf("Day %d", d), ""))
	}
	f.create(t, records...)

	got, err := NewTransactionRepository(f.tx).GetByDateRange(f.account.ID, day(10), day(20))
	if err != nil {
		t.Fatalf("GetByDateRange() error = %v", err)
	}
	if diff := cmp.Diff([]int{10, 15, 20}, transactionDays(got)); diff != "" {
		t.Errorf("GetByDateRange() mismatch (-want +got):\n%s", diff)
	}

	// Bounds given in another zone denote the same instants.
	est := time.FixedZone("EST", -5*3600)
	got, err = NewTransactionRepository(f.tx).GetByDateRange(f.account.ID, day(10).In(est), day(20).In(est))
	if err != nil {
		t.Fatalf("GetByDateRange() error = %v", err)
	}
	if diff := cmp.Diff([]int{10, 15, 20}, transactionDays(got)); diff != "" {
		t.Errorf("GetByDateRange() with zoned bounds mismatch (-want +got):\n%s", diff)
	}
}

func TestFindDuplicates(t *testing.T) {
	f := newFixture(t)
	first := f.record(day(15), "50.00", "Duplicate", "")
	second := f.record(day(15), "50.00", "Duplicate", "")
	second.ImportSessionID = newSession(t, f.tx, "second.csv").ID
	unique := f.record(day(16), "50.00", "Unique", "")

	created := f.create(t, first, second, unique)
	if created[0].SourceHash != created[1].SourceHash {
		t.Fatalf("expected identical hashes, got %q and %q", created[0].SourceHash, created[1].SourceHash)
	}

	repo := NewTransactionRepository(f.tx)
	dups, err := repo.FindDuplicates(created[0].SourceHash)
	if err != nil {
		t.Fatalf("FindDuplicates() error = %v", err)
	}
	var ids []string
	for _, d := range dups {
		ids = append(ids, d.ID)
	}
	if diff := cmp.Diff([]string{created[0].ID, created[1].ID}, ids); diff != "" {
		t.Errorf("FindDuplicates() mismatch (-want +got):\n%s", diff)
	}

	none, err := repo.FindDuplicates("")
	if err != nil || len(none) != 0 {
		t.Errorf("FindDuplicates(\"\") = %v, %v; want empty", none, err)
	}
}

func TestGetTotalByCategory(t *testing.T) {
	f := newFixture(t)
	f.create(t,
		f.record(day(10), "50.00", "Groceries", "Food"),
		f.record(day(11), "30.00", "Restaurant", "Food"),
		f.record(day(12), "100.00", "Gas", "Transport"),
		f.record(day(13), "25.00", "Parking", "Transport"),
		f.record(day(14), "75.00", "Movies", "Entertainment"),
		f.record(day(25), "999.00", "Out of range", "Travel"),
	)

	totals, err := NewTransactionRepository(f.tx).GetTotalByCategory(f.account.ID, day(1), day(20))
	if err != nil {
		t.Fatalf("GetTotalByCategory() error = %v", err)
	}
	want := map[string]decimal.Decimal{
		"Food":          decimal.RequireFromString("80.0"),
		"Transport":     decimal.RequireFromString("125.0"),
		"Entertainment": decimal.RequireFromString("75.0"),
	}
	if diff := cmp.Diff(want, totals); diff != "" {
		t.Errorf("GetTotalByCategory() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := totals["Travel"]; ok {
		t.Error("category outside the range should be absent")
	}
}

func TestGetTotalByCategoryFractional(t *testing.T) {
	f := newFixture(t)
	f.create(t,
		f.record(day(1), "0.10", "a", "Food"),
		f.record(day(2), "0.20", "b", "Food"),
		f.record(day(3), "-12.34", "refund", ""),
	)

	totals, err := NewTransactionRepository(f.tx).GetTotalByCategory(f.account.ID, day(1), day(31))
	if err != nil {
		t.Fatalf("GetTotalByCategory() error = %v", err)
	}
	want := map[string]decimal.Decimal{
		"Food": decimal.RequireFromString("0.30"),
		"":     decimal.RequireFromString("-12.34"),
	}
	if diff := cmp.Diff(want, totals); diff != "" {
		t.Errorf("GetTotalByCategory() mismatch (-want +got):\n%s", diff)
	}
}

func TestTransactionUpdateKeepsHash(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, f.record(day(1), "9.99", "Typo", "Misc"))[0]

	repo := NewTransactionRepository(f.tx)
	updated, err := repo.Update(created.ID, TransactionPatch{
		Description: Ptr("Fixed"),
		Category:    Ptr("Food"),
		ExtraData:   datatypes.JSONMap{"corrected": "yes"},
	})
	if err != nil || updated == nil {
		t.Fatalf("Update() = %v, %v", updated, err)
	}
	if updated.Description != "Fixed" || updated.Category != "Food" {
		t.Errorf("patch not applied: %+v", updated)
	}
	if updated.ExtraData["corrected"] != "yes" {
		t.Errorf("ExtraData = %v", updated.ExtraData)
	}
	if updated.SourceHash != created.SourceHash {
		t.Errorf("hash changed on edit: %q -> %q", created.SourceHash, updated.SourceHash)
	}
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	other := newSession(t, f.tx, "other.csv")

	viaOther := f.record(day(2), "2.00", "Second import", "")
	viaOther.ImportSessionID = other.ID
	f.create(t, f.record(day(1), "1.00", "First import", ""), viaOther)

	txRepo := NewTransactionRepository(f.tx)

	deleted, err := NewImportSessionRepository(f.tx).Delete(other.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete(session) = %v, %v", deleted, err)
	}
	if n, _ := txRepo.Count(&Transaction{ImportSessionID: other.ID}); n != 0 {
		t.Errorf("expected session transactions to be gone, got %d", n)
	}
	if n, _ := txRepo.Count(nil); n != 1 {
		t.Errorf("expected 1 remaining transaction, got %d", n)
	}

	deleted, err = NewAccountRepository(f.tx).Delete(f.account.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete(account) = %v, %v", deleted, err)
	}
	if n, _ := txRepo.Count(&Transaction{AccountID: f.account.ID}); n != 0 {
		t.Errorf("expected account transactions to be gone, got %d", n)
	}
}
