package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AccountType is the kind of financial account.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountInvestment AccountType = "investment"
	AccountCredit     AccountType = "credit"
	AccountLoan       AccountType = "loan"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountInvestment, AccountCredit, AccountLoan:
		return true
	}
	return false
}

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	Debit  TransactionType = "debit"
	Credit TransactionType = "credit"
)

// Valid reports whether t is Debit or Credit.
func (t TransactionType) Valid() bool {
	return t == Debit || t == Credit
}

// ImportStatus tracks an import session through validation.
// Transitions are up to the caller; only the values are checked.
type ImportStatus string

const (
	ImportPending   ImportStatus = "pending"
	ImportValidated ImportStatus = "validated"
	ImportCompleted ImportStatus = "completed"
	ImportFailed    ImportStatus = "failed"
)

// Valid reports whether s is a known import status.
func (s ImportStatus) Valid() bool {
	switch s {
	case ImportPending, ImportValidated, ImportCompleted, ImportFailed:
		return true
	}
	return false
}

// Account is a financial account tracked by the user.
type Account struct {
	ID           string      `gorm:"primaryKey;size:36"`
	Name         string      `gorm:"size:100;not null"`
	Institution  string      `gorm:"size:50;not null;index"`
	Type         AccountType `gorm:"column:account_type;size:20;not null"`
	MaskedNumber string      `gorm:"column:account_number_masked;size:20"` // last 4 digits only
	Active       *bool       `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time   `gorm:"not null"`
	UpdatedAt    time.Time   `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

func (a *Account) GetID() string { return a.ID }

// IsActive reports the soft-delete flag. An unsaved account with no flag
// set counts as active.
func (a *Account) IsActive() bool {
	return a.Active == nil || *a.Active
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return a.validate()
}

func (a *Account) validate() error {
	switch {
	case a.Name == "":
		return missing("accounts", "name")
	case a.Institution == "":
		return missing("accounts", "institution")
	case !a.Type.Valid():
		return invalid("accounts", "account_type", string(a.Type))
	}
	return nil
}

func (a Account) String() string {
	return fmt.Sprintf("Account(name=%q, institution=%q)", a.Name, a.Institution)
}

// Transaction is a single posted movement on an account, owned by both
// the account and the import session that produced it.
type Transaction struct {
	ID              string            `gorm:"primaryKey;size:36"`
	AccountID       string            `gorm:"size:36;not null;index"`
	Date            time.Time         `gorm:"column:transaction_date;not null;index"`
	Amount          decimal.Decimal   `gorm:"type:decimal(12,2);not null"`
	Description     string            `gorm:"type:text;not null"`
	Category        string            `gorm:"size:50"`
	Type            TransactionType   `gorm:"column:transaction_type;size:10;not null"`
	ImportSessionID string            `gorm:"size:36;not null;index"`
	SourceHash      string            `gorm:"size:64;index"`
	ExtraData       datatypes.JSONMap `gorm:"column:extra_data"`
	CreatedAt       time.Time         `gorm:"not null"`
	UpdatedAt       time.Time         `gorm:"not null"`

	// Only used to declare the cascading foreign keys; never loaded.
	Account       *Account       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ImportSession *ImportSession `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Transaction) TableName() string { return "transactions" }

func (t *Transaction) GetID() string { return t.ID }

// CalculateHash derives the duplicate-detection key from the account,
// date, amount and description. The result is a 64 character hex string.
func (t *Transaction) CalculateHash() string {
	input := fmt.Sprintf("%s:%s:%s:%s",
		t.AccountID,
		t.Date.UTC().Format(time.RFC3339Nano),
		t.Amount.StringFixed(2),
		t.Description,
	)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return t.validate()
}

func (t *Transaction) BeforeSave(tx *gorm.DB) error {
	t.Date = t.Date.UTC()
	t.Amount = t.Amount.Round(2)
	return nil
}

func (t *Transaction) validate() error {
	switch {
	case t.AccountID == "":
		return missing("transactions", "account_id")
	case t.ImportSessionID == "":
		return missing("transactions", "import_session_id")
	case t.Date.IsZero():
		return missing("transactions", "transaction_date")
	case t.Description == "":
		return missing("transactions", "description")
	case !t.Type.Valid():
		return invalid("transactions", "transaction_type", string(t.Type))
	}
	return nil
}

func (t Transaction) String() string {
	desc := t.Description
	if len(desc) > 30 {
		desc = desc[:30] + "..."
	}
	return fmt.Sprintf("Transaction(date=%s, amount=%s, description=%q)",
		t.Date.Format("2006-01-02"), t.Amount.StringFixed(2), desc)
}

// ImportSession records one ingestion run for lineage and audit.
type ImportSession struct {
	ID              string            `gorm:"primaryKey;size:36"`
	SourceFile      string            `gorm:"size:255;not null;index"`
	Institution     string            `gorm:"size:50;not null"`
	ImportedAt      time.Time         `gorm:"column:import_date;not null"`
	Status          ImportStatus      `gorm:"size:20;not null;default:pending;index"`
	RecordCount     int               `gorm:"default:0"`
	ValidationNotes datatypes.JSONMap `gorm:"column:validation_notes"`
	CreatedAt       time.Time         `gorm:"not null"`
}

func (ImportSession) TableName() string { return "import_sessions" }

func (s *ImportSession) GetID() string { return s.ID }

func (s *ImportSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.ImportedAt.IsZero() {
		s.ImportedAt = tx.NowFunc()
	}
	if s.Status == "" {
		s.Status = ImportPending
	}
	return s.validate()
}

func (s *ImportSession) validate() error {
	switch {
	case s.SourceFile == "":
		return missing("import_sessions", "source_file")
	case s.Institution == "":
		return missing("import_sessions", "institution")
	case !s.Status.Valid():
		return invalid("import_sessions", "status", string(s.Status))
	}
	return nil
}

func (s ImportSession) String() string {
	return fmt.Sprintf("ImportSession(file=%q, status=%q)", s.SourceFile, s.Status)
}
