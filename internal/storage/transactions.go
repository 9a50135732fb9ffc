package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const bulkInsertBatchSize = 500

// TransactionPatch lists the transaction fields an update may change.
// SourceHash is not recomputed when the hashed fields change.
type TransactionPatch struct {
	Date        *time.Time
	Amount      *decimal.Decimal
	Description *string
	Category    *string
	Type        *TransactionType
	SourceHash  *string
	ExtraData   datatypes.JSONMap
}

func (p TransactionPatch) Columns() map[string]any {
	cols := map[string]any{}
	if p.Date != nil {
		cols["transaction_date"] = p.Date.UTC()
	}
	if p.Amount != nil {
		cols["amount"] = p.Amount.Round(2)
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.Category != nil {
		cols["category"] = *p.Category
	}
	if p.Type != nil {
		cols["transaction_type"] = *p.Type
	}
	if p.SourceHash != nil {
		cols["source_hash"] = *p.SourceHash
	}
	if p.ExtraData != nil {
		cols["extra_data"] = p.ExtraData
	}
	return cols
}

func (p TransactionPatch) Validate() error {
	switch {
	case p.Date != nil && p.Date.IsZero():
		return missing("transactions", "transaction_date")
	case p.Description != nil && *p.Description == "":
		return missing("transactions", "description")
	case p.Type != nil && !p.Type.Valid():
		return invalid("transactions", "transaction_type", string(*p.Type))
	}
	return nil
}

// TransactionRepository adds per-account queries and bulk inserts to the
// generic repository.
type TransactionRepository struct {
	*Repository[Transaction, *Transaction]
}

func NewTransactionRepository(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{NewRepository[Transaction](tx)}
}

// CreateBulk inserts records in the current unit of work. Records without
// a SourceHash get one computed from their own fields first. Nothing is
// persisted unless the enclosing scope commits.
func (r *TransactionRepository) CreateBulk(records []Transaction) ([]Transaction, error) {
	if len(records) == 0 {
		return nil, nil
	}
	for i := range records {
		if records[i].SourceHash == "" {
			records[i].SourceHash = records[i].CalculateHash()
		}
	}
	if err := r.db.Omit(clause.Associations).CreateInBatches(&records, bulkInsertBatchSize).Error; err != nil {
		return nil, fmt.Errorf("failed to create transactions: %w", err)
	}
	return records, nil
}

// GetByAccount returns the account's transactions, most recent first.
// A limit of zero or less returns all of them.
func (r *TransactionRepository) GetByAccount(accountID string, limit int) ([]Transaction, error) {
	q := r.db.Where("account_id = ?", accountID).Order("transaction_date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Transaction
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to get transactions for account %s: %w", accountID, err)
	}
	return out, nil
}

// GetByDateRange returns the account's transactions dated within
// [start, end], oldest first.
func (r *TransactionRepository) GetByDateRange(accountID string, start, end time.Time) ([]Transaction, error) {
	var out []Transaction
	err := r.inRange(accountID, start, end).Order("transaction_date").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for account %s: %w", accountID, err)
	}
	return out, nil
}

// FindDuplicates returns every transaction carrying hash. Matches are
// candidates only; nothing is merged or rejected.
func (r *TransactionRepository) FindDuplicates(hash string) ([]Transaction, error) {
	if hash == "" {
		return nil, nil
	}
	return r.List(&Transaction{SourceHash: hash})
}

// GetTotalByCategory sums amounts per category for the account over
// [start, end]. Categories without transactions in range are absent.
// Uncategorized transactions are summed under the empty string.
func (r *TransactionRepository) GetTotalByCategory(accountID string, start, end time.Time) (map[string]decimal.Decimal, error) {
	var rows []struct {
		Category string
		Total    decimal.Decimal
	}
	err := r.inRange(accountID, start, end).
		Select("COALESCE(category, '') AS category, SUM(amount) AS total").
		Group("COALESCE(category, '')").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to total transactions for account %s: %w", accountID, err)
	}
	totals := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.Category] = row.Total.Round(2)
	}
	return totals, nil
}

func (r *TransactionRepository) inRange(accountID string, start, end time.Time) *gorm.DB {
	return r.db.Model(&Transaction{}).
		Where("account_id = ?", accountID).
		Where("transaction_date >= ? AND transaction_date <= ?", start.UTC(), end.UTC())
}
