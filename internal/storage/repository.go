package storage

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is implemented by every persisted entity.
type Record interface {
	TableName() string
	GetID() string
}

// Patch is a typed partial update. Columns returns only the fields the
// caller set, keyed by column name. Validate rejects set fields that
// Create would also reject.
type Patch interface {
	Columns() map[string]any
	Validate() error
}

// insertionOrder keeps listings in the order rows were written.
const insertionOrder = "rowid"

// Repository implements CRUD for one entity kind on top of a unit of work.
type Repository[T any, PT interface {
	*T
	Record
}] struct {
	db *gorm.DB
}

// NewRepository binds a repository to tx, normally the handle passed to
// a WithSession callback.
func NewRepository[T any, PT interface {
	*T
	Record
}](tx *gorm.DB) *Repository[T, PT] {
	return &Repository[T, PT]{db: tx}
}

// Create inserts rec inside the current unit of work. The generated ID is
// set on rec before the scope commits.
func (r *Repository[T, PT]) Create(rec PT) (PT, error) {
	if err := r.db.Omit(clause.Associations).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", rec.TableName(), err)
	}
	return rec, nil
}

// Get returns the row with the given id, or nil when there is none.
func (r *Repository[T, PT]) Get(id string) (PT, error) {
	rec := PT(new(T))
	err := r.db.Take(rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", rec.TableName(), id, err)
	}
	return rec, nil
}

// List returns every row whose columns equal the non-zero fields of
// filter, in insertion order. A nil filter matches all rows.
func (r *Repository[T, PT]) List(filter PT) ([]T, error) {
	var out []T
	if err := r.where(filter).Order(insertionOrder).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", PT(new(T)).TableName(), err)
	}
	return out, nil
}

// Count applies the same matching as List.
func (r *Repository[T, PT]) Count(filter PT) (int64, error) {
	var n int64
	if err := r.where(filter).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", PT(new(T)).TableName(), err)
	}
	return n, nil
}

// Update applies patch to the row with the given id and returns the
// refreshed row, or nil when there is none. A nil patch changes nothing.
// updated_at is maintained by the store when the entity has one.
func (r *Repository[T, PT]) Update(id string, patch Patch) (PT, error) {
	if patch != nil {
		if err := patch.Validate(); err != nil {
			return nil, err
		}
	}
	rec, err := r.Get(id)
	if err != nil || rec == nil {
		return nil, err
	}
	if patch == nil {
		return rec, nil
	}
	cols := patch.Columns()
	if len(cols) > 0 {
		if err := r.db.Model(rec).Omit(clause.Associations).Updates(cols).Error; err != nil {
			return nil, fmt.Errorf("failed to update %s %s: %w", rec.TableName(), id, err)
		}
	}
	return r.Get(id)
}

// Delete removes the row with the given id. Rows owned by it are removed
// by the store's cascading foreign keys.
func (r *Repository[T, PT]) Delete(id string) (bool, error) {
	rec := PT(new(T))
	res := r.db.Delete(rec, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete %s %s: %w", rec.TableName(), id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository[T, PT]) where(filter PT) *gorm.DB {
	q := r.db.Model(PT(new(T)))
	if filter != nil {
		q = q.Where(filter)
	}
	return q
}
