package storage

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a record rejected before it reached the store.
type ValidationError struct {
	Table  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Table, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func missing(table, field string) error {
	return &ValidationError{Table: table, Field: field, Reason: "required field is missing"}
}

func invalid(table, field, value string) error {
	return &ValidationError{Table: table, Field: field, Reason: fmt.Sprintf("invalid value %q", value)}
}

// IsConstraintViolation reports whether err came from a rejected write:
// a missing or invalid field, a dangling foreign key or a duplicate key.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) ||
		errors.Is(err, gorm.ErrForeignKeyViolated) ||
		errors.Is(err, gorm.ErrDuplicatedKey) ||
		errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
