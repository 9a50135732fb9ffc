package storage

import (
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImportSessionPatch lists the import session fields an update may change.
type ImportSessionPatch struct {
	Status          *ImportStatus
	RecordCount     *int
	ValidationNotes datatypes.JSONMap
}

func (p ImportSessionPatch) Columns() map[string]any {
	cols := map[string]any{}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.RecordCount != nil {
		cols["record_count"] = *p.RecordCount
	}
	if p.ValidationNotes != nil {
		cols["validation_notes"] = p.ValidationNotes
	}
	return cols
}

func (p ImportSessionPatch) Validate() error {
	switch {
	case p.Status != nil && !p.Status.Valid():
		return invalid("import_sessions", "status", string(*p.Status))
	case p.RecordCount != nil && *p.RecordCount < 0:
		return invalid("import_sessions", "record_count", fmt.Sprint(*p.RecordCount))
	}
	return nil
}

// ImportSessionRepository adds status tracking to the generic repository.
type ImportSessionRepository struct {
	*Repository[ImportSession, *ImportSession]
}

func NewImportSessionRepository(tx *gorm.DB) *ImportSessionRepository {
	return &ImportSessionRepository{NewRepository[ImportSession](tx)}
}

// UpdateStatus sets the session status. Non-empty notes replace the stored
// validation notes; they are not merged.
func (r *ImportSessionRepository) UpdateStatus(id string, status ImportStatus, notes datatypes.JSONMap) (*ImportSession, error) {
	patch := ImportSessionPatch{Status: &status}
	if len(notes) > 0 {
		patch.ValidationNotes = notes
	}
	return r.Update(id, patch)
}

// GetPending lists sessions still awaiting validation, oldest first.
func (r *ImportSessionRepository) GetPending() ([]ImportSession, error) {
	return r.List(&ImportSession{Status: ImportPending})
}

// GetBySourceFile returns the first session, in row order, imported from
// name, or nil when there is none.
func (r *ImportSessionRepository) GetBySourceFile(name string) (*ImportSession, error) {
	var s ImportSession
	err := r.db.Where("source_file = ?", name).Order(insertionOrder).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import session for %s: %w", name, err)
	}
	return &s, nil
}
