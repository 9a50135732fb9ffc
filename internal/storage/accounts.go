package storage

import "gorm.io/gorm"

// AccountPatch lists the account fields an update may change. Nil fields
// are left untouched.
type AccountPatch struct {
	Name         *string
	Institution  *string
	Type         *AccountType
	MaskedNumber *string
	Active       *bool
}

func (p AccountPatch) Columns() map[string]any {
	cols := map[string]any{}
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Institution != nil {
		cols["institution"] = *p.Institution
	}
	if p.Type != nil {
		cols["account_type"] = *p.Type
	}
	if p.MaskedNumber != nil {
		cols["account_number_masked"] = *p.MaskedNumber
	}
	if p.Active != nil {
		cols["is_active"] = *p.Active
	}
	return cols
}

func (p AccountPatch) Validate() error {
	switch {
	case p.Name != nil && *p.Name == "":
		return missing("accounts", "name")
	case p.Institution != nil && *p.Institution == "":
		return missing("accounts", "institution")
	case p.Type != nil && !p.Type.Valid():
		return invalid("accounts", "account_type", string(*p.Type))
	}
	return nil
}

// AccountRepository adds account lookups to the generic repository.
type AccountRepository struct {
	*Repository[Account, *Account]
}

func NewAccountRepository(tx *gorm.DB) *AccountRepository {
	return &AccountRepository{NewRepository[Account](tx)}
}

// SoftDelete marks the account inactive. The row stays retrievable by Get.
func (r *AccountRepository) SoftDelete(id string) (*Account, error) {
	return r.Update(id, AccountPatch{Active: Ptr(false)})
}

// GetActive lists accounts that have not been soft deleted.
func (r *AccountRepository) GetActive() ([]Account, error) {
	return r.List(&Account{Active: Ptr(true)})
}

func (r *AccountRepository) FindByInstitution(institution string) ([]Account, error) {
	if institution == "" {
		// institution is required, so no row can match
		return nil, nil
	}
	return r.List(&Account{Institution: institution})
}

// Ptr returns a pointer to v, for filling patches and optional fields.
func Ptr[V any](v V) *V {
	return &v
}
