package db

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemberImport is one row of a member upsert request.
type MemberImport struct {
	UID      string
	Name     string
	Phone    string
	IsActive bool
}

// BulkUpsertMembers creates or refreshes members of a project in one
// transaction. Phones are normalized first; the backing customer row is
// created on demand and its name refreshed. An existing (project, customer)
// pair is updated in place, which also reactivates members that were cleared
// earlier. Returns the number of rows written.
func BulkUpsertMembers(conn *gorm.DB, projectID uuid.UUID, items []MemberImport) (int, error) {
	if len(items) == 0 {
		return 0, errors.New("no members given")
	}
	seen := make(map[[2]string]struct{}, len(items))
	for i := range items {
		items[i].Phone = NormalizePhone(items[i].Phone)
		if items[i].Phone == "" {
			return 0, fmt.Errorf("member %q has no usable phone number", items[i].UID)
		}
		key := [2]string{items[i].Phone, items[i].UID}
		if _, dup := seen[key]; dup {
			return 0, fmt.Errorf("duplicate member in request: %s / %s", items[i].UID, items[i].Phone)
		}
		seen[key] = struct{}{}
	}

	written := 0
	err := conn.Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			customer := Customer{Phone: item.Phone, Name: item.Name}
			if err := tx.Where(Customer{Phone: item.Phone}).FirstOrCreate(&customer).Error; err != nil {
				return fmt.Errorf("upsert customer %s: %w", item.Phone, err)
			}
			if item.Name != "" && customer.Name != item.Name {
				if err := tx.Model(&customer).Update("name", item.Name).Error; err != nil {
					return fmt.Errorf("rename customer %s: %w", item.Phone, err)
				}
			}

			member := ProjectMember{
				ProjectID:     projectID,
				CustomerPhone: item.Phone,
				UID:           item.UID,
				Name:          item.Name,
				Phone:         item.Phone,
				IsActive:      item.IsActive,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "project_id"}, {Name: "customer_phone"}},
				DoUpdates: clause.AssignmentColumns([]string{"uid", "name", "phone", "is_active", "updated_at"}),
			}).Create(&member).Error
			if err != nil {
				return fmt.Errorf("upsert member %s: %w", item.UID, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// ClearProjectMembers deactivates the whole pool of a project. Member rows are
// kept so winner history and re-imports stay consistent.
func ClearProjectMembers(conn *gorm.DB, projectID uuid.UUID) (int64, error) {
	result := conn.Model(&ProjectMember{}).
		Where("project_id = ? AND is_active = ?", projectID, true).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

// IsUniqueViolation reports whether err is a unique-constraint violation from
// either the translated GORM error or the raw Postgres error code.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
