package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/certwatch/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var needKeyColumns = []clause.Column{
	{Name: "company_id"}, {Name: "employee_id"}, {Name: "formation_type_id"}, {Name: "expiry_date"},
}

// UpsertNeed inserts need unless a row with the same company, employee,
// formation and expiry exists. An existing OPEN row gets its scoring
// refreshed; PLANNED and CANCELLED rows are left alone. The stored row is
// returned together with whether it was created.
func (s *GormStore) UpsertNeed(ctx context.Context, need model.TrainingNeed) (stored model.TrainingNeed, created bool, err error) {
	defer func(start time.Time) { s.observe("upsert_need", start, err) }(time.Now())

	if need.CompanyID == "" || need.EmployeeID == "" || need.FormationTypeID == "" || need.ID == "" {
		return model.TrainingNeed{}, false, fmt.Errorf("%w: need is missing its key", ErrValidation)
	}
	row := toNeedRow(need)
	row.UpdatedAt = time.Now().UTC()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{Columns: needKeyColumns, DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			created = true
			return nil
		}

		byKey := func() *gorm.DB {
			return tx.Model(&trainingNeedRow{}).
				Where("company_id = ? AND employee_id = ? AND formation_type_id = ? AND expiry_date = ?",
					row.CompanyID, row.EmployeeID, row.FormationTypeID, row.ExpiryDate)
		}
		err := byKey().Where("status = ?", string(model.NeedOpen)).
			Updates(map[string]any{
				"certificate_id":    row.CertificateID,
				"days_until_expiry": row.DaysUntilExpiry,
				"priority":          row.Priority,
				"priority_reason":   row.PriorityReason,
				"updated_at":        row.UpdatedAt,
			}).Error
		if err != nil {
			return err
		}
		var existing trainingNeedRow
		if err := byKey().Take(&existing).Error; err != nil {
			return err
		}
		row = existing
		return nil
	})
	if err != nil {
		return model.TrainingNeed{}, false, fmt.Errorf("upsert need: %w", err)
	}
	return row.toModel(), created, nil
}

// CancelNeeds moves the listed OPEN needs of company to CANCELLED and
// returns how many changed.
func (s *GormStore) CancelNeeds(ctx context.Context, company model.CompanyID, ids []string) (n int, err error) {
	defer func(start time.Time) { s.observe("cancel_needs", start, err) }(time.Now())

	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&trainingNeedRow{}).
		Where("company_id = ? AND id IN ? AND status = ?", string(company), ids, string(model.NeedOpen)).
		Updates(map[string]any{"status": string(model.NeedCancelled), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return 0, fmt.Errorf("cancel needs: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}
