package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/certwatch/internal/domain/model"
	"gorm.io/gorm/clause"
)

// The Save helpers write reference data owned by the surrounding CRUD
// system. Existing rows with the same primary key are overwritten.

// SaveCompany creates or renames a tenant.
func (s *GormStore) SaveCompany(ctx context.Context, id model.CompanyID, name string) error {
	row := companyRow{ID: string(id), Name: name, CreatedAt: time.Now().UTC()}
	return s.upsert(ctx, "save_company", &row)
}

// SaveEmployees writes employees.
func (s *GormStore) SaveEmployees(ctx context.Context, employees []model.Employee) error {
	if len(employees) == 0 {
		return nil
	}
	rows := make([]employeeRow, 0, len(employees))
	for _, e := range employees {
		rows = append(rows, toEmployeeRow(e))
	}
	return s.upsert(ctx, "save_employees", &rows)
}

// SaveFormationTypes writes formation types.
func (s *GormStore) SaveFormationTypes(ctx context.Context, formations []model.FormationType) error {
	if len(formations) == 0 {
		return nil
	}
	rows := make([]formationTypeRow, 0, len(formations))
	for _, f := range formations {
		rows = append(rows, toFormationTypeRow(f))
	}
	return s.upsert(ctx, "save_formation_types", &rows)
}

// SaveCertificates writes certificates.
func (s *GormStore) SaveCertificates(ctx context.Context, certs []model.Certificate) error {
	if len(certs) == 0 {
		return nil
	}
	rows := make([]certificateRow, 0, len(certs))
	for _, c := range certs {
		rows = append(rows, toCertificateRow(c))
	}
	return s.upsert(ctx, "save_certificates", &rows)
}

// SaveCenters writes training centers.
func (s *GormStore) SaveCenters(ctx context.Context, centers []model.TrainingCenter) error {
	if len(centers) == 0 {
		return nil
	}
	rows := make([]trainingCenterRow, 0, len(centers))
	for _, c := range centers {
		rows = append(rows, toCenterRow(c))
	}
	return s.upsert(ctx, "save_centers", &rows)
}

// SaveOfferings writes offerings.
func (s *GormStore) SaveOfferings(ctx context.Context, offerings []model.Offering) error {
	if len(offerings) == 0 {
		return nil
	}
	rows := make([]offeringRow, 0, len(offerings))
	for _, o := range offerings {
		rows = append(rows, toOfferingRow(o))
	}
	return s.upsert(ctx, "save_offerings", &rows)
}

// SaveConstraints replaces the planning rules of c.CompanyID.
func (s *GormStore) SaveConstraints(ctx context.Context, c model.PlanningConstraints) error {
	if c.CompanyID == "" {
		return fmt.Errorf("%w: missing company scope", ErrValidation)
	}
	row := toConstraintsRow(c)
	return s.upsert(ctx, "save_constraints", &row)
}

func (s *GormStore) upsert(ctx context.Context, op string, value any) (err error) {
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())

	if err = s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
