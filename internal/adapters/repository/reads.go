package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/certwatch/internal/domain/model"
	"gorm.io/gorm"
)

// Companies lists every tenant id.
func (s *GormStore) Companies(ctx context.Context) (ids []model.CompanyID, err error) {
	defer func(start time.Time) { s.observe("companies", start, err) }(time.Now())

	var rows []companyRow
	if err = s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	ids = make([]model.CompanyID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, model.CompanyID(r.ID))
	}
	return ids, nil
}

// Employees lists every employee of company, active or not.
func (s *GormStore) Employees(ctx context.Context, company model.CompanyID) (out []model.Employee, err error) {
	defer func(start time.Time) { s.observe("employees", start, err) }(time.Now())

	var rows []employeeRow
	if err = s.db.WithContext(ctx).Where("company_id = ?", string(company)).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return employeesFromRows(rows), nil
}

// EmployeesByIDs returns the employees of company among ids. Unknown ids
// are silently absent from the result.
func (s *GormStore) EmployeesByIDs(ctx context.Context, company model.CompanyID, ids []string) (out []model.Employee, err error) {
	defer func(start time.Time) { s.observe("employees_by_ids", start, err) }(time.Now())

	if len(ids) == 0 {
		return []model.Employee{}, nil
	}
	var rows []employeeRow
	err = s.db.WithContext(ctx).
		Where("company_id = ? AND id IN ?", string(company), ids).
		Order("id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}
	return employeesFromRows(rows), nil
}

// FormationTypes lists the formation catalog of company.
func (s *GormStore) FormationTypes(ctx context.Context, company model.CompanyID) (out []model.FormationType, err error) {
	defer func(start time.Time) { s.observe("formation_types", start, err) }(time.Now())

	var rows []formationTypeRow
	if err = s.db.WithContext(ctx).Where("company_id = ?", string(company)).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list formation types: %w", err)
	}
	out = make([]model.FormationType, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// FormationType loads one formation of company.
func (s *GormStore) FormationType(ctx context.Context, company model.CompanyID, id string) (ft model.FormationType, err error) {
	defer func(start time.Time) { s.observe("formation_type", start, err) }(time.Now())

	var row formationTypeRow
	err = s.db.WithContext(ctx).Where("company_id = ? AND id = ?", string(company), id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.FormationType{}, fmt.Errorf("%w: formation type %s", ErrNotFound, id)
	}
	if err != nil {
		return model.FormationType{}, fmt.Errorf("load formation type: %w", err)
	}
	return row.toModel(), nil
}

// Certificates lists every certificate of company, archived ones included.
func (s *GormStore) Certificates(ctx context.Context, company model.CompanyID) (out []model.Certificate, err error) {
	defer func(start time.Time) { s.observe("certificates", start, err) }(time.Now())

	var rows []certificateRow
	if err = s.db.WithContext(ctx).Where("company_id = ?", string(company)).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	out = make([]model.Certificate, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// CenterOfferings pairs every offering for formationTypeID with its center,
// restricted to the centers of company.
func (s *GormStore) CenterOfferings(ctx context.Context, company model.CompanyID, formationTypeID string) (out []model.CenterOffering, err error) {
	defer func(start time.Time) { s.observe("center_offerings", start, err) }(time.Now())

	var centers []trainingCenterRow
	if err = s.db.WithContext(ctx).Where("company_id = ?", string(company)).Find(&centers).Error; err != nil {
		return nil, fmt.Errorf("list centers: %w", err)
	}
	out = []model.CenterOffering{}
	if len(centers) == 0 {
		return out, nil
	}
	byID := make(map[string]trainingCenterRow, len(centers))
	ids := make([]string, 0, len(centers))
	for _, c := range centers {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	var offerings []offeringRow
	err = s.db.WithContext(ctx).
		Where("center_id IN ? AND formation_type_id = ?", ids, formationTypeID).
		Order("center_id").Find(&offerings).Error
	if err != nil {
		return nil, fmt.Errorf("list offerings: %w", err)
	}
	for _, o := range offerings {
		out = append(out, model.CenterOffering{Center: byID[o.CenterID].toModel(), Offering: o.toModel()})
	}
	return out, nil
}

// Constraints returns nil when company has no planning rules.
func (s *GormStore) Constraints(ctx context.Context, company model.CompanyID) (c *model.PlanningConstraints, err error) {
	defer func(start time.Time) { s.observe("constraints", start, err) }(time.Now())

	var row planningConstraintsRow
	err = s.db.WithContext(ctx).Where("company_id = ?", string(company)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load constraints: %w", err)
	}
	m := row.toModel()
	return &m, nil
}

// BookedEmployees lists the employees attending a PLANNED session of
// company that covers day.
func (s *GormStore) BookedEmployees(ctx context.Context, company model.CompanyID, day time.Time) (out []model.Employee, err error) {
	defer func(start time.Time) { s.observe("booked_employees", start, err) }(time.Now())

	date := model.FormatDate(day)
	var ids []string
	err = s.db.WithContext(ctx).
		Model(&sessionAttendeeRow{}).
		Distinct("session_attendees.employee_id").
		Joins("JOIN training_sessions ON training_sessions.id = session_attendees.session_id").
		Where("training_sessions.company_id = ? AND training_sessions.status = ?", string(company), string(model.SessionPlanned)).
		Where("training_sessions.start_date <= ? AND training_sessions.end_date >= ?", date, date).
		Pluck("session_attendees.employee_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list booked employees: %w", err)
	}
	if len(ids) == 0 {
		return []model.Employee{}, nil
	}
	var rows []employeeRow
	if err = s.db.WithContext(ctx).Where("company_id = ? AND id IN ?", string(company), ids).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load booked employees: %w", err)
	}
	return employeesFromRows(rows), nil
}

// Needs lists the needs of company, optionally filtered by status.
func (s *GormStore) Needs(ctx context.Context, company model.CompanyID, statuses ...model.NeedStatus) (out []model.TrainingNeed, err error) {
	defer func(start time.Time) { s.observe("needs", start, err) }(time.Now())

	q := s.db.WithContext(ctx).Where("company_id = ?", string(company))
	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, st := range statuses {
			names = append(names, string(st))
		}
		q = q.Where("status IN ?", names)
	}
	var rows []trainingNeedRow
	if err = q.Order("priority DESC, expiry_date, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list needs: %w", err)
	}
	out = make([]model.TrainingNeed, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// NeedCounts counts needs of every company by status.
func (s *GormStore) NeedCounts(ctx context.Context) (counts map[model.NeedStatus]int64, err error) {
	defer func(start time.Time) { s.observe("need_counts", start, err) }(time.Now())

	var rows []struct {
		Status string
		Total  int64
	}
	err = s.db.WithContext(ctx).Model(&trainingNeedRow{}).
		Select("status, COUNT(*) AS total").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count needs: %w", err)
	}
	counts = make(map[model.NeedStatus]int64, len(rows))
	for _, r := range rows {
		counts[model.NeedStatus(r.Status)] = r.Total
	}
	return counts, nil
}

// Session loads one session with its attendees.
func (s *GormStore) Session(ctx context.Context, company model.CompanyID, id string) (out model.TrainingSession, err error) {
	defer func(start time.Time) { s.observe("session", start, err) }(time.Now())

	var row trainingSessionRow
	err = s.db.WithContext(ctx).Preload("Attendees", func(db *gorm.DB) *gorm.DB {
		return db.Order("employee_id")
	}).Where("company_id = ? AND id = ?", string(company), id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TrainingSession{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return model.TrainingSession{}, fmt.Errorf("load session: %w", err)
	}
	return row.toModel(), nil
}

func employeesFromRows(rows []employeeRow) []model.Employee {
	out := make([]model.Employee, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}
