package repository

import (
	"time"

	"github.com/okian/certwatch/internal/domain/model"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Calendar days are stored as YYYY-MM-DD text so equality and range
// comparisons behave the same on sqlite and postgres.

type companyRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
}

func (companyRow) TableName() string { return "companies" }

type employeeRow struct {
	ID         string              `gorm:"primaryKey;size:64"`
	CompanyID  string              `gorm:"size:64;not null;index"`
	FirstName  string              `gorm:"not null"`
	LastName   string              `gorm:"not null"`
	Team       string              `gorm:"index"`
	Site       string              `gorm:"index"`
	Department string
	HourlyCost decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	Active     bool                `gorm:"not null"`
}

func (employeeRow) TableName() string { return "employees" }

type formationTypeRow struct {
	ID                    string  `gorm:"primaryKey;size:64"`
	CompanyID             string  `gorm:"size:64;not null;index"`
	Name                  string  `gorm:"not null"`
	DurationHours         float64 `gorm:"not null;default:0"`
	DurationDays          float64 `gorm:"not null;default:0"`
	MinParticipants       int     `gorm:"not null;default:0"`
	MaxParticipants       int     `gorm:"not null;default:0"`
	IsLegalObligation     bool    `gorm:"not null"`
	DefaultValidityMonths *int
	Active                bool `gorm:"not null"`
}

func (formationTypeRow) TableName() string { return "formation_types" }

type certificateRow struct {
	ID              string  `gorm:"primaryKey;size:64"`
	CompanyID       string  `gorm:"size:64;not null;index"`
	EmployeeID      string  `gorm:"size:64;not null;index"`
	FormationTypeID string  `gorm:"size:64;not null;index"`
	ObtainedDate    string  `gorm:"size:10;not null"`
	ExpiryDate      *string `gorm:"size:10;index"`
	IsArchived      bool    `gorm:"not null"`
}

func (certificateRow) TableName() string { return "certificates" }

type trainingNeedRow struct {
	ID              string `gorm:"primaryKey;size:64"`
	CompanyID       string `gorm:"size:64;not null;uniqueIndex:idx_need_key,priority:1"`
	EmployeeID      string `gorm:"size:64;not null;uniqueIndex:idx_need_key,priority:2"`
	FormationTypeID string `gorm:"size:64;not null;uniqueIndex:idx_need_key,priority:3"`
	ExpiryDate      string `gorm:"size:10;not null;uniqueIndex:idx_need_key,priority:4"`
	CertificateID   string `gorm:"size:64"`
	DaysUntilExpiry int    `gorm:"not null"`
	Priority        int    `gorm:"not null;index"`
	PriorityReason  string `gorm:"size:32;not null"`
	Status          string `gorm:"size:16;not null;index"`
	DetectedAt      time.Time
	UpdatedAt       time.Time
}

func (trainingNeedRow) TableName() string { return "training_needs" }

type trainingCenterRow struct {
	ID              string              `gorm:"primaryKey;size:64"`
	CompanyID       string              `gorm:"size:64;not null;index"`
	Name            string              `gorm:"not null"`
	City            string
	IsPartner       bool                `gorm:"not null"`
	DiscountPercent decimal.NullDecimal `gorm:"type:decimal(5,2)"`
	CanTravel       bool                `gorm:"not null"`
}

func (trainingCenterRow) TableName() string { return "training_centers" }

type offeringRow struct {
	ID              string              `gorm:"primaryKey;size:64"`
	CenterID        string              `gorm:"size:64;not null;uniqueIndex:idx_offering,priority:1"`
	FormationTypeID string              `gorm:"size:64;not null;uniqueIndex:idx_offering,priority:2"`
	PricePerPerson  decimal.Decimal     `gorm:"type:decimal(12,2);not null"`
	PricePerSession decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	MinParticipants int                 `gorm:"not null;default:0"`
	MaxParticipants int                 `gorm:"not null;default:0"`
}

func (offeringRow) TableName() string { return "offerings" }

type planningConstraintsRow struct {
	CompanyID           string                      `gorm:"primaryKey;size:64"`
	BlacklistedDates    datatypes.JSONSlice[string] `gorm:"not null"`
	AllowedTrainingDays int                         `gorm:"not null;default:0"`
	MaxAbsentPerTeam    int                         `gorm:"not null;default:0"`
	MaxAbsentPerSite    int                         `gorm:"not null;default:0"`
}

func (planningConstraintsRow) TableName() string { return "planning_constraints" }

type trainingSessionRow struct {
	ID               string                      `gorm:"primaryKey;size:64"`
	CompanyID        string                      `gorm:"size:64;not null;index"`
	FormationTypeID  string                      `gorm:"size:64;not null"`
	CenterID         string                      `gorm:"size:64;not null"`
	IsIntraCompany   bool                        `gorm:"not null"`
	StartDate        string                      `gorm:"size:10;not null;index"`
	EndDate          string                      `gorm:"size:10;not null;index"`
	TrainingCost     decimal.Decimal             `gorm:"type:decimal(12,2);not null"`
	TotalAbsenceCost decimal.Decimal             `gorm:"type:decimal(12,2);not null"`
	TotalCost        decimal.Decimal             `gorm:"type:decimal(12,2);not null"`
	TrainingNeedIDs  datatypes.JSONSlice[string] `gorm:"not null"`
	Status           string                      `gorm:"size:16;not null;index"`
	CreatedAt        time.Time
	Attendees        []sessionAttendeeRow `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (trainingSessionRow) TableName() string { return "training_sessions" }

type sessionAttendeeRow struct {
	SessionID  string `gorm:"primaryKey;size:64"`
	EmployeeID string `gorm:"primaryKey;size:64;index"`
}

func (sessionAttendeeRow) TableName() string { return "session_attendees" }

func allModels() []any {
	return []any{
		&companyRow{}, &employeeRow{}, &formationTypeRow{}, &certificateRow{},
		&trainingNeedRow{}, &trainingCenterRow{}, &offeringRow{},
		&planningConstraintsRow{}, &trainingSessionRow{}, &sessionAttendeeRow{},
	}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func decimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func datePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := model.FormatDate(*t)
	return &s
}

// parseDay tolerates malformed stored dates by returning the zero time.
func parseDay(s string) time.Time {
	t, _ := model.ParseDate(s)
	return t
}

func toEmployeeRow(e model.Employee) employeeRow {
	return employeeRow{
		ID: e.ID, CompanyID: string(e.CompanyID), FirstName: e.FirstName, LastName: e.LastName,
		Team: e.Team, Site: e.Site, Department: e.Department, HourlyCost: nullDecimal(e.HourlyCost), Active: e.Active,
	}
}

func (r employeeRow) toModel() model.Employee {
	return model.Employee{
		ID: r.ID, CompanyID: model.CompanyID(r.CompanyID), FirstName: r.FirstName, LastName: r.LastName,
		Team: r.Team, Site: r.Site, Department: r.Department, HourlyCost: decimalPtr(r.HourlyCost), Active: r.Active,
	}
}

func toFormationTypeRow(f model.FormationType) formationTypeRow {
	return formationTypeRow{
		ID: f.ID, CompanyID: string(f.CompanyID), Name: f.Name, DurationHours: f.DurationHours,
		DurationDays: f.DurationDays, MinParticipants: f.MinParticipants, MaxParticipants: f.MaxParticipants,
		IsLegalObligation: f.IsLegalObligation, DefaultValidityMonths: f.DefaultValidityMonths, Active: f.Active,
	}
}

func (r formationTypeRow) toModel() model.FormationType {
	return model.FormationType{
		ID: r.ID, CompanyID: model.CompanyID(r.CompanyID), Name: r.Name, DurationHours: r.DurationHours,
		DurationDays: r.DurationDays, MinParticipants: r.MinParticipants, MaxParticipants: r.MaxParticipants,
		IsLegalObligation: r.IsLegalObligation, DefaultValidityMonths: r.DefaultValidityMonths, Active: r.Active,
	}
}

func toCertificateRow(c model.Certificate) certificateRow {
	return certificateRow{
		ID: c.ID, CompanyID: string(c.CompanyID), EmployeeID: c.EmployeeID, FormationTypeID: c.FormationTypeID,
		ObtainedDate: model.FormatDate(c.ObtainedDate), ExpiryDate: datePtr(c.ExpiryDate), IsArchived: c.IsArchived,
	}
}

func (r certificateRow) toModel() model.Certificate {
	c := model.Certificate{
		ID: r.ID, CompanyID: model.CompanyID(r.CompanyID), EmployeeID: r.EmployeeID, FormationTypeID: r.FormationTypeID,
		ObtainedDate: parseDay(r.ObtainedDate), IsArchived: r.IsArchived,
	}
	if r.ExpiryDate != nil {
		d := parseDay(*r.ExpiryDate)
		c.ExpiryDate = &d
	}
	return c
}

func toNeedRow(n model.TrainingNeed) trainingNeedRow {
	return trainingNeedRow{
		ID: n.ID, CompanyID: string(n.CompanyID), EmployeeID: n.EmployeeID, FormationTypeID: n.FormationTypeID,
		ExpiryDate: model.FormatDate(n.ExpiryDate), CertificateID: n.CertificateID, DaysUntilExpiry: n.DaysUntilExpiry,
		Priority: n.Priority, PriorityReason: string(n.PriorityReason), Status: string(n.Status), DetectedAt: n.DetectedAt,
	}
}

func (r trainingNeedRow) toModel() model.TrainingNeed {
	return model.TrainingNeed{
		ID: r.ID, CompanyID: model.CompanyID(r.CompanyID), EmployeeID: r.EmployeeID, FormationTypeID: r.FormationTypeID,
		CertificateID: r.CertificateID, ExpiryDate: parseDay(r.ExpiryDate), DaysUntilExpiry: r.DaysUntilExpiry,
		Priority: r.Priority, PriorityReason: model.PriorityReason(r.PriorityReason), Status: model.NeedStatus(r.Status),
		DetectedAt: r.DetectedAt,
	}
}

func toCenterRow(c model.TrainingCenter) trainingCenterRow {
	return trainingCenterRow{
		ID: c.ID, CompanyID: string(c.CompanyID), Name: c.Name, City: c.City, IsPartner: c.IsPartner,
		DiscountPercent: nullDecimal(c.DiscountPercent), CanTravel: c.CanTravel,
	}
}

func (r trainingCenterRow) toModel() model.TrainingCenter {
	return model.TrainingCenter{
		ID: r.ID, CompanyID: model.CompanyID(r.CompanyID), Name: r.Name, City: r.City, IsPartner: r.IsPartner,
		DiscountPercent: decimalPtr(r.DiscountPercent), CanTravel: r.CanTravel,
	}
}

func toOfferingRow(o model.Offering) offeringRow {
	return offeringRow{
		ID: o.ID, CenterID: o.CenterID, FormationTypeID: o.FormationTypeID, PricePerPerson: o.PricePerPerson,
		PricePerSession: nullDecimal(o.PricePerSession), MinParticipants: o.MinParticipants, MaxParticipants: o.MaxParticipants,
	}
}

func (r offeringRow) toModel() model.Offering {
	return model.Offering{
		ID: r.ID, CenterID: r.CenterID, FormationTypeID: r.FormationTypeID, PricePerPerson: r.PricePerPerson,
		PricePerSession: decimalPtr(r.PricePerSession), MinParticipants: r.MinParticipants, MaxParticipants: r.MaxParticipants,
	}
}

func toConstraintsRow(c model.PlanningConstraints) planningConstraintsRow {
	dates := make([]string, 0, len(c.BlacklistedDates))
	for _, d := range c.BlacklistedDates {
		dates = append(dates, model.FormatDate(d))
	}
	return planningConstraintsRow{
		CompanyID: string(c.CompanyID), BlacklistedDates: datatypes.NewJSONSlice(dates),
		AllowedTrainingDays: int(c.AllowedTrainingDays), MaxAbsentPerTeam: c.MaxAbsentPerTeam, MaxAbsentPerSite: c.MaxAbsentPerSite,
	}
}

func (r planningConstraintsRow) toModel() model.PlanningConstraints {
	c := model.PlanningConstraints{
		CompanyID: model.CompanyID(r.CompanyID), AllowedTrainingDays: model.WeekdayMask(r.AllowedTrainingDays),
		MaxAbsentPerTeam: r.MaxAbsentPerTeam, MaxAbsentPerSite: r.MaxAbsentPerSite,
		BlacklistedDates: make([]time.Time, 0, len(r.BlacklistedDates)),
	}
	for _, s := range r.BlacklistedDates {
		if d, err := model.ParseDate(s); err == nil {
			c.BlacklistedDates = append(c.BlacklistedDates, d)
		}
	}
	return c
}

func toSessionRow(s model.TrainingSession) trainingSessionRow {
	row := trainingSessionRow{
		ID: s.ID, CompanyID: string(s.CompanyID), FormationTypeID: s.FormationTypeID, CenterID: s.CenterID,
		IsIntraCompany: s.IsIntraCompany, StartDate: model.FormatDate(s.StartDate), EndDate: model.FormatDate(s.EndDate),
		TrainingCost: s.TrainingCost, TotalAbsenceCost: s.TotalAbsenceCost, TotalCost: s.TotalCost,
		TrainingNeedIDs: datatypes.NewJSONSlice(s.TrainingNeedIDs), Status: string(s.Status), CreatedAt: s.CreatedAt,
	}
	for _, id := range s.EmployeeIDs {
		row.Attendees = append(row.Attendees, sessionAttendeeRow{SessionID: s.ID, EmployeeID: id})
	}
	return row
}

func (r trainingSessionRow) toModel() model.TrainingSession {
	s := model.TrainingSession{
		ID: r.ID, CompanyID: model.CompanyID(r.CompanyID), FormationTypeID: r.FormationTypeID, CenterID: r.CenterID,
		IsIntraCompany: r.IsIntraCompany, StartDate: parseDay(r.StartDate), EndDate: parseDay(r.EndDate),
		TrainingCost: r.TrainingCost, TotalAbsenceCost: r.TotalAbsenceCost, TotalCost: r.TotalCost,
		TrainingNeedIDs: []string(r.TrainingNeedIDs), Status: model.SessionStatus(r.Status), CreatedAt: r.CreatedAt,
		EmployeeIDs: make([]string, 0, len(r.Attendees)),
	}
	for _, a := range r.Attendees {
		s.EmployeeIDs = append(s.EmployeeIDs, a.EmployeeID)
	}
	return s
}
