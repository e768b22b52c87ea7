// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CompanyID scopes every read and write to a single tenant.
type CompanyID string

// Employee is a member of the workforce whose certificates are tracked.
type Employee struct {
	ID         string           `json:"id"`
	CompanyID  CompanyID        `json:"companyId"`
	FirstName  string           `json:"firstName"`
	LastName   string           `json:"lastName"`
	Team       string           `json:"team,omitempty"`
	Site       string           `json:"site,omitempty"`
	Department string           `json:"department,omitempty"`
	HourlyCost *decimal.Decimal `json:"hourlyCost,omitempty"` // nil means no absence cost
	Active     bool             `json:"active"`
}

// FullName returns "First Last" trimmed of missing parts.
func (e Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// FormationType is a mandatory training program.
type FormationType struct {
	ID                    string    `json:"id"`
	CompanyID             CompanyID `json:"companyId"`
	Name                  string    `json:"name"`
	DurationHours         float64   `json:"durationHours"`
	DurationDays          float64   `json:"durationDays"`
	MinParticipants       int       `json:"minParticipants"`
	MaxParticipants       int       `json:"maxParticipants"`
	IsLegalObligation     bool      `json:"isLegalObligation"`
	DefaultValidityMonths *int      `json:"defaultValidityMonths,omitempty"`
	Active                bool      `json:"active"`
}

// Hours returns the training length in hours. When only a day count is
// known it is converted with hoursPerDay.
func (f FormationType) Hours(hoursPerDay float64) float64 {
	if f.DurationHours > 0 {
		return f.DurationHours
	}
	return f.DurationDays * hoursPerDay
}

// Certificate proves an employee passed a formation. A nil ExpiryDate never expires.
type Certificate struct {
	ID              string     `json:"id"`
	CompanyID       CompanyID  `json:"companyId"`
	EmployeeID      string     `json:"employeeId"`
	FormationTypeID string     `json:"formationTypeId"`
	ObtainedDate    time.Time  `json:"obtainedDate"`
	ExpiryDate      *time.Time `json:"expiryDate,omitempty"`
	IsArchived      bool       `json:"isArchived"`
}

// Supersedes reports whether c is a more recent instance than other for the
// same employee and formation: a later expiry, or no expiry at all.
func (c Certificate) Supersedes(other Certificate) bool {
	switch {
	case c.ExpiryDate == nil && other.ExpiryDate == nil:
		return c.ObtainedDate.After(other.ObtainedDate)
	case c.ExpiryDate == nil:
		return true
	case other.ExpiryDate == nil:
		return false
	}
	return c.ExpiryDate.After(*other.ExpiryDate)
}

// TrainingCenter is a provider able to deliver formations.
type TrainingCenter struct {
	ID              string           `json:"id"`
	CompanyID       CompanyID        `json:"companyId"`
	Name            string           `json:"name"`
	City            string           `json:"city"`
	IsPartner       bool             `json:"isPartner"`
	DiscountPercent *decimal.Decimal `json:"discountPercent,omitempty"`
	CanTravel       bool             `json:"canTravel"`
}

// Offering is a center's priced, capacity-bounded catalog entry for one formation.
type Offering struct {
	ID              string           `json:"id"`
	CenterID        string           `json:"centerId"`
	FormationTypeID string           `json:"formationTypeId"`
	PricePerPerson  decimal.Decimal  `json:"pricePerPerson"`
	PricePerSession *decimal.Decimal `json:"pricePerSession,omitempty"`
	MinParticipants int              `json:"minParticipants"`
	MaxParticipants int              `json:"maxParticipants"`
}

// CenterOffering pairs an offering with the center that sells it.
type CenterOffering struct {
	Center   TrainingCenter `json:"center"`
	Offering Offering       `json:"offering"`
}
