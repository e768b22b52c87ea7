package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WeekdayMask is a 7-bit set of allowed weekdays. Bit 0 is Monday, bit 6 is Sunday.
type WeekdayMask uint8

// Common weekday masks.
const (
	MondayToFriday WeekdayMask = 0b0011111
	EveryDay       WeekdayMask = 0b1111111
)

// Allows reports whether d is set in the mask.
func (m WeekdayMask) Allows(d time.Weekday) bool {
	// time.Weekday starts on Sunday; shift so Monday is bit 0.
	bit := (int(d) + 6) % 7
	return m&(1<<bit) != 0
}

// PlanningConstraints are a tenant's workforce-availability rules.
type PlanningConstraints struct {
	CompanyID           CompanyID   `json:"companyId"`
	BlacklistedDates    []time.Time `json:"blacklistedDates"`
	AllowedTrainingDays WeekdayMask `json:"allowedTrainingDays"`
	MaxAbsentPerTeam    int         `json:"maxAbsentPerTeam"`
	MaxAbsentPerSite    int         `json:"maxAbsentPerSite"`
}

// IsBlacklisted reports whether date matches a blacklisted calendar day.
func (c PlanningConstraints) IsBlacklisted(date time.Time) bool {
	day := FormatDate(date)
	for _, d := range c.BlacklistedDates {
		if FormatDate(d) == day {
			return true
		}
	}
	return false
}

// Severity grades a constraint warning.
type Severity string

const (
	SeverityDanger  Severity = "danger"
	SeverityWarning Severity = "warning"
)

// WarningType names the rule that produced a warning.
type WarningType string

const (
	WarningBlockedDate   WarningType = "blockedDate"
	WarningDayNotAllowed WarningType = "dayNotAllowed"
	WarningTeam          WarningType = "team"
	WarningSite          WarningType = "site"
	// WarningTeamBooked and WarningSiteBooked flag caps the requested
	// employees only exceed together with those already booked that day.
	WarningTeamBooked    WarningType = "teamBooked"
	WarningSiteBooked    WarningType = "siteBooked"
)

// Warning is an advisory constraint violation. It never blocks planning.
type Warning struct {
	Type     WarningType `json:"type"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Date     string      `json:"date,omitempty"`
	Team     string      `json:"team,omitempty"`
	Site     string      `json:"site,omitempty"`
	Count    int         `json:"count,omitempty"`
	Limit    int         `json:"limit,omitempty"`
}

// SessionStatus is the lifecycle state of a TrainingSession.
type SessionStatus string

const (
	SessionPlanned   SessionStatus = "PLANNED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// TrainingSession is a scheduled delivery of a formation to a set of employees.
type TrainingSession struct {
	ID               string          `json:"id"`
	CompanyID        CompanyID       `json:"companyId"`
	FormationTypeID  string          `json:"formationTypeId"`
	CenterID         string          `json:"centerId"`
	IsIntraCompany   bool            `json:"isIntraCompany"`
	StartDate        time.Time       `json:"startDate"`
	EndDate          time.Time       `json:"endDate"`
	TrainingCost     decimal.Decimal `json:"trainingCost"`
	TotalAbsenceCost decimal.Decimal `json:"totalAbsenceCost"`
	TotalCost        decimal.Decimal `json:"totalCost"`
	EmployeeIDs      []string        `json:"employeeIds"`
	TrainingNeedIDs  []string        `json:"trainingNeedIds"`
	Status           SessionStatus   `json:"status"`
	CreatedAt        time.Time       `json:"createdAt"`
}
