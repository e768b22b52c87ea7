package model

import "time"

// NeedStatus is the lifecycle state of a TrainingNeed.
type NeedStatus string

const (
	NeedOpen      NeedStatus = "OPEN"
	NeedPlanned   NeedStatus = "PLANNED"
	NeedCancelled NeedStatus = "CANCELLED"
)

// PriorityReason explains how a priority was assigned.
type PriorityReason string

const (
	ReasonExpired    PriorityReason = "expired"
	ReasonCritical   PriorityReason = "critical-30d"
	ReasonUrgent     PriorityReason = "urgent-60d"
	ReasonUpcoming   PriorityReason = "upcoming-90d"
	ReasonNormal     PriorityReason = "normal"
	ReasonLegalFloor PriorityReason = "legal-obligation"
)

// Priority bounds.
const (
	MinPriority = 0
	MaxPriority = 10
)

// TrainingNeed is a detected requirement for one employee to redo one formation.
// It is keyed by (EmployeeID, FormationTypeID, ExpiryDate).
type TrainingNeed struct {
	ID              string         `json:"id"`
	CompanyID       CompanyID      `json:"companyId"`
	EmployeeID      string         `json:"employeeId"`
	FormationTypeID string         `json:"formationTypeId"`
	CertificateID   string         `json:"certificateId,omitempty"`
	ExpiryDate      time.Time      `json:"expiryDate"`
	DaysUntilExpiry int            `json:"daysUntilExpiry"`
	Priority        int            `json:"priority"`
	PriorityReason  PriorityReason `json:"priorityReason"`
	Status          NeedStatus     `json:"status"`
	DetectedAt      time.Time      `json:"detectedAt"`
}

// NeedKey identifies one certificate instance for idempotent upserts.
type NeedKey struct {
	EmployeeID      string
	FormationTypeID string
	ExpiryDate      string
}

// Key returns the need's idempotency key.
func (n TrainingNeed) Key() NeedKey {
	return NeedKey{
		EmployeeID:      n.EmployeeID,
		FormationTypeID: n.FormationTypeID,
		ExpiryDate:      FormatDate(n.ExpiryDate),
	}
}

// NeedDetail is a need enriched with the rows it references, used for grouping
// and drill-down.
type NeedDetail struct {
	Need          TrainingNeed  `json:"need"`
	Employee      Employee      `json:"employee"`
	FormationType FormationType `json:"-"`
}

// DetectionJob asks for a detection run over one tenant.
type DetectionJob struct {
	ID          string
	CompanyID   CompanyID
	HorizonDays int
	RequestedAt time.Time
}
