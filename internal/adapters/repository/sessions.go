package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/certwatch/internal/domain/model"
	"gorm.io/gorm"
)

// CreateSession persists session in one transaction. It re-reads the
// offering's live capacity and moves every listed need from OPEN to PLANNED;
// if any of them is no longer OPEN nothing is written.
func (s *GormStore) CreateSession(ctx context.Context, session model.TrainingSession) (out model.TrainingSession, err error) {
	defer func(start time.Time) { s.observe("create_session", start, err) }(time.Now())

	session.EmployeeIDs = uniqueStrings(session.EmployeeIDs)
	session.TrainingNeedIDs = uniqueStrings(session.TrainingNeedIDs)
	if err = validateSession(session); err != nil {
		return model.TrainingSession{}, err
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.Status = model.SessionPlanned
	session.CreatedAt = time.Now().UTC()
	company := string(session.CompanyID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var offering offeringRow
		err := tx.Joins("JOIN training_centers ON training_centers.id = offerings.center_id").
			Where("training_centers.company_id = ? AND offerings.center_id = ? AND offerings.formation_type_id = ?",
				company, session.CenterID, session.FormationTypeID).
			Take(&offering).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: center %s does not offer formation %s", ErrNotFound, session.CenterID, session.FormationTypeID)
		}
		if err != nil {
			return err
		}
		headcount := len(session.EmployeeIDs)
		if headcount > offering.MaxParticipants {
			return fmt.Errorf("%w: %d attendees, max %d", ErrCapacityChanged, headcount, offering.MaxParticipants)
		}

		var known int64
		err = tx.Model(&employeeRow{}).
			Where("company_id = ? AND id IN ?", company, session.EmployeeIDs).
			Count(&known).Error
		if err != nil {
			return err
		}
		if int(known) != headcount {
			return fmt.Errorf("%w: %d of %d attendees not found", ErrValidation, headcount-int(known), headcount)
		}

		if err := checkNeeds(tx, session); err != nil {
			return err
		}
		if len(session.TrainingNeedIDs) > 0 {
			res := tx.Model(&trainingNeedRow{}).
				Where("company_id = ? AND id IN ? AND status = ?", company, session.TrainingNeedIDs, string(model.NeedOpen)).
				Updates(map[string]any{"status": string(model.NeedPlanned), "updated_at": session.CreatedAt})
			if res.Error != nil {
				return res.Error
			}
			if int(res.RowsAffected) != len(session.TrainingNeedIDs) {
				return fmt.Errorf("%w: %d of %d needs already taken", ErrNeedsUnavailable,
					len(session.TrainingNeedIDs)-int(res.RowsAffected), len(session.TrainingNeedIDs))
			}
		}

		row := toSessionRow(session)
		return tx.Create(&row).Error
	})
	if err != nil {
		if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrConflict) {
			return model.TrainingSession{}, err
		}
		return model.TrainingSession{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// checkNeeds verifies every listed need belongs to an attendee and to the
// session's formation.
func checkNeeds(tx *gorm.DB, session model.TrainingSession) error {
	if len(session.TrainingNeedIDs) == 0 {
		return nil
	}
	var rows []trainingNeedRow
	err := tx.Where("company_id = ? AND id IN ?", string(session.CompanyID), session.TrainingNeedIDs).Find(&rows).Error
	if err != nil {
		return err
	}
	if len(rows) != len(session.TrainingNeedIDs) {
		return fmt.Errorf("%w: %d of %d needs not found", ErrValidation, len(session.TrainingNeedIDs)-len(rows), len(session.TrainingNeedIDs))
	}
	attendees := make(map[string]struct{}, len(session.EmployeeIDs))
	for _, id := range session.EmployeeIDs {
		attendees[id] = struct{}{}
	}
	for _, r := range rows {
		if r.FormationTypeID != session.FormationTypeID {
			return fmt.Errorf("%w: need %s is for formation %s", ErrValidation, r.ID, r.FormationTypeID)
		}
		if _, ok := attendees[r.EmployeeID]; !ok {
			return fmt.Errorf("%w: need %s belongs to a non-attending employee", ErrValidation, r.ID)
		}
	}
	return nil
}

func validateSession(s model.TrainingSession) error {
	switch {
	case s.CompanyID == "":
		return fmt.Errorf("%w: missing company scope", ErrValidation)
	case s.FormationTypeID == "":
		return fmt.Errorf("%w: missing formationTypeId", ErrValidation)
	case s.CenterID == "":
		return fmt.Errorf("%w: missing centerId", ErrValidation)
	case len(s.EmployeeIDs) == 0:
		return fmt.Errorf("%w: missing employeeIds", ErrValidation)
	case s.StartDate.IsZero():
		return fmt.Errorf("%w: missing startDate", ErrValidation)
	case s.EndDate.Before(s.StartDate):
		return fmt.Errorf("%w: endDate before startDate", ErrValidation)
	}
	return nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
