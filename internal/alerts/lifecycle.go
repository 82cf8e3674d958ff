package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medstock-backend/internal/apperr"
	"medstock-backend/internal/audit"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/database"
	"medstock-backend/internal/ledger"
	"medstock-backend/internal/lock"
	"medstock-backend/internal/logger"
	"medstock-backend/internal/models"

	"gorm.io/gorm"
)

// Service runs the acknowledge / snooze / unsnooze transitions. Every
// transition holds the course lock and writes one audit entry after commit.
type Service struct {
	db     *gorm.DB
	locker lock.Locker
	audit  audit.Writer
	clock  clock.Clock
	log    *logger.Logger
}

func NewService(db *gorm.DB, locker lock.Locker, w audit.Writer, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{db: db, locker: locker, audit: w, clock: clk, log: log}
}

// CourseAlert is the alert view of one course.
type CourseAlert struct {
	CourseID   uint               `json:"course_id"`
	Forecast   ledger.Forecast    `json:"forecast"`
	Assessment Assessment         `json:"assessment"`
	State      *models.AlertState `json:"state"`
}

func (s *Service) Acknowledge(ctx context.Context, courseID uint, actor audit.Actor, note *string) (*models.AlertState, error) {
	var before, after models.AckFields
	state, clientID, err := s.transition(ctx, courseID, true, func(st *models.AlertState) {
		before = st.Ack()
		now := s.clock.Now()
		st.AcknowledgedAt = &now
		st.AcknowledgedBy = actor.ID
		st.AckNote = cleanNote(note)
		after = st.Ack()
	})
	if err != nil {
		return nil, err
	}

	audit.BestEffort(ctx, s.audit, s.log, audit.Entry{
		Actor:       actor,
		Action:      models.AuditActionAcknowledged,
		EntityType:  models.EntityCourse,
		EntityID:    courseID,
		ClientID:    &clientID,
		Description: fmt.Sprintf("Alert acknowledged for course #%d", courseID),
		Before:      before,
		After:       after,
	})
	return state, nil
}

func (s *Service) Snooze(ctx context.Context, courseID uint, actor audit.Actor, until time.Time, note *string) (*models.AlertState, error) {
	if !until.After(s.clock.Now()) {
		return nil, apperr.InvalidSnoozeWindow("until", "must be in the future")
	}

	var before, after models.SnoozeFields
	state, clientID, err := s.transition(ctx, courseID, true, func(st *models.AlertState) {
		before = st.Snooze()
		u := until.UTC()
		st.SnoozedUntil = &u
		st.SnoozedBy = actor.ID
		st.SnoozeNote = cleanNote(note)
		after = st.Snooze()
	})
	if err != nil {
		return nil, err
	}

	audit.BestEffort(ctx, s.audit, s.log, audit.Entry{
		Actor:       actor,
		Action:      models.AuditActionSnoozed,
		EntityType:  models.EntityCourse,
		EntityID:    courseID,
		ClientID:    &clientID,
		Description: fmt.Sprintf("Alert snoozed for course #%d until %s", courseID, until.UTC().Format(time.RFC3339)),
		Before:      before,
		After:       after,
	})
	return state, nil
}

// Unsnooze clears the snooze fields. Calling it on a course with nothing to
// clear changes nothing but is still audited.
func (s *Service) Unsnooze(ctx context.Context, courseID uint, actor audit.Actor) (*models.AlertState, error) {
	var before, after models.SnoozeFields
	state, clientID, err := s.transition(ctx, courseID, false, func(st *models.AlertState) {
		before = st.Snooze()
		st.SnoozedUntil = nil
		st.SnoozedBy = nil
		st.SnoozeNote = nil
		after = st.Snooze()
	})
	if err != nil {
		return nil, err
	}

	audit.BestEffort(ctx, s.audit, s.log, audit.Entry{
		Actor:       actor,
		Action:      models.AuditActionUnsnoozed,
		EntityType:  models.EntityCourse,
		EntityID:    courseID,
		ClientID:    &clientID,
		Description: fmt.Sprintf("Alert unsnoozed for course #%d", courseID),
		Before:      before,
		After:       after,
	})
	return state, nil
}

// State returns the forecast, tier and recorded intervention for one course.
func (s *Service) State(ctx context.Context, courseID uint) (CourseAlert, error) {
	db := s.db.WithContext(ctx)
	course, err := database.FindCourse(db, courseID)
	if err != nil {
		return CourseAlert{}, err
	}
	state, err := loadState(db, courseID)
	if err != nil {
		return CourseAlert{}, err
	}
	f, err := ledger.ForCourse(course)
	if err != nil {
		return CourseAlert{}, err
	}
	return CourseAlert{
		CourseID:   courseID,
		Forecast:   f,
		Assessment: Evaluate(f, state, s.clock.Now()),
		State:      state,
	}, nil
}

// transition applies mutate to the course's alert state inside one locked
// transaction. Without create, a course that has no state row keeps having
// none and mutate sees an empty state.
func (s *Service) transition(ctx context.Context, courseID uint, create bool, mutate func(*models.AlertState)) (*models.AlertState, uint, error) {
	unlock, err := s.locker.Lock(ctx, lock.CourseKey(courseID))
	if err != nil {
		return nil, 0, fmt.Errorf("locking course %d: %w", courseID, err)
	}
	defer unlock()

	var (
		state    *models.AlertState
		clientID uint
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := database.LockCourse(tx, courseID)
		if err != nil {
			return err
		}
		clientID = course.ClientID

		existing, err := loadState(tx, courseID)
		if err != nil {
			return err
		}
		if existing == nil {
			state = &models.AlertState{CourseID: courseID}
			mutate(state)
			if !create {
				return nil
			}
			return tx.Create(state).Error
		}

		state = existing
		mutate(state)
		return tx.Save(state).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return state, clientID, nil
}

func loadState(db *gorm.DB, courseID uint) (*models.AlertState, error) {
	var st models.AlertState
	err := db.Where("course_id = ?", courseID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading alert state for course %d: %w", courseID, err)
	}
	return &st, nil
}

// StatesFor loads the alert states of the given courses keyed by course id.
func StatesFor(db *gorm.DB, list []models.MedicationCourse) (map[uint]*models.AlertState, error) {
	out := make(map[uint]*models.AlertState, len(list))
	if len(list) == 0 {
		return out, nil
	}
	ids := make([]uint, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	var states []models.AlertState
	if err := db.Where("course_id IN ?", ids).Find(&states).Error; err != nil {
		return nil, fmt.Errorf("loading alert states: %w", err)
	}
	for i := range states {
		out[states[i].CourseID] = &states[i]
	}
	return out, nil
}

func cleanNote(note *string) *string {
	if note == nil {
		return nil
	}
	n := strings.TrimSpace(*note)
	if n == "" {
		return nil
	}
	return &n
}
