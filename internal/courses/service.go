// Package courses manages clients and their medication courses. Stock
// counters are only written here at creation; afterwards they belong to the
// restock package.
package courses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medstock-backend/internal/alerts"
	"medstock-backend/internal/apperr"
	"medstock-backend/internal/audit"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/database"
	"medstock-backend/internal/ledger"
	"medstock-backend/internal/lock"
	"medstock-backend/internal/logger"
	"medstock-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

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

type ClientInput struct {
	Name  string
	Notes string
}

func (in ClientInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.InvalidInput("name", "is required")
	}
	return nil
}

type clientFields struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

func fieldsOfClient(c *models.Client) clientFields {
	return clientFields{Name: c.Name, Notes: c.Notes}
}

func (s *Service) CreateClient(ctx context.Context, actor audit.Actor, in ClientInput) (*models.Client, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	client := &models.Client{Name: strings.TrimSpace(in.Name), Notes: strings.TrimSpace(in.Notes)}
	if err := s.db.WithContext(ctx).Create(client).Error; err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}

	audit.BestEffort(ctx, s.audit, s.log, audit.Entry{
		Actor:       actor,
		Action:      models.AuditActionClientCreated,
		EntityType:  models.EntityClient,
		EntityID:    client.ID,
		ClientID:    &client.ID,
		Description: fmt.Sprintf("Client created: %s", client.Name),
		After:       fieldsOfClient(client),
	})
	return client, nil
}

func (s *Service) GetClient(ctx context.Context, id uint) (*models.Client, error) {
	var client models.Client
	err := s.db.WithContext(ctx).First(&client, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("client")
	}
	if err != nil {
		return nil, fmt.Errorf("loading client %d: %w", id, err)
	}
	return &client, nil
}

func (s *Service) ListClients(ctx context.Context) ([]models.Client, error) {
	clients := []models.Client{}
	if err := s.db.WithContext(ctx).Order("name ASC").Order("id ASC").Find(&clients).Error; err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	return clients, nil
}

func (s *Service) UpdateClient(ctx context.Context, id uint, actor audit.Actor, in ClientInput) (*models.Client, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	client, err := s.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	before := fieldsOfClient(client)

	client.Name = strings.TrimSpace(in.Name)
	client.Notes = strings.TrimSpace(in.Notes)
	err = s.db.WithContext(ctx).Model(client).Updates(map[string]interface{}{
		"name":  client.Name,
		"notes": client.Notes,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("updating client %d: %w", id, err)
	}

	audit.BestEffort(ctx, s.audit, s.log, audit.Entry{
		Actor:       actor,
		Action:      models.AuditActionClientUpdated,
		EntityType:  models.EntityClient,
		EntityID:    client.ID,
		ClientID:    &client.ID,
		Description: fmt.Sprintf("Client updated: %s", client.Name),
		Before:      before,
		After:       fieldsOfClient(client),
	})
	return client, nil
}

// DeleteClient soft-deletes a client that has no live courses left.
func (s *Service) DeleteClient(ctx context.Context, id uint, actor audit.Actor) error {
	client, err := s.GetClient(ctx, id)
	if err != nil {
		return err
	}

	var live int64
	if err := s.db.WithContext(ctx).Model(&models.MedicationCourse{}).Where("client_id = ?", id).Count(&live).Error; err != nil {
		return fmt.Errorf("counting courses of client %d: %w", id, err)
	}
	if live > 0 {
		return apperr.InvalidInput("client_id", fmt.Sprintf("still has %d active courses", live))
	}

	if err := s.db.WithContext(ctx).Delete(client).Error; err != nil {
		return fmt.Errorf("deleting client %d: %w", id, err)
	}

	audit.BestEffort(ctx, s.audit, s.log, audit.Entry{
		Actor:       actor,
		Action:      models.AuditActionClientDeleted,
		EntityType:  models.EntityClient,
		EntityID:    client.ID,
		ClientID:    &client.ID,
		Description: fmt.Sprintf("Client deleted: %s", client.Name),
		Before:      fieldsOfClient(client),
	})
	return nil
}

type CourseInput struct {
	ClientID     uint
	Medication   string
	Strength     string
	UnitLabel    string
	DosePerAdmin decimal.Decimal
	AdminsPerDay decimal.Decimal
	// DailyUse defaults to DosePerAdmin * AdminsPerDay when nil.
	DailyUse     *decimal.Decimal
	PackSize     int64
	OpeningUnits int64
	// StartDate defaults to today.
	StartDate *time.Time
	Notes     string
}

func (in CourseInput) validate() error {
	if in.ClientID == 0 {
		return apperr.InvalidInput("client_id", "is required")
	}
	if strings.TrimSpace(in.Medication) == "" {
		return apperr.InvalidInput("medication", "is required")
	}
	if in.OpeningUnits < 0 {
		return apperr.InvalidQuantity("opening_units", "must not be negative")
	}
	return ledger.Input{
		PackSize:     in.PackSize,
		DailyUse:     in.DailyUse,
		DosePerAdmin: in.DosePerAdmin,
		AdminsPerDay: in.AdminsPerDay,
	}.Validate()
}

// CourseUpdate changes descriptive and dosing fields. Nil fields are kept.
// DailyUse is never derived here; it only changes when supplied.
type CourseUpdate struct {
	Medication   *string
	Strength     *string
	UnitLabel    *string
	DosePerAdmin *decimal.Decimal
	AdminsPerDay *decimal.Decimal
	DailyUse     *decimal.Decimal
	StartDate    *time.Time
	Notes        *string
}

func (u CourseUpdate) validate() error {
	if u.Medication != nil && strings.TrimSpace(*u.Medication) == "" {
		return apperr.InvalidInput("medication", "must not be blank")
	}
	for _, f := range []struct {
		name string
		v    *decimal.Decimal
	}{
		{"dose_per_admin", u.DosePerAdmin},
		{"admins_per_day", u.AdminsPerDay},
		{"daily_use", u.DailyUse},
	} {
		if f.v != nil && f.v.IsNegative() {
			return apperr.InvalidQuantity(f.name, "must not be negative")
		}
	}
	return nil
}

type courseFields struct {
	Medication   string          `json:"medication"`
	Strength     string          `json:"strength"`
	UnitLabel    string          `json:"unit_label"`
	DosePerAdmin decimal.Decimal `json:"dose_per_admin"`
	AdminsPerDay decimal.Decimal `json:"admins_per_day"`
	DailyUse     decimal.Decimal `json:"daily_use"`
	StartDate    string          `json:"start_date"`
	Notes        string          `json:"notes"`
}

func fieldsOfCourse(c *models.MedicationCourse) courseFields {
	return courseFields{
		Medication:   c.Medication,
		Strength:     c.Strength,
		UnitLabel:    c.UnitLabel,
		DosePerAdmin: c.DosePerAdmin,
		AdminsPerDay: c.AdminsPerDay,
		DailyUse:     c.DailyUse,
		StartDate:    c.StartDate.Format(clock.DateLayout),
		Notes:        c.Notes,
	}
}

// CourseView is a course together with its forecast, computed on read.
type CourseView struct {
	Course     *models.MedicationCourse
	Forecast   ledger.Forecast
	Assessment alerts.Assessment
	State      *models.AlertState
}

func (s *Service) CreateCourse(ctx context.Context, actor audit.Actor, in CourseInput) (*CourseView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	client, err := s.GetClient(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}

	daily := ledger.DailyUseFor(in.DosePerAdmin, in.AdminsPerDay)
	if in.DailyUse != nil {
		daily = *in.DailyUse
	}
	start := s.clock.Today()
	if in.StartDate != nil {
		start = clock.DateOf(*in.StartDate)
	}
	packs, loose := ledger.Decompose(in.OpeningUnits, in.PackSize)

	course := &models.MedicationCourse{
		ClientID:     in.ClientID,
		Medication:   strings.TrimSpace(in.Medication),
		Strength:     strings.TrimSpace(in.Strength),
		UnitLabel:    strings.TrimSpace(in.UnitLabel),
		DosePerAdmin: in.DosePerAdmin,
		AdminsPerDay: in.AdminsPerDay,
		DailyUse:     daily,
		PackSize:     in.PackSize,
		PacksOnHand:  packs,
		LooseUnits:   loose,
		OpeningUnits: in.OpeningUnits,
		StartDate:    start,
		Notes:        strings.TrimSpace(in.Notes),
	}
	if _, err := ledger.ForCourse(course); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(course).Error; err != nil {
		return nil, fmt.Errorf("creating course: %w", err)
	}
	course.Client = *client

	audit.BestEffort(ctx, s.audit, s.log, audit.Entry{
		Actor:       actor,
		Action:      models.AuditActionCourseCreated,
		EntityType:  models.EntityCourse,
		EntityID:    course.ID,
		ClientID:    &course.ClientID,
		Description: fmt.Sprintf("Course created: %s (%d units)", course.Medication, course.OpeningUnits),
		After:       fieldsOfCourse(course),
		Extra:       map[string]any{"stock": course.Snapshot()},
	})
	return s.view(course, nil)
}

func (s *Service) GetCourse(ctx context.Context, id uint) (*CourseView, error) {
	db := s.db.WithContext(ctx)
	course, err := database.FindCourse(db, id)
	if err != nil {
		return nil, err
	}
	var st models.AlertState
	err = db.Where("course_id = ?", id).First(&st).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.view(course, nil)
	case err != nil:
		return nil, fmt.Errorf("loading alert state for course %d: %w", id, err)
	}
	return s.view(course, &st)
}

// ListCourses returns live courses, optionally for one client.
func (s *Service) ListCourses(ctx context.Context, clientID *uint) ([]CourseView, error) {
	db := s.db.WithContext(ctx)
	q := db.Preload("Client").Order("client_id ASC").Order("medication ASC").Order("id ASC")
	if clientID != nil {
		q = q.Where("client_id = ?", *clientID)
	}
	var list []models.MedicationCourse
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}

	states, err := alerts.StatesFor(db, list)
	if err != nil {
		return nil, err
	}

	views := make([]CourseView, 0, len(list))
	for i := range list {
		v, err := s.view(&list[i], states[list[i].ID])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

func (s *Service) UpdateCourse(ctx context.Context, id uint, actor audit.Actor, u CourseUpdate) (*CourseView, error) {
	if err := u.validate(); err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, lock.CourseKey(id))
	if err != nil {
		return nil, fmt.Errorf("locking course %d: %w", id, err)
	}
	defer unlock()

	var (
		course *models.MedicationCourse
		before courseFields
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := database.LockCourse(tx, id)
		if err != nil {
			return err
		}
		before = fieldsOfCourse(c)

		if u.Medication != nil {
			c.Medication = strings.TrimSpace(*u.Medication)
		}
		if u.Strength != nil {
			c.Strength = strings.TrimSpace(*u.Strength)
		}
		if u.UnitLabel != nil {
			c.UnitLabel = strings.TrimSpace(*u.UnitLabel)
		}
		if u.DosePerAdmin != nil {
			c.DosePerAdmin = *u.DosePerAdmin
		}
		if u.AdminsPerDay != nil {
			c.AdminsPerDay = *u.AdminsPerDay
		}
		if u.DailyUse != nil {
			c.DailyUse = *u.DailyUse
		}
		if u.StartDate != nil {
			c.StartDate = clock.DateOf(*u.StartDate)
		}
		if u.Notes != nil {
			c.Notes = strings.TrimSpace(*u.Notes)
		}

		if _, err := ledger.ForCourse(c); err != nil {
			return err
		}
		course = c
		return tx.Model(c).Updates(map[string]interface{}{
			"medication":     c.Medication,
			"strength":       c.Strength,
			"unit_label":     c.UnitLabel,
			"dose_per_admin": c.DosePerAdmin,
			"admins_per_day": c.AdminsPerDay,
			"daily_use":      c.DailyUse,
			"start_date":     c.StartDate,
			"notes":          c.Notes,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	audit.BestEffort(ctx, s.audit, s.log, audit.Entry{
		Actor:       actor,
		Action:      models.AuditActionCourseUpdated,
		EntityType:  models.EntityCourse,
		EntityID:    course.ID,
		ClientID:    &course.ClientID,
		Description: fmt.Sprintf("Course updated: %s", course.Medication),
		Before:      before,
		After:       fieldsOfCourse(course),
	})
	return s.GetCourse(ctx, id)
}

// DeleteCourse soft-deletes; restock and audit history keep pointing at it.
func (s *Service) DeleteCourse(ctx context.Context, id uint, actor audit.Actor) error {
	unlock, err := s.locker.Lock(ctx, lock.CourseKey(id))
	if err != nil {
		return fmt.Errorf("locking course %d: %w", id, err)
	}
	defer unlock()

	var course *models.MedicationCourse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := database.LockCourse(tx, id)
		if err != nil {
			return err
		}
		course = c
		return tx.Delete(c).Error
	})
	if err != nil {
		return err
	}

	audit.BestEffort(ctx, s.audit, s.log, audit.Entry{
		Actor:       actor,
		Action:      models.AuditActionCourseDeleted,
		EntityType:  models.EntityCourse,
		EntityID:    course.ID,
		ClientID:    &course.ClientID,
		Description: fmt.Sprintf("Course deleted: %s", course.Medication),
		Before:      fieldsOfCourse(course),
	})
	return nil
}

func (s *Service) view(c *models.MedicationCourse, st *models.AlertState) (*CourseView, error) {
	f, err := ledger.ForCourse(c)
	if err != nil {
		return nil, err
	}
	return &CourseView{
		Course:     c,
		Forecast:   f,
		Assessment: alerts.Evaluate(f, st, s.clock.Now()),
		State:      st,
	}, nil
}
