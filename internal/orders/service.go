// Package orders tracks pharmacy orders for medication courses. Receiving an
// order restocks its course.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"medstock-backend/internal/apperr"
	"medstock-backend/internal/audit"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/database"
	"medstock-backend/internal/logger"
	"medstock-backend/internal/models"
	"medstock-backend/internal/restock"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Stocker adds delivered packs to a course. Implemented by restock.Processor.
type Stocker interface {
	AddPacks(ctx context.Context, courseID uint, actor audit.Actor, packs int64, reason string, inTx func(tx *gorm.DB, course *models.MedicationCourse) error) (*restock.Result, error)
}

type Service struct {
	db      *gorm.DB
	stocker Stocker
	audit   audit.Writer
	clock   clock.Clock
	log     *logger.Logger
}

func NewService(db *gorm.DB, stocker Stocker, w audit.Writer, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{db: db, stocker: stocker, audit: w, clock: clk, log: log}
}

type Filter struct {
	Status   models.OrderStatus
	CourseID *uint
}

func (s *Service) Create(ctx context.Context, courseID uint, actor audit.Actor, packs int64, note string) (*models.MedicationOrder, error) {
	if packs < 1 {
		return nil, apperr.InvalidQuantity("packs_ordered", "must be at least 1")
	}
	course, err := database.FindCourse(s.db.WithContext(ctx), courseID)
	if err != nil {
		return nil, err
	}

	order := &models.MedicationOrder{
		CourseID:     course.ID,
		PacksOrdered: packs,
		Status:       models.OrderPending,
		Note:         strings.TrimSpace(note),
		OrderedBy:    actor.ID,
		OrderedAt:    s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	s.record(ctx, actor, models.AuditActionOrderCreated, order, course.ClientID, nil,
		fmt.Sprintf("Ordered %d packs of %s", packs, course.Medication))
	return order, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.MedicationOrder, error) {
	q := s.db.WithContext(ctx).Order("ordered_at DESC").Order("id DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CourseID != nil {
		q = q.Where("course_id = ?", *f.CourseID)
	}
	list := []models.MedicationOrder{}
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return list, nil
}

// PendingCount counts pending orders of live courses.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.MedicationOrder{}).
		Joins("JOIN medication_courses ON medication_courses.id = medication_orders.course_id AND medication_courses.deleted_at IS NULL").
		Where("medication_orders.status = ?", models.OrderPending).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting pending orders: %w", err)
	}
	return n, nil
}

// Receive adds the ordered packs to the course and closes the order in the
// same transaction.
func (s *Service) Receive(ctx context.Context, orderID uint, actor audit.Actor) (*models.MedicationOrder, *restock.Result, error) {
	order, err := s.find(s.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.Status != models.OrderPending {
		return nil, nil, notPending(order)
	}

	reason := fmt.Sprintf("order #%d received", order.ID)
	res, err := s.stocker.AddPacks(ctx, order.CourseID, actor, order.PacksOrdered, reason, func(tx *gorm.DB, _ *models.MedicationCourse) error {
		locked, err := s.find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), orderID)
		if err != nil {
			return err
		}
		if locked.Status != models.OrderPending {
			return notPending(locked)
		}
		now := s.clock.Now()
		locked.Status = models.OrderReceived
		locked.ReceivedAt = &now
		order = locked
		return tx.Model(locked).Updates(map[string]interface{}{
			"status":      locked.Status,
			"received_at": locked.ReceivedAt,
		}).Error
	})
	if err != nil {
		return nil, nil, err
	}

	s.record(ctx, actor, models.AuditActionOrderReceived, order, res.Course.ClientID,
		map[string]any{"restock_log_id": res.Log.ID},
		fmt.Sprintf("Received %d packs for course #%d", order.PacksOrdered, order.CourseID))
	return order, res, nil
}

func (s *Service) Cancel(ctx context.Context, orderID uint, actor audit.Actor) (*models.MedicationOrder, error) {
	var (
		order    *models.MedicationOrder
		clientID uint
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), orderID)
		if err != nil {
			return err
		}
		if o.Status != models.OrderPending {
			return notPending(o)
		}
		now := s.clock.Now()
		o.Status = models.OrderCancelled
		o.CancelledAt = &now
		order = o

		var course models.MedicationCourse
		if err := tx.Unscoped().Select("client_id").First(&course, o.CourseID).Error; err != nil {
			return fmt.Errorf("loading course of order %d: %w", o.ID, err)
		}
		clientID = course.ClientID

		return tx.Model(o).Updates(map[string]interface{}{
			"status":       o.Status,
			"cancelled_at": o.CancelledAt,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, models.AuditActionOrderCanceled, order, clientID, nil,
		fmt.Sprintf("Cancelled order #%d", order.ID))
	return order, nil
}

func (s *Service) find(db *gorm.DB, orderID uint) (*models.MedicationOrder, error) {
	var o models.MedicationOrder
	err := db.First(&o, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("order")
	}
	if err != nil {
		return nil, fmt.Errorf("loading order %d: %w", orderID, err)
	}
	return &o, nil
}

func (s *Service) record(ctx context.Context, actor audit.Actor, action string, o *models.MedicationOrder, clientID uint, extra map[string]any, desc string) {
	if extra == nil {
		extra = map[string]any{}
	}
	extra["course_id"] = o.CourseID
	extra["packs_ordered"] = o.PacksOrdered
	extra["status"] = o.Status
	audit.BestEffort(ctx, s.audit, s.log, audit.Entry{
		Actor:       actor,
		Action:      action,
		EntityType:  models.EntityOrder,
		EntityID:    o.ID,
		ClientID:    &clientID,
		Description: desc,
		Extra:       extra,
	})
}

func notPending(o *models.MedicationOrder) error {
	return apperr.InvalidInput("status", fmt.Sprintf("order #%d is %s, not pending", o.ID, o.Status))
}
