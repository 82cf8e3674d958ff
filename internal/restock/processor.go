// Package restock applies stock changes to medication courses and keeps the
// restock log that describes each one.
package restock

import (
	"context"
	"fmt"
	"math"
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

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RestockInput overwrites only the fields that are set.
type RestockInput struct {
	PackSize     *int64
	PacksOnHand  *int64
	LooseUnits   *int64
	OpeningUnits *int64
}

func (in RestockInput) validate() error {
	if in.PackSize == nil && in.PacksOnHand == nil && in.LooseUnits == nil && in.OpeningUnits == nil {
		return apperr.InvalidQuantity("packs_on_hand", "or another stock field is required")
	}
	if in.PackSize != nil && *in.PackSize < 1 {
		return apperr.InvalidQuantity("pack_size", "must be at least 1")
	}
	for _, f := range []struct {
		name string
		v    *int64
	}{
		{"packs_on_hand", in.PacksOnHand},
		{"loose_units", in.LooseUnits},
		{"opening_units", in.OpeningUnits},
	} {
		if f.v != nil && *f.v < 0 {
			return apperr.InvalidQuantity(f.name, "must not be negative")
		}
	}
	return nil
}

// StockCount is the physical count behind an adjustment. It is either an
// AbsoluteUnits or a PackBreakdown.
type StockCount interface {
	split(packSize int64) (packs, loose int64)
	validate() error
}

// AbsoluteUnits is a count of single units, split into whole packs and
// loose units using the course's pack size.
type AbsoluteUnits struct {
	TotalUnits int64
}

func (a AbsoluteUnits) split(packSize int64) (int64, int64) {
	return ledger.Decompose(a.TotalUnits, packSize)
}

func (a AbsoluteUnits) validate() error {
	if a.TotalUnits < 0 {
		return apperr.InvalidQuantity("total_units", "must not be negative")
	}
	return nil
}

// PackBreakdown is a count already split by the person counting.
type PackBreakdown struct {
	PacksOnHand int64
	LooseUnits  int64
}

func (b PackBreakdown) split(int64) (int64, int64) {
	return b.PacksOnHand, b.LooseUnits
}

func (b PackBreakdown) validate() error {
	if b.PacksOnHand < 0 {
		return apperr.InvalidQuantity("packs_on_hand", "must not be negative")
	}
	if b.LooseUnits < 0 {
		return apperr.InvalidQuantity("loose_units", "must not be negative")
	}
	return nil
}

type AdjustInput struct {
	Count  StockCount
	Reason string
	// AdjustmentDate becomes the course's forecast baseline. Nil means today.
	AdjustmentDate *time.Time
}

func (in AdjustInput) validate() error {
	if strings.TrimSpace(in.Reason) == "" {
		return apperr.MissingReason("reason")
	}
	if in.Count == nil {
		return apperr.InvalidQuantity("total_units", "or packs_on_hand and loose_units are required")
	}
	return in.Count.validate()
}

type Result struct {
	Course   *models.MedicationCourse
	Before   models.StockSnapshot
	After    models.StockSnapshot
	Log      models.RestockLog
	Forecast ledger.Forecast
}

type Processor struct {
	db     *gorm.DB
	locker lock.Locker
	audit  audit.Writer
	clock  clock.Clock
	log    *logger.Logger
}

func NewProcessor(db *gorm.DB, locker lock.Locker, w audit.Writer, clk clock.Clock, log *logger.Logger) *Processor {
	return &Processor{db: db, locker: locker, audit: w, clock: clk, log: log}
}

// Restock records newly available stock. The forecast baseline is left
// alone; the restock date becomes today.
func (p *Processor) Restock(ctx context.Context, courseID uint, actor audit.Actor, in RestockInput) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	today := p.clock.Today()
	return p.apply(ctx, change{
		courseID: courseID,
		actor:    actor,
		action:   models.RestockActionRestock,
		mutate: func(c *models.MedicationCourse) error {
			if in.PackSize != nil {
				c.PackSize = *in.PackSize
			}
			if in.PacksOnHand != nil {
				c.PacksOnHand = *in.PacksOnHand
			}
			if in.LooseUnits != nil {
				c.LooseUnits = *in.LooseUnits
			}
			if in.OpeningUnits != nil {
				c.OpeningUnits = *in.OpeningUnits
			}
			c.LastRestockDate = &today
			return nil
		},
	})
}

// Adjust replaces the recorded stock with a physical count and moves the
// forecast baseline to the adjustment date.
func (p *Processor) Adjust(ctx context.Context, courseID uint, actor audit.Actor, in AdjustInput) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	baseline := p.clock.Today()
	if in.AdjustmentDate != nil {
		baseline = clock.DateOf(*in.AdjustmentDate)
	}
	return p.apply(ctx, change{
		courseID: courseID,
		actor:    actor,
		action:   models.RestockActionAdjust,
		reason:   strings.TrimSpace(in.Reason),
		mutate: func(c *models.MedicationCourse) error {
			if baseline.Before(clock.DateOf(c.StartDate)) {
				return apperr.InvalidInput("adjustment_date", "must not be before the course start date")
			}
			c.PacksOnHand, c.LooseUnits = in.Count.split(c.PackSize)
			c.AdjustmentDate = &baseline
			return nil
		},
	})
}

// AddPacks adds delivered packs on top of the current count. inTx runs in
// the same transaction, after the stock change and its log row.
func (p *Processor) AddPacks(ctx context.Context, courseID uint, actor audit.Actor, packs int64, reason string, inTx func(tx *gorm.DB, course *models.MedicationCourse) error) (*Result, error) {
	if packs < 1 {
		return nil, apperr.InvalidQuantity("packs", "must be at least 1")
	}
	today := p.clock.Today()
	return p.apply(ctx, change{
		courseID: courseID,
		actor:    actor,
		action:   models.RestockActionRestock,
		reason:   reason,
		mutate: func(c *models.MedicationCourse) error {
			if c.PacksOnHand > math.MaxInt64-packs {
				return apperr.InvalidQuantity("packs", "is too large")
			}
			c.PacksOnHand += packs
			c.LastRestockDate = &today
			return nil
		},
		inTx: inTx,
	})
}

// History lists the course's restock log, newest first.
func (p *Processor) History(ctx context.Context, courseID uint) ([]models.RestockLog, error) {
	db := p.db.WithContext(ctx)
	if _, err := database.FindCourse(db, courseID); err != nil {
		return nil, err
	}
	logs := []models.RestockLog{}
	if err := db.Where("course_id = ?", courseID).Order("created_at DESC").Order("id DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("listing restock logs: %w", err)
	}
	return logs, nil
}

type change struct {
	courseID uint
	actor    audit.Actor
	action   models.RestockAction
	reason   string
	mutate   func(*models.MedicationCourse) error
	inTx     func(tx *gorm.DB, course *models.MedicationCourse) error
}

func (p *Processor) apply(ctx context.Context, ch change) (*Result, error) {
	unlock, err := p.locker.Lock(ctx, lock.CourseKey(ch.courseID))
	if err != nil {
		return nil, fmt.Errorf("locking course %d: %w", ch.courseID, err)
	}
	defer unlock()

	var res Result
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := database.LockCourse(tx, ch.courseID)
		if err != nil {
			return err
		}
		res.Before = course.Snapshot()

		if err := ch.mutate(course); err != nil {
			return err
		}
		forecast, err := ledger.ForCourse(course)
		if err != nil {
			return err
		}

		err = tx.Model(course).Updates(map[string]interface{}{
			"pack_size":         course.PackSize,
			"packs_on_hand":     course.PacksOnHand,
			"loose_units":       course.LooseUnits,
			"opening_units":     course.OpeningUnits,
			"adjustment_date":   course.AdjustmentDate,
			"last_restock_date": course.LastRestockDate,
		}).Error
		if err != nil {
			return fmt.Errorf("saving course %d: %w", course.ID, err)
		}

		res.After = course.Snapshot()
		res.Log = models.RestockLog{
			CourseID:  course.ID,
			ActorID:   ch.actor.ID,
			ActorName: ch.actor.Name,
			Action:    ch.action,
			Reason:    ch.reason,
			Before:    datatypes.NewJSONType(res.Before),
			After:     datatypes.NewJSONType(res.After),
		}
		if err := tx.Create(&res.Log).Error; err != nil {
			return fmt.Errorf("writing restock log: %w", err)
		}

		if ch.inTx != nil {
			if err := ch.inTx(tx, course); err != nil {
				return err
			}
		}

		res.Course = course
		res.Forecast = forecast
		return nil
	})
	if err != nil {
		return nil, err
	}

	extra := map[string]any{"restock_log_id": res.Log.ID}
	if ch.reason != "" {
		extra["reason"] = ch.reason
	}
	audit.BestEffort(ctx, p.audit, p.log, audit.Entry{
		Actor:       ch.actor,
		Action:      string(ch.action),
		EntityType:  models.EntityCourse,
		EntityID:    res.Course.ID,
		ClientID:    &res.Course.ClientID,
		Description: fmt.Sprintf("%s on course #%d: %d -> %d units", ch.action, res.Course.ID, res.Before.TotalUnits, res.After.TotalUnits),
		Before:      res.Before,
		After:       res.After,
		Extra:       extra,
	})
	return &res, nil
}
