// Package ledger turns a course's stock counters and dosing rate into a
// depletion forecast. Everything here is pure: no clock, no storage.
package ledger

import (
	"math"
	"time"

	"medstock-backend/internal/apperr"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/models"

	"github.com/shopspring/decimal"
)

// MaxForecastDays bounds days_remaining so runout dates stay representable.
const MaxForecastDays = 1_000_000

type Input struct {
	PackSize    int64
	PacksOnHand int64
	LooseUnits  int64

	// DailyUse wins when set. Otherwise DosePerAdmin*AdminsPerDay is used.
	DailyUse     *decimal.Decimal
	DosePerAdmin decimal.Decimal
	AdminsPerDay decimal.Decimal

	Baseline time.Time
}

// Forecast is the result for one course. DaysRemaining, HalfDate and
// RunoutDate are nil when the daily use is zero or unknown.
type Forecast struct {
	TotalUnits    int64           `json:"units_remaining"`
	DailyUse      decimal.Decimal `json:"daily_use"`
	DaysRemaining *int64          `json:"days_remaining"`
	Baseline      time.Time       `json:"baseline_date"`
	HalfDate      *time.Time      `json:"half_date"`
	RunoutDate    *time.Time      `json:"runout_date"`
}

func InputFor(c *models.MedicationCourse) Input {
	daily := c.DailyUse
	return Input{
		PackSize:     c.PackSize,
		PacksOnHand:  c.PacksOnHand,
		LooseUnits:   c.LooseUnits,
		DailyUse:     &daily,
		DosePerAdmin: c.DosePerAdmin,
		AdminsPerDay: c.AdminsPerDay,
		Baseline:     c.BaselineDate(),
	}
}

// DailyUseFor is the default daily consumption for a new course.
func DailyUseFor(dosePerAdmin, adminsPerDay decimal.Decimal) decimal.Decimal {
	return dosePerAdmin.Mul(adminsPerDay)
}

func TotalUnits(packSize, packsOnHand, looseUnits int64) int64 {
	return packsOnHand*packSize + looseUnits
}

// Validate rejects counters that cannot describe physical stock. Nothing is
// ever clamped.
func (in Input) Validate() error {
	if in.PackSize < 1 {
		return apperr.InvalidQuantity("pack_size", "must be at least 1")
	}
	if in.PacksOnHand < 0 {
		return apperr.InvalidQuantity("packs_on_hand", "must not be negative")
	}
	if in.LooseUnits < 0 {
		return apperr.InvalidQuantity("loose_units", "must not be negative")
	}
	if in.PacksOnHand > (math.MaxInt64-in.LooseUnits)/in.PackSize {
		return apperr.InvalidQuantity("packs_on_hand", "is too large")
	}
	if in.DailyUse != nil && in.DailyUse.IsNegative() {
		return apperr.InvalidQuantity("daily_use", "must not be negative")
	}
	if in.DosePerAdmin.IsNegative() {
		return apperr.InvalidQuantity("dose_per_admin", "must not be negative")
	}
	if in.AdminsPerDay.IsNegative() {
		return apperr.InvalidQuantity("admins_per_day", "must not be negative")
	}
	return nil
}

func Compute(in Input) (Forecast, error) {
	if err := in.Validate(); err != nil {
		return Forecast{}, err
	}

	daily := DailyUseFor(in.DosePerAdmin, in.AdminsPerDay)
	if in.DailyUse != nil {
		daily = *in.DailyUse
	}
	baseline := clock.DateOf(in.Baseline)

	f := Forecast{
		TotalUnits: TotalUnits(in.PackSize, in.PacksOnHand, in.LooseUnits),
		DailyUse:   daily,
		Baseline:   baseline,
	}
	if !daily.IsPositive() {
		return f, nil
	}

	// QuoRem at precision 0 gives the exact integer quotient; for
	// non-negative operands that is the floor.
	q, _ := decimal.NewFromInt(f.TotalUnits).QuoRem(daily, 0)
	if q.GreaterThan(decimal.NewFromInt(MaxForecastDays)) {
		return Forecast{}, apperr.InvalidQuantity("daily_use", "is too small for the stock on hand")
	}
	days := q.IntPart()
	half := days / 2

	runout := clock.AddDays(baseline, days)
	halfDate := clock.AddDays(baseline, half)
	f.DaysRemaining = &days
	f.RunoutDate = &runout
	f.HalfDate = &halfDate
	return f, nil
}

// ForCourse computes the forecast from a stored course.
func ForCourse(c *models.MedicationCourse) (Forecast, error) {
	return Compute(InputFor(c))
}

// Decompose splits a unit count into whole packs and loose units.
func Decompose(totalUnits, packSize int64) (packs, loose int64) {
	return totalUnits / packSize, totalUnits % packSize
}
