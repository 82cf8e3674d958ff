package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MedicationCourse is one prescribed medication for one client, with its own
// stock counters and dosing rate. Forecast fields (status, half date, runout
// date) are derived on every read and are not columns.
type MedicationCourse struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ClientID   uint   `gorm:"index;not null" json:"client_id"`
	Client     Client `json:"-"`
	Medication string `gorm:"size:150;not null" json:"medication"`
	Strength   string `gorm:"size:50" json:"strength"`
	UnitLabel  string `gorm:"size:30" json:"unit_label"` // tablet, capsule, ml...

	DosePerAdmin decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"dose_per_admin"`
	AdminsPerDay decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"admins_per_day"`
	DailyUse     decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"daily_use"`

	PackSize     int64 `gorm:"not null" json:"pack_size"`
	PacksOnHand  int64 `gorm:"not null;default:0" json:"packs_on_hand"`
	LooseUnits   int64 `gorm:"not null;default:0" json:"loose_units"`
	OpeningUnits int64 `gorm:"not null;default:0" json:"opening_units"`

	StartDate       time.Time  `gorm:"type:date;not null" json:"start_date"`
	AdjustmentDate  *time.Time `gorm:"type:date" json:"adjustment_date"`
	LastRestockDate *time.Time `gorm:"type:date" json:"last_restock_date"`

	Notes     string         `gorm:"size:500" json:"notes"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *MedicationCourse) TotalUnits() int64 {
	return c.PacksOnHand*c.PackSize + c.LooseUnits
}

// BaselineDate is the day the depletion forecast counts from: the last stock
// adjustment if there was one, the start date otherwise.
func (c *MedicationCourse) BaselineDate() time.Time {
	if c.AdjustmentDate != nil {
		return *c.AdjustmentDate
	}
	return c.StartDate
}

func (c *MedicationCourse) Snapshot() StockSnapshot {
	s := StockSnapshot{
		PackSize:     c.PackSize,
		PacksOnHand:  c.PacksOnHand,
		LooseUnits:   c.LooseUnits,
		OpeningUnits: c.OpeningUnits,
		TotalUnits:   c.TotalUnits(),
	}
	if c.LastRestockDate != nil {
		d := c.LastRestockDate.Format("2006-01-02")
		s.RestockDate = &d
	}
	if c.AdjustmentDate != nil {
		d := c.AdjustmentDate.Format("2006-01-02")
		s.AdjustmentDate = &d
	}
	return s
}
