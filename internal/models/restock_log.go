package models

import (
	"time"

	"gorm.io/datatypes"
)

type RestockAction string

const (
	RestockActionRestock RestockAction = "restock"
	RestockActionAdjust  RestockAction = "adjust-stock"
)

// StockSnapshot is the before/after shape stored on every RestockLog.
type StockSnapshot struct {
	PackSize       int64   `json:"pack_size"`
	PacksOnHand    int64   `json:"packs_on_hand"`
	LooseUnits     int64   `json:"loose_units"`
	OpeningUnits   int64   `json:"opening_units"`
	TotalUnits     int64   `json:"total_units"`
	RestockDate    *string `json:"restock_date,omitempty"`
	AdjustmentDate *string `json:"adjustment_date,omitempty"`
}

// RestockLog is written in the same transaction as the stock change it
// describes and is never updated afterwards.
type RestockLog struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	CourseID  uint          `gorm:"index;not null" json:"course_id"`
	ActorID   *uint         `json:"actor_id"`
	ActorName string        `gorm:"size:100" json:"actor_name"`
	Action    RestockAction `gorm:"size:20;not null" json:"action"`
	Reason    string        `gorm:"size:500" json:"reason"`

	Before datatypes.JSONType[StockSnapshot] `json:"before"`
	After  datatypes.JSONType[StockSnapshot] `json:"after"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
