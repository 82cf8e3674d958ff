package models

import "time"

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderReceived  OrderStatus = "received"
	OrderCancelled OrderStatus = "cancelled"
)

// MedicationOrder is a pharmacy order for more packs of a course. Receiving
// it restocks the course.
type MedicationOrder struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	CourseID     uint             `gorm:"index;not null" json:"course_id"`
	Course       MedicationCourse `json:"-"`
	PacksOrdered int64            `gorm:"not null" json:"packs_ordered"`
	Status       OrderStatus      `gorm:"size:20;index;not null" json:"status"`
	Note         string           `gorm:"size:255" json:"note"`
	OrderedBy    *uint            `json:"ordered_by"`
	OrderedAt    time.Time        `json:"ordered_at"`
	ReceivedAt   *time.Time       `json:"received_at"`
	CancelledAt  *time.Time       `json:"cancelled_at"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
