package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	AuditActionAcknowledged = "alert.acknowledged"
	AuditActionSnoozed      = "alert.snoozed"
	AuditActionUnsnoozed    = "alert.unsnoozed"
	AuditActionRestock      = "restock"
	AuditActionAdjustStock  = "adjust-stock"

	AuditActionCourseCreated = "course.created"
	AuditActionCourseUpdated = "course.updated"
	AuditActionCourseDeleted = "course.deleted"
	AuditActionClientCreated = "client.created"
	AuditActionClientUpdated = "client.updated"
	AuditActionClientDeleted = "client.deleted"
	AuditActionOrderCreated  = "order.created"
	AuditActionOrderReceived = "order.received"
	AuditActionOrderCanceled = "order.cancelled"
)

const (
	EntityCourse = "course"
	EntityClient = "client"
	EntityOrder  = "order"
)

// AuditLog is append-only. Metadata carries "before"/"after" objects when a
// change has them, plus "client_id" so entries can be filtered per client.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	UserID   *uint  `gorm:"index" json:"user_id"`
	UserName string `gorm:"size:100;index" json:"user_name"` // denormalized

	Action     string `gorm:"size:50;index" json:"action"`
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   uint   `gorm:"index" json:"entity_id"`

	Description string         `gorm:"size:255" json:"description"`
	Metadata    datatypes.JSON `json:"metadata"`

	IP        string `gorm:"size:64" json:"ip"`
	UserAgent string `gorm:"size:255" json:"user_agent"`
}
