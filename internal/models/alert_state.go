package models

import "time"

// AlertState records human intervention on top of a course's computed tier.
// Acknowledge and snooze are independent; neither clears the other.
type AlertState struct {
	CourseID uint `gorm:"primaryKey;autoIncrement:false" json:"course_id"`

	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	AcknowledgedBy *uint      `json:"acknowledged_by"`
	AckNote        *string    `gorm:"size:500" json:"ack_note"`

	SnoozedUntil *time.Time `json:"snoozed_until"`
	SnoozedBy    *uint      `json:"snoozed_by"`
	SnoozeNote   *string    `gorm:"size:500" json:"snooze_note"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (s *AlertState) ActivelySnoozed(now time.Time) bool {
	return s != nil && s.SnoozedUntil != nil && s.SnoozedUntil.After(now)
}

type AckFields struct {
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	AcknowledgedBy *uint      `json:"acknowledged_by"`
	AckNote        *string    `json:"ack_note"`
}

type SnoozeFields struct {
	SnoozedUntil *time.Time `json:"snoozed_until"`
	SnoozedBy    *uint      `json:"snoozed_by"`
	SnoozeNote   *string    `json:"snooze_note"`
}

func (s *AlertState) Ack() AckFields {
	if s == nil {
		return AckFields{}
	}
	return AckFields{AcknowledgedAt: s.AcknowledgedAt, AcknowledgedBy: s.AcknowledgedBy, AckNote: s.AckNote}
}

func (s *AlertState) Snooze() SnoozeFields {
	if s == nil {
		return SnoozeFields{}
	}
	return SnoozeFields{SnoozedUntil: s.SnoozedUntil, SnoozedBy: s.SnoozedBy, SnoozeNote: s.SnoozeNote}
}
