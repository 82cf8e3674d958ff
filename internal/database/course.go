package database

import (
	"errors"
	"fmt"

	"medstock-backend/internal/apperr"
	"medstock-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockCourse loads a live course inside tx and holds its row until tx ends.
// Soft-deleted and unknown ids both come back as apperr.ErrNotFound.
func LockCourse(tx *gorm.DB, courseID uint) (*models.MedicationCourse, error) {
	var course models.MedicationCourse
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&course, courseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("course")
	}
	if err != nil {
		return nil, fmt.Errorf("loading course %d: %w", courseID, err)
	}
	return &course, nil
}

// FindCourse is the unlocked read used by query paths.
func FindCourse(db *gorm.DB, courseID uint) (*models.MedicationCourse, error) {
	var course models.MedicationCourse
	err := db.Preload("Client").First(&course, courseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("course")
	}
	if err != nil {
		return nil, fmt.Errorf("loading course %d: %w", courseID, err)
	}
	return &course, nil
}
