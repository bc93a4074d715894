package models

import (
	"time"

	"github.com/google/uuid"
)

// IncidentStatus - статус тревожного инцидента
type IncidentStatus string

const (
	IncidentStatusActive    IncidentStatus = "ACTIVE"
	IncidentStatusResolved  IncidentStatus = "RESOLVED"
	IncidentStatusCancelled IncidentStatus = "CANCELLED"
)

// CanTransitionTo проверяет допустимость перехода статуса.
// Разрешены только ACTIVE->RESOLVED и ACTIVE->CANCELLED.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	return s == IncidentStatusActive &&
		(next == IncidentStatusResolved || next == IncidentStatusCancelled)
}

type Incident struct {
	ID              uuid.UUID       `json:"id"`
	UserID          string          `json:"user_id"`
	GestureID       *uuid.UUID      `json:"gesture_id,omitempty"`
	Location        Coordinates     `json:"location"`
	LocationFailure LocationFailure `json:"location_failure,omitempty"`
	Status          IncidentStatus  `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
