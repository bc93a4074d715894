package models

import (
	"time"

	"github.com/google/uuid"
)

// DispatchRequest - входные данные для регистрации тревоги.
// Coordinates == nil означает полное отсутствие координат и отклоняется.
type DispatchRequest struct {
	UserID          string
	GestureID       *uuid.UUID
	Coordinates     *Coordinates
	LocationFailure LocationFailure
	TriggeredAt     time.Time
}

// Acknowledgement - подтверждение, возвращаемое сразу после сохранения инцидента
type Acknowledgement struct {
	IncidentID            uuid.UUID       `json:"incident_id"`
	AcknowledgedAt        time.Time       `json:"acknowledged_at"`
	EstimatedResponseTime string          `json:"estimated_response_time"`
	LocationFailure       LocationFailure `json:"location_failure,omitempty"`
	Duplicate             bool            `json:"duplicate"`
}
