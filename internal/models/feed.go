package models

import (
	"time"

	"github.com/google/uuid"
)

// SecurityAlert публикуется в канал security при каждой новой тревоге
type SecurityAlert struct {
	IncidentID      uuid.UUID       `json:"incidentId"`
	UserID          string          `json:"userId"`
	Location        Coordinates     `json:"location"`
	LocationFailure LocationFailure `json:"locationFailure,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// CrowdStatus - словесная оценка загруженности столовой
type CrowdStatus string

const (
	CrowdStatusLow      CrowdStatus = "Low"
	CrowdStatusModerate CrowdStatus = "Moderate"
	CrowdStatusHigh     CrowdStatus = "High"
)

// CrowdStatusForLevel переводит уровень 0..100 в статус
func CrowdStatusForLevel(level int) CrowdStatus {
	switch {
	case level > 75:
		return CrowdStatusHigh
	case level > 40:
		return CrowdStatusModerate
	default:
		return CrowdStatusLow
	}
}

// DefaultWaitTime - ожидаемое время очереди для статуса
func DefaultWaitTime(status CrowdStatus) string {
	switch status {
	case CrowdStatusHigh:
		return "20+ mins"
	case CrowdStatusModerate:
		return "10 mins"
	default:
		return "No wait"
	}
}

// MessCrowdUpdate публикуется в канал mess-crowd
type MessCrowdUpdate struct {
	Level     int         `json:"level"`
	Status    CrowdStatus `json:"status"`
	WaitTime  string      `json:"waitTime"`
	Timestamp time.Time   `json:"timestamp"`
}

// ScheduleUpdate публикуется в канал academic-schedule
type ScheduleUpdate struct {
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
