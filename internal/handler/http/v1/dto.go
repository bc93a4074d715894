package v1

import (
	"time"

	"github.com/google/uuid"
)

// LocationDTO - координаты точки
// @Description Координаты точки
type LocationDTO struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// SOSRequest DTO для тревоги. location обязателен, при неудаче - (0,0) и причина.
// @Description DTO для тревоги
type SOSRequest struct {
	GestureID       *uuid.UUID   `json:"gesture_id,omitempty"`
	Location        *LocationDTO `json:"location" validate:"required"`
	LocationFailure string       `json:"location_failure,omitempty" validate:"omitempty,oneof=PERMISSION_DENIED POSITION_UNAVAILABLE TIMEOUT UNSUPPORTED"`
	TriggeredAt     *time.Time   `json:"triggered_at,omitempty"`
}

// SOSResponse DTO подтверждения тревоги
// @Description DTO подтверждения тревоги
type SOSResponse struct {
	IncidentID            uuid.UUID `json:"incident_id"`
	AcknowledgedAt        time.Time `json:"acknowledged_at"`
	EstimatedResponseTime string    `json:"estimated_response_time"`
	LocationFailure       string    `json:"location_failure,omitempty"`
	Duplicate             bool      `json:"duplicate"`
}

// IncidentResponse DTO для ответа с информацией об инциденте
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID              uuid.UUID   `json:"id"`
	UserID          string      `json:"user_id"`
	GestureID       *uuid.UUID  `json:"gesture_id,omitempty"`
	Location        LocationDTO `json:"location"`
	LocationFailure string      `json:"location_failure,omitempty"`
	Status          string      `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// UpdateIncidentStatusRequest DTO для закрытия инцидента
// @Description DTO для закрытия инцидента
type UpdateIncidentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=RESOLVED CANCELLED"`
}

// MessCrowdRequest DTO показаний загруженности столовой
// @Description DTO показаний загруженности столовой
type MessCrowdRequest struct {
	Level    *int   `json:"level" validate:"omitempty,min=0,max=100"`
	WaitTime string `json:"wait_time,omitempty"`
}

// ScheduleUpdateRequest DTO изменения расписания
// @Description DTO изменения расписания
type ScheduleUpdateRequest struct {
	Message string `json:"message" validate:"required,max=1000"`
	Type    string `json:"type,omitempty" validate:"omitempty,max=32"`
}

// SubscriptionRequest DTO подписки соединения на канал
// @Description DTO подписки соединения на канал
type SubscriptionRequest struct {
	Channel string `json:"channel" validate:"required"`
}

// SubscriptionResponse - текущие подписки соединения
// @Description Текущие подписки соединения
type SubscriptionResponse struct {
	ConnectionID string   `json:"connection_id"`
	Channels     []string `json:"channels"`
}

// ChannelStatsResponse - число подписчиков по каналам
// @Description Число подписчиков по каналам
type ChannelStatsResponse struct {
	Channels map[string]int `json:"channels"`
}

// RateLimitedResponse - ответ 429
// @Description Ответ при превышении лимита
type RateLimitedResponse struct {
	Error             string    `json:"error"`
	RetryAfterSeconds int       `json:"retry_after_seconds"`
	ResetAt           time.Time `json:"reset_at"`
}
