package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

const (
	webhookQueueKey = "webhook_events"

	EventIncidentCreated = "incident.created"
)

// IncidentEvent - уведомление внешнего диспетчера службы безопасности
type IncidentEvent struct {
	Type            string                 `json:"type"`
	IncidentID      uuid.UUID              `json:"incident_id"`
	UserID          string                 `json:"user_id"`
	Latitude        float64                `json:"latitude"`
	Longitude       float64                `json:"longitude"`
	LocationFailure models.LocationFailure `json:"location_failure,omitempty"`
	Status          models.IncidentStatus  `json:"status"`
	Timestamp       time.Time              `json:"timestamp"`
}

// NewIncidentEvent собирает событие по сохраненному инциденту
func NewIncidentEvent(incident *models.Incident) IncidentEvent {
	return IncidentEvent{
		Type:            EventIncidentCreated,
		IncidentID:      incident.ID,
		UserID:          incident.UserID,
		Latitude:        incident.Location.Lat,
		Longitude:       incident.Location.Lng,
		LocationFailure: incident.LocationFailure,
		Status:          incident.Status,
		Timestamp:       incident.CreatedAt,
	}
}

// WebhookPublisher - интерфейс для публикации вебхуков
type WebhookPublisher interface {
	Publish(ctx context.Context, event IncidentEvent) error
}

// RedisWebhookPublisher - реализация WebhookPublisher, использующая Redis
type RedisWebhookPublisher struct {
	redisClient *redis.Client
}

// NewRedisWebhookPublisher создает новый RedisWebhookPublisher
func NewRedisWebhookPublisher(client *redis.Client) *RedisWebhookPublisher {
	return &RedisWebhookPublisher{
		redisClient: client,
	}
}

// Publish кладет событие в очередь Redis, доставку выполняет WebhookWorker
func (p *RedisWebhookPublisher) Publish(ctx context.Context, event IncidentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	// LPUSH слева, воркер забирает справа (FIFO)
	if err := p.redisClient.LPush(ctx, webhookQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish webhook event to Redis: %w", err)
	}
	return nil
}
