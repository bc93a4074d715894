package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/sos_broadcasting_system/internal/broadcast"
	"github.com/shenikar/sos_broadcasting_system/internal/config"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
	"github.com/shenikar/sos_broadcasting_system/internal/webhook"
)

const (
	EventCriticalAlert = "CRITICAL_ALERT"

	defaultFanoutTimeout = 10 * time.Second
)

// DispatchService регистрирует тревогу не более одного раза на жест
type DispatchService interface {
	Dispatch(ctx context.Context, req models.DispatchRequest) (*models.Acknowledgement, error)
	// Wait дожидается завершения фоновых рассылок
	Wait()
}

type dispatchService struct {
	repo      IncidentRepository
	publisher broadcast.Publisher
	webhooks  webhook.WebhookPublisher
	clock     clockwork.Clock
	logger    *logrus.Logger

	estimatedResponse string
	fanoutTimeout     time.Duration

	wg sync.WaitGroup
}

func NewDispatchService(
	repo IncidentRepository,
	publisher broadcast.Publisher,
	webhooks webhook.WebhookPublisher,
	clock clockwork.Clock,
	logger *logrus.Logger,
	cfg *config.Config,
) DispatchService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &dispatchService{
		repo:              repo,
		publisher:         publisher,
		webhooks:          webhooks,
		clock:             clock,
		logger:            logger,
		estimatedResponse: cfg.EstimatedResponseTime,
		fanoutTimeout:     cfg.DispatchFanoutTimeout,
	}
	if s.fanoutTimeout <= 0 {
		s.fanoutTimeout = defaultFanoutTimeout
	}
	return s
}

// Dispatch сохраняет инцидент и подтверждает его сразу после записи.
// Оповещение охраны идет в фоне и на подтверждение не влияет.
func (s *dispatchService) Dispatch(ctx context.Context, req models.DispatchRequest) (*models.Acknowledgement, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":          "dispatch",
		"method":           "Dispatch",
		"user_id":          req.UserID,
		"location_failure": req.LocationFailure,
	})

	if req.UserID == "" {
		return nil, ErrUserRequired
	}
	if req.Coordinates == nil {
		log.Warn("SOS rejected: no coordinates")
		return nil, ErrLocationRequired
	}

	failure := req.LocationFailure
	if !failure.Valid() {
		failure = models.LocationFailurePositionUnavailable
	}
	coords := *req.Coordinates
	if failure.Failed() {
		coords = models.SentinelCoordinates
	}

	if req.GestureID != nil {
		log = log.WithField("gesture_id", *req.GestureID)
		existing, err := s.repo.GetByGesture(ctx, req.UserID, *req.GestureID)
		switch {
		case err == nil:
			log.WithField("incident_id", existing.ID).Info("Duplicate SOS for gesture, returning existing incident")
			return s.acknowledge(existing, true), nil
		case !errors.Is(err, ErrIncidentNotFound):
			log.WithError(err).Error("Failed to look up incident by gesture")
			return nil, fmt.Errorf("%w: %w", ErrIncidentNotRecorded, err)
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%w: could not generate id: %w", ErrIncidentNotRecorded, err)
	}

	now := s.clock.Now().UTC()
	incident := &models.Incident{
		ID:              id,
		UserID:          req.UserID,
		GestureID:       req.GestureID,
		Location:        coords,
		LocationFailure: failure,
		Status:          models.IncidentStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, incident); err != nil {
		if errors.Is(err, ErrDuplicateGesture) && req.GestureID != nil {
			// Параллельный запрос того же жеста успел записать первым
			existing, getErr := s.repo.GetByGesture(ctx, req.UserID, *req.GestureID)
			if getErr == nil {
				return s.acknowledge(existing, true), nil
			}
			err = errors.Join(err, getErr)
		}
		log.WithError(err).Error("Failed to record incident")
		return nil, fmt.Errorf("%w: %w", ErrIncidentNotRecorded, err)
	}

	log.WithField("incident_id", incident.ID).Info("SOS incident recorded")
	s.fanOut(incident)

	return s.acknowledge(incident, false), nil
}

func (s *dispatchService) Wait() {
	s.wg.Wait()
}

func (s *dispatchService) acknowledge(incident *models.Incident, duplicate bool) *models.Acknowledgement {
	return &models.Acknowledgement{
		IncidentID:            incident.ID,
		AcknowledgedAt:        s.clock.Now().UTC(),
		EstimatedResponseTime: s.estimatedResponse,
		LocationFailure:       incident.LocationFailure,
		Duplicate:             duplicate,
	}
}

// fanOut оповещает канал security и внешний диспетчер. Контекст запроса
// не используется: клиент может отключиться сразу после подтверждения.
func (s *dispatchService) fanOut(incident *models.Incident) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.fanoutTimeout)
		defer cancel()

		log := s.logger.WithFields(logrus.Fields{
			"service":     "dispatch",
			"method":      "fanOut",
			"incident_id": incident.ID,
			"user_id":     incident.UserID,
		})

		alert := models.SecurityAlert{
			IncidentID:      incident.ID,
			UserID:          incident.UserID,
			Location:        incident.Location,
			LocationFailure: incident.LocationFailure,
			Timestamp:       incident.CreatedAt,
		}
		msg, err := broadcast.NewMessage(broadcast.ChannelSecurity, EventCriticalAlert, alert, incident.CreatedAt)
		if err != nil {
			log.WithError(err).Error("Failed to build security alert")
		} else if err := s.publisher.Publish(ctx, msg); err != nil {
			log.WithError(err).Error("Failed to broadcast security alert")
		}

		if s.webhooks != nil {
			if err := s.webhooks.Publish(ctx, webhook.NewIncidentEvent(incident)); err != nil {
				log.WithError(err).Error("Failed to queue safety dispatcher webhook")
			}
		}
	}()
}
