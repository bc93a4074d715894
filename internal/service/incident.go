package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

var (
	ErrIncidentNotFound     = errors.New("incident not found")
	ErrDuplicateGesture     = errors.New("incident for this gesture already exists")
	ErrInvalidTransition    = errors.New("invalid incident status transition")
	ErrIncidentNotRecorded  = errors.New("incident was not recorded")
	ErrLocationRequired     = errors.New("location is required")
	ErrUserRequired         = errors.New("user is required")
	ErrInvalidIncidentState = errors.New("invalid incident status")
)

// IncidentRepository определяет контракт для работы с бд инцидентов
type IncidentRepository interface {
	// Create возвращает ErrDuplicateGesture, если для (user_id, gesture_id) уже есть инцидент
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	GetByGesture(ctx context.Context, userID string, gestureID uuid.UUID) (*models.Incident, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.IncidentStatus) (*models.Incident, error)
	ListIncidents(ctx context.Context, status models.IncidentStatus, page, pageSize int) ([]*models.Incident, error)

	GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	SetIncidentCache(ctx context.Context, incident *models.Incident) error
	InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error
}

// IncidentService - чтение инцидентов службой безопасности и смена их статуса
type IncidentService interface {
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, status models.IncidentStatus, page, pageSize int) ([]*models.Incident, error)
	UpdateIncidentStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus) (*models.Incident, error)
}

type incidentService struct {
	repo   IncidentRepository
	logger *logrus.Logger
}

func NewIncidentService(repo IncidentRepository, logger *logrus.Logger) IncidentService {
	return &incidentService{
		repo:   repo,
		logger: logger,
	}
}

// GetIncident получает инцидент по ID, сначала из кеша
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})
	log.Info("Fetching incident by ID")

	incident, err := s.repo.GetIncidentFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident from cache, falling back to DB")
	}
	if incident != nil {
		log.Info("Incident fetched from cache")
		return incident, nil
	}

	incident, err = s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrIncidentNotFound) {
			log.Warn("Incident not found")
			return nil, err
		}
		log.WithError(err).Error("Failed to get incident in repository")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}

	if err := s.repo.SetIncidentCache(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to set incident cache")
	}

	log.Info("Incident fetched successfully")
	return incident, nil
}

// ListIncidents возвращает список инцидентов с пагинацией, пустой status - все
func (s *incidentService) ListIncidents(ctx context.Context, status models.IncidentStatus, page, pageSize int) ([]*models.Incident, error) {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "ListIncidents",
		"status":    status,
		"page":      page,
		"page_size": pageSize,
	})
	log.Info("Listing incidents")

	switch status {
	case "", models.IncidentStatusActive, models.IncidentStatusResolved, models.IncidentStatusCancelled:
	default:
		return nil, ErrInvalidIncidentState
	}

	incidents, err := s.repo.ListIncidents(ctx, status, page, pageSize)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Info("Incidents listed successfully")
	return incidents, nil
}

// UpdateIncidentStatus закрывает инцидент: ACTIVE -> RESOLVED или ACTIVE -> CANCELLED
func (s *incidentService) UpdateIncidentStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "UpdateIncidentStatus",
		"incident_id": id,
		"status":      status,
	})
	log.Info("Attempting to update incident status")

	if !models.IncidentStatusActive.CanTransitionTo(status) {
		return nil, ErrInvalidTransition
	}

	incident, err := s.repo.UpdateStatus(ctx, id, models.IncidentStatusActive, status)
	if err != nil {
		if errors.Is(err, ErrIncidentNotFound) || errors.Is(err, ErrInvalidTransition) {
			log.WithError(err).Warn("Incident status was not updated")
			return nil, err
		}
		log.WithError(err).Error("Failed to update incident status in repository")
		return nil, fmt.Errorf("service: could not update incident status: %w", err)
	}

	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}

	log.Info("Incident status updated successfully")
	return incident, nil
}
