package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/sos_broadcasting_system/internal/broadcast"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

const (
	EventCrowdUpdate    = "CROWD_UPDATE"
	EventScheduleUpdate = "SCHEDULE_UPDATE"
	EventNotification   = "notification"
)

var (
	ErrInvalidCrowdLevel = errors.New("crowd level must be between 0 and 100")
	ErrEmptyMessage      = errors.New("message is required")
)

// FeedService публикует сообщения кампусных лент: столовая, расписание, личные уведомления
type FeedService interface {
	PublishMessCrowd(ctx context.Context, level *int, waitTime string) (*models.MessCrowdUpdate, error)
	PublishScheduleUpdate(ctx context.Context, message, updateType string) (*models.ScheduleUpdate, error)
	NotifyUser(ctx context.Context, userID string, payload map[string]any) error
}

type feedService struct {
	publisher broadcast.Publisher
	clock     clockwork.Clock
	logger    *logrus.Logger
}

func NewFeedService(publisher broadcast.Publisher, clock clockwork.Clock, logger *logrus.Logger) FeedService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &feedService{
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// PublishMessCrowd - level не задан означает 0
func (s *feedService) PublishMessCrowd(ctx context.Context, level *int, waitTime string) (*models.MessCrowdUpdate, error) {
	lvl := 0
	if level != nil {
		lvl = *level
	}
	if lvl < 0 || lvl > 100 {
		return nil, ErrInvalidCrowdLevel
	}

	status := models.CrowdStatusForLevel(lvl)
	if waitTime == "" {
		waitTime = models.DefaultWaitTime(status)
	}

	update := &models.MessCrowdUpdate{
		Level:     lvl,
		Status:    status,
		WaitTime:  waitTime,
		Timestamp: s.clock.Now().UTC(),
	}
	if err := s.publish(ctx, broadcast.ChannelMessCrowd, EventCrowdUpdate, update, update.Timestamp); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"service": "feed",
		"method":  "PublishMessCrowd",
		"level":   lvl,
		"status":  status,
	}).Debug("Mess crowd update published")
	return update, nil
}

func (s *feedService) PublishScheduleUpdate(ctx context.Context, message, updateType string) (*models.ScheduleUpdate, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	if updateType == "" {
		updateType = "INFO"
	}

	update := &models.ScheduleUpdate{
		Message:   message,
		Type:      updateType,
		Timestamp: s.clock.Now().UTC(),
	}
	if err := s.publish(ctx, broadcast.ChannelAcademicSchedule, EventScheduleUpdate, update, update.Timestamp); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"service": "feed",
		"method":  "PublishScheduleUpdate",
		"type":    updateType,
	}).Info("Schedule update published")
	return update, nil
}

func (s *feedService) NotifyUser(ctx context.Context, userID string, payload map[string]any) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserRequired
	}
	now := s.clock.Now().UTC()
	if err := s.publish(ctx, broadcast.UserChannel(userID), EventNotification, payload, now); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"service": "feed",
		"method":  "NotifyUser",
		"user_id": userID,
	}).Info("User notification published")
	return nil
}

func (s *feedService) publish(ctx context.Context, channel broadcast.ChannelName, event string, payload any, ts time.Time) error {
	msg, err := broadcast.NewMessage(channel, event, payload, ts)
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.WithFields(logrus.Fields{
			"service": "feed",
			"channel": channel,
			"event":   event,
		}).WithError(err).Error("Failed to publish feed message")
		return fmt.Errorf("service: could not publish %s: %w", event, err)
	}
	return nil
}
