package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/shenikar/sos_broadcasting_system/internal/broadcast"
	broadcast_mocks "github.com/shenikar/sos_broadcasting_system/internal/broadcast/mocks"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

func newTestFeedService(t *testing.T) (FeedService, *broadcast_mocks.MockPublisher, *clockwork.FakeClock) {
	ctrl := gomock.NewController(t)
	publisher := broadcast_mocks.NewMockPublisher(ctrl)
	clock := clockwork.NewFakeClock()
	return NewFeedService(publisher, clock, silentLogger()), publisher, clock
}

func intPtr(v int) *int { return &v }

func TestPublishMessCrowd_StatusThresholds(t *testing.T) {
	tests := []struct {
		level    *int
		waitTime string
		status   models.CrowdStatus
		wantWait string
	}{
		{nil, "", models.CrowdStatusLow, "No wait"},
		{intPtr(40), "", models.CrowdStatusLow, "No wait"},
		{intPtr(41), "", models.CrowdStatusModerate, "10 mins"},
		{intPtr(75), "", models.CrowdStatusModerate, "10 mins"},
		{intPtr(76), "", models.CrowdStatusHigh, "20+ mins"},
		{intPtr(90), "35 mins", models.CrowdStatusHigh, "35 mins"},
	}

	for _, tt := range tests {
		svc, publisher, clock := newTestFeedService(t)

		publisher.EXPECT().
			Publish(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, msg broadcast.Message) error {
				assert.Equal(t, broadcast.ChannelMessCrowd, msg.Channel)
				assert.Equal(t, EventCrowdUpdate, msg.Event)
				var update models.MessCrowdUpdate
				if assert.NoError(t, json.Unmarshal(msg.Payload, &update)) {
					assert.Equal(t, tt.status, update.Status)
				}
				return nil
			})

		update, err := svc.PublishMessCrowd(context.Background(), tt.level, tt.waitTime)

		require.NoError(t, err)
		assert.Equal(t, tt.status, update.Status)
		assert.Equal(t, tt.wantWait, update.WaitTime)
		assert.Equal(t, clock.Now().UTC(), update.Timestamp)
	}
}

func TestPublishMessCrowd_InvalidLevel(t *testing.T) {
	svc, publisher, _ := newTestFeedService(t)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	_, err := svc.PublishMessCrowd(context.Background(), intPtr(101), "")
	assert.ErrorIs(t, err, ErrInvalidCrowdLevel)

	_, err = svc.PublishMessCrowd(context.Background(), intPtr(-1), "")
	assert.ErrorIs(t, err, ErrInvalidCrowdLevel)
}

func TestPublishScheduleUpdate(t *testing.T) {
	svc, publisher, _ := newTestFeedService(t)

	publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg broadcast.Message) error {
			assert.Equal(t, broadcast.ChannelAcademicSchedule, msg.Channel)
			assert.Equal(t, EventScheduleUpdate, msg.Event)
			return nil
		})

	update, err := svc.PublishScheduleUpdate(context.Background(), "CS101 moved to Hall B", "")

	require.NoError(t, err)
	assert.Equal(t, "INFO", update.Type)
}

func TestPublishScheduleUpdate_EmptyMessage(t *testing.T) {
	svc, _, _ := newTestFeedService(t)

	_, err := svc.PublishScheduleUpdate(context.Background(), "  ", "ALERT")

	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestNotifyUser(t *testing.T) {
	svc, publisher, _ := newTestFeedService(t)

	publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg broadcast.Message) error {
			assert.Equal(t, broadcast.UserChannel("student-42"), msg.Channel)
			assert.Equal(t, EventNotification, msg.Event)
			assert.JSONEq(t, `{"title":"Library","body":"Book due tomorrow"}`, string(msg.Payload))
			return nil
		})

	err := svc.NotifyUser(context.Background(), "student-42", map[string]any{"title": "Library", "body": "Book due tomorrow"})
	require.NoError(t, err)
}

func TestNotifyUser_PublishError(t *testing.T) {
	svc, publisher, _ := newTestFeedService(t)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	err := svc.NotifyUser(context.Background(), "student-42", map[string]any{"x": 1})
	assert.Error(t, err)

	assert.ErrorIs(t, svc.NotifyUser(context.Background(), "", nil), ErrUserRequired)
}
