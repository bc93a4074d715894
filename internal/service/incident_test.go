package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/shenikar/sos_broadcasting_system/internal/models"
	"github.com/shenikar/sos_broadcasting_system/internal/service/mocks"
)

// newTestIncidentService - вспомогательная функция для создания инстанса сервиса с моками.
func newTestIncidentService(t *testing.T) (*incidentService, *mocks.MockIncidentRepository) {
	ctrl := gomock.NewController(t)
	repoMock := mocks.NewMockIncidentRepository(ctrl)

	service := NewIncidentService(repoMock, silentLogger())
	return service.(*incidentService), repoMock
}

func TestGetIncident_Success_FromCache(t *testing.T) {
	// Подготовка
	service, repoMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:     incidentID,
		UserID: "student-42",
	}

	// Ожидания
	repoMock.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)
	repoMock.EXPECT().GetByID(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	incident, err := service.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_Success_FromDB(t *testing.T) {
	// Подготовка
	service, repoMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:     incidentID,
		UserID: "student-42",
	}

	// Ожидания
	// 1. Промах кеша
	repoMock.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(nil, nil).
		Times(1)

	// 2. Попадание в БД
	repoMock.EXPECT().
		GetByID(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)

	// 3. Запись в кеш
	repoMock.EXPECT().
		SetIncidentCache(ctx, expectedIncident).
		Return(nil).
		Times(1)

	// Действие
	incident, err := service.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_CacheErrorFallsBackToDB(t *testing.T) {
	service, repoMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{ID: incidentID}

	repoMock.EXPECT().GetIncidentFromCache(ctx, incidentID).Return(nil, errors.New("redis down"))
	repoMock.EXPECT().GetByID(ctx, incidentID).Return(expectedIncident, nil)
	repoMock.EXPECT().SetIncidentCache(ctx, expectedIncident).Return(errors.New("redis down"))

	incident, err := service.GetIncident(ctx, incidentID)

	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_NotFound(t *testing.T) {
	service, repoMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	repoMock.EXPECT().GetIncidentFromCache(ctx, incidentID).Return(nil, nil)
	repoMock.EXPECT().GetByID(ctx, incidentID).Return(nil, ErrIncidentNotFound)

	incident, err := service.GetIncident(ctx, incidentID)

	assert.Nil(t, incident)
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestListIncidents_Pagination(t *testing.T) {
	tests := []struct {
		name         string
		page         int
		pageSize     int
		wantPage     int
		wantPageSize int
	}{
		{"defaults for invalid input", 0, 0, 1, 20},
		{"page size too large", 2, 500, 2, 20},
		{"valid", 3, 50, 3, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, repoMock := newTestIncidentService(t)
			ctx := context.Background()

			repoMock.EXPECT().
				ListIncidents(ctx, models.IncidentStatusActive, tt.wantPage, tt.wantPageSize).
				Return([]*models.Incident{{ID: uuid.New()}}, nil).
				Times(1)

			incidents, err := service.ListIncidents(ctx, models.IncidentStatusActive, tt.page, tt.pageSize)

			require.NoError(t, err)
			assert.Len(t, incidents, 1)
		})
	}
}

func TestListIncidents_InvalidStatus(t *testing.T) {
	service, repoMock := newTestIncidentService(t)
	repoMock.EXPECT().ListIncidents(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := service.ListIncidents(context.Background(), "OPEN", 1, 10)

	assert.ErrorIs(t, err, ErrInvalidIncidentState)
}

func TestListIncidents_RepositoryError(t *testing.T) {
	service, repoMock := newTestIncidentService(t)
	repoMock.EXPECT().ListIncidents(gomock.Any(), models.IncidentStatus(""), 1, 20).Return(nil, errors.New("db error"))

	incidents, err := service.ListIncidents(context.Background(), "", 1, 20)

	assert.Nil(t, incidents)
	assert.Error(t, err)
}

func TestUpdateIncidentStatus_Success(t *testing.T) {
	service, repoMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	resolved := &models.Incident{ID: incidentID, Status: models.IncidentStatusResolved}

	repoMock.EXPECT().
		UpdateStatus(ctx, incidentID, models.IncidentStatusActive, models.IncidentStatusResolved).
		Return(resolved, nil)
	repoMock.EXPECT().InvalidateIncidentCache(ctx, incidentID).Return(nil)

	incident, err := service.UpdateIncidentStatus(ctx, incidentID, models.IncidentStatusResolved)

	require.NoError(t, err)
	assert.Equal(t, models.IncidentStatusResolved, incident.Status)
}

func TestUpdateIncidentStatus_RejectsInvalidTarget(t *testing.T) {
	service, repoMock := newTestIncidentService(t)
	repoMock.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := service.UpdateIncidentStatus(context.Background(), uuid.New(), models.IncidentStatusActive)

	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateIncidentStatus_AlreadyClosed(t *testing.T) {
	service, repoMock := newTestIncidentService(t)
	incidentID := uuid.New()

	repoMock.EXPECT().
		UpdateStatus(gomock.Any(), incidentID, models.IncidentStatusActive, models.IncidentStatusCancelled).
		Return(nil, ErrInvalidTransition)
	repoMock.EXPECT().InvalidateIncidentCache(gomock.Any(), gomock.Any()).Times(0)

	_, err := service.UpdateIncidentStatus(context.Background(), incidentID, models.IncidentStatusCancelled)

	assert.ErrorIs(t, err, ErrInvalidTransition)
}
