package v1

import (
	"slices"
	"time"

	"github.com/shenikar/sos_broadcasting_system/internal/broadcast"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

// SOSRequestToDispatch собирает запрос диспетчеру. Пользователь берется только из токена.
func SOSRequestToDispatch(userID string, dto SOSRequest, now time.Time) models.DispatchRequest {
	req := models.DispatchRequest{
		UserID:          userID,
		GestureID:       dto.GestureID,
		LocationFailure: models.LocationFailure(dto.LocationFailure),
		TriggeredAt:     now,
	}
	if dto.Location != nil {
		req.Coordinates = &models.Coordinates{Lat: dto.Location.Lat, Lng: dto.Location.Lng}
	}
	if dto.TriggeredAt != nil {
		req.TriggeredAt = *dto.TriggeredAt
	}
	return req
}

func AckToSOSResponse(ack *models.Acknowledgement) *SOSResponse {
	return &SOSResponse{
		IncidentID:            ack.IncidentID,
		AcknowledgedAt:        ack.AcknowledgedAt,
		EstimatedResponseTime: ack.EstimatedResponseTime,
		LocationFailure:       string(ack.LocationFailure),
		Duplicate:             ack.Duplicate,
	}
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	return &IncidentResponse{
		ID:              model.ID,
		UserID:          model.UserID,
		GestureID:       model.GestureID,
		Location:        LocationDTO{Lat: model.Location.Lat, Lng: model.Location.Lng},
		LocationFailure: string(model.LocationFailure),
		Status:          string(model.Status),
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(models []*models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(models))
	for i, model := range models {
		responses[i] = ModelToIncidentResponse(model)
	}
	return responses
}

func channelNames(names []broadcast.ChannelName) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = name.String()
	}
	slices.Sort(out)
	return out
}
