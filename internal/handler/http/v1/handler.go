package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/sos_broadcasting_system/internal/broadcast"
	"github.com/shenikar/sos_broadcasting_system/internal/config"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
	"github.com/shenikar/sos_broadcasting_system/internal/ratelimit"
	"github.com/shenikar/sos_broadcasting_system/internal/service"
)

// Limiters - лимитеры, используемые маршрутами. nil отключает ограничение.
type Limiters struct {
	Auth *ratelimit.Limiter
	SOS  *ratelimit.Limiter
}

type Handler struct {
	incidentService service.IncidentService
	dispatchService service.DispatchService
	feedService     service.FeedService
	hub             *broadcast.Hub
	limiters        Limiters
	logger          *logrus.Logger
	validate        *validator.Validate
	cfg             *config.Config
	clock           clockwork.Clock
}

func NewHandler(
	incidentService service.IncidentService,
	dispatchService service.DispatchService,
	feedService service.FeedService,
	hub *broadcast.Hub,
	limiters Limiters,
	logger *logrus.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		incidentService: incidentService,
		dispatchService: dispatchService,
		feedService:     feedService,
		hub:             hub,
		limiters:        limiters,
		logger:          logger,
		validate:        validator.New(),
		cfg:             cfg,
		clock:           clockwork.NewRealClock(),
	}
}

// @Summary Raise an SOS alarm
// @Description Records an emergency incident for the authenticated user and notifies campus security. Requires JWT.
// @Tags SOS
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sos body SOSRequest true "SOS request"
// @Success 201 {object} SOSResponse
// @Success 200 {object} SOSResponse "Gesture already recorded"
// @Failure 400 {object} map[string]string "Invalid request body or missing location"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 429 {object} RateLimitedResponse
// @Failure 503 {object} map[string]string "Incident was not recorded"
// @Router /sos [post]
func (h *Handler) createSOS(c *gin.Context) {
	identity := currentIdentity(c)
	log := h.logger.WithFields(logrus.Fields{
		"method":  "createSOS",
		"user_id": identity.UserID,
	})

	var input SOSRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := SOSRequestToDispatch(identity.UserID, input, h.clock.Now().UTC())
	ack, err := h.dispatchService.Dispatch(c.Request.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrLocationRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrUserRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
		return
	default:
		log.WithError(err).Error("SOS was not recorded")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": service.ErrIncidentNotRecorded.Error()})
		return
	}

	status := http.StatusCreated
	if ack.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, AckToSOSResponse(ack))
}

// @Summary Get a list of incidents
// @Description Get a paginated list of incidents, optionally filtered by status. Requires security role.
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param status query string false "ACTIVE, RESOLVED or CANCELLED"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid status"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	status := models.IncidentStatus(c.Query("status"))

	incidents, err := h.incidentService.ListIncidents(c.Request.Context(), status, page, pageSize)
	if err != nil {
		if errors.Is(err, service.ErrInvalidIncidentState) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.WithError(err).Error("Failed to list incidents from service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Get incident by ID
// @Description Get a single incident by its ID. Requires security role.
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "getIncident").WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrIncidentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
			return
		}
		log.WithError(err).Error("Failed to get incident from service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Close an incident
// @Description Moves an ACTIVE incident to RESOLVED or CANCELLED. Requires security role.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param status body UpdateIncidentStatusRequest true "New status"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID or request body"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Incident is not active"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/status [patch]
func (h *Handler) updateIncidentStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "updateIncidentStatus").WithField("id", id)

	var input UpdateIncidentStatusRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := h.incidentService.UpdateIncidentStatus(c.Request.Context(), id, models.IncidentStatus(input.Status))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
	case errors.Is(err, service.ErrIncidentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.WithError(err).Error("Failed to update incident status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// @Summary Publish mess crowd level
// @Description Broadcasts the current mess hall crowd level to the mess-crowd channel. Requires API key.
// @Tags Feeds
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param update body MessCrowdRequest true "Crowd level 0..100"
// @Success 200 {object} models.MessCrowdUpdate
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /mess/crowd [post]
func (h *Handler) publishMessCrowd(c *gin.Context) {
	log := h.logger.WithField("method", "publishMessCrowd")

	var input MessCrowdRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update, err := h.feedService.PublishMessCrowd(c.Request.Context(), input.Level, input.WaitTime)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCrowdLevel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.WithError(err).Error("Failed to publish mess crowd update")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, update)
}

// @Summary Publish academic schedule update
// @Description Broadcasts a schedule change to the academic-schedule channel. Requires API key.
// @Tags Feeds
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param update body ScheduleUpdateRequest true "Schedule update"
// @Success 200 {object} models.ScheduleUpdate
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /academic/schedule-updates [post]
func (h *Handler) publishScheduleUpdate(c *gin.Context) {
	log := h.logger.WithField("method", "publishScheduleUpdate")

	var input ScheduleUpdateRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update, err := h.feedService.PublishScheduleUpdate(c.Request.Context(), input.Message, input.Type)
	if err != nil {
		if errors.Is(err, service.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.WithError(err).Error("Failed to publish schedule update")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, update)
}

// @Summary Notify a user
// @Description Sends an arbitrary notification object to the user's private channel. Requires API key.
// @Tags Feeds
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "User ID"
// @Param notification body object true "Notification payload"
// @Success 202 "Accepted"
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /users/{id}/notifications [post]
func (h *Handler) notifyUser(c *gin.Context) {
	userID := c.Param("id")
	log := h.logger.WithField("method", "notifyUser").WithField("user_id", userID)

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.feedService.NotifyUser(c.Request.Context(), userID, payload); err != nil {
		if errors.Is(err, service.ErrUserRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.WithError(err).Error("Failed to notify user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.Status(http.StatusAccepted)
}

// @Summary Get channel statistics
// @Description Number of live subscribers per channel on this instance. Requires API key.
// @Tags Admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} ChannelStatsResponse
// @Router /broadcast/channels [get]
func (h *Handler) channelStats(c *gin.Context) {
	stats := h.hub.Stats()
	resp := ChannelStatsResponse{Channels: make(map[string]int, len(stats))}
	for name, count := range stats {
		resp.Channels[name.String()] = count
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
