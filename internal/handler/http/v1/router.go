package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	jwtAuth := JWTAuthMiddleware([]byte(h.cfg.JWTSecret), h.limiters.Auth, h.logger)
	apiKeyAuth := APIKeyAuthMiddleware(h.cfg, h.logger)

	// Тревога
	api.POST("/sos", jwtAuth, SOSRateLimitMiddleware(h.limiters.SOS, h.logger), h.createSOS)

	// Поток событий и управление подписками
	stream := api.Group("/stream", jwtAuth)
	{
		stream.GET("", h.stream)
		stream.POST("/:connID/subscriptions", h.subscribe)
		stream.DELETE("/:connID/subscriptions/:channel", h.unsubscribe)
	}

	// Инциденты для охраны
	incidents := api.Group("/incidents", jwtAuth, RequireRoles(RoleSecurity))
	{
		incidents.GET("", h.listIncidents)
		incidents.GET("/:id", h.getIncident)
		incidents.PATCH("/:id/status", h.updateIncidentStatus)
	}

	// Служебные публикации кампуса
	feeds := api.Group("", apiKeyAuth)
	{
		feeds.POST("/mess/crowd", h.publishMessCrowd)
		feeds.POST("/academic/schedule-updates", h.publishScheduleUpdate)
		feeds.POST("/users/:id/notifications", h.notifyUser)
		feeds.GET("/broadcast/channels", h.channelStats)
	}

	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)
}
