package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"notification-dispatch/internal/config"
	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
)

// NewRouter wires every route. metrics may be nil.
func NewRouter(h *Handler, logger *logging.Logger, cfg config.Config, metrics http.Handler) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/health", h.Health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group(cfg.API.BasePath)
	{
		// Notifications
		api.POST("/notifications/send", h.SendNotification)
		api.POST("/notifications/estimate", h.EstimateCost)
		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/stats", h.NotificationStats)
		api.GET("/notifications/export", h.ExportNotifications)
		api.POST("/notifications/retry-bulk", h.RetryBulk)
		api.POST("/notifications/delete-bulk", h.DeleteBulk)
		api.GET("/notifications/:id", h.GetNotification)
		api.DELETE("/notifications/:id", h.DeleteNotification)
		api.POST("/notifications/:id/retry", h.RetryNotification)
		api.POST("/notifications/:id/cancel", h.CancelNotification)

		// Channel sends
		api.POST("/email/send", h.SendOnChannel(models.ChannelEmail))
		api.POST("/whatsapp/send", h.SendOnChannel(models.ChannelWhatsApp))
		api.POST("/sms/send", h.SendOnChannel(models.ChannelSMS))
		api.POST("/web/send", h.SendOnChannel(models.ChannelWeb))
		api.GET("/whatsapp/templates", h.WhatsAppTemplates)

		// Templates
		api.GET("/templates", h.ListTemplates)
		api.POST("/templates", h.CreateTemplate)
		api.GET("/templates/:name", h.GetTemplate)
		api.PUT("/templates/:name", h.UpdateTemplate)
		api.DELETE("/templates/:name", h.DeleteTemplate)
		api.POST("/templates/:name/duplicate", h.DuplicateTemplate)
		api.POST("/templates/:name/toggle", h.ToggleTemplate)
		api.POST("/templates/:name/preview", h.PreviewTemplate)

		// Web channel
		api.GET("/ws", h.WebSocket)
	}
	return r
}
