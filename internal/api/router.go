package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"oncall-service/internal/config"
	"oncall-service/internal/events"
)

func NewRouter(store Store, schedule Scheduler, hub *events.Hub, logger *logrus.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := NewHandler(store, schedule, hub, logger)
	api := r.Group(cfg.API.BasePath)
	{
		// Rotations
		api.POST("/rotations", h.CreateRotation)
		api.GET("/rotations", h.ListRotations)
		api.GET("/rotations/:id", h.GetRotation)
		api.PUT("/rotations/:id", h.UpdateRotation)
		api.GET("/rotations/:id/shifts", h.GetRotationShifts)
		api.GET("/rotations/:id/oncall", h.GetRotationOnCall)

		// Escalation policies
		api.POST("/escalation-policies", h.CreateEscalationPolicy)
		api.GET("/escalation-policies", h.ListEscalationPolicies)
		api.GET("/escalation-policies/:id", h.GetEscalationPolicy)

		// Contact points
		api.POST("/contact-points", h.CreateContactPoint)
		api.GET("/contact-points/member/:member_id", h.GetContactPointsByMember)
		api.DELETE("/contact-points/:id", h.DeleteContactPoint)

		// Incidents
		api.GET("/incidents", h.ListIncidents)
		api.GET("/incidents/:id", h.GetIncident)
		api.POST("/incidents/:id/acknowledge", h.AcknowledgeIncident)
		api.POST("/incidents/:id/resolve", h.ResolveIncident)
		api.GET("/notifications/incident/:id", h.GetNotificationsByIncident)
	}

	r.GET("/ws", h.ServeWS)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
