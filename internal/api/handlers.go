package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"oncall-service/internal/db"
	"oncall-service/internal/events"
	"oncall-service/internal/models"
	"oncall-service/internal/rotation"
)

// Store is the persistence surface the HTTP handlers need.
type Store interface {
	CreateRotationPolicy(ctx context.Context, p models.RotationPolicy) (models.RotationPolicy, error)
	GetRotationPolicy(ctx context.Context, id string) (models.RotationPolicy, error)
	UpdateRotationPolicy(ctx context.Context, p models.RotationPolicy) error
	ListRotationPolicies(ctx context.Context) ([]models.RotationPolicy, error)
	ListShifts(ctx context.Context, rotationID string) ([]models.ShiftAssignment, error)

	CreateEscalationPolicy(ctx context.Context, p models.EscalationPolicy) (models.EscalationPolicy, error)
	GetEscalationPolicy(ctx context.Context, id string) (models.EscalationPolicy, error)
	ListEscalationPolicies(ctx context.Context) ([]models.EscalationPolicy, error)

	CreateContactPoint(ctx context.Context, cp models.ContactPoint) (models.ContactPoint, error)
	GetContactPointsByMember(ctx context.Context, memberID string) ([]models.ContactPoint, error)
	DeleteContactPoint(ctx context.Context, id string) error

	ListIncidents(ctx context.Context, status string) ([]models.Incident, error)
	GetIncident(ctx context.Context, id string) (models.Incident, error)
	AcknowledgeIncident(ctx context.Context, id, actor string, at time.Time) (models.Incident, error)
	ResolveIncident(ctx context.Context, id string, at time.Time) (models.Incident, error)

	ListNotificationsByIncident(ctx context.Context, incidentID string) ([]models.NotificationRequest, error)
}

// Scheduler materializes rotation shifts; handlers call it after writing a
// rotation policy so the timeline is queryable immediately.
type Scheduler interface {
	Materialize(ctx context.Context, policy models.RotationPolicy) error
	Rematerialize(ctx context.Context, policy models.RotationPolicy, from time.Time) error
	OnCall(ctx context.Context, rotationID string, at time.Time) (string, error)
}

type Handler struct {
	store    Store
	schedule Scheduler
	hub      *events.Hub
	logger   *logrus.Logger
}

func NewHandler(store Store, schedule Scheduler, hub *events.Hub, logger *logrus.Logger) *Handler {
	return &Handler{store: store, schedule: schedule, hub: hub, logger: logger}
}

type rotationCreate struct {
	Name        string             `json:"name" binding:"required"`
	Members     []string           `json:"members" binding:"required,min=1"`
	ShiftLength models.ShiftLength `json:"shift_length" binding:"required"`
	HandoffTime string             `json:"handoff_time" binding:"required"`
	Start       time.Time          `json:"start" binding:"required"`
	End         *time.Time         `json:"end"`
}

func (h *Handler) CreateRotation(c *gin.Context) {
	var req rotationCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for rotation: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	now := time.Now()
	policy := models.RotationPolicy{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Members:     req.Members,
		ShiftLength: req.ShiftLength,
		HandoffTime: req.HandoffTime,
		Start:       req.Start,
		End:         req.End,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := rotation.Generate(policy, policy.Members, 1); err != nil {
		h.logger.Errorf("Invalid rotation policy: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy, err := h.store.CreateRotationPolicy(c.Request.Context(), policy)
	if err != nil {
		h.logger.Errorf("Failed to create rotation policy: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create rotation policy"})
		return
	}
	if err := h.schedule.Materialize(c.Request.Context(), policy); err != nil {
		h.logger.Errorf("Failed to materialize shifts for rotation %s: %v", policy.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to materialize shifts"})
		return
	}

	h.logger.Infof("Created rotation policy: %s", policy.ID)
	c.JSON(http.StatusCreated, policy)
}

func (h *Handler) UpdateRotation(c *gin.Context) {
	id := c.Param("id")
	var req rotationCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for rotation %s: %v", id, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	policy, err := h.store.GetRotationPolicy(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rotation policy not found"})
			return
		}
		h.logger.Errorf("Failed to get rotation policy %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get rotation policy"})
		return
	}

	policy.Name = req.Name
	policy.Members = req.Members
	policy.ShiftLength = req.ShiftLength
	policy.HandoffTime = req.HandoffTime
	policy.Start = req.Start
	policy.End = req.End
	policy.UpdatedAt = time.Now()
	if _, err := rotation.Generate(policy, policy.Members, 1); err != nil {
		h.logger.Errorf("Invalid rotation policy %s: %v", id, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpdateRotationPolicy(c.Request.Context(), policy); err != nil {
		h.logger.Errorf("Failed to update rotation policy %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rotation policy"})
		return
	}
	// Future shifts are superseded and regenerated; the shift currently in
	// progress keeps its assignee.
	if err := h.schedule.Rematerialize(c.Request.Context(), policy, time.Now()); err != nil {
		h.logger.Errorf("Failed to rematerialize shifts for rotation %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rematerialize shifts"})
		return
	}

	h.logger.Infof("Updated rotation policy: %s", id)
	c.JSON(http.StatusOK, policy)
}

func (h *Handler) GetRotation(c *gin.Context) {
	id := c.Param("id")
	policy, err := h.store.GetRotationPolicy(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rotation policy not found"})
			return
		}
		h.logger.Errorf("Failed to get rotation policy %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get rotation policy"})
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (h *Handler) ListRotations(c *gin.Context) {
	policies, err := h.store.ListRotationPolicies(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to list rotation policies: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rotation policies"})
		return
	}
	c.JSON(http.StatusOK, policies)
}

func (h *Handler) GetRotationShifts(c *gin.Context) {
	id := c.Param("id")
	shifts, err := h.store.ListShifts(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to list shifts for rotation %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list shifts"})
		return
	}
	c.JSON(http.StatusOK, shifts)
}

// GetRotationOnCall answers "who is on call right now" (or at ?at=RFC3339).
// A moment outside every materialized shift is a coverage gap, reported as
// 404 rather than guessed around.
func (h *Handler) GetRotationOnCall(c *gin.Context) {
	id := c.Param("id")
	at := time.Now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid at parameter, expected RFC3339"})
			return
		}
		at = parsed
	}

	member, err := h.schedule.OnCall(c.Request.Context(), id, at)
	if err != nil {
		if errors.Is(err, db.ErrNoCoverage) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No on-call coverage", "rotation_id": id, "at": at})
			return
		}
		h.logger.Errorf("Failed to resolve on-call for rotation %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve on-call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rotation_id": id, "member": member, "at": at})
}

type escalationPolicyCreate struct {
	Name   string                  `json:"name" binding:"required"`
	Steps  []models.EscalationStep `json:"steps" binding:"required,min=1"`
	Repeat int                     `json:"repeat" binding:"gte=0"`
}

func validateSteps(steps []models.EscalationStep) string {
	for _, step := range steps {
		if step.TimeoutSeconds < 0 {
			return "Step timeout must not be negative"
		}
		switch step.Target.Kind {
		case models.TargetMember:
			if step.Target.Member == "" {
				return "Member target requires a member"
			}
		case models.TargetOnCall:
			if step.Target.RotationID == "" {
				return "On-call target requires a rotation_id"
			}
		default:
			return "Unknown target kind"
		}
	}
	return ""
}

func (h *Handler) CreateEscalationPolicy(c *gin.Context) {
	var req escalationPolicyCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for escalation policy: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if msg := validateSteps(req.Steps); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	now := time.Now()
	policy := models.EscalationPolicy{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Steps:     req.Steps,
		Repeat:    req.Repeat,
		CreatedAt: now,
		UpdatedAt: now,
	}
	policy, err := h.store.CreateEscalationPolicy(c.Request.Context(), policy)
	if err != nil {
		h.logger.Errorf("Failed to create escalation policy: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create escalation policy"})
		return
	}

	h.logger.Infof("Created escalation policy: %s", policy.ID)
	c.JSON(http.StatusCreated, policy)
}

func (h *Handler) GetEscalationPolicy(c *gin.Context) {
	id := c.Param("id")
	policy, err := h.store.GetEscalationPolicy(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Escalation policy not found"})
			return
		}
		h.logger.Errorf("Failed to get escalation policy %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get escalation policy"})
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (h *Handler) ListEscalationPolicies(c *gin.Context) {
	policies, err := h.store.ListEscalationPolicies(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to list escalation policies: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list escalation policies"})
		return
	}
	c.JSON(http.StatusOK, policies)
}

func (h *Handler) CreateContactPoint(c *gin.Context) {
	var req models.ContactPointCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for contact point: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	now := time.Now()
	cp := models.ContactPoint{
		ID:            uuid.New().String(),
		MemberID:      req.MemberID,
		Type:          req.Type,
		Configuration: req.Configuration,
		Status:        "active",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	cp, err := h.store.CreateContactPoint(c.Request.Context(), cp)
	if err != nil {
		h.logger.Errorf("Failed to create contact point: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create contact point"})
		return
	}

	h.logger.Infof("Created contact point %s for member %s", cp.ID, cp.MemberID)
	c.JSON(http.StatusCreated, cp)
}

func (h *Handler) GetContactPointsByMember(c *gin.Context) {
	memberID := c.Param("member_id")
	cps, err := h.store.GetContactPointsByMember(c.Request.Context(), memberID)
	if err != nil {
		h.logger.Errorf("Failed to get contact points for member %s: %v", memberID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get contact points"})
		return
	}
	c.JSON(http.StatusOK, cps)
}

func (h *Handler) DeleteContactPoint(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteContactPoint(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact point not found"})
			return
		}
		h.logger.Errorf("Failed to delete contact point %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete contact point"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) ListIncidents(c *gin.Context) {
	status := c.Query("status")
	incidents, err := h.store.ListIncidents(c.Request.Context(), status)
	if err != nil {
		h.logger.Errorf("Failed to list incidents: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list incidents"})
		return
	}
	c.JSON(http.StatusOK, incidents)
}

func (h *Handler) GetIncident(c *gin.Context) {
	id := c.Param("id")
	inc, err := h.store.GetIncident(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Incident not found"})
			return
		}
		h.logger.Errorf("Failed to get incident %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get incident"})
		return
	}
	c.JSON(http.StatusOK, inc)
}

type acknowledgeRequest struct {
	Actor string `json:"actor" binding:"required"`
}

// AcknowledgeIncident stops the escalation clock. Acknowledging an already
// acknowledged or resolved incident is a no-op that returns the current state.
func (h *Handler) AcknowledgeIncident(c *gin.Context) {
	id := c.Param("id")
	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid acknowledge request for incident %s: %v", id, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	inc, err := h.store.AcknowledgeIncident(c.Request.Context(), id, req.Actor, time.Now())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Incident not found"})
			return
		}
		h.logger.Errorf("Failed to acknowledge incident %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to acknowledge incident"})
		return
	}

	h.logger.Infof("Incident %s acknowledged by %s", id, req.Actor)
	h.hub.Publish(events.Event{Type: events.TypeIncidentAcknowledged, Payload: inc})
	c.JSON(http.StatusOK, inc)
}

func (h *Handler) ResolveIncident(c *gin.Context) {
	id := c.Param("id")
	inc, err := h.store.ResolveIncident(c.Request.Context(), id, time.Now())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Incident not found"})
			return
		}
		h.logger.Errorf("Failed to resolve incident %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve incident"})
		return
	}

	h.logger.Infof("Incident %s resolved", id)
	h.hub.Publish(events.Event{Type: events.TypeIncidentResolved, Payload: inc})
	c.JSON(http.StatusOK, inc)
}

func (h *Handler) GetNotificationsByIncident(c *gin.Context) {
	id := c.Param("id")
	reqs, err := h.store.ListNotificationsByIncident(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to list notifications for incident %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, reqs)
}
