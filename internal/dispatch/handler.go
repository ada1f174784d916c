package dispatch

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/pkg/async"
	"github.com/richxcame/roadside-dispatch/pkg/common"
	"github.com/richxcame/roadside-dispatch/pkg/eventbus"
	"github.com/richxcame/roadside-dispatch/pkg/ids"
	"github.com/richxcame/roadside-dispatch/pkg/jwtkeys"
	"github.com/richxcame/roadside-dispatch/pkg/logger"
	"github.com/richxcame/roadside-dispatch/pkg/middleware"
	"github.com/richxcame/roadside-dispatch/pkg/models"
	"go.uber.org/zap"
)

// Handler exposes the dispatch engine's commands over HTTP. It wraps the
// engine directly rather than an intermediate service layer: the engine
// already is the business logic.
type Handler struct {
	engine *Engine
	store  incidentStore
	bus    publisher
}

// NewHandler constructs a dispatch handler over the given engine,
// incident store (needed for intake and status lookups, which fall
// outside the engine's own lifecycle surface), and event bus (intake
// publishes IncidentCreated rather than invoking the engine in-process;
// the dispatch run itself is triggered by the durable subscriber wired
// in cmd/dispatch/main.go).
func NewHandler(engine *Engine, store incidentStore, bus publisher) *Handler {
	return &Handler{engine: engine, store: store, bus: bus}
}

// incidentIntakeRequest is the driver-submitted report that starts a
// dispatch run (spec.md §4).
type incidentIntakeRequest struct {
	// Latitude/Longitude skip "required": validator treats a float64 zero
	// value as absent, which would reject a real incident sitting exactly
	// on the equator or prime meridian. The min/max bounds are the actual
	// validity check.
	ServiceType string  `json:"service_type" binding:"required,oneof=tire engine tow"`
	Latitude    float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude   float64 `json:"longitude" binding:"min=-180,max=180"`
	PriorityTier string `json:"priority_tier"`
}

// CreateIncident accepts a driver's incident report, persists it in
// StatusCreated, and publishes IncidentCreated so the durable dispatch
// subscriber picks it up and runs the attempt loop — the HTTP caller
// gets the incident back immediately rather than blocking on it, and
// intake stays decoupled from the engine's own lifetime.
func (h *Handler) CreateIncident(c *gin.Context) {
	driverID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req incidentIntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	inc := &incidents.Incident{
		ID:           ids.New(),
		DriverID:     driverID,
		ServiceType:  incidents.ServiceType(req.ServiceType),
		Status:       incidents.StatusCreated,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		PriorityTier: req.PriorityTier,
	}

	if err := h.store.Create(c.Request.Context(), inc); err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to create incident")
		return
	}

	async.Go(c.Request.Context(), "dispatch.incident_intake", func(ctx context.Context) {
		event, err := eventbus.NewEvent(eventbus.SubjectIncidentCreated, eventbus.Source, eventbus.IncidentCreatedData{
			IncidentID:  inc.ID,
			DriverID:    inc.DriverID,
			ServiceType: string(inc.ServiceType),
			Latitude:    inc.Latitude,
			Longitude:   inc.Longitude,
			Priority:    inc.PriorityTier,
			CreatedAt:   inc.CreatedAt,
		})
		if err != nil {
			logger.Error("failed to build incident created event", zap.String("incident_id", inc.ID.String()), zap.Error(err))
			return
		}
		if err := h.bus.Publish(ctx, eventbus.SubjectIncidentCreated, event); err != nil {
			logger.Error("failed to publish incident created event", zap.String("incident_id", inc.ID.String()), zap.Error(err))
		}
	})

	common.CreatedResponse(c, inc)
}

// GetIncident returns the current state of an incident.
func (h *Handler) GetIncident(c *gin.Context) {
	incidentID, err := uuid.Parse(c.Param("incidentId"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid incident id")
		return
	}

	inc, err := h.store.Get(c.Request.Context(), incidentID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to load incident")
		return
	}
	if inc == nil {
		common.ErrorResponse(c, http.StatusNotFound, "incident not found")
		return
	}

	common.SuccessResponse(c, inc)
}

// CancelIncident cancels an incident on behalf of the authenticated
// driver or dispatcher.
func (h *Handler) CancelIncident(c *gin.Context) {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	incidentID, err := uuid.Parse(c.Param("incidentId"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid incident id")
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	if err := h.engine.CancelIncident(c.Request.Context(), incidentID, actorID.String(), body.Reason); err != nil {
		if appErr, ok := err.(*common.AppError); ok {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to cancel incident")
		return
	}

	common.SuccessResponse(c, gin.H{"status": "cancelled"})
}

// ReassignIncident lets a dispatcher manually re-enter the attempt loop
// for an incident stuck in escalation (spec.md §4.3.4).
func (h *Handler) ReassignIncident(c *gin.Context) {
	incidentID, err := uuid.Parse(c.Param("incidentId"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid incident id")
		return
	}

	async.Go(c.Request.Context(), "dispatch.manual_reassign", func(ctx context.Context) {
		if err := h.engine.Dispatch(ctx, incidentID); err != nil {
			logger.Error("manual reassignment failed", zap.String("incident_id", incidentID.String()), zap.Error(err))
		}
	})

	common.SuccessResponse(c, gin.H{"status": "reassignment_started"})
}

// AcceptOffer lets a vendor accept a pending offer.
func (h *Handler) AcceptOffer(c *gin.Context) {
	vendorID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	offerID, err := uuid.Parse(c.Param("offerId"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid offer id")
		return
	}

	offer, err := h.engine.AcceptOffer(c.Request.Context(), offerID, vendorID)
	if err != nil {
		if appErr, ok := err.(*common.AppError); ok {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to accept offer")
		return
	}

	common.SuccessResponse(c, offer)
}

// DeclineOffer lets a vendor decline a pending offer.
func (h *Handler) DeclineOffer(c *gin.Context) {
	vendorID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	offerID, err := uuid.Parse(c.Param("offerId"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid offer id")
		return
	}

	var body struct {
		Reason *string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	if err := h.engine.DeclineOffer(c.Request.Context(), offerID, vendorID, body.Reason); err != nil {
		if appErr, ok := err.(*common.AppError); ok {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to decline offer")
		return
	}

	common.SuccessResponse(c, gin.H{"status": "declined"})
}

// RegisterRoutes wires the dispatch command surface onto r, grouped by
// the actor role each command requires.
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtProvider jwtkeys.KeyProvider) {
	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddlewareWithProvider(jwtProvider))

	driverIncidents := api.Group("/incidents")
	driverIncidents.Use(middleware.RequireRole(models.RoleDriver, models.RoleDispatcher))
	{
		driverIncidents.POST("", h.CreateIncident)
		driverIncidents.GET("/:incidentId", h.GetIncident)
		driverIncidents.POST("/:incidentId/cancel", h.CancelIncident)
	}

	dispatcher := api.Group("/dispatcher/incidents")
	dispatcher.Use(middleware.RequireRole(models.RoleDispatcher))
	{
		dispatcher.POST("/:incidentId/reassign", h.ReassignIncident)
	}

	vendorOffers := api.Group("/vendor/offers")
	vendorOffers.Use(middleware.RequireRole(models.RoleVendor))
	{
		vendorOffers.POST("/:offerId/accept", h.AcceptOffer)
		vendorOffers.POST("/:offerId/decline", h.DeclineOffer)
	}
}
