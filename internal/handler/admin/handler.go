package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

type SettingsService interface {
	Get(ctx context.Context) (*model.ClinicSettings, error)
	Update(ctx context.Context, update model.SettingsUpdate) (*model.ClinicSettings, error)
}

type CounterResetter interface {
	Reset(ctx context.Context, start int64) error
}

type Cleaner interface {
	Cleanup(ctx context.Context, retentionHours int) (int64, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, text string) (*model.BroadcastResult, error)
}

type Handler struct {
	settings    SettingsService
	counter     CounterResetter
	cleaner     Cleaner
	broadcaster Broadcaster
}

func NewHandler(settings SettingsService, counter CounterResetter, cleaner Cleaner, broadcaster Broadcaster) *Handler {
	return &Handler{
		settings:    settings,
		counter:     counter,
		cleaner:     cleaner,
		broadcaster: broadcaster,
	}
}

// RegisterRoutes expects r to already require the admin role.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	a := r.Group("/admin")
	{
		a.GET("/settings", h.GetSettings)
		a.PUT("/settings", h.UpdateSettings)
		a.POST("/counter/reset", h.ResetCounter)
		a.POST("/cleanup", h.Cleanup)
		a.POST("/broadcast", h.Broadcast)
	}
}

func (h *Handler) GetSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, s)
}

// UpdateSettings applies a partial update. Keys outside the allow-list
// are rejected.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var update model.SettingsUpdate
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid settings: "+err.Error(), err))
		return
	}

	s, err := h.settings.Update(c.Request.Context(), update)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Settings updated", s)
}

type resetRequest struct {
	Start *int64 `json:"start" binding:"omitempty,min=0"`
}

func (h *Handler) ResetCounter(c *gin.Context) {
	var req resetRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.RespondWithError(c, errors.BadRequest("start must be a non-negative number", err))
			return
		}
	}
	start := int64(model.DefaultCounterStart)
	if req.Start != nil {
		start = *req.Start
	}

	if err := h.counter.Reset(c.Request.Context(), start); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Queue counter reset", gin.H{"start": start})
}

type cleanupRequest struct {
	RetentionHours int `json:"retentionHours" binding:"omitempty,min=1"`
}

func (h *Handler) Cleanup(c *gin.Context) {
	var req cleanupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.RespondWithError(c, errors.BadRequest("retentionHours must be a positive number", err))
			return
		}
	}

	removed, err := h.cleaner.Cleanup(c.Request.Context(), req.RetentionHours)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Cleanup finished", gin.H{"removed": removed})
}

type broadcastRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) Broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("message is required", err))
		return
	}

	res, err := h.broadcaster.Broadcast(c.Request.Context(), req.Message)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Announcement sent", res)
}
