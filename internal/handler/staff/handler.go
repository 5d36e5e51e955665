package staff

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
	"github.com/jwalitptl/clinic-queue/pkg/validator"
)

type QueueService interface {
	CallNext(ctx context.Context, staffID string) (*model.Patient, error)
	Transition(ctx context.Context, ticket, target, staffID string) (*model.Patient, error)
	MarkNoShow(ctx context.Context, ticket string) (bool, error)
}

type Handler struct {
	queue QueueService
}

func NewHandler(queue QueueService) *Handler {
	return &Handler{queue: queue}
}

// RegisterRoutes expects r to already require an authenticated staff
// member.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	s := r.Group("/staff")
	{
		s.POST("/call-next", h.CallNext)
		s.POST("/tickets/:ticket/status", h.UpdateStatus)
		s.POST("/tickets/:ticket/no-show", h.MarkNoShow)
	}
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) CallNext(c *gin.Context) {
	patient, err := h.queue.CallNext(c.Request.Context(), c.GetString(middleware.ContextStaffID))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Patient called", patient)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	ticket, ok := ticketParam(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("status is required", err))
		return
	}

	patient, err := h.queue.Transition(c.Request.Context(), ticket, req.Status, c.GetString(middleware.ContextStaffID))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Status updated", patient)
}

func (h *Handler) MarkNoShow(c *gin.Context) {
	ticket, ok := ticketParam(c)
	if !ok {
		return
	}
	updated, err := h.queue.MarkNoShow(c.Request.Context(), ticket)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if !updated {
		httputil.RespondWithError(c, errors.NewConflict("ticket is not waiting", errors.ErrInvalidTransition))
		return
	}
	httputil.RespondWithMessage(c, http.StatusOK, "Marked as no-show", gin.H{"ticketNumber": ticket, "updated": true})
}

func ticketParam(c *gin.Context) (string, bool) {
	ticket := c.Param("ticket")
	if !validator.IsTicketNumber(ticket) {
		httputil.RespondWithError(c, errors.BadRequest("ticket must be a ticket number like CLINIC-101", nil))
		return "", false
	}
	return ticket, true
}
