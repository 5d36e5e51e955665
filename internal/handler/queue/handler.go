package queue

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/realtime"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
	"github.com/jwalitptl/clinic-queue/pkg/validator"
)

type QueueService interface {
	Join(ctx context.Context, contact model.Contact) (*model.Patient, error)
	FindByTicket(ctx context.Context, ticket string) (*model.Patient, error)
	ListWaiting(ctx context.Context) ([]*model.Patient, error)
	ListActive(ctx context.Context) ([]*model.Patient, error)
	Stats(ctx context.Context) (*model.QueueStats, error)
	StatsOrZero(ctx context.Context) *model.QueueStats
}

type Estimator interface {
	Position(ctx context.Context, ticket string) (int, error)
	Estimate(ctx context.Context, ticket string) (*model.WaitEstimate, error)
	GeneralEstimate(ctx context.Context) (*model.GeneralEstimate, error)
}

type Admission interface {
	Check(ctx context.Context) error
}

type TicketPreviewer interface {
	PeekNext(ctx context.Context) (string, error)
}

type Handler struct {
	queue     QueueService
	estimator Estimator
	admission Admission
	tickets   TicketPreviewer
	hub       *realtime.Hub
	heartbeat time.Duration
	joinChain []gin.HandlerFunc
}

func NewHandler(queue QueueService, estimator Estimator, admission Admission, tickets TicketPreviewer, hub *realtime.Hub) *Handler {
	return &Handler{
		queue:     queue,
		estimator: estimator,
		admission: admission,
		tickets:   tickets,
		hub:       hub,
		heartbeat: 15 * time.Second,
	}
}

// UseOnJoin puts middleware in front of the join route only. Call it
// before RegisterRoutes.
func (h *Handler) UseOnJoin(middleware ...gin.HandlerFunc) {
	h.joinChain = append(h.joinChain, middleware...)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	q := r.Group("/queue")
	{
		q.POST("/join", append(h.joinChain, h.Join)...)
		q.GET("/status", h.Status)
		q.GET("/waiting", h.ListWaiting)
		q.GET("/active", h.ListActive)
		q.GET("/stats", h.Stats)
		q.GET("/estimate", h.GeneralEstimate)
		q.GET("/estimate/:ticket", h.Estimate)
		q.GET("/next-ticket", h.NextTicket)
		q.GET("/tickets/:ticket", h.GetTicket)
		q.GET("/tickets/:ticket/position", h.Position)
		q.GET("/stream", h.Stream)
	}
}

type joinResponse struct {
	Ticket   *model.Patient      `json:"ticket"`
	Estimate *model.WaitEstimate `json:"estimate"`
}

func (h *Handler) Join(c *gin.Context) {
	var contact model.Contact
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&contact); err != nil {
			httputil.RespondWithError(c, errors.BadRequest("invalid request body", err))
			return
		}
	}

	ctx := c.Request.Context()
	if err := h.admission.Check(ctx); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	patient, err := h.queue.Join(ctx, contact)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	est, err := h.estimator.Estimate(ctx, patient.TicketNumber)
	if err != nil {
		est = &model.WaitEstimate{
			TicketNumber:     patient.TicketNumber,
			EstimatedMinutes: patient.EstimatedWait,
		}
	}
	httputil.RespondWithMessage(c, http.StatusCreated, "Successfully joined the queue", joinResponse{
		Ticket:   patient,
		Estimate: est,
	})
}

type statusResponse struct {
	Stats      *model.QueueStats      `json:"stats"`
	NowServing []*model.Patient       `json:"nowServing"`
	Estimate   *model.GeneralEstimate `json:"estimate,omitempty"`
}

// Status is the dashboard view. It degrades to zeroed counts rather than
// failing when the store is briefly unavailable.
func (h *Handler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	resp := statusResponse{Stats: h.queue.StatsOrZero(ctx), NowServing: []*model.Patient{}}
	if active, err := h.queue.ListActive(ctx); err == nil {
		resp.NowServing = active
	}
	if est, err := h.estimator.GeneralEstimate(ctx); err == nil {
		resp.Estimate = est
	}
	httputil.RespondWithSuccess(c, resp)
}

func (h *Handler) ListWaiting(c *gin.Context) {
	patients, err := h.queue.ListWaiting(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patients)
}

func (h *Handler) ListActive(c *gin.Context) {
	patients, err := h.queue.ListActive(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patients)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, stats)
}

func (h *Handler) GeneralEstimate(c *gin.Context) {
	est, err := h.estimator.GeneralEstimate(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, est)
}

func (h *Handler) Estimate(c *gin.Context) {
	ticket, ok := ticketParam(c)
	if !ok {
		return
	}
	est, err := h.estimator.Estimate(c.Request.Context(), ticket)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, est)
}

func (h *Handler) NextTicket(c *gin.Context) {
	next, err := h.tickets.PeekNext(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"nextTicket": next})
}

func (h *Handler) GetTicket(c *gin.Context) {
	ticket, ok := ticketParam(c)
	if !ok {
		return
	}
	patient, err := h.queue.FindByTicket(c.Request.Context(), ticket)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patient)
}

func (h *Handler) Position(c *gin.Context) {
	ticket, ok := ticketParam(c)
	if !ok {
		return
	}
	position, err := h.estimator.Position(c.Request.Context(), ticket)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"ticketNumber": ticket, "position": position})
}

// ticketParam reads :ticket and answers 400 itself when it is malformed.
func ticketParam(c *gin.Context) (string, bool) {
	ticket := c.Param("ticket")
	if !validator.IsTicketNumber(ticket) {
		httputil.RespondWithError(c, errors.BadRequest("ticket must be a ticket number like CLINIC-101", nil))
		return "", false
	}
	return ticket, true
}
