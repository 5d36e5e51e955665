package notification

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

const (
	DefaultThreshold     = 3
	MaxAnnouncementChars = 500
)

// Sender delivers one text message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, text string) (*model.SendResult, error)
}

type Config struct {
	Threshold     int
	QueueSize     int
	DedupTTL      time.Duration
	RatePerSecond float64
	Burst         int
	SendTimeout   time.Duration
}

type job struct {
	key     string
	channel model.NotificationChannel
	to      string
	text    string
	ticket  string
}

// Dispatcher sends threshold notifications off the request path. Nothing it
// does can fail or slow down the caller.
type Dispatcher struct {
	sms      Sender
	email    Sender
	settings repository.SettingsRepository
	patients repository.PatientRepository
	cfg      Config
	jobs     chan job
	sent     *cache.Cache
	limiter  *rate.Limiter
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(
	sms Sender,
	email Sender,
	settings repository.SettingsRepository,
	patients repository.PatientRepository,
	cfg Config,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Dispatcher {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 30 * time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Dispatcher{
		sms:      sms,
		email:    email,
		settings: settings,
		patients: patients,
		cfg:      cfg,
		jobs:     make(chan job, cfg.QueueSize),
		sent:     cache.New(cfg.DedupTTL, 2*cfg.DedupTTL),
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
		metrics:  metrics,
	}
}

// ShouldNotify reports whether a patient at position is close enough to be told.
func ShouldNotify(status model.QueueStatus, position int) bool {
	return shouldNotify(status, position, DefaultThreshold)
}

func shouldNotify(status model.QueueStatus, position, threshold int) bool {
	return status == model.StatusWaiting && position >= 0 && position <= threshold
}

// ComposeMessage picks the text for a patient at position.
func ComposeMessage(ticket string, position, avgMinutes int) string {
	switch {
	case position <= 0:
		return fmt.Sprintf("Your turn is now! Please proceed to the counter. Ticket: %s", ticket)
	case position == 1:
		return fmt.Sprintf("You're next in line! Please get ready. Ticket: %s", ticket)
	case position <= DefaultThreshold:
		return fmt.Sprintf("You're %d patients away. Ticket: %s", position, ticket)
	default:
		return fmt.Sprintf("Your estimated wait: %d minutes. Ticket: %s", position*avgMinutes, ticket)
	}
}

// Start runs the send loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting notification dispatcher", "queue_size", d.cfg.QueueSize)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Shutting down notification dispatcher", "dropped", len(d.jobs))
			return
		case j := <-d.jobs:
			d.deliver(ctx, j)
		}
	}
}

// Dispatch queues a notification for patient if it is due. It never blocks.
func (d *Dispatcher) Dispatch(ctx context.Context, patient *model.Patient, position int) {
	if patient == nil || !shouldNotify(patient.Status, position, d.cfg.Threshold) {
		return
	}
	channel, to, ok := recipient(patient)
	if !ok {
		return
	}

	key := fmt.Sprintf("%s:%d", patient.TicketNumber, position)
	if err := d.sent.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		return
	}

	text := ComposeMessage(patient.TicketNumber, position, d.averageMinutes(ctx, position))
	select {
	case d.jobs <- job{key: key, channel: channel, to: to, text: text, ticket: patient.TicketNumber}:
	default:
		d.sent.Delete(key)
		d.metrics.NotificationsSent.WithLabelValues(string(channel), "dropped").Inc()
		d.logger.Warn("Notification queue full, dropping", "ticket_number", patient.TicketNumber)
	}
}

// Broadcast sends an announcement to every waiting patient with a contact.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) (*model.BroadcastResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.BadRequest("announcement must not be empty", nil)
	}
	if utf8.RuneCountInString(text) > MaxAnnouncementChars {
		return nil, errors.BadRequest(fmt.Sprintf("announcement must not exceed %d characters", MaxAnnouncementChars), nil)
	}

	waiting, err := d.patients.ListWaiting(ctx)
	if err != nil {
		return nil, err
	}

	result := &model.BroadcastResult{}
	message := "Clinic Announcement: " + text
	for _, p := range waiting {
		channel, to, ok := recipient(p)
		if !ok {
			continue
		}
		result.Recipients++
		if err := d.send(ctx, job{channel: channel, to: to, text: message, ticket: p.TicketNumber}); err != nil {
			result.Failed++
			continue
		}
		result.Sent++
	}

	d.logger.Info("Announcement broadcast",
		"recipients", result.Recipients, "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	if err := d.send(ctx, j); err != nil {
		// allow a later position check to try again
		d.sent.Delete(j.key)
	}
}

func (d *Dispatcher) send(ctx context.Context, j job) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	sender := d.sms
	if j.channel == model.ChannelEmail {
		sender = d.email
	}
	if sender == nil {
		return fmt.Errorf("no %s transport configured", j.channel)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	res, err := sender.Send(sendCtx, j.to, j.text)
	if err != nil {
		d.metrics.NotificationsSent.WithLabelValues(string(j.channel), "error").Inc()
		d.logger.Error(err, "Notification send failed", "ticket_number", j.ticket, "channel", string(j.channel))
		return err
	}
	d.metrics.NotificationsSent.WithLabelValues(string(j.channel), "sent").Inc()
	d.logger.Info("Notification sent",
		"ticket_number", j.ticket, "channel", string(j.channel), "message_id", res.MessageID)
	return nil
}

func (d *Dispatcher) averageMinutes(ctx context.Context, position int) int {
	if position <= DefaultThreshold || d.settings == nil {
		return model.DefaultAverageServiceMinutes
	}
	s, err := d.settings.Get(ctx)
	if err != nil {
		return model.DefaultAverageServiceMinutes
	}
	return s.AverageServiceMinutes
}

// recipient prefers SMS and falls back to email.
func recipient(p *model.Patient) (model.NotificationChannel, string, bool) {
	if p.Phone != nil && *p.Phone != "" {
		return model.ChannelSMS, *p.Phone, true
	}
	if p.Email != nil && *p.Email != "" {
		return model.ChannelEmail, *p.Email, true
	}
	return "", "", false
}
