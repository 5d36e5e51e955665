package email

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/clinic-queue/internal/model"
)

const defaultSubject = "Clinic queue update"

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Dialer is the part of gomail.Dialer the sender needs.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers queue notifications by email.
type SMTPSender struct {
	dialer Dialer
	from   string
}

func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// NewSMTPSenderWithDialer is used by tests to avoid a network round trip.
func NewSMTPSenderWithDialer(d Dialer, from string) *SMTPSender {
	return &SMTPSender{dialer: d, from: from}
}

func (s *SMTPSender) Send(ctx context.Context, to, text string) (*model.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", defaultSubject)
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@clinic-queue>", id))
	m.SetBody("text/plain", text)

	if err := s.dialer.DialAndSend(m); err != nil {
		return nil, fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	return &model.SendResult{
		Success:   true,
		Channel:   model.ChannelEmail,
		MessageID: id,
		Timestamp: time.Now().UTC(),
	}, nil
}
