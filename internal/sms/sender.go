package sms

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/model"
)

// LogSender stands in for an SMS gateway: it logs the message and reports
// success with a synthetic id.
type LogSender struct {
	logger zerolog.Logger
	now    func() time.Time
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger, now: time.Now}
}

func (s *LogSender) Send(ctx context.Context, to, text string) (*model.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := "SMS-" + uuid.NewString()
	s.logger.Info().
		Str("to", to).
		Str("message_id", id).
		Str("text", text).
		Msg("sms sent")

	return &model.SendResult{
		Success:   true,
		Channel:   model.ChannelSMS,
		MessageID: id,
		Timestamp: s.now().UTC(),
	}, nil
}
