package notification

import (
	"context"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/circuitbreaker"
)

type breakerSender struct {
	next Sender
	cb   *circuitbreaker.CircuitBreaker
}

// WithBreaker makes next fail fast once it has failed repeatedly.
func WithBreaker(next Sender, cb *circuitbreaker.CircuitBreaker) Sender {
	return &breakerSender{next: next, cb: cb}
}

func (b *breakerSender) Send(ctx context.Context, to, text string) (*model.SendResult, error) {
	var res *model.SendResult
	err := b.cb.Execute(func() error {
		var err error
		res, err = b.next.Send(ctx, to, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
