package runner

import (
	"context"
	"errors"
	"time"

	"github.com/NightStrang6r/FunPayVertex/internal/funpay"
)

// Listen starts the polling loop and returns the event stream. The channel
// is unbuffered; a slow consumer stalls polling instead of growing a queue.
// The channel closes when ctx is cancelled, when authentication is lost, or
// on the first poll failure unless resume-on-error is set.
func (r *Runner) Listen(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		r.logger.Info().Dur("interval", r.pollInterval).Msg("Runner started")
		for {
			events, err := r.Update(ctx)
			if err != nil {
				switch {
				case ctx.Err() != nil:
					return
				case errors.Is(err, funpay.ErrUnauthorized):
					r.logger.Error().Err(err).Msg("Session is no longer valid, stopping runner")
					return
				case !r.resume:
					r.logger.Error().Err(err).Msg("Poll failed, stopping runner")
					return
				default:
					r.logger.Warn().Err(err).Msg("Poll failed, will retry next cycle")
				}
			}

			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-time.After(r.pollInterval):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
