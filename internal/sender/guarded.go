package sender

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Guarded wraps a PushNotificationSender with a per-platform rate limiter
// and circuit breaker, and a one-shot callback guard: the wrapped
// callback can fire at most once even if the underlying sender's async
// transport calls back twice (spec.md §9 Open Question i — resolved by
// making double-invocation structurally impossible rather than trusting
// every platform SDK to honor "at most once").
//
// Grounded on worker.Processor's executeWithBreaker (limiter.Wait, then
// breaker.Execute), with the teacher's retry loop dropped per spec.md §7.
type Guarded struct {
	Inner   PushNotificationSender
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker
}

func (g *Guarded) Send(ctx context.Context, req Request, callback func(Outcome)) error {
	var once sync.Once
	guardedCallback := func(o Outcome) {
		once.Do(func() { callback(o) })
	}

	if g.Limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := g.Limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			guardedCallback(Outcome{Status: StatusFailed, Reason: "rate limit wait: " + err.Error()})
			return err
		}
	}

	call := func() (any, error) {
		err := g.Inner.Send(ctx, req, guardedCallback)
		return nil, err
	}

	var err error
	if g.Breaker != nil {
		_, err = g.Breaker.Execute(call)
	} else {
		_, err = call()
	}

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		guardedCallback(Outcome{Status: StatusBreakerOpen, Reason: err.Error()})
	}
	return err
}

var _ PushNotificationSender = (*Guarded)(nil)
