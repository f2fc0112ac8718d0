package sender

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

type doubleCallbackSender struct {
	outcome Outcome
	err     error
}

func (d doubleCallbackSender) Send(ctx context.Context, req Request, callback func(Outcome)) error {
	callback(d.outcome)
	callback(d.outcome) // simulates a misbehaving transport calling back twice
	return d.err
}

func TestGuardedCallbackFiresAtMostOnce(t *testing.T) {
	g := &Guarded{Inner: doubleCallbackSender{outcome: Outcome{Status: StatusSuccess}}}

	calls := 0
	err := g.Send(context.Background(), Request{}, func(o Outcome) { calls++ })
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls != 1 {
		t.Fatalf("callback fired %d times, want 1", calls)
	}
}

func TestGuardedOpenBreakerReportsBreakerOpen(t *testing.T) {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "test",
		MaxRequests: 1,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	g := &Guarded{
		Inner:   doubleCallbackSender{outcome: Outcome{Status: StatusFailed}, err: errors.New("boom")},
		Breaker: breaker,
	}

	// First call trips the breaker (ConsecutiveFailures reaches 1).
	_ = g.Send(context.Background(), Request{}, func(Outcome) {})

	var got Outcome
	err := g.Send(context.Background(), Request{}, func(o Outcome) { got = o })
	if err != gobreaker.ErrOpenState {
		t.Fatalf("expected ErrOpenState on the second call, got %v", err)
	}
	if got.Status != StatusBreakerOpen {
		t.Fatalf("Status = %v, want breaker open", got.Status)
	}
}

func TestGuardedRateLimiterBlocksBeyondBurst(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	g := &Guarded{
		Inner:   doubleCallbackSender{outcome: Outcome{Status: StatusSuccess}},
		Limiter: limiter,
	}

	// First call consumes the single burst token.
	if err := g.Send(context.Background(), Request{}, func(Outcome) {}); err != nil {
		t.Fatalf("first Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var got Outcome
	err := g.Send(ctx, Request{}, func(o Outcome) { got = o })
	if err == nil {
		t.Fatalf("expected the second call to be rate limited and time out")
	}
	if got.Status != StatusFailed {
		t.Fatalf("Status = %v, want failed", got.Status)
	}
}
