// Package poll blocks until a read-only condition becomes true.
package poll

import (
	"context"
	"errors"
	"time"

	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/Unbounder1/server-manager/internal/metrics"
)

const (
	// DefaultInterval is used when WaitFor is given a non-positive interval.
	DefaultInterval = 5 * time.Second

	// NoTimeout makes WaitFor poll until the condition holds. Any negative
	// timeout behaves the same.
	NoTimeout time.Duration = -1
)

// ErrTimeout is returned when the condition never held within the timeout.
var ErrTimeout = errors.New("timed out waiting for condition")

// ConditionFunc reports whether the awaited state has been reached.
type ConditionFunc func(ctx context.Context) bool

// Poller re-evaluates a condition on a fixed interval.
type Poller struct {
	Clock clock.Clock
}

// New returns a Poller on the given clock, or the real clock when c is nil.
func New(c clock.Clock) *Poller {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Poller{Clock: c}
}

// WaitFor evaluates cond immediately and then once per interval until it
// returns true. Elapsed time is measured as attempts*interval rather than wall
// clock, so the effective timeout is rounded up to a whole attempt: with a 10s
// interval and a 25s timeout cond is evaluated exactly three times. A zero
// timeout evaluates cond once.
//
// The context is checked around every evaluation. A condition that held on a
// cancelled context is not reported as converged.
func (p *Poller) WaitFor(ctx context.Context, cond ConditionFunc, interval, timeout time.Duration) error {
	logger := log.FromContext(ctx)

	if interval <= 0 {
		interval = DefaultInterval
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cond(ctx) {
			return ctx.Err()
		}
		metrics.PollAttemptsTotal.Inc()

		if timeout >= 0 && time.Duration(attempt)*interval >= timeout {
			return ErrTimeout
		}
		logger.V(1).Info("Waiting", "attempt", attempt, "interval", interval)
		clk.Sleep(interval)
	}
}
