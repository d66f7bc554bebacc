// SPDX-License-Identifier: MPL-2.0

package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// State is a position in the liveness model.
type State int

const (
	// StateStarting means no probe has succeeded yet.
	StateStarting State = iota
	// StateHealthy means the last probe succeeded.
	StateHealthy
	// StateUnhealthy means the last probe failed but the retry budget remains.
	StateUnhealthy
	// StateFailed is terminal: consecutive failures exhausted the budget.
	StateFailed
)

// ErrProbeBudgetExhausted indicates consecutive probe failures reached the
// retry budget and the subject is considered failed.
var ErrProbeBudgetExhausted = errors.New("health probe retry budget exhausted")

// String returns the lowercase state name used in logs and CLI output.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type (
	// Probe checks liveness once. A nil return is a successful probe.
	Probe interface {
		Check(ctx context.Context) error
	}

	// Transition is one observed state change.
	Transition struct {
		From     State
		To       State
		Err      error // probe error that caused the change, nil on recovery
		Failures int   // consecutive failures at the time of the transition
	}

	// Prober runs a Probe on an interval and reports state transitions.
	Prober struct {
		probe    Probe
		interval time.Duration
		retries  int
		logger   *slog.Logger
	}

	// ProberOption configures a Prober during construction.
	ProberOption func(*Prober)
)

// WithLogger sets the logger used for probe transitions.
func WithLogger(l *slog.Logger) ProberOption {
	return func(p *Prober) {
		p.logger = l
	}
}

// NewProber creates a Prober that checks every interval and declares failure
// after retries consecutive probe errors.
func NewProber(probe Probe, interval time.Duration, retries int, opts ...ProberOption) *Prober {
	p := &Prober{
		probe:    probe,
		interval: interval,
		retries:  retries,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watch probes until ctx is done or the retry budget is exhausted and streams
// every state transition. The channel closes when watching stops; a terminal
// StateFailed transition is the last element before close.
func (p *Prober) Watch(ctx context.Context) <-chan Transition {
	ch := make(chan Transition)

	go func() {
		defer close(ch)

		state := StateStarting
		failures := 0

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			err := p.probe.Check(ctx)
			next, terminal := advance(state, err != nil, &failures, p.retries)

			if next != state {
				p.logger.Debug("health transition",
					"from", state, "to", next, "failures", failures)
				t := Transition{From: state, To: next, Err: err, Failures: failures}
				select {
				case ch <- t:
				case <-ctx.Done():
					return
				}
				state = next
			}
			if terminal {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// WaitHealthy blocks until the first successful probe, the retry budget runs
// out, or ctx is done.
func (p *Prober) WaitHealthy(ctx context.Context) error {
	for t := range p.Watch(ctx) {
		switch t.To {
		case StateHealthy:
			return nil
		case StateFailed:
			return fmt.Errorf("%w after %d attempts: %v", ErrProbeBudgetExhausted, t.Failures, t.Err)
		case StateStarting, StateUnhealthy:
		}
	}
	return ctx.Err()
}

// advance computes the next state for one probe outcome. Failures counts
// consecutive errors; any success resets it. Returns the next state and
// whether it is terminal.
func advance(state State, failed bool, failures *int, retries int) (State, bool) {
	if !failed {
		*failures = 0
		return StateHealthy, false
	}

	*failures++
	if *failures >= retries {
		return StateFailed, true
	}
	if state == StateHealthy || state == StateUnhealthy {
		return StateUnhealthy, false
	}
	return state, false
}
