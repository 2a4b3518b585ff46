// Package breaker wraps a snapshot adapter in a circuit breaker.
//
// Snapshots are an optimization: when the snapshot backend is failing, the
// event log still holds the truth. With WithDegradeOnOpen, an open circuit
// turns loads into misses (the repository replays the full stream) and
// saves into no-ops instead of errors.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

var _ adapters.SnapshotAdapter = (*SnapshotAdapter)(nil)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("snapmink/breaker: circuit open")

// Logger receives breaker state changes. snapmink.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
}

// Config holds circuit breaker settings.
type Config struct {
	Name string

	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period after which closed-state counts reset.
	Interval time.Duration

	// Timeout is how long the circuit stays open before going half-open.
	Timeout time.Duration

	// FailureThreshold is the failure ratio that trips the circuit once
	// MinRequests calls have been seen.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultConfig returns settings suited to a remote snapshot store.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// SnapshotAdapter decorates another SnapshotAdapter with a circuit breaker.
type SnapshotAdapter struct {
	next    adapters.SnapshotAdapter
	cb      *gobreaker.CircuitBreaker
	degrade bool
	logger  Logger
}

// Option configures a SnapshotAdapter.
type Option func(*SnapshotAdapter)

// WithDegradeOnOpen treats rejected calls as a snapshot miss or a skipped
// write rather than an error.
func WithDegradeOnOpen() Option {
	return func(a *SnapshotAdapter) {
		a.degrade = true
	}
}

// WithLogger sets the logger for state changes.
func WithLogger(logger Logger) Option {
	return func(a *SnapshotAdapter) {
		a.logger = logger
	}
}

// New wraps next in a circuit breaker configured by cfg.
func New(next adapters.SnapshotAdapter, cfg Config, opts ...Option) *SnapshotAdapter {
	a := &SnapshotAdapter{next: next}
	for _, opt := range opts {
		opt(a)
	}

	a.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if a.logger == nil {
				return
			}
			if to == gobreaker.StateOpen {
				a.logger.Warn("snapshot circuit opened", "breaker", name, "from", from.String())
				return
			}
			a.logger.Info("snapshot circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about the backend's health.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, adapters.ErrEmptyStreamID)
		},
	})

	return a
}

// State returns the breaker's current state.
func (a *SnapshotAdapter) State() gobreaker.State {
	return a.cb.State()
}

// Unwrap returns the wrapped adapter.
func (a *SnapshotAdapter) Unwrap() adapters.SnapshotAdapter {
	return a.next
}

func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (a *SnapshotAdapter) wrap(err error) error {
	if rejected(err) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, a.cb.Name())
	}
	return err
}

// SaveSnapshot forwards to the wrapped adapter.
func (a *SnapshotAdapter) SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		return nil, a.next.SaveSnapshot(ctx, streamID, version, data)
	})
	if a.degrade && rejected(err) {
		return nil
	}
	return a.wrap(err)
}

// LoadSnapshot forwards to the wrapped adapter.
func (a *SnapshotAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	out, err := a.cb.Execute(func() (interface{}, error) {
		return a.next.LoadSnapshot(ctx, streamID)
	})
	if err != nil {
		if a.degrade && rejected(err) {
			return nil, nil
		}
		return nil, a.wrap(err)
	}
	rec, _ := out.(*adapters.SnapshotRecord)
	return rec, nil
}

// DeleteSnapshot forwards to the wrapped adapter. Deletes are never
// degraded since a caller relying on them expects the snapshot gone.
func (a *SnapshotAdapter) DeleteSnapshot(ctx context.Context, streamID string) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		return nil, a.next.DeleteSnapshot(ctx, streamID)
	})
	return a.wrap(err)
}
