package snapmink

import (
	"context"
	"errors"
	"fmt"
)

// Repository is the capability set shared by aggregate repositories.
type Repository interface {
	// Load reconstructs the aggregate with the given id from its full history.
	// Returns ErrAggregateNotFound if it has no events.
	Load(ctx context.Context, id string) (Aggregate, error)

	// LoadUntilPlayhead reconstructs the aggregate as of the given playhead.
	LoadUntilPlayhead(ctx context.Context, id string, playhead int64) (Aggregate, error)

	// Save persists the aggregate's uncommitted events.
	Save(ctx context.Context, agg Aggregate) error
}

// EventLog reads an aggregate's ordered event stream.
type EventLog interface {
	// LoadAll returns the whole stream. Returns ErrStreamNotFound when empty.
	LoadAll(ctx context.Context, streamID string) ([]Event, error)

	// LoadFrom returns events with position > fromVersion through the end.
	LoadFrom(ctx context.Context, streamID string, fromVersion int64) ([]Event, error)

	// LoadRange returns events with fromVersion < position <= toVersion.
	LoadRange(ctx context.Context, streamID string, fromVersion, toVersion int64) ([]Event, error)
}

// EventStream is an EventLog that can also persist aggregates.
type EventStream interface {
	EventLog
	SaveAggregate(ctx context.Context, agg Aggregate, opts ...AppendOption) error
}

// EventSourcingRepository loads and saves aggregates purely by replaying
// and appending events, without snapshot acceleration.
type EventSourcingRepository struct {
	stream  EventStream
	factory AggregateFactory
	logger  Logger
}

// EventSourcingOption configures an EventSourcingRepository.
type EventSourcingOption func(*EventSourcingRepository)

// WithRepositoryLogger sets the logger for the repository.
func WithRepositoryLogger(logger Logger) EventSourcingOption {
	return func(r *EventSourcingRepository) {
		r.logger = logger
	}
}

// NewEventSourcingRepository creates a full-replay repository for the
// aggregates produced by factory.
func NewEventSourcingRepository(stream EventStream, factory AggregateFactory, opts ...EventSourcingOption) *EventSourcingRepository {
	r := &EventSourcingRepository{
		stream:  stream,
		factory: factory,
		logger:  &noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replays every event of the aggregate's stream onto a new instance.
func (r *EventSourcingRepository) Load(ctx context.Context, id string) (Aggregate, error) {
	agg, err := r.newAggregate(id)
	if err != nil {
		return nil, err
	}

	events, err := r.stream.LoadAll(ctx, StreamIDFor(agg))
	if err != nil {
		if errors.Is(err, ErrStreamNotFound) {
			return nil, NewAggregateNotFoundError(agg.AggregateType(), id)
		}
		return nil, err
	}

	return r.replay(agg, events)
}

// LoadUntilPlayhead replays events 1..playhead onto a new instance.
// A stream with no events in that range yields ErrAggregateNotFound.
func (r *EventSourcingRepository) LoadUntilPlayhead(ctx context.Context, id string, playhead int64) (Aggregate, error) {
	if playhead < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPlayhead, playhead)
	}

	agg, err := r.newAggregate(id)
	if err != nil {
		return nil, err
	}

	events, err := r.stream.LoadRange(ctx, StreamIDFor(agg), 0, playhead)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, NewAggregateNotFoundError(agg.AggregateType(), id)
	}

	return r.replay(agg, events)
}

// Save appends the aggregate's uncommitted events using its playhead as
// the expected stream version.
func (r *EventSourcingRepository) Save(ctx context.Context, agg Aggregate) error {
	if agg == nil {
		return ErrNilAggregate
	}
	return r.stream.SaveAggregate(ctx, agg)
}

func (r *EventSourcingRepository) newAggregate(id string) (Aggregate, error) {
	if id == "" {
		return nil, ErrEmptyStreamID
	}
	agg := r.factory(id)
	if agg == nil {
		return nil, ErrNilAggregate
	}
	return agg, nil
}

func (r *EventSourcingRepository) replay(agg Aggregate, events []Event) (Aggregate, error) {
	if err := ApplyEvents(agg, events); err != nil {
		r.logger.Error("replay failed", "stream", StreamIDFor(agg), "error", err)
		return nil, err
	}
	r.logger.Debug("aggregate replayed", "stream", StreamIDFor(agg), "events", len(events))
	return agg, nil
}

var _ Repository = (*EventSourcingRepository)(nil)
