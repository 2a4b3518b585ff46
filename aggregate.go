package snapmink

import "fmt"

// Aggregate defines the interface for event-sourced aggregates.
// An aggregate is a domain object whose state is derived from a sequence of events.
type Aggregate interface {
	// AggregateID returns the unique identifier for this aggregate instance.
	AggregateID() string

	// AggregateType returns the type/category of this aggregate (e.g., "Account").
	AggregateType() string

	// Version returns the aggregate's playhead: the number of committed
	// events applied to it since creation.
	Version() int64

	// ApplyEvent applies an event to update the aggregate's state.
	// It must be deterministic and must not record the event as uncommitted.
	ApplyEvent(event interface{}) error

	// UncommittedEvents returns events that have been recorded but not yet persisted.
	UncommittedEvents() []interface{}

	// ClearUncommittedEvents removes all uncommitted events after successful persistence.
	ClearUncommittedEvents()
}

// VersionSetter is implemented by aggregates whose playhead can be set
// directly. Repositories use it after replay and after save; aggregates
// restored from snapshots must implement it.
type VersionSetter interface {
	SetVersion(v int64)
}

// AggregateFactory creates new, empty aggregate instances.
type AggregateFactory func(id string) Aggregate

// AggregateBase provides a default partial implementation of the Aggregate interface.
// Embed this struct in your aggregate types to get default behavior.
type AggregateBase struct {
	id                string
	aggregateType     string
	version           int64
	uncommittedEvents []interface{}
}

// NewAggregateBase creates a new AggregateBase with the given ID and type.
func NewAggregateBase(id, aggregateType string) AggregateBase {
	return AggregateBase{
		id:            id,
		aggregateType: aggregateType,
	}
}

// AggregateID returns the aggregate's unique identifier.
func (a *AggregateBase) AggregateID() string {
	return a.id
}

// AggregateType returns the aggregate type.
func (a *AggregateBase) AggregateType() string {
	return a.aggregateType
}

// Version returns the current playhead of the aggregate.
func (a *AggregateBase) Version() int64 {
	return a.version
}

// SetVersion sets the aggregate playhead.
func (a *AggregateBase) SetVersion(v int64) {
	a.version = v
}

// SetID sets the aggregate ID.
func (a *AggregateBase) SetID(id string) {
	a.id = id
}

// SetType sets the aggregate type.
func (a *AggregateBase) SetType(t string) {
	a.aggregateType = t
}

// UncommittedEvents returns events that haven't been persisted yet.
func (a *AggregateBase) UncommittedEvents() []interface{} {
	return a.uncommittedEvents
}

// ClearUncommittedEvents removes all uncommitted events.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.uncommittedEvents = nil
}

// Apply records an event as uncommitted.
// The aggregate should also update its internal state based on the event.
func (a *AggregateBase) Apply(event interface{}) {
	a.uncommittedEvents = append(a.uncommittedEvents, event)
}

// HasUncommittedEvents returns true if there are events waiting to be persisted.
func (a *AggregateBase) HasUncommittedEvents() bool {
	return len(a.uncommittedEvents) > 0
}

// StreamID returns the stream ID for this aggregate.
func (a *AggregateBase) StreamID() StreamID {
	return NewStreamID(a.aggregateType, a.id)
}

// PendingEventCount returns the number of uncommitted events on agg.
func PendingEventCount(agg Aggregate) int {
	return len(agg.UncommittedEvents())
}

// StreamIDFor returns the event stream identifier of agg.
func StreamIDFor(agg Aggregate) string {
	return NewStreamID(agg.AggregateType(), agg.AggregateID()).String()
}

// ApplyEvents applies events to agg in order, advancing its playhead by
// exactly len(events). Each event must carry the position immediately
// following the playhead; a gap or reordering stops replay with an
// *EventOrderError. On error agg is left partially applied and must be
// discarded by the caller.
//
// Aggregates that do not implement VersionSetter are expected to advance
// their own version inside ApplyEvent.
func ApplyEvents(agg Aggregate, events []Event) error {
	if agg == nil {
		return ErrNilAggregate
	}

	setter, canSet := agg.(VersionSetter)

	playhead := agg.Version()
	for _, event := range events {
		if event.Version != playhead+1 {
			return &EventOrderError{
				StreamID:     event.StreamID,
				Playhead:     playhead,
				EventVersion: event.Version,
			}
		}

		if err := agg.ApplyEvent(event.Data); err != nil {
			return fmt.Errorf("snapmink: failed to apply event %d: %w", event.Version, err)
		}

		playhead = event.Version
		if canSet {
			setter.SetVersion(playhead)
		}
	}

	return nil
}
