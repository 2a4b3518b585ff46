package snapmink

// SnapshotTrigger decides whether saving an aggregate should also write a
// snapshot. ShouldSnapshot is evaluated before the aggregate's pending
// events are persisted and must depend only on the aggregate.
type SnapshotTrigger interface {
	ShouldSnapshot(agg Aggregate) bool

	// EventCount returns the threshold, also used by rebuilds.
	EventCount() int
}

// DefaultSnapshotThreshold is the EventCountTrigger threshold used when
// no trigger is configured.
const DefaultSnapshotThreshold = 100

// EventCountTrigger fires when a save crosses a multiple of N events:
// some pending event lands on a stream position divisible by N.
type EventCountTrigger struct {
	N int
}

// NewEventCountTrigger creates an EventCountTrigger.
func NewEventCountTrigger(n int) EventCountTrigger {
	return EventCountTrigger{N: n}
}

// ShouldSnapshot implements SnapshotTrigger.
func (t EventCountTrigger) ShouldSnapshot(agg Aggregate) bool {
	if t.N <= 0 || agg == nil {
		return false
	}

	pending := int64(PendingEventCount(agg))
	if pending == 0 {
		return false
	}

	// first multiple of N after the playhead
	next := (agg.Version()/int64(t.N) + 1) * int64(t.N)
	return next <= agg.Version()+pending
}

// EventCount implements SnapshotTrigger.
func (t EventCountTrigger) EventCount() int {
	return t.N
}

// PendingEventsTrigger fires when a single save carries at least N events.
type PendingEventsTrigger struct {
	N int
}

// ShouldSnapshot implements SnapshotTrigger.
func (t PendingEventsTrigger) ShouldSnapshot(agg Aggregate) bool {
	if t.N <= 0 || agg == nil {
		return false
	}
	return PendingEventCount(agg) >= t.N
}

// EventCount implements SnapshotTrigger.
func (t PendingEventsTrigger) EventCount() int {
	return t.N
}

var (
	_ SnapshotTrigger = EventCountTrigger{}
	_ SnapshotTrigger = PendingEventsTrigger{}
)
