// Package assertions provides test helpers for snapshot-accelerated
// repositories: checking stored snapshots, comparing aggregate state and
// inspecting pending events.
package assertions

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/AshkanYarmoradi/go-snapmink"
)

// TB is an alias for testing.TB to allow mocking in tests.
type TB = testing.TB

// AssertSnapshotAt fails unless store holds a snapshot for streamID taken
// at playhead.
func AssertSnapshotAt(t TB, store snapmink.SnapshotStore, streamID string, playhead int64) *snapmink.Snapshot {
	t.Helper()

	snap, err := store.Load(context.Background(), streamID)
	if err != nil {
		t.Fatalf("Loading snapshot for %s: %v", streamID, err)
		return nil
	}
	if snap == nil {
		t.Fatalf("Expected snapshot for %s at playhead %d, found none", streamID, playhead)
		return nil
	}
	if snap.Playhead != playhead {
		t.Errorf("Snapshot for %s: expected playhead %d, got %d", streamID, playhead, snap.Playhead)
	}
	return snap
}

// AssertNoSnapshot fails if store holds a snapshot for streamID.
func AssertNoSnapshot(t TB, store snapmink.SnapshotStore, streamID string) {
	t.Helper()

	snap, err := store.Load(context.Background(), streamID)
	if err != nil {
		t.Fatalf("Loading snapshot for %s: %v", streamID, err)
		return
	}
	if snap != nil {
		t.Errorf("Expected no snapshot for %s, found one at playhead %d", streamID, snap.Playhead)
	}
}

// AssertSameState fails unless both aggregates have the same identity,
// playhead and encoded state.
func AssertSameState(t TB, codec snapmink.StateCodec, expected, actual snapmink.Aggregate) {
	t.Helper()

	if expected.AggregateID() != actual.AggregateID() || expected.AggregateType() != actual.AggregateType() {
		t.Errorf("Aggregate identity mismatch: expected %s, got %s",
			snapmink.StreamIDFor(expected), snapmink.StreamIDFor(actual))
	}
	if expected.Version() != actual.Version() {
		t.Errorf("Playhead mismatch: expected %d, got %d", expected.Version(), actual.Version())
	}

	want, err := codec.EncodeState(expected)
	if err != nil {
		t.Fatalf("Encoding expected state: %v", err)
		return
	}
	got, err := codec.EncodeState(actual)
	if err != nil {
		t.Fatalf("Encoding actual state: %v", err)
		return
	}
	if !bytes.Equal(want, got) {
		t.Errorf("State mismatch:\nExpected: %s\nActual:   %s", want, got)
	}
}

// AssertPlayhead checks the aggregate's playhead.
func AssertPlayhead(t TB, agg snapmink.Aggregate, expected int64) {
	t.Helper()

	if agg.Version() != expected {
		t.Errorf("Expected playhead %d, got %d", expected, agg.Version())
	}
}

// AssertPendingEventTypes checks the aggregate's uncommitted events, in order.
func AssertPendingEventTypes(t TB, agg snapmink.Aggregate, types ...string) {
	t.Helper()

	events := agg.UncommittedEvents()
	if len(events) != len(types) {
		t.Fatalf("Expected %d pending events, got %d", len(types), len(events))
		return
	}

	for i, expected := range types {
		if actual := typeName(events[i]); actual != expected {
			t.Errorf("Pending event %d: expected type %s, got %s", i, expected, actual)
		}
	}
}

// AssertEventData checks that event is a T equal to expected.
func AssertEventData[T any](t TB, event interface{}, expected T) {
	t.Helper()

	actual, ok := event.(T)
	if !ok {
		t.Fatalf("Event is not of expected type %T, got %T", expected, event)
		return
	}
	if !reflect.DeepEqual(actual, expected) {
		t.Errorf("Event data mismatch:\nExpected: %+v\nActual: %+v", expected, actual)
	}
}

func typeName(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	typ := reflect.TypeOf(v)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Name() == "" {
		return fmt.Sprintf("%T", v)
	}
	return typ.Name()
}
