package snapmink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

// Snapshot is the captured state of an aggregate at a playhead.
//
// State holds the encoded aggregate, never a live instance: every call to
// Restore decodes into a freshly constructed aggregate, so restored copies
// never share memory with each other or with the snapshot.
type Snapshot struct {
	AggregateID   string
	AggregateType string
	Playhead      int64
	State         []byte
	TakenAt       time.Time

	// stream is the key the snapshot was stored under, when it came from
	// a store that only knows stream ids.
	stream string
}

// TakeSnapshot captures agg, which must have no uncommitted events, so the
// snapshot never runs ahead of the event log.
func TakeSnapshot(agg Aggregate, codec StateCodec, now time.Time) (*Snapshot, error) {
	if agg == nil {
		return nil, ErrNilAggregate
	}
	if _, ok := agg.(VersionSetter); !ok {
		return nil, ErrSnapshotUnsupported
	}
	if n := PendingEventCount(agg); n > 0 {
		return nil, fmt.Errorf("%w: %s has %d uncommitted events", ErrInvalidSnapshot, StreamIDFor(agg), n)
	}

	state, err := codec.EncodeState(agg)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		AggregateID:   agg.AggregateID(),
		AggregateType: agg.AggregateType(),
		Playhead:      agg.Version(),
		State:         state,
		TakenAt:       now,
	}, nil
}

// StreamID returns the identifier of the stream the snapshot belongs to.
func (s *Snapshot) StreamID() string {
	if s.stream != "" {
		return s.stream
	}
	return NewStreamID(s.AggregateType, s.AggregateID).String()
}

// Validate checks the snapshot's identity and playhead.
func (s *Snapshot) Validate() error {
	switch {
	case s == nil:
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	case s.AggregateID == "" || s.AggregateType == "":
		return fmt.Errorf("%w: missing aggregate identity", ErrInvalidSnapshot)
	case s.Playhead < 0:
		return fmt.Errorf("%w: negative playhead %d", ErrInvalidSnapshot, s.Playhead)
	}
	return nil
}

// Restore builds an independent aggregate from the snapshot: a new
// instance from factory, decoded state, and the captured playhead.
func (s *Snapshot) Restore(factory AggregateFactory, codec StateCodec) (Aggregate, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	agg := factory(s.AggregateID)
	if agg == nil {
		return nil, ErrNilAggregate
	}
	if StreamIDFor(agg) != s.StreamID() {
		return nil, fmt.Errorf("%w: snapshot of %s restored as %s",
			ErrInvalidSnapshot, s.StreamID(), StreamIDFor(agg))
	}

	setter, ok := agg.(VersionSetter)
	if !ok {
		return nil, ErrSnapshotUnsupported
	}

	if err := codec.DecodeState(s.State, agg); err != nil {
		return nil, err
	}
	setter.SetVersion(s.Playhead)

	return agg, nil
}

// forAggregate returns a copy of the snapshot carrying the identity the
// caller resolved for its stream. It fails if the snapshot belongs to
// another stream.
func (s *Snapshot) forAggregate(id, aggregateType string) (*Snapshot, error) {
	want := NewStreamID(aggregateType, id).String()
	if s.StreamID() != want {
		return nil, fmt.Errorf("%w: snapshot of %s loaded for %s", ErrInvalidSnapshot, s.StreamID(), want)
	}
	c := *s
	c.AggregateID = id
	c.AggregateType = aggregateType
	return &c, nil
}

func (s *Snapshot) clone() *Snapshot {
	c := *s
	c.State = append([]byte(nil), s.State...)
	return &c
}

// SnapshotStore keeps the latest snapshot per stream.
type SnapshotStore interface {
	// Load returns the latest snapshot for the stream, or nil, nil if none exists.
	Load(ctx context.Context, streamID string) (*Snapshot, error)

	// Save stores snapshot, replacing any previous snapshot of the same stream.
	Save(ctx context.Context, snapshot *Snapshot) error
}

// SnapshotDeleter is implemented by snapshot stores that can discard a snapshot.
type SnapshotDeleter interface {
	Delete(ctx context.Context, streamID string) error
}

// InMemorySnapshotStore is a SnapshotStore backed by a map.
type InMemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

// NewInMemorySnapshotStore creates an empty in-memory snapshot store.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{snapshots: make(map[string]*Snapshot)}
}

// Load returns a copy of the stored snapshot.
func (s *InMemorySnapshotStore) Load(ctx context.Context, streamID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[streamID]
	if !ok {
		return nil, nil
	}
	return snap.clone(), nil
}

// Save stores a copy of snapshot.
func (s *InMemorySnapshotStore) Save(ctx context.Context, snapshot *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.StreamID()] = snapshot.clone()
	return nil
}

// Delete removes the snapshot of the stream. Deleting a missing snapshot is not an error.
func (s *InMemorySnapshotStore) Delete(ctx context.Context, streamID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, streamID)
	return nil
}

// Count returns the number of stored snapshots.
func (s *InMemorySnapshotStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// AdapterSnapshotStore stores snapshots through an adapters.SnapshotAdapter.
// The record version holds the playhead and the record data the encoded state.
type AdapterSnapshotStore struct {
	adapter adapters.SnapshotAdapter
}

// NewAdapterSnapshotStore wraps a snapshot adapter.
func NewAdapterSnapshotStore(adapter adapters.SnapshotAdapter) *AdapterSnapshotStore {
	return &AdapterSnapshotStore{adapter: adapter}
}

// Load implements SnapshotStore. Adapters key snapshots by stream id only,
// so AggregateType and AggregateID are split at the first hyphen and are
// ambiguous for types containing one. StreamID always reports the key the
// record was stored under; SnapshottingRepository restores by that key.
func (s *AdapterSnapshotStore) Load(ctx context.Context, streamID string) (*Snapshot, error) {
	record, err := s.adapter.LoadSnapshot(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("snapmink: failed to load snapshot of %q: %w", streamID, err)
	}
	if record == nil {
		return nil, nil
	}

	key := record.StreamID
	if key == "" {
		key = streamID
	}
	sid, err := ParseStreamID(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	return &Snapshot{
		AggregateID:   sid.ID,
		AggregateType: sid.Category,
		Playhead:      record.Version,
		State:         record.Data,
		TakenAt:       record.CreatedAt,
		stream:        key,
	}, nil
}

// Save implements SnapshotStore.
func (s *AdapterSnapshotStore) Save(ctx context.Context, snapshot *Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}
	if err := s.adapter.SaveSnapshot(ctx, snapshot.StreamID(), snapshot.Playhead, snapshot.State); err != nil {
		return fmt.Errorf("snapmink: failed to save snapshot of %q: %w", snapshot.StreamID(), err)
	}
	return nil
}

// Delete implements SnapshotDeleter.
func (s *AdapterSnapshotStore) Delete(ctx context.Context, streamID string) error {
	return s.adapter.DeleteSnapshot(ctx, streamID)
}

var (
	_ SnapshotStore   = (*InMemorySnapshotStore)(nil)
	_ SnapshotDeleter = (*InMemorySnapshotStore)(nil)
	_ SnapshotStore   = (*AdapterSnapshotStore)(nil)
	_ SnapshotDeleter = (*AdapterSnapshotStore)(nil)
)
