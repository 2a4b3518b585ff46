package snapmink

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// RebuildPolicy selects what Rebuild counts against the trigger threshold.
type RebuildPolicy int

const (
	// RebuildCountStream compares the length of the whole stream with the
	// threshold, whether or not a snapshot already exists.
	RebuildCountStream RebuildPolicy = iota

	// RebuildCountSinceSnapshot compares only the events recorded after the
	// current snapshot with the threshold.
	RebuildCountSinceSnapshot
)

// String returns the policy name.
func (p RebuildPolicy) String() string {
	switch p {
	case RebuildCountStream:
		return "stream"
	case RebuildCountSinceSnapshot:
		return "since-snapshot"
	default:
		return fmt.Sprintf("RebuildPolicy(%d)", int(p))
	}
}

// ParseRebuildPolicy parses the name returned by RebuildPolicy.String.
func ParseRebuildPolicy(s string) (RebuildPolicy, error) {
	switch s {
	case "", "stream":
		return RebuildCountStream, nil
	case "since-snapshot":
		return RebuildCountSinceSnapshot, nil
	default:
		return 0, fmt.Errorf("snapmink: unknown rebuild policy %q", s)
	}
}

// SnapshottingRepository loads aggregates from their latest snapshot plus
// the events recorded after it, and writes new snapshots when a save
// satisfies the trigger. Without a usable snapshot it falls back to the
// full-replay repository.
//
// The repository holds no state of its own besides its collaborators and
// is safe for concurrent use across aggregates. Concurrent writers on the
// same aggregate are arbitrated by the event log's optimistic concurrency.
type SnapshottingRepository struct {
	log       EventLog
	full      Repository
	snapshots SnapshotStore
	factory   AggregateFactory
	trigger   SnapshotTrigger
	codec     StateCodec
	policy    RebuildPolicy
	logger    Logger
	metrics   SnapshotMetrics
	now       func() time.Time
}

// SnapshottingOption configures a SnapshottingRepository.
type SnapshottingOption func(*SnapshottingRepository)

// WithSnapshotTrigger sets the policy deciding when Save writes a snapshot.
func WithSnapshotTrigger(trigger SnapshotTrigger) SnapshottingOption {
	return func(r *SnapshottingRepository) {
		r.trigger = trigger
	}
}

// WithStateCodec sets the codec used to encode aggregate state.
func WithStateCodec(codec StateCodec) SnapshottingOption {
	return func(r *SnapshottingRepository) {
		r.codec = codec
	}
}

// WithRebuildPolicy sets what Rebuild counts against the threshold.
func WithRebuildPolicy(policy RebuildPolicy) SnapshottingOption {
	return func(r *SnapshottingRepository) {
		r.policy = policy
	}
}

// WithSnapshotLogger sets the logger.
func WithSnapshotLogger(logger Logger) SnapshottingOption {
	return func(r *SnapshottingRepository) {
		r.logger = logger
	}
}

// WithSnapshotMetrics sets the metrics collector.
func WithSnapshotMetrics(metrics SnapshotMetrics) SnapshottingOption {
	return func(r *SnapshottingRepository) {
		r.metrics = metrics
	}
}

// WithSnapshotClock sets the clock used to stamp snapshots.
func WithSnapshotClock(now func() time.Time) SnapshottingOption {
	return func(r *SnapshottingRepository) {
		r.now = now
	}
}

// NewSnapshottingRepository composes an event log, a full-replay repository
// and a snapshot store. The trigger defaults to an EventCountTrigger of
// DefaultSnapshotThreshold and the codec to JSONStateCodec.
func NewSnapshottingRepository(log EventLog, full Repository, snapshots SnapshotStore, factory AggregateFactory, opts ...SnapshottingOption) *SnapshottingRepository {
	r := &SnapshottingRepository{
		log:       log,
		full:      full,
		snapshots: snapshots,
		factory:   factory,
		trigger:   NewEventCountTrigger(DefaultSnapshotThreshold),
		codec:     JSONStateCodec{},
		policy:    RebuildCountStream,
		logger:    &noopLogger{},
		metrics:   &noopSnapshotMetrics{},
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// NewSnapshottingRepositoryFromStore builds the full-replay repository
// over stream and composes it with the snapshot store.
func NewSnapshottingRepositoryFromStore(stream EventStream, snapshots SnapshotStore, factory AggregateFactory, opts ...SnapshottingOption) *SnapshottingRepository {
	r := NewSnapshottingRepository(stream, nil, snapshots, factory, opts...)
	r.full = NewEventSourcingRepository(stream, factory, WithRepositoryLogger(r.logger))
	return r
}

// Trigger returns the configured snapshot trigger.
func (r *SnapshottingRepository) Trigger() SnapshotTrigger {
	return r.trigger
}

// Load returns the aggregate at the end of its stream.
func (r *SnapshottingRepository) Load(ctx context.Context, id string) (Aggregate, error) {
	start := time.Now()

	streamID, aggType, err := r.identify(id)
	if err != nil {
		return nil, err
	}

	snap, err := r.loadSnapshot(ctx, id, streamID, aggType)
	if err != nil {
		r.metrics.RecordLoad(aggType, LoadSourceSnapshotStore, 0, time.Since(start), err)
		return nil, err
	}

	if snap == nil {
		agg, err := r.full.Load(ctx, id)
		r.metrics.RecordLoad(aggType, LoadSourceFullReplay, replayedBy(agg), time.Since(start), err)
		return agg, err
	}

	events, err := r.log.LoadFrom(ctx, streamID, snap.Playhead)
	if err != nil {
		r.metrics.RecordLoad(aggType, LoadSourceSnapshot, 0, time.Since(start), err)
		return nil, err
	}

	agg, err := r.replayOnto(snap, events)
	r.metrics.RecordLoad(aggType, LoadSourceSnapshot, len(events), time.Since(start), err)
	return agg, err
}

// LoadUntilPlayhead returns the aggregate as of the given playhead. A
// snapshot taken past the playhead is ignored.
func (r *SnapshottingRepository) LoadUntilPlayhead(ctx context.Context, id string, playhead int64) (Aggregate, error) {
	if playhead < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPlayhead, playhead)
	}

	start := time.Now()

	streamID, aggType, err := r.identify(id)
	if err != nil {
		return nil, err
	}

	snap, err := r.loadSnapshot(ctx, id, streamID, aggType)
	if err != nil {
		r.metrics.RecordLoad(aggType, LoadSourceSnapshotStore, 0, time.Since(start), err)
		return nil, err
	}

	if snap == nil || snap.Playhead > playhead {
		source := LoadSourceFullReplay
		if snap != nil {
			source = LoadSourceStaleSnapshot
			r.logger.Debug("snapshot past requested playhead", "stream", streamID,
				"snapshot", snap.Playhead, "playhead", playhead)
		}
		agg, err := r.full.LoadUntilPlayhead(ctx, id, playhead)
		r.metrics.RecordLoad(aggType, source, replayedBy(agg), time.Since(start), err)
		return agg, err
	}

	events, err := r.log.LoadRange(ctx, streamID, snap.Playhead, playhead)
	if err != nil {
		r.metrics.RecordLoad(aggType, LoadSourceSnapshot, 0, time.Since(start), err)
		return nil, err
	}

	agg, err := r.replayOnto(snap, events)
	r.metrics.RecordLoad(aggType, LoadSourceSnapshot, len(events), time.Since(start), err)
	return agg, err
}

// saveDecision is the outcome of the decide phase of Save, captured while
// the aggregate still carries its uncommitted events.
type saveDecision struct {
	snapshot bool
	pending  int
}

// Save persists the aggregate's pending events and, when the trigger fired
// for them, writes a snapshot of the committed aggregate. It runs three
// phases in order: decide, persist, materialize. A failed snapshot write
// is returned but does not undo the append.
func (r *SnapshottingRepository) Save(ctx context.Context, agg Aggregate) error {
	if agg == nil {
		return ErrNilAggregate
	}

	decision := r.decide(agg)
	r.logger.Debug("saving aggregate", "stream", StreamIDFor(agg),
		"pending", decision.pending, "snapshot", decision.snapshot)

	if err := r.persist(ctx, agg); err != nil {
		return err
	}

	if !decision.snapshot {
		return nil
	}
	return r.materialize(ctx, agg)
}

// decide asks the trigger before persisting, since persisting clears the
// pending events it inspects.
func (r *SnapshottingRepository) decide(agg Aggregate) saveDecision {
	return saveDecision{
		snapshot: r.trigger.ShouldSnapshot(agg),
		pending:  PendingEventCount(agg),
	}
}

func (r *SnapshottingRepository) persist(ctx context.Context, agg Aggregate) error {
	return r.full.Save(ctx, agg)
}

// materialize snapshots the committed aggregate and replaces any previous
// snapshot of its stream.
func (r *SnapshottingRepository) materialize(ctx context.Context, agg Aggregate) error {
	start := time.Now()

	snap, err := TakeSnapshot(agg, r.codec, r.now())
	if err == nil {
		err = r.snapshots.Save(ctx, snap)
	}
	r.metrics.RecordSnapshotSaved(agg.AggregateType(), agg.Version(), time.Since(start), err)

	if err != nil {
		r.logger.Error("snapshot write failed", "stream", StreamIDFor(agg), "playhead", agg.Version(), "error", err)
		return fmt.Errorf("snapmink: failed to snapshot %s: %w", StreamIDFor(agg), err)
	}

	r.logger.Info("snapshot written", "stream", StreamIDFor(agg), "playhead", agg.Version())
	return nil
}

// Rebuild writes a fresh snapshot of the aggregate when its stream has
// reached the trigger threshold. Which events count is set by the rebuild
// policy. Rebuild is idempotent and safe to retry. It reports whether a
// snapshot was written.
func (r *SnapshottingRepository) Rebuild(ctx context.Context, id string) (bool, error) {
	start := time.Now()

	streamID, aggType, err := r.identify(id)
	if err != nil {
		return false, err
	}

	written, err := r.rebuild(ctx, id, streamID, aggType)
	outcome := RebuildSkipped
	switch {
	case err != nil:
		outcome = RebuildFailed
	case written:
		outcome = RebuildSnapshotted
	}
	r.metrics.RecordRebuild(aggType, outcome, time.Since(start))

	return written, err
}

func (r *SnapshottingRepository) rebuild(ctx context.Context, id, streamID, aggType string) (bool, error) {
	events, err := r.log.LoadAll(ctx, streamID)
	if err != nil {
		return false, err
	}

	count := int64(len(events))
	if r.policy == RebuildCountSinceSnapshot {
		snap, err := r.loadSnapshot(ctx, id, streamID, aggType)
		if err != nil {
			return false, err
		}
		if snap != nil {
			count -= snap.Playhead
		}
	}

	threshold := int64(r.trigger.EventCount())
	if count < threshold {
		r.logger.Debug("rebuild skipped", "stream", streamID, "count", count, "threshold", threshold)
		return false, nil
	}

	agg, err := r.Load(ctx, id)
	if err != nil {
		return false, err
	}
	if err := r.materialize(ctx, agg); err != nil {
		return false, err
	}
	return true, nil
}

// RebuildAll rebuilds the given aggregates with at most concurrency
// rebuilds in flight (unbounded when concurrency <= 0). It stops at the
// first error and returns it.
func (r *SnapshottingRepository) RebuildAll(ctx context.Context, ids []string, concurrency int) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	written := make([]bool, len(ids))
	for i, id := range ids {
		g.Go(func() error {
			ok, err := r.Rebuild(gctx, id)
			if err != nil {
				return fmt.Errorf("snapmink: rebuild %q: %w", id, err)
			}
			written[i] = ok
			return nil
		})
	}

	err := g.Wait()

	n := 0
	for _, ok := range written {
		if ok {
			n++
		}
	}
	return n, err
}

// identify resolves the stream and aggregate type of id through the factory.
func (r *SnapshottingRepository) identify(id string) (string, string, error) {
	if id == "" {
		return "", "", ErrEmptyStreamID
	}
	agg := r.factory(id)
	if agg == nil {
		return "", "", ErrNilAggregate
	}
	return StreamIDFor(agg), agg.AggregateType(), nil
}

// loadSnapshot returns the stream's snapshot bound to the identity the
// factory resolved, or nil if there is none.
func (r *SnapshottingRepository) loadSnapshot(ctx context.Context, id, streamID, aggType string) (*Snapshot, error) {
	snap, err := r.snapshots.Load(ctx, streamID)
	if err != nil {
		r.logger.Error("snapshot load failed", "stream", streamID, "error", err)
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	return snap.forAggregate(id, aggType)
}

// replayOnto restores an independent copy of snap and applies events to it.
// The copy is discarded on any failure.
func (r *SnapshottingRepository) replayOnto(snap *Snapshot, events []Event) (Aggregate, error) {
	agg, err := snap.Restore(r.factory, r.codec)
	if err != nil {
		return nil, err
	}
	if err := ApplyEvents(agg, events); err != nil {
		r.logger.Error("replay after snapshot failed", "stream", snap.StreamID(),
			"snapshot", snap.Playhead, "error", err)
		return nil, err
	}
	return agg, nil
}

func replayedBy(agg Aggregate) int {
	if agg == nil {
		return 0
	}
	return int(agg.Version())
}

var _ Repository = (*SnapshottingRepository)(nil)
