package snapmink

import "time"

// LoadSource describes how a SnapshottingRepository satisfied a load.
type LoadSource string

const (
	// LoadSourceSnapshot means a snapshot was restored and only the suffix replayed.
	LoadSourceSnapshot LoadSource = "snapshot"

	// LoadSourceFullReplay means no snapshot existed and the whole stream was replayed.
	LoadSourceFullReplay LoadSource = "full_replay"

	// LoadSourceStaleSnapshot means a bounded load ignored a snapshot taken
	// past the requested playhead and replayed from the start.
	LoadSourceStaleSnapshot LoadSource = "snapshot_past_target"

	// LoadSourceSnapshotStore means reading the snapshot store failed
	// before either path was chosen.
	LoadSourceSnapshotStore LoadSource = "snapshot_store"
)

// RebuildOutcome describes the result of a rebuild.
type RebuildOutcome string

const (
	RebuildSnapshotted RebuildOutcome = "snapshotted"
	RebuildSkipped     RebuildOutcome = "skipped"
	RebuildFailed      RebuildOutcome = "failed"
)

// SnapshotMetrics collects metrics about snapshot-accelerated repositories.
type SnapshotMetrics interface {
	// RecordLoad records a completed load and the number of events replayed.
	RecordLoad(aggregateType string, source LoadSource, replayed int, duration time.Duration, err error)

	// RecordSnapshotSaved records a snapshot write.
	RecordSnapshotSaved(aggregateType string, playhead int64, duration time.Duration, err error)

	// RecordRebuild records a rebuild outcome.
	RecordRebuild(aggregateType string, outcome RebuildOutcome, duration time.Duration)
}

// noopSnapshotMetrics is a no-op implementation of SnapshotMetrics.
type noopSnapshotMetrics struct{}

func (m *noopSnapshotMetrics) RecordLoad(aggregateType string, source LoadSource, replayed int, duration time.Duration, err error) {
}

func (m *noopSnapshotMetrics) RecordSnapshotSaved(aggregateType string, playhead int64, duration time.Duration, err error) {
}

func (m *noopSnapshotMetrics) RecordRebuild(aggregateType string, outcome RebuildOutcome, duration time.Duration) {
}
