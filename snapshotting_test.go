package snapmink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-snapmink/adapters/memory"
)

type loadRecord struct {
	source   LoadSource
	replayed int
	err      error
}

type recordingMetrics struct {
	mu       sync.Mutex
	loads    []loadRecord
	saved    []int64
	rebuilds []RebuildOutcome
}

func (m *recordingMetrics) RecordLoad(aggregateType string, source LoadSource, replayed int, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads = append(m.loads, loadRecord{source: source, replayed: replayed, err: err})
}

func (m *recordingMetrics) RecordSnapshotSaved(aggregateType string, playhead int64, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.saved = append(m.saved, playhead)
	}
}

func (m *recordingMetrics) RecordRebuild(aggregateType string, outcome RebuildOutcome, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rebuilds = append(m.rebuilds, outcome)
}

func (m *recordingMetrics) lastLoad() loadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads[len(m.loads)-1]
}

type fixture struct {
	store     *EventStore
	adapter   *memory.MemoryAdapter
	full      *EventSourcingRepository
	log       *countingEventLog
	snapshots *recordingSnapshotStore
	metrics   *recordingMetrics
	logger    *testLogger
	repo      *SnapshottingRepository
}

func newFixture(t *testing.T, threshold int, opts ...SnapshottingOption) *fixture {
	t.Helper()

	store, adapter := newTestEventStore()
	f := &fixture{
		store:     store,
		adapter:   adapter,
		full:      NewEventSourcingRepository(store, testAccountFactory),
		log:       &countingEventLog{EventLog: store},
		snapshots: newRecordingSnapshotStore(),
		metrics:   &recordingMetrics{},
		logger:    newTestLogger(),
	}

	base := []SnapshottingOption{
		WithSnapshotTrigger(NewEventCountTrigger(threshold)),
		WithSnapshotMetrics(f.metrics),
		WithSnapshotLogger(f.logger),
		WithSnapshotClock(func() time.Time { return snapshotTime }),
	}
	f.repo = NewSnapshottingRepository(f.log, f.full, f.snapshots, testAccountFactory, append(base, opts...)...)
	return f
}

// putSnapshot stores a snapshot of the aggregate as of playhead without
// going through the repository.
func (f *fixture) putSnapshot(t *testing.T, id string, playhead int64) {
	t.Helper()
	agg, err := f.full.LoadUntilPlayhead(context.Background(), id, playhead)
	require.NoError(t, err)
	snap, err := TakeSnapshot(agg, JSONStateCodec{}, snapshotTime)
	require.NoError(t, err)
	require.NoError(t, f.snapshots.InMemorySnapshotStore.Save(context.Background(), snap))
}

func (f *fixture) storedSnapshot(t *testing.T, id string) *Snapshot {
	t.Helper()
	snap, err := f.snapshots.InMemorySnapshotStore.Load(context.Background(), "Account-"+id)
	require.NoError(t, err)
	return snap
}

func (f *fixture) logCalls() []string {
	f.log.mu.Lock()
	defer f.log.mu.Unlock()
	return append([]string(nil), f.log.calls...)
}

func assertSameAccount(t *testing.T, want, got Aggregate) {
	t.Helper()
	require.NotNil(t, got)
	w, g := want.(*testAccount), got.(*testAccount)
	assert.Equal(t, w.Version(), g.Version(), "playhead")
	assert.Equal(t, w.Balance, g.Balance, "balance")
	assert.Equal(t, w.History, g.History, "history")
	assert.Equal(t, w.AggregateID(), g.AggregateID())
}

func TestSnapshottingRepository_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("without snapshot equals full replay", func(t *testing.T) {
		f := newFixture(t, 5)
		seedAccount(t, f.store, "1", 6)

		got, err := f.repo.Load(ctx, "1")
		require.NoError(t, err)

		want, err := f.full.Load(ctx, "1")
		require.NoError(t, err)
		assertSameAccount(t, want, got)

		assert.Empty(t, f.logCalls(), "delta reads are not used without a snapshot")
		assert.Equal(t, LoadSourceFullReplay, f.metrics.lastLoad().source)
		assert.Equal(t, 6, f.metrics.lastLoad().replayed)
	})

	t.Run("snapshot at 7 of 10 replays only 8 to 10", func(t *testing.T) {
		f := newFixture(t, 5)
		seedAccount(t, f.store, "A", 10)
		f.putSnapshot(t, "A", 7)

		got, err := f.repo.Load(ctx, "A")
		require.NoError(t, err)

		assert.Equal(t, []string{"from"}, f.logCalls())
		assert.Equal(t, [2]int64{7, -1}, f.log.ranges[0])
		assert.Equal(t, int64(10), got.Version())

		want, err := f.full.Load(ctx, "A")
		require.NoError(t, err)
		assertSameAccount(t, want, got)

		assert.Equal(t, loadRecord{source: LoadSourceSnapshot, replayed: 3}, f.metrics.lastLoad())
	})

	t.Run("snapshot at stream end replays nothing", func(t *testing.T) {
		f := newFixture(t, 5)
		seedAccount(t, f.store, "1", 4)
		f.putSnapshot(t, "1", 4)

		got, err := f.repo.Load(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, int64(4), got.Version())
		assert.Equal(t, sum(4), got.(*testAccount).Balance)
		assert.Equal(t, 0, f.metrics.lastLoad().replayed)
	})

	t.Run("no snapshot and no events is not found", func(t *testing.T) {
		f := newFixture(t, 5)

		agg, err := f.repo.Load(ctx, "B")
		assert.Nil(t, agg)
		assert.ErrorIs(t, err, ErrAggregateNotFound)

		var notFound *AggregateNotFoundError
		require.True(t, errors.As(err, &notFound))
		assert.Equal(t, "B", notFound.AggregateID)
	})

	t.Run("snapshot store failure propagates", func(t *testing.T) {
		f := newFixture(t, 5)
		seedAccount(t, f.store, "1", 2)
		boom := errors.New("snapshot backend down")
		f.snapshots.loadErr = boom

		_, err := f.repo.Load(ctx, "1")
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, f.logger.errorLogs, "snapshot load failed")
		assert.Equal(t, loadRecord{source: LoadSourceSnapshotStore, err: err}, f.metrics.lastLoad())

		_, err = f.repo.LoadUntilPlayhead(ctx, "1", 1)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, LoadSourceSnapshotStore, f.metrics.lastLoad().source)
	})

	t.Run("failed delta never yields a partial aggregate", func(t *testing.T) {
		f := newFixture(t, 5)
		seedAccount(t, f.store, "1", 3)
		f.putSnapshot(t, "1", 3)
		require.NoError(t, f.store.Append(ctx, "Account-1", []interface{}{Deposited{Amount: 4}, Broken{}}))

		agg, err := f.repo.Load(ctx, "1")
		assert.Nil(t, agg)
		assert.ErrorIs(t, err, errBrokenEvent)
	})

	t.Run("out-of-order delta is rejected", func(t *testing.T) {
		f := newFixture(t, 5)
		seedAccount(t, f.store, "1", 7)
		f.putSnapshot(t, "1", 7)

		skipping := &fixedEventLog{events: []Event{{StreamID: "Account-1", Data: Deposited{Amount: 9}, Version: 9}}}
		repo := NewSnapshottingRepository(skipping, f.full, f.snapshots, testAccountFactory)

		agg, err := repo.Load(ctx, "1")
		assert.Nil(t, agg)
		assert.ErrorIs(t, err, ErrEventOutOfOrder)
	})

	t.Run("empty id", func(t *testing.T) {
		f := newFixture(t, 5)
		_, err := f.repo.Load(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyStreamID)
	})
}

func TestSnapshottingRepository_LoadUntilPlayhead(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, 5)
	seedAccount(t, f.store, "1", 10)
	f.putSnapshot(t, "1", 7)

	t.Run("snapshot past target is ignored", func(t *testing.T) {
		before := len(f.logCalls())

		got, err := f.repo.LoadUntilPlayhead(ctx, "1", 5)
		require.NoError(t, err)

		want, err := f.full.LoadUntilPlayhead(ctx, "1", 5)
		require.NoError(t, err)
		assertSameAccount(t, want, got)

		assert.Len(t, f.logCalls(), before)
		assert.Equal(t, LoadSourceStaleSnapshot, f.metrics.lastLoad().source)
	})

	t.Run("snapshot before target replays the closed range", func(t *testing.T) {
		got, err := f.repo.LoadUntilPlayhead(ctx, "1", 9)
		require.NoError(t, err)

		calls := f.logCalls()
		assert.Equal(t, "range", calls[len(calls)-1])
		assert.Equal(t, [2]int64{7, 9}, f.log.ranges[len(f.log.ranges)-1])

		want, err := f.full.LoadUntilPlayhead(ctx, "1", 9)
		require.NoError(t, err)
		assertSameAccount(t, want, got)
		assert.Equal(t, 2, f.metrics.lastLoad().replayed)
	})

	t.Run("target equal to snapshot playhead", func(t *testing.T) {
		got, err := f.repo.LoadUntilPlayhead(ctx, "1", 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.Version())
		assert.Equal(t, sum(7), got.(*testAccount).Balance)
	})

	t.Run("target past the end stops at the end", func(t *testing.T) {
		got, err := f.repo.LoadUntilPlayhead(ctx, "1", 99)
		require.NoError(t, err)
		assert.Equal(t, int64(10), got.Version())
	})

	t.Run("no snapshot falls back", func(t *testing.T) {
		g := newFixture(t, 5)
		seedAccount(t, g.store, "2", 4)

		got, err := g.repo.LoadUntilPlayhead(ctx, "2", 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version())
		assert.Empty(t, g.logCalls())
		assert.Equal(t, LoadSourceFullReplay, g.metrics.lastLoad().source)
	})

	t.Run("negative target", func(t *testing.T) {
		_, err := f.repo.LoadUntilPlayhead(ctx, "1", -1)
		assert.ErrorIs(t, err, ErrInvalidPlayhead)
	})

	t.Run("missing aggregate", func(t *testing.T) {
		_, err := f.repo.LoadUntilPlayhead(ctx, "B", 3)
		assert.ErrorIs(t, err, ErrAggregateNotFound)
	})
}

// probeTrigger records what the aggregate and the log looked like when the
// trigger was consulted.
type probeTrigger struct {
	adapter       *memory.MemoryAdapter
	fire          bool
	seenPending   int
	seenPersisted int
	calls         int
}

func (p *probeTrigger) ShouldSnapshot(agg Aggregate) bool {
	p.calls++
	p.seenPending = PendingEventCount(agg)
	p.seenPersisted = p.adapter.EventCount()
	return p.fire
}

func (p *probeTrigger) EventCount() int { return 1 }

func TestSnapshottingRepository_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("trigger fires writes one snapshot at the post-save playhead", func(t *testing.T) {
		f := newFixture(t, 5)
		acc := newTestAccount("1")
		for i := 1; i <= 5; i++ {
			acc.Deposit(i)
		}

		require.NoError(t, f.repo.Save(ctx, acc))

		assert.Equal(t, 1, f.snapshots.saveCount())
		snap := f.storedSnapshot(t, "1")
		require.NotNil(t, snap)
		assert.Equal(t, acc.Version(), snap.Playhead)
		assert.Equal(t, int64(5), snap.Playhead)
		assert.Equal(t, snapshotTime, snap.TakenAt)
		assert.Equal(t, []int64{5}, f.metrics.saved)
		assert.Contains(t, f.logger.infos(), "snapshot written")
	})

	t.Run("trigger silent leaves existing snapshot untouched", func(t *testing.T) {
		f := newFixture(t, 5)
		seedAccount(t, f.store, "1", 5)
		f.putSnapshot(t, "1", 3)
		before := f.storedSnapshot(t, "1")

		agg, err := f.repo.Load(ctx, "1")
		require.NoError(t, err)
		agg.(*testAccount).Deposit(6)
		require.NoError(t, f.repo.Save(ctx, agg))

		assert.Equal(t, 0, f.snapshots.saveCount())
		assert.Equal(t, before, f.storedSnapshot(t, "1"))
		assert.Equal(t, int64(6), agg.Version())
	})

	t.Run("trigger silent leaves absence untouched", func(t *testing.T) {
		f := newFixture(t, 5)
		acc := newTestAccount("1")
		acc.Deposit(1)

		require.NoError(t, f.repo.Save(ctx, acc))
		assert.Nil(t, f.storedSnapshot(t, "1"))
	})

	t.Run("decision is taken before events are persisted", func(t *testing.T) {
		f := newFixture(t, 5)
		probe := &probeTrigger{adapter: f.adapter, fire: true}
		repo := NewSnapshottingRepository(f.log, f.full, f.snapshots, testAccountFactory, WithSnapshotTrigger(probe))

		acc := newTestAccount("1")
		acc.Deposit(1)
		acc.Deposit(2)
		acc.Deposit(3)
		require.NoError(t, repo.Save(ctx, acc))

		assert.Equal(t, 1, probe.calls)
		assert.Equal(t, 3, probe.seenPending)
		assert.Equal(t, 0, probe.seenPersisted)

		snap := f.storedSnapshot(t, "1")
		require.NotNil(t, snap)
		assert.Equal(t, int64(3), snap.Playhead)
		assert.Equal(t, 3, f.adapter.EventCount())
	})

	t.Run("crossing the threshold in a later save", func(t *testing.T) {
		f := newFixture(t, 5)
		acc := newTestAccount("1")
		for i := 0; i < 4; i++ {
			acc.Deposit(1)
		}
		require.NoError(t, f.repo.Save(ctx, acc))
		assert.Nil(t, f.storedSnapshot(t, "1"))

		acc.Deposit(1)
		acc.Deposit(1)
		require.NoError(t, f.repo.Save(ctx, acc))

		snap := f.storedSnapshot(t, "1")
		require.NotNil(t, snap)
		assert.Equal(t, int64(6), snap.Playhead)
	})

	t.Run("append failure writes no snapshot", func(t *testing.T) {
		f := newFixture(t, 1)
		seedAccount(t, f.store, "1", 2)

		stale := newTestAccount("1")
		stale.Deposit(1)
		err := f.repo.Save(ctx, stale)

		assert.ErrorIs(t, err, ErrConcurrencyConflict)
		assert.Equal(t, 0, f.snapshots.saveCount())
	})

	t.Run("snapshot failure does not undo the append", func(t *testing.T) {
		f := newFixture(t, 1)
		boom := errors.New("disk full")
		f.snapshots.saveErr = boom

		acc := newTestAccount("1")
		acc.Deposit(1)
		err := f.repo.Save(ctx, acc)

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, f.adapter.EventCount())
		assert.Equal(t, int64(1), acc.Version())
		assert.Empty(t, acc.UncommittedEvents())
		assert.Contains(t, f.logger.errorLogs, "snapshot write failed")

		loaded, err := f.repo.Load(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), loaded.Version())
	})

	t.Run("nil aggregate", func(t *testing.T) {
		f := newFixture(t, 1)
		assert.ErrorIs(t, f.repo.Save(ctx, nil), ErrNilAggregate)
	})
}

func TestSnapshottingRepository_Rebuild(t *testing.T) {
	ctx := context.Background()

	t.Run("threshold 5 with 4 then 5 events", func(t *testing.T) {
		f := newFixture(t, 5)
		seedAccount(t, f.store, "C", 4)

		written, err := f.repo.Rebuild(ctx, "C")
		require.NoError(t, err)
		assert.False(t, written)
		assert.Nil(t, f.storedSnapshot(t, "C"))

		require.NoError(t, f.store.Append(ctx, "Account-C", []interface{}{Deposited{Amount: 5}}))

		written, err = f.repo.Rebuild(ctx, "C")
		require.NoError(t, err)
		assert.True(t, written)

		snap := f.storedSnapshot(t, "C")
		require.NotNil(t, snap)
		assert.Equal(t, int64(5), snap.Playhead)

		restored, err := snap.Restore(testAccountFactory, JSONStateCodec{})
		require.NoError(t, err)
		loaded, err := f.repo.Load(ctx, "C")
		require.NoError(t, err)
		assertSameAccount(t, loaded, restored)

		assert.Equal(t, []RebuildOutcome{RebuildSkipped, RebuildSnapshotted}, f.metrics.rebuilds)
	})

	t.Run("counts the whole stream by default", func(t *testing.T) {
		f := newFixture(t, 5)
		seedAccount(t, f.store, "1", 7)
		f.putSnapshot(t, "1", 5)

		written, err := f.repo.Rebuild(ctx, "1")
		require.NoError(t, err)
		assert.True(t, written)
		assert.Equal(t, int64(7), f.storedSnapshot(t, "1").Playhead)
	})

	t.Run("since-snapshot policy counts only the tail", func(t *testing.T) {
		f := newFixture(t, 5, WithRebuildPolicy(RebuildCountSinceSnapshot))
		seedAccount(t, f.store, "1", 7)
		f.putSnapshot(t, "1", 5)

		written, err := f.repo.Rebuild(ctx, "1")
		require.NoError(t, err)
		assert.False(t, written)
		assert.Equal(t, int64(5), f.storedSnapshot(t, "1").Playhead)

		seedAccount(t, f.store, "1", 3)
		written, err = f.repo.Rebuild(ctx, "1")
		require.NoError(t, err)
		assert.True(t, written)
		assert.Equal(t, int64(10), f.storedSnapshot(t, "1").Playhead)
	})

	t.Run("idempotent", func(t *testing.T) {
		f := newFixture(t, 2)
		seedAccount(t, f.store, "1", 3)

		for i := 0; i < 3; i++ {
			written, err := f.repo.Rebuild(ctx, "1")
			require.NoError(t, err)
			assert.True(t, written)
		}
		assert.Equal(t, int64(3), f.storedSnapshot(t, "1").Playhead)
	})

	t.Run("missing stream fails", func(t *testing.T) {
		f := newFixture(t, 2)
		_, err := f.repo.Rebuild(ctx, "404")
		assert.ErrorIs(t, err, ErrStreamNotFound)
		assert.Equal(t, []RebuildOutcome{RebuildFailed}, f.metrics.rebuilds)
	})

	t.Run("snapshot write failure propagates", func(t *testing.T) {
		f := newFixture(t, 1)
		seedAccount(t, f.store, "1", 1)
		f.snapshots.saveErr = errors.New("read-only")

		written, err := f.repo.Rebuild(ctx, "1")
		assert.Error(t, err)
		assert.False(t, written)
	})
}

func TestSnapshottingRepository_RebuildAll(t *testing.T) {
	ctx := context.Background()

	t.Run("rebuilds eligible aggregates", func(t *testing.T) {
		f := newFixture(t, 3)
		ids := make([]string, 7)
		for i := range ids {
			ids[i] = fmt.Sprintf("acc-%d", i+1)
			seedAccount(t, f.store, ids[i], i+1)
		}

		written, err := f.repo.RebuildAll(ctx, ids, 3)
		require.NoError(t, err)
		assert.Equal(t, 5, written)
		assert.Equal(t, 5, f.snapshots.Count())
	})

	t.Run("first error is returned", func(t *testing.T) {
		f := newFixture(t, 1)
		seedAccount(t, f.store, "ok", 2)

		_, err := f.repo.RebuildAll(ctx, []string{"ok", "missing"}, 0)
		assert.ErrorIs(t, err, ErrStreamNotFound)
		assert.Contains(t, err.Error(), `"missing"`)
	})
}

func TestSnapshottingRepository_NoAliasing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)

	acc := newTestAccount("1")
	acc.Deposit(1)
	acc.Deposit(2)
	acc.Deposit(3)
	require.NoError(t, f.repo.Save(ctx, acc))
	require.NotNil(t, f.storedSnapshot(t, "1"))

	// mutate the live aggregate the snapshot was taken from
	acc.History[0] = 999
	acc.Balance = -1

	first, err := f.repo.Load(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, first.(*testAccount).History)

	// mutate a loaded copy
	first.(*testAccount).History[1] = 777
	first.(*testAccount).Deposit(50)

	second, err := f.repo.Load(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, second.(*testAccount).History)
	assert.Equal(t, 6, second.(*testAccount).Balance)
	assert.Empty(t, second.UncommittedEvents())
}

func TestSnapshottingRepository_FromStore(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestEventStore()
	snapshots := NewInMemorySnapshotStore()
	repo := NewSnapshottingRepositoryFromStore(store, snapshots, testAccountFactory,
		WithSnapshotTrigger(PendingEventsTrigger{N: 2}))

	assert.Equal(t, PendingEventsTrigger{N: 2}, repo.Trigger())

	acc := newTestAccount("1")
	acc.Deposit(10)
	acc.Deposit(20)
	require.NoError(t, repo.Save(ctx, acc))
	assert.Equal(t, 1, snapshots.Count())

	loaded, err := repo.Load(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 30, loaded.(*testAccount).Balance)

	_, err = repo.Load(ctx, "B")
	assert.ErrorIs(t, err, ErrAggregateNotFound)
}

func TestSnapshottingRepository_ConcurrentAggregates(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestEventStore()
	repo := NewSnapshottingRepositoryFromStore(store, NewInMemorySnapshotStore(), testAccountFactory,
		WithSnapshotTrigger(NewEventCountTrigger(4)))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			acc := newTestAccount(id)
			for j := 0; j < 3; j++ {
				acc.Deposit(1)
				acc.Deposit(1)
				if err := repo.Save(ctx, acc); err != nil {
					errs <- err
					return
				}
			}
			loaded, err := repo.Load(ctx, id)
			if err != nil {
				errs <- err
				return
			}
			if loaded.Version() != 6 {
				errs <- fmt.Errorf("%s at playhead %d", id, loaded.Version())
			}
		}(fmt.Sprintf("c-%d", i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestRebuildPolicy(t *testing.T) {
	for _, p := range []RebuildPolicy{RebuildCountStream, RebuildCountSinceSnapshot} {
		parsed, err := ParseRebuildPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	_, err := ParseRebuildPolicy("sometimes")
	assert.Error(t, err)
	assert.Equal(t, "RebuildPolicy(9)", RebuildPolicy(9).String())
}

func lineItemFactory(id string) Aggregate {
	acc := newTestAccount(id)
	acc.SetType("Line-Item")
	return acc
}

func TestSnapshottingRepository_HyphenatedAggregateType(t *testing.T) {
	ctx := context.Background()
	store, adapter := newTestEventStore()
	metrics := &recordingMetrics{}
	repo := NewSnapshottingRepositoryFromStore(store, NewAdapterSnapshotStore(adapter), lineItemFactory,
		WithSnapshotTrigger(NewEventCountTrigger(3)),
		WithSnapshotMetrics(metrics))

	acc := lineItemFactory("x").(*testAccount)
	for i := 1; i <= 4; i++ {
		acc.Deposit(i)
	}
	require.NoError(t, repo.Save(ctx, acc))

	rec, err := adapter.LoadSnapshot(ctx, "Line-Item-x")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(4), rec.Version)

	acc.Deposit(5)
	require.NoError(t, repo.Save(ctx, acc))

	loaded, err := repo.Load(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, loadRecord{source: LoadSourceSnapshot, replayed: 1}, metrics.lastLoad())
	assert.Equal(t, "x", loaded.AggregateID())
	assert.Equal(t, "Line-Item", loaded.AggregateType())
	assert.Equal(t, int64(5), loaded.Version())
	assert.Equal(t, sum(5), loaded.(*testAccount).Balance)

	past, err := repo.LoadUntilPlayhead(ctx, "x", 4)
	require.NoError(t, err)
	assert.Equal(t, loadRecord{source: LoadSourceSnapshot}, metrics.lastLoad())
	assert.Equal(t, sum(4), past.(*testAccount).Balance)

	written, err := repo.Rebuild(ctx, "x")
	require.NoError(t, err)
	assert.True(t, written)
}
