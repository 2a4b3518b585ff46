package snapmink

// Shared test doubles for snapmink package tests.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-snapmink/adapters/memory"
)

// testLogger records log messages by level.
type testLogger struct {
	mu        sync.Mutex
	debugLogs []string
	infoLogs  []string
	warnLogs  []string
	errorLogs []string
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) Debug(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugLogs = append(l.debugLogs, msg)
}

func (l *testLogger) Info(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLogs = append(l.infoLogs, msg)
}

func (l *testLogger) Warn(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnLogs = append(l.warnLogs, msg)
}

func (l *testLogger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLogs = append(l.errorLogs, msg)
}

func (l *testLogger) infos() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.infoLogs...)
}

// =============================================================================
// Account aggregate
// =============================================================================

type Deposited struct {
	Amount int `json:"amount"`
}

type Withdrawn struct {
	Amount int `json:"amount"`
}

type Broken struct{}

var errBrokenEvent = errors.New("broken event")

// testAccount keeps its movement history in a slice so tests can detect
// aliasing between restored copies.
type testAccount struct {
	AggregateBase
	Balance int   `json:"balance"`
	History []int `json:"history"`
}

func newTestAccount(id string) *testAccount {
	return &testAccount{AggregateBase: NewAggregateBase(id, "Account")}
}

func testAccountFactory(id string) Aggregate {
	return newTestAccount(id)
}

func (a *testAccount) Deposit(amount int) {
	e := Deposited{Amount: amount}
	a.Apply(e)
	_ = a.when(e)
}

func (a *testAccount) Withdraw(amount int) {
	e := Withdrawn{Amount: amount}
	a.Apply(e)
	_ = a.when(e)
}

func (a *testAccount) ApplyEvent(event interface{}) error {
	return a.when(event)
}

func (a *testAccount) when(event interface{}) error {
	switch e := event.(type) {
	case Deposited:
		a.Balance += e.Amount
		a.History = append(a.History, e.Amount)
	case Withdrawn:
		a.Balance -= e.Amount
		a.History = append(a.History, -e.Amount)
	case Broken:
		return errBrokenEvent
	default:
		return fmt.Errorf("unknown event %T", event)
	}
	return nil
}

// bareAggregate implements Aggregate without VersionSetter.
type bareAggregate struct {
	id      string
	version int64
}

func (b *bareAggregate) AggregateID() string              { return b.id }
func (b *bareAggregate) AggregateType() string            { return "Bare" }
func (b *bareAggregate) Version() int64                   { return b.version }
func (b *bareAggregate) UncommittedEvents() []interface{} { return nil }
func (b *bareAggregate) ClearUncommittedEvents()          {}
func (b *bareAggregate) ApplyEvent(interface{}) error {
	b.version++
	return nil
}

// =============================================================================
// Store fixtures
// =============================================================================

func newTestEventStore(opts ...Option) (*EventStore, *memory.MemoryAdapter) {
	adapter := memory.NewAdapter()
	store := New(adapter, opts...)
	store.RegisterEvents(Deposited{}, Withdrawn{}, Broken{})
	return store, adapter
}

// seedAccount appends deposits of 1..n to the account stream.
func seedAccount(t *testing.T, store *EventStore, id string, n int) {
	t.Helper()
	events := make([]interface{}, n)
	for i := range events {
		events[i] = Deposited{Amount: i + 1}
	}
	require.NoError(t, store.Append(context.Background(), "Account-"+id, events))
}

// sum returns 1+2+...+n.
func sum(n int) int {
	return n * (n + 1) / 2
}

// recordingSnapshotStore counts writes and can be made to fail.
type recordingSnapshotStore struct {
	*InMemorySnapshotStore
	mu      sync.Mutex
	saves   int
	loads   int
	saveErr error
	loadErr error
}

func newRecordingSnapshotStore() *recordingSnapshotStore {
	return &recordingSnapshotStore{InMemorySnapshotStore: NewInMemorySnapshotStore()}
}

func (s *recordingSnapshotStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.Lock()
	s.loads++
	err := s.loadErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.InMemorySnapshotStore.Load(ctx, id)
}

func (s *recordingSnapshotStore) Save(ctx context.Context, snapshot *Snapshot) error {
	s.mu.Lock()
	s.saves++
	err := s.saveErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.InMemorySnapshotStore.Save(ctx, snapshot)
}

func (s *recordingSnapshotStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// countingEventLog records which reads the repository issued.
type countingEventLog struct {
	EventLog
	mu     sync.Mutex
	calls  []string
	ranges [][2]int64
}

func (l *countingEventLog) LoadAll(ctx context.Context, streamID string) ([]Event, error) {
	l.record("all", 0, -1)
	return l.EventLog.LoadAll(ctx, streamID)
}

func (l *countingEventLog) LoadFrom(ctx context.Context, streamID string, from int64) ([]Event, error) {
	l.record("from", from, -1)
	return l.EventLog.LoadFrom(ctx, streamID, from)
}

func (l *countingEventLog) LoadRange(ctx context.Context, streamID string, from, to int64) ([]Event, error) {
	l.record("range", from, to)
	return l.EventLog.LoadRange(ctx, streamID, from, to)
}

func (l *countingEventLog) record(kind string, from, to int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, kind)
	l.ranges = append(l.ranges, [2]int64{from, to})
}

// fixedEventLog serves a canned event slice regardless of the request.
type fixedEventLog struct {
	events []Event
}

func (l *fixedEventLog) LoadAll(context.Context, string) ([]Event, error) {
	return l.events, nil
}

func (l *fixedEventLog) LoadFrom(context.Context, string, int64) ([]Event, error) {
	return l.events, nil
}

func (l *fixedEventLog) LoadRange(context.Context, string, int64, int64) ([]Event, error) {
	return l.events, nil
}
