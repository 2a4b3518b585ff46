// Package snapmink provides snapshot-accelerated repositories for
// event-sourced aggregates.
//
// A SnapshottingRepository rebuilds an aggregate from its latest snapshot
// plus only the events recorded after it, instead of replaying the whole
// stream on every load. Snapshots are a disposable cache: the event stream
// stays the only source of truth and a missing or stale snapshot simply
// falls back to a full replay.
//
// # Quick Start
//
//	store := snapmink.New(memory.NewAdapter())
//	store.RegisterEvents(Deposited{}, Withdrawn{})
//
//	repo := snapmink.NewSnapshottingRepositoryFromStore(
//	    store,
//	    snapmink.NewInMemorySnapshotStore(),
//	    func(id string) snapmink.Aggregate { return NewAccount(id) },
//	    snapmink.WithSnapshotTrigger(snapmink.NewEventCountTrigger(50)),
//	)
//
// # Aggregates
//
// Aggregates embed AggregateBase, record new events with Apply and rebuild
// state in ApplyEvent:
//
//	type Account struct {
//	    snapmink.AggregateBase
//	    Balance int `json:"balance"`
//	}
//
//	func NewAccount(id string) *Account {
//	    return &Account{AggregateBase: snapmink.NewAggregateBase(id, "Account")}
//	}
//
//	func (a *Account) Deposit(amount int) {
//	    a.Apply(Deposited{Amount: amount})
//	    a.Balance += amount
//	}
//
//	func (a *Account) ApplyEvent(event interface{}) error {
//	    switch e := event.(type) {
//	    case Deposited:
//	        a.Balance += e.Amount
//	    }
//	    return nil
//	}
//
// The exported fields are what a StateCodec stores in a snapshot. Identity
// and playhead are restored by the repository.
//
// # Saving
//
// Save asks the trigger first, then appends the pending events, then writes
// a snapshot if the trigger fired:
//
//	acc, err := repo.Load(ctx, "acc-1")
//	acc.(*Account).Deposit(10)
//	err = repo.Save(ctx, acc)
//
// A failed snapshot write is reported but the appended events stay.
//
// # Snapshot storage
//
// InMemorySnapshotStore is the reference store. AdapterSnapshotStore puts
// snapshots in any adapters.SnapshotAdapter: PostgreSQL, BadgerDB,
// DynamoDB, or the in-memory adapter, optionally behind the circuit
// breaker in adapters/breaker.
//
// # Maintenance
//
// Rebuild writes a fresh snapshot once a stream reaches the trigger
// threshold; RebuildAll does so for many aggregates concurrently.
package snapmink

// Version returns the library version string.
func Version() string {
	return "0.1.0"
}

// BuildStreamID creates a stream ID from an aggregate type and ID
// following the "{Type}-{ID}" convention.
func BuildStreamID(aggregateType, aggregateID string) string {
	return NewStreamID(aggregateType, aggregateID).String()
}
