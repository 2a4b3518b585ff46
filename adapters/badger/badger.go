// Package badger provides an embedded snapshot store backed by BadgerDB.
//
// Snapshots are kept next to the application process, which removes a
// network round trip from every aggregate load while the event log itself
// lives in a shared database:
//
//	snapshots, err := badger.NewAdapter(badger.DefaultConfig().WithPath("/var/lib/app/snapshots"))
//	repo := snapmink.NewSnapshottingRepositoryFromStore(store,
//	    snapmink.NewAdapterSnapshotStore(snapshots), factory)
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

var (
	_ adapters.SnapshotAdapter = (*BadgerAdapter)(nil)
	_ adapters.HealthChecker   = (*BadgerAdapter)(nil)
)

const keyPrefix = "snapshot/"

// Logger receives BadgerDB's internal log output.
// snapmink.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Config holds configuration for the BadgerDB snapshot store.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Data is lost on Close.
	InMemory bool

	// SyncWrites fsyncs every write before returning.
	SyncWrites bool

	// GCInterval is how often value log garbage collection runs.
	// Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum reclaimable fraction before a value log
	// file is rewritten.
	GCDiscardRatio float64

	// Logger receives BadgerDB's internal messages. Nil silences them.
	Logger Logger
}

// DefaultConfig returns production defaults: durable writes and periodic GC.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration suited to tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// WithPath returns a copy of c using the given directory.
func (c Config) WithPath(path string) Config {
	c.Path = path
	return c
}

// badgerLogger adapts Logger to badger.Logger.
type badgerLogger struct {
	logger Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// record is the value stored under each snapshot key.
type record struct {
	Version   int64     `msgpack:"v"`
	Data      []byte    `msgpack:"d"`
	CreatedAt time.Time `msgpack:"t"`
}

// BadgerAdapter implements adapters.SnapshotAdapter on top of BadgerDB.
type BadgerAdapter struct {
	db     *badger.DB
	logger Logger
	now    func() time.Time

	stopGC chan struct{}
	gcDone chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewAdapter opens a BadgerDB database using cfg.
func NewAdapter(cfg Config) (*BadgerAdapter, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("snapmink/badger: path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("snapmink/badger: create directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("snapmink/badger: open database: %w", err)
	}

	a := &BadgerAdapter{
		db:     db,
		logger: cfg.Logger,
		now:    time.Now,
		closed: make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
			_ = db.Close()
			return nil, fmt.Errorf("snapmink/badger: GC discard ratio must be in (0, 1), got %v", cfg.GCDiscardRatio)
		}
		a.stopGC = make(chan struct{})
		a.gcDone = make(chan struct{})
		go a.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return a, nil
}

func (a *BadgerAdapter) runGC(interval time.Duration, ratio float64) {
	defer close(a.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite only means nothing was worth reclaiming.
			if err := a.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) && a.logger != nil {
				a.logger.Warn("badger value log GC failed", "error", err)
			}
		}
	}
}

func (a *BadgerAdapter) isClosed() bool {
	select {
	case <-a.closed:
		return true
	default:
		return false
	}
}

func (a *BadgerAdapter) check(ctx context.Context, streamID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.isClosed() {
		return adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return adapters.ErrEmptyStreamID
	}
	return nil
}

func key(streamID string) []byte {
	return []byte(keyPrefix + streamID)
}

// SaveSnapshot stores a snapshot for the given stream, replacing any
// previous one.
func (a *BadgerAdapter) SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error {
	if err := a.check(ctx, streamID); err != nil {
		return err
	}

	value, err := msgpack.Marshal(&record{Version: version, Data: data, CreatedAt: a.now().UTC()})
	if err != nil {
		return fmt.Errorf("snapmink/badger: encode snapshot %s: %w", streamID, err)
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(streamID), value)
	})
	if err != nil {
		return fmt.Errorf("snapmink/badger: save snapshot %s: %w", streamID, err)
	}
	return nil
}

// LoadSnapshot retrieves the snapshot for the given stream, or nil if none
// exists.
func (a *BadgerAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	if err := a.check(ctx, streamID); err != nil {
		return nil, err
	}

	var rec record
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(streamID))
		if err != nil {
			return err
		}
		// Value is only valid inside the transaction.
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapmink/badger: load snapshot %s: %w", streamID, err)
	}

	return &adapters.SnapshotRecord{
		StreamID:  streamID,
		Version:   rec.Version,
		Data:      rec.Data,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// DeleteSnapshot removes the snapshot for the given stream.
func (a *BadgerAdapter) DeleteSnapshot(ctx context.Context, streamID string) error {
	if err := a.check(ctx, streamID); err != nil {
		return err
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(streamID))
	})
	if err != nil {
		return fmt.Errorf("snapmink/badger: delete snapshot %s: %w", streamID, err)
	}
	return nil
}

// StreamIDs returns the IDs of all streams with a stored snapshot.
func (a *BadgerAdapter) StreamIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.isClosed() {
		return nil, adapters.ErrAdapterClosed
	}

	var ids []string
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			ids = append(ids, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapmink/badger: list snapshots: %w", err)
	}
	return ids, nil
}

// Ping reports whether the database is open.
func (a *BadgerAdapter) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.isClosed() || a.db.IsClosed() {
		return adapters.ErrAdapterClosed
	}
	return nil
}

// Close stops garbage collection and closes the database.
// It is safe to call more than once.
func (a *BadgerAdapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.closed)
		if a.stopGC != nil {
			close(a.stopGC)
			<-a.gcDone
		}
		err = a.db.Close()
	})
	return err
}
