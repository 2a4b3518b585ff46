package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/AshkanYarmoradi/go-snapmink"
	"github.com/AshkanYarmoradi/go-snapmink/adapters"
	"github.com/AshkanYarmoradi/go-snapmink/adapters/badger"
	"github.com/AshkanYarmoradi/go-snapmink/adapters/breaker"
	"github.com/AshkanYarmoradi/go-snapmink/adapters/dynamodb"
	"github.com/AshkanYarmoradi/go-snapmink/adapters/memory"
	"github.com/AshkanYarmoradi/go-snapmink/adapters/postgres"
	"github.com/AshkanYarmoradi/go-snapmink/cli/config"
	"github.com/AshkanYarmoradi/go-snapmink/logging"
)

// Backends holds the event log and snapshot adapters a command runs against.
type Backends struct {
	Events    adapters.EventStoreAdapter
	Snapshots adapters.SnapshotAdapter

	closers []func() error
}

// Close releases the backends in reverse order of creation.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AdapterFactory creates backends from configuration.
type AdapterFactory struct {
	config *config.Config
	logger snapmink.Logger
}

// NewAdapterFactory creates a new adapter factory. A nil logger discards
// backend log output.
func NewAdapterFactory(cfg *config.Config, logger snapmink.Logger) *AdapterFactory {
	if logger == nil {
		logger = logging.NewZapLogger(nil)
	}
	return &AdapterFactory{config: cfg, logger: logger}
}

// DatabaseURL returns the event store URL with environment references expanded.
func (f *AdapterFactory) DatabaseURL() string {
	return os.ExpandEnv(f.config.EventStore.URL)
}

// Open creates the event log and snapshot adapters. A postgres or memory
// snapshot backend shares the event store's adapter when the drivers match.
func (f *AdapterFactory) Open(ctx context.Context) (*Backends, error) {
	b := &Backends{}

	events, err := f.eventStore(ctx)
	if err != nil {
		return nil, err
	}
	b.Events = events
	b.closers = append(b.closers, events.Close)

	snapshots, err := f.snapshotStore(ctx, b)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	if f.config.Snapshots.CircuitBreaker {
		snapshots = breaker.New(snapshots, breaker.DefaultConfig("snapshots"),
			breaker.WithDegradeOnOpen(), breaker.WithLogger(f.logger))
	}
	b.Snapshots = snapshots
	return b, nil
}

func (f *AdapterFactory) eventStore(ctx context.Context) (adapters.EventStoreAdapter, error) {
	switch f.config.EventStore.Driver {
	case "postgres":
		return f.postgres(ctx)
	case "memory":
		return memory.NewAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported event store driver: %s", f.config.EventStore.Driver)
	}
}

func (f *AdapterFactory) postgres(ctx context.Context) (*postgres.PostgresAdapter, error) {
	url := f.DatabaseURL()
	if url == "" {
		return nil, fmt.Errorf("database URL is not set")
	}

	adapter, err := postgres.NewAdapter(url, postgres.WithSchema(f.config.EventStore.Schema))
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres adapter: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := adapter.Ping(pingCtx); err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return adapter, nil
}

func (f *AdapterFactory) snapshotStore(ctx context.Context, b *Backends) (adapters.SnapshotAdapter, error) {
	cfg := f.config.Snapshots

	switch cfg.Backend {
	case "postgres", "memory":
		if shared, ok := b.Events.(adapters.SnapshotAdapter); ok && cfg.Backend == f.config.EventStore.Driver {
			return shared, nil
		}
		if cfg.Backend == "memory" {
			return memory.NewAdapter(), nil
		}
		adapter, err := f.postgres(ctx)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, adapter.Close)
		return adapter, nil

	case "badger":
		bcfg := badger.DefaultConfig().WithPath(cfg.BadgerPath)
		bcfg.Logger = f.logger
		adapter, err := badger.NewAdapter(bcfg)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, adapter.Close)
		return adapter, nil

	case "dynamodb":
		var opts []dynamodb.Option
		if cfg.DynamoDBTTL > 0 {
			opts = append(opts, dynamodb.WithTTL(cfg.DynamoDBTTL))
		}
		return dynamodb.NewAdapterFromEnv(ctx, cfg.DynamoDBTable, opts...)

	default:
		return nil, fmt.Errorf("unsupported snapshot backend: %s", cfg.Backend)
	}
}
