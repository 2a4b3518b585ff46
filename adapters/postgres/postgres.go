// Package postgres provides a PostgreSQL implementation of the event log and
// snapshot adapters.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

// Version constants for optimistic concurrency control.
const (
	AnyVersion   = adapters.AnyVersion
	NoStream     = adapters.NoStream
	StreamExists = adapters.StreamExists
)

// Sentinel errors for the postgres adapter.
// These are aliases to the adapters package errors for compatibility with errors.Is().
var (
	ErrAdapterClosed       = adapters.ErrAdapterClosed
	ErrEmptyStreamID       = adapters.ErrEmptyStreamID
	ErrNoEvents            = adapters.ErrNoEvents
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict
	ErrStreamNotFound      = adapters.ErrStreamNotFound
	ErrInvalidVersion      = adapters.ErrInvalidVersion
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Ensure PostgresAdapter implements required interfaces.
var (
	_ adapters.EventStoreAdapter = (*PostgresAdapter)(nil)
	_ adapters.SnapshotAdapter   = (*PostgresAdapter)(nil)
	_ adapters.HealthChecker     = (*PostgresAdapter)(nil)
)

// PostgresAdapter is a PostgreSQL implementation of EventStoreAdapter and
// SnapshotAdapter.
type PostgresAdapter struct {
	db     *sql.DB
	schema string
	closed atomic.Bool
}

// Option configures a PostgresAdapter.
type Option func(*PostgresAdapter)

// WithSchema sets the database schema name.
func WithSchema(schema string) Option {
	return func(a *PostgresAdapter) {
		a.schema = schema
	}
}

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) Option {
	return func(a *PostgresAdapter) {
		a.db.SetMaxOpenConns(n)
	}
}

// WithMaxIdleConnections sets the maximum number of idle connections.
func WithMaxIdleConnections(n int) Option {
	return func(a *PostgresAdapter) {
		a.db.SetMaxIdleConns(n)
	}
}

// WithConnectionMaxLifetime sets the maximum connection lifetime.
func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(a *PostgresAdapter) {
		a.db.SetConnMaxLifetime(d)
	}
}

// NewAdapter creates a new PostgreSQL adapter using the pgx driver.
func NewAdapter(connStr string, opts ...Option) (*PostgresAdapter, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("snapmink/postgres: failed to open database: %w", err)
	}

	return NewAdapterWithDB(db, opts...), nil
}

// NewAdapterWithDB creates a new adapter with an existing database connection.
func NewAdapterWithDB(db *sql.DB, opts ...Option) *PostgresAdapter {
	adapter := &PostgresAdapter{
		db:     db,
		schema: "snapmink",
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// table returns the quoted, schema-qualified name of a table.
func (a *PostgresAdapter) table(name string) string {
	return pq.QuoteIdentifier(a.schema) + "." + pq.QuoteIdentifier(name)
}

// Initialize creates the required database schema and tables.
func (a *PostgresAdapter) Initialize(ctx context.Context) error {
	return a.Migrate(ctx)
}

// Migrate runs database migrations. It is safe to run repeatedly.
func (a *PostgresAdapter) Migrate(ctx context.Context) error {
	statements := []struct {
		what string
		sql  string
	}{
		{"schema", fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(a.schema))},
		{"streams table", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id              BIGSERIAL PRIMARY KEY,
				stream_id       VARCHAR(500) NOT NULL UNIQUE,
				category        VARCHAR(250) NOT NULL,
				version         BIGINT NOT NULL DEFAULT 0,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, a.table("streams"))},
		{"events table", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				global_position BIGSERIAL PRIMARY KEY,
				stream_id       VARCHAR(500) NOT NULL,
				version         BIGINT NOT NULL,
				event_id        UUID NOT NULL DEFAULT gen_random_uuid(),
				event_type      VARCHAR(500) NOT NULL,
				data            JSONB NOT NULL,
				metadata        JSONB,
				timestamp       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE(stream_id, version)
			)`, a.table("events"))},
		{"streams index", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_streams_category ON %s(category)`, a.table("streams"))},
		{"events index", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_stream ON %s(stream_id, version)`, a.table("events"))},
		{"snapshots table", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				stream_id       VARCHAR(500) PRIMARY KEY,
				version         BIGINT NOT NULL,
				data            BYTEA NOT NULL,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, a.table("snapshots"))},
	}

	for _, stmt := range statements {
		if _, err := a.db.ExecContext(ctx, stmt.sql); err != nil {
			return fmt.Errorf("snapmink/postgres: failed to create %s: %w", stmt.what, err)
		}
	}

	return nil
}

// Append stores events to the specified stream with optimistic concurrency control.
func (a *PostgresAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed.Load() {
		return nil, ErrAdapterClosed
	}

	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("snapmink/postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentVersion int64
	streamExists := true

	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT version FROM %s
		WHERE stream_id = $1
		FOR UPDATE`, a.table("streams")), streamID).Scan(&currentVersion)
	if errors.Is(err, sql.ErrNoRows) {
		streamExists = false
		currentVersion = 0
	} else if err != nil {
		return nil, fmt.Errorf("snapmink/postgres: failed to get stream version: %w", err)
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, currentVersion, streamExists); err != nil {
		return nil, err
	}

	if !streamExists {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (stream_id, category, version)
			VALUES ($1, $2, 0)`, a.table("streams")), streamID, adapters.ExtractCategory(streamID))
		if err != nil {
			// Another writer created the stream between our SELECT and INSERT.
			if isUniqueViolation(err) {
				return nil, adapters.NewConcurrencyError(streamID, expectedVersion, currentVersion)
			}
			return nil, fmt.Errorf("snapmink/postgres: failed to create stream: %w", err)
		}
	}

	storedEvents := make([]adapters.StoredEvent, len(events))
	for i, event := range events {
		currentVersion++

		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("snapmink/postgres: failed to marshal metadata: %w", err)
		}

		var globalPosition uint64
		var eventID string
		var timestamp time.Time

		err = tx.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (stream_id, version, event_type, data, metadata)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING global_position, event_id, timestamp`, a.table("events")),
			streamID, currentVersion, event.Type, event.Data, metadataJSON,
		).Scan(&globalPosition, &eventID, &timestamp)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, adapters.NewConcurrencyError(streamID, expectedVersion, currentVersion-1)
			}
			return nil, fmt.Errorf("snapmink/postgres: failed to insert event: %w", err)
		}

		storedEvents[i] = adapters.StoredEvent{
			ID:             eventID,
			StreamID:       streamID,
			Type:           event.Type,
			Data:           event.Data,
			Metadata:       event.Metadata,
			Version:        currentVersion,
			GlobalPosition: globalPosition,
			Timestamp:      timestamp,
		}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET version = $1, updated_at = NOW()
		WHERE stream_id = $2`, a.table("streams")), currentVersion, streamID)
	if err != nil {
		return nil, fmt.Errorf("snapmink/postgres: failed to update stream version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("snapmink/postgres: failed to commit transaction: %w", err)
	}

	return storedEvents, nil
}

// Load retrieves all events from a stream with a version greater than fromVersion.
func (a *PostgresAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed.Load() {
		return nil, ErrAdapterClosed
	}

	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	return a.queryEvents(ctx, fmt.Sprintf(`
		SELECT global_position, event_id, stream_id, version, event_type, data, metadata, timestamp
		FROM %s
		WHERE stream_id = $1 AND version > $2
		ORDER BY version`, a.table("events")), streamID, fromVersion)
}

// LoadRange retrieves events with fromVersion < version <= toVersion.
func (a *PostgresAdapter) LoadRange(ctx context.Context, streamID string, fromVersion, toVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed.Load() {
		return nil, ErrAdapterClosed
	}

	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	if err := adapters.CheckRange(fromVersion, toVersion); err != nil {
		return nil, err
	}

	return a.queryEvents(ctx, fmt.Sprintf(`
		SELECT global_position, event_id, stream_id, version, event_type, data, metadata, timestamp
		FROM %s
		WHERE stream_id = $1 AND version > $2 AND version <= $3
		ORDER BY version`, a.table("events")), streamID, fromVersion, toVersion)
}

func (a *PostgresAdapter) queryEvents(ctx context.Context, query string, args ...interface{}) ([]adapters.StoredEvent, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("snapmink/postgres: failed to load events: %w", err)
	}
	defer rows.Close()

	events := make([]adapters.StoredEvent, 0)
	for rows.Next() {
		var event adapters.StoredEvent
		var metadataJSON []byte

		err := rows.Scan(
			&event.GlobalPosition,
			&event.ID,
			&event.StreamID,
			&event.Version,
			&event.Type,
			&event.Data,
			&metadataJSON,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("snapmink/postgres: failed to scan event: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("snapmink/postgres: failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapmink/postgres: error iterating events: %w", err)
	}

	return events, nil
}

// GetStreamInfo returns metadata about a stream.
func (a *PostgresAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if a.closed.Load() {
		return nil, ErrAdapterClosed
	}

	var info adapters.StreamInfo
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT stream_id, category, version, created_at, updated_at
		FROM %s
		WHERE stream_id = $1`, a.table("streams")), streamID).Scan(
		&info.StreamID,
		&info.Category,
		&info.Version,
		&info.CreatedAt,
		&info.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("snapmink/postgres: failed to get stream info: %w", err)
	}

	// Versions are gapless, so the count equals the version.
	info.EventCount = info.Version
	return &info, nil
}

// Close releases the database connection.
func (a *PostgresAdapter) Close() error {
	a.closed.Store(true)
	return a.db.Close()
}

// SaveSnapshot stores a snapshot for the given stream, replacing any previous one.
func (a *PostgresAdapter) SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}

	if streamID == "" {
		return ErrEmptyStreamID
	}

	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (stream_id, version, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (stream_id) DO UPDATE SET
			version = EXCLUDED.version,
			data = EXCLUDED.data,
			created_at = NOW()`, a.table("snapshots")), streamID, version, data)
	if err != nil {
		return fmt.Errorf("snapmink/postgres: failed to save snapshot: %w", err)
	}

	return nil
}

// LoadSnapshot retrieves the latest snapshot for the given stream.
func (a *PostgresAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	if a.closed.Load() {
		return nil, ErrAdapterClosed
	}

	var snapshot adapters.SnapshotRecord
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT stream_id, version, data, created_at
		FROM %s
		WHERE stream_id = $1`, a.table("snapshots")), streamID).Scan(
		&snapshot.StreamID,
		&snapshot.Version,
		&snapshot.Data,
		&snapshot.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapmink/postgres: failed to load snapshot: %w", err)
	}

	return &snapshot, nil
}

// DeleteSnapshot removes the snapshot for the given stream.
func (a *PostgresAdapter) DeleteSnapshot(ctx context.Context, streamID string) error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}

	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE stream_id = $1`, a.table("snapshots")), streamID)
	if err != nil {
		return fmt.Errorf("snapmink/postgres: failed to delete snapshot: %w", err)
	}

	return nil
}

// Ping checks database connectivity.
func (a *PostgresAdapter) Ping(ctx context.Context) error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// DB returns the underlying database connection.
func (a *PostgresAdapter) DB() *sql.DB {
	return a.db
}

// Schema returns the schema name.
func (a *PostgresAdapter) Schema() string {
	return a.schema
}

// isUniqueViolation reports whether err is a unique constraint violation.
// Both the pgx stdlib driver and lib/pq surface the SQLSTATE.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		return coded.SQLState() == uniqueViolation
	}
	return false
}
