package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

// MockAdapter is a mock implementation of adapters.EventStoreAdapter for testing.
// Events is returned for every load; the *Err fields inject failures.
type MockAdapter struct {
	AppendErr        error
	LoadErr          error
	LoadRangeErr     error
	GetStreamInfoErr error
	Events           []adapters.StoredEvent
}

// Append implements adapters.EventStoreAdapter.
func (m *MockAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if m.AppendErr != nil {
		return nil, m.AppendErr
	}
	stored := make([]adapters.StoredEvent, len(events))
	for i, e := range events {
		stored[i] = adapters.StoredEvent{
			ID:             "event-" + e.Type,
			StreamID:       streamID,
			Type:           e.Type,
			Data:           e.Data,
			Metadata:       e.Metadata,
			Version:        int64(i + 1),
			GlobalPosition: uint64(i + 1),
			Timestamp:      time.Now(),
		}
	}
	return stored, nil
}

// Load implements adapters.EventStoreAdapter.
func (m *MockAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.Events, nil
}

// LoadRange implements adapters.EventStoreAdapter.
func (m *MockAdapter) LoadRange(ctx context.Context, streamID string, fromVersion, toVersion int64) ([]adapters.StoredEvent, error) {
	if m.LoadRangeErr != nil {
		return nil, m.LoadRangeErr
	}
	return m.Events, nil
}

// GetStreamInfo implements adapters.EventStoreAdapter.
func (m *MockAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if m.GetStreamInfoErr != nil {
		return nil, m.GetStreamInfoErr
	}
	return &adapters.StreamInfo{
		StreamID:   streamID,
		Version:    int64(len(m.Events)),
		EventCount: int64(len(m.Events)),
	}, nil
}

// Initialize implements adapters.EventStoreAdapter.
func (m *MockAdapter) Initialize(ctx context.Context) error {
	return nil
}

// Close implements adapters.EventStoreAdapter.
func (m *MockAdapter) Close() error {
	return nil
}

// MockSnapshotAdapter is an in-memory adapters.SnapshotAdapter with
// failure injection and call recording.
type MockSnapshotAdapter struct {
	SaveErr   error
	LoadErr   error
	DeleteErr error

	mu      sync.Mutex
	records map[string]*adapters.SnapshotRecord
	saves   []string
	loads   []string
}

// NewMockSnapshotAdapter creates an empty MockSnapshotAdapter.
func NewMockSnapshotAdapter() *MockSnapshotAdapter {
	return &MockSnapshotAdapter{records: make(map[string]*adapters.SnapshotRecord)}
}

// SaveSnapshot implements adapters.SnapshotAdapter.
func (m *MockSnapshotAdapter) SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saves = append(m.saves, streamID)
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.records[streamID] = adapters.CopySnapshotRecord(&adapters.SnapshotRecord{
		StreamID:  streamID,
		Version:   version,
		Data:      data,
		CreatedAt: time.Now(),
	})
	return nil
}

// LoadSnapshot implements adapters.SnapshotAdapter.
func (m *MockSnapshotAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loads = append(m.loads, streamID)
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return adapters.CopySnapshotRecord(m.records[streamID]), nil
}

// DeleteSnapshot implements adapters.SnapshotAdapter.
func (m *MockSnapshotAdapter) DeleteSnapshot(ctx context.Context, streamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.records, streamID)
	return nil
}

// Saves returns the stream IDs passed to SaveSnapshot, in call order.
func (m *MockSnapshotAdapter) Saves() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.saves...)
}

// Loads returns the stream IDs passed to LoadSnapshot, in call order.
func (m *MockSnapshotAdapter) Loads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loads...)
}

// Record returns the stored snapshot for streamID, or nil.
func (m *MockSnapshotAdapter) Record(streamID string) *adapters.SnapshotRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return adapters.CopySnapshotRecord(m.records[streamID])
}

var (
	_ adapters.EventStoreAdapter = (*MockAdapter)(nil)
	_ adapters.SnapshotAdapter   = (*MockSnapshotAdapter)(nil)
)
