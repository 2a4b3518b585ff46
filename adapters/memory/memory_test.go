package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

func appendN(t *testing.T, adapter *MemoryAdapter, streamID string, n int) {
	t.Helper()
	records := make([]adapters.EventRecord, n)
	for i := range records {
		records[i] = adapters.EventRecord{Type: "Deposited", Data: []byte(`{"amount":1}`)}
	}
	_, err := adapter.Append(context.Background(), streamID, records, AnyVersion)
	require.NoError(t, err)
}

func TestNewAdapter(t *testing.T) {
	t.Run("creates adapter with defaults", func(t *testing.T) {
		adapter := NewAdapter()

		assert.NotNil(t, adapter)
		assert.Equal(t, 0, adapter.EventCount())
		assert.Equal(t, 0, adapter.StreamCount())
		assert.Equal(t, 0, adapter.SnapshotCount())
		assert.NoError(t, adapter.Initialize(context.Background()))
	})
}

func TestMemoryAdapter_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("append to new stream", func(t *testing.T) {
		adapter := NewAdapter()

		stored, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{
			{Type: "AccountOpened", Data: []byte(`{"owner":"ada"}`)},
		}, NoStream)

		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, "Account-1", stored[0].StreamID)
		assert.Equal(t, "AccountOpened", stored[0].Type)
		assert.Equal(t, int64(1), stored[0].Version)
		assert.Equal(t, uint64(1), stored[0].GlobalPosition)
		assert.NotEmpty(t, stored[0].ID)
	})

	t.Run("versions are gapless across appends", func(t *testing.T) {
		adapter := NewAdapter()
		appendN(t, adapter, "Account-1", 3)

		stored, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{
			{Type: "Withdrawn", Data: []byte(`{}`)},
		}, 3)

		require.NoError(t, err)
		assert.Equal(t, int64(4), stored[0].Version)
		assert.Equal(t, 4, adapter.EventCount())
	})

	t.Run("concurrency conflict on stale expected version", func(t *testing.T) {
		adapter := NewAdapter()
		appendN(t, adapter, "Account-1", 2)

		_, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "X", Data: []byte(`{}`)}}, 1)

		assert.True(t, errors.Is(err, ErrConcurrencyConflict))
	})

	t.Run("validation errors", func(t *testing.T) {
		adapter := NewAdapter()

		_, err := adapter.Append(ctx, "", []adapters.EventRecord{{Type: "X"}}, AnyVersion)
		assert.ErrorIs(t, err, ErrEmptyStreamID)

		_, err = adapter.Append(ctx, "Account-1", nil, AnyVersion)
		assert.ErrorIs(t, err, ErrNoEvents)
	})

	t.Run("cancelled context", func(t *testing.T) {
		adapter := NewAdapter()
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := adapter.Append(cctx, "Account-1", []adapters.EventRecord{{Type: "X"}}, AnyVersion)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMemoryAdapter_Load(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()
	appendN(t, adapter, "Account-1", 10)

	t.Run("load whole stream", func(t *testing.T) {
		events, err := adapter.Load(ctx, "Account-1", 0)

		require.NoError(t, err)
		require.Len(t, events, 10)
		assert.Equal(t, int64(1), events[0].Version)
		assert.Equal(t, int64(10), events[9].Version)
	})

	t.Run("load suffix after version", func(t *testing.T) {
		events, err := adapter.Load(ctx, "Account-1", 7)

		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, int64(8), events[0].Version)
		assert.Equal(t, int64(10), events[2].Version)
	})

	t.Run("load past end is empty", func(t *testing.T) {
		events, err := adapter.Load(ctx, "Account-1", 10)

		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("missing stream is empty", func(t *testing.T) {
		events, err := adapter.Load(ctx, "Account-missing", 0)

		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("returned slice does not alias storage", func(t *testing.T) {
		events, err := adapter.Load(ctx, "Account-1", 0)
		require.NoError(t, err)
		events[0].Type = "Tampered"

		again, err := adapter.Load(ctx, "Account-1", 0)
		require.NoError(t, err)
		assert.Equal(t, "Deposited", again[0].Type)
	})
}

func TestMemoryAdapter_LoadRange(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()
	appendN(t, adapter, "Account-1", 10)

	tests := []struct {
		name      string
		from, to  int64
		wantFirst int64
		wantLen   int
	}{
		{name: "middle slice", from: 3, to: 6, wantFirst: 4, wantLen: 3},
		{name: "from start", from: 0, to: 2, wantFirst: 1, wantLen: 2},
		{name: "to beyond end is clamped", from: 8, to: 50, wantFirst: 9, wantLen: 2},
		{name: "empty range", from: 5, to: 5, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := adapter.LoadRange(ctx, "Account-1", tt.from, tt.to)

			require.NoError(t, err)
			require.Len(t, events, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, events[0].Version)
			}
		})
	}

	t.Run("reversed range is rejected", func(t *testing.T) {
		_, err := adapter.LoadRange(ctx, "Account-1", 6, 3)
		assert.ErrorIs(t, err, adapters.ErrInvalidRange)
	})
}

func TestMemoryAdapter_GetStreamInfo(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	adapter := NewAdapter(WithClock(func() time.Time { return fixed }))
	appendN(t, adapter, "Account-1", 4)

	info, err := adapter.GetStreamInfo(ctx, "Account-1")
	require.NoError(t, err)
	assert.Equal(t, "Account", info.Category)
	assert.Equal(t, int64(4), info.Version)
	assert.Equal(t, int64(4), info.EventCount)
	assert.Equal(t, fixed, info.UpdatedAt)

	_, err = adapter.GetStreamInfo(ctx, "Account-2")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestMemoryAdapter_Snapshots(t *testing.T) {
	ctx := context.Background()

	t.Run("missing snapshot is nil without error", func(t *testing.T) {
		adapter := NewAdapter()

		record, err := adapter.LoadSnapshot(ctx, "Account-1")

		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("save replaces previous snapshot", func(t *testing.T) {
		adapter := NewAdapter()

		require.NoError(t, adapter.SaveSnapshot(ctx, "Account-1", 5, []byte("five")))
		require.NoError(t, adapter.SaveSnapshot(ctx, "Account-1", 10, []byte("ten")))

		record, err := adapter.LoadSnapshot(ctx, "Account-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10), record.Version)
		assert.Equal(t, []byte("ten"), record.Data)
		assert.Equal(t, 1, adapter.SnapshotCount())
	})

	t.Run("stored data is isolated from caller buffers", func(t *testing.T) {
		adapter := NewAdapter()
		data := []byte("state")
		require.NoError(t, adapter.SaveSnapshot(ctx, "Account-1", 1, data))
		data[0] = 'X'

		record, err := adapter.LoadSnapshot(ctx, "Account-1")
		require.NoError(t, err)
		record.Data[1] = 'Y'

		again, err := adapter.LoadSnapshot(ctx, "Account-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("state"), again.Data)
	})

	t.Run("delete removes snapshot", func(t *testing.T) {
		adapter := NewAdapter()
		require.NoError(t, adapter.SaveSnapshot(ctx, "Account-1", 1, []byte("s")))
		require.NoError(t, adapter.DeleteSnapshot(ctx, "Account-1"))

		record, err := adapter.LoadSnapshot(ctx, "Account-1")
		require.NoError(t, err)
		assert.Nil(t, record)
	})
}

func TestMemoryAdapter_Closed(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()
	require.NoError(t, adapter.Close())

	_, err := adapter.Load(ctx, "Account-1", 0)
	assert.ErrorIs(t, err, ErrAdapterClosed)
	assert.ErrorIs(t, adapter.SaveSnapshot(ctx, "Account-1", 1, nil), ErrAdapterClosed)
	assert.ErrorIs(t, adapter.Ping(ctx), ErrAdapterClosed)
}

func TestMemoryAdapter_Reset(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()
	appendN(t, adapter, "Account-1", 2)
	require.NoError(t, adapter.SaveSnapshot(ctx, "Account-1", 2, []byte("s")))

	adapter.Reset()

	assert.Equal(t, 0, adapter.EventCount())
	assert.Equal(t, 0, adapter.StreamCount())
	assert.Equal(t, 0, adapter.SnapshotCount())
}

func TestMemoryAdapter_ConcurrentAppends(t *testing.T) {
	adapter := NewAdapter()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "Deposited", Data: []byte(`{}`)}}, AnyVersion)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	events, err := adapter.Load(ctx, "Account-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 20)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Version)
	}
}
