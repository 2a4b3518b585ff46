package adapters

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionConstants(t *testing.T) {
	t.Run("version constants have expected values", func(t *testing.T) {
		assert.Equal(t, int64(-1), AnyVersion)
		assert.Equal(t, int64(0), NoStream)
		assert.Equal(t, int64(-2), StreamExists)
	})
}

func TestExtractCategory(t *testing.T) {
	tests := []struct {
		name     string
		streamID string
		expected string
	}{
		{name: "standard format", streamID: "Account-123", expected: "Account"},
		{name: "multiple hyphens takes first part", streamID: "User-abc-def", expected: "User"},
		{name: "no hyphen returns entire ID", streamID: "SingleWord", expected: "SingleWord"},
		{name: "empty string returns empty", streamID: "", expected: ""},
		{name: "starts with hyphen returns empty", streamID: "-Leading", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractCategory(tt.streamID))
		})
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name     string
		expected int64
		current  int64
		exists   bool
		wantErr  error
	}{
		{name: "any version on missing stream", expected: AnyVersion, current: 0, exists: false},
		{name: "any version on existing stream", expected: AnyVersion, current: 7, exists: true},
		{name: "no stream on missing stream", expected: NoStream, current: 0, exists: false},
		{name: "no stream on existing stream", expected: NoStream, current: 3, exists: true, wantErr: ErrConcurrencyConflict},
		{name: "stream exists on missing stream", expected: StreamExists, exists: false, wantErr: ErrStreamNotFound},
		{name: "stream exists on existing stream", expected: StreamExists, current: 1, exists: true},
		{name: "exact version match", expected: 5, current: 5, exists: true},
		{name: "exact version mismatch", expected: 4, current: 5, exists: true, wantErr: ErrConcurrencyConflict},
		{name: "invalid negative version", expected: -9, current: 5, exists: true, wantErr: ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckVersion("Account-1", tt.expected, tt.current, tt.exists)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	t.Run("concurrency error carries versions", func(t *testing.T) {
		err := CheckVersion("Account-1", 2, 5, true)

		var concErr *ConcurrencyError
		require.True(t, errors.As(err, &concErr))
		assert.Equal(t, "Account-1", concErr.StreamID)
		assert.Equal(t, int64(2), concErr.ExpectedVersion)
		assert.Equal(t, int64(5), concErr.ActualVersion)
		assert.Contains(t, concErr.Error(), "Account-1")
	})
}

func TestCheckRange(t *testing.T) {
	assert.NoError(t, CheckRange(0, 0))
	assert.NoError(t, CheckRange(3, 10))
	assert.ErrorIs(t, CheckRange(5, 4), ErrInvalidRange)
	assert.ErrorIs(t, CheckRange(-1, 4), ErrInvalidRange)
}

func TestStreamNotFoundError(t *testing.T) {
	err := NewStreamNotFoundError("Account-9")

	assert.True(t, errors.Is(err, ErrStreamNotFound))
	assert.False(t, errors.Is(err, ErrConcurrencyConflict))
	assert.Equal(t, `snapmink: stream "Account-9" not found`, err.Error())
}

func TestCopySnapshotRecord(t *testing.T) {
	t.Run("nil returns nil", func(t *testing.T) {
		assert.Nil(t, CopySnapshotRecord(nil))
	})

	t.Run("copy does not share data", func(t *testing.T) {
		original := &SnapshotRecord{
			StreamID:  "Account-1",
			Version:   3,
			Data:      []byte(`{"balance":10}`),
			CreatedAt: time.Unix(100, 0),
		}

		cp := CopySnapshotRecord(original)
		cp.Data[0] = 'X'

		assert.Equal(t, byte('{'), original.Data[0])
		assert.Equal(t, original.StreamID, cp.StreamID)
		assert.Equal(t, original.Version, cp.Version)
		assert.Equal(t, original.CreatedAt, cp.CreatedAt)
	})
}
