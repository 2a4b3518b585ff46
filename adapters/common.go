package adapters

import (
	"fmt"
	"strings"
)

// Version constants for optimistic concurrency control.
const (
	// AnyVersion skips version checking.
	AnyVersion int64 = -1

	// NoStream requires the stream to not exist. Use for creating new streams.
	NoStream int64 = 0

	// StreamExists requires the stream to exist.
	StreamExists int64 = -2
)

// ExtractCategory extracts the category from a stream ID.
// Stream IDs follow the format "Category-ID" (e.g., "Account-123").
//
// Behavior:
//   - "Account-123" returns "Account"
//   - "User-abc-def" returns "User" (only splits on first hyphen)
//   - "NoHyphen" returns "NoHyphen"
//   - "" returns ""
func ExtractCategory(streamID string) string {
	if streamID == "" {
		return ""
	}
	parts := strings.SplitN(streamID, "-", 2)
	return parts[0]
}

// ConcurrencyError provides details about a concurrency conflict.
type ConcurrencyError struct {
	StreamID        string
	ExpectedVersion int64
	ActualVersion   int64
}

// NewConcurrencyError creates a new ConcurrencyError.
func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return &ConcurrencyError{
		StreamID:        streamID,
		ExpectedVersion: expected,
		ActualVersion:   actual,
	}
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("snapmink: concurrency conflict on stream %q: expected version %d, got %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion)
}

// Is implements errors.Is compatibility.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// StreamNotFoundError provides details about a missing stream.
type StreamNotFoundError struct {
	StreamID string
}

// NewStreamNotFoundError creates a new StreamNotFoundError.
func NewStreamNotFoundError(streamID string) *StreamNotFoundError {
	return &StreamNotFoundError{StreamID: streamID}
}

// Error implements the error interface.
func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("snapmink: stream %q not found", e.StreamID)
}

// Is implements errors.Is compatibility.
func (e *StreamNotFoundError) Is(target error) bool {
	return target == ErrStreamNotFound
}

// CheckVersion validates the expected version against the current version.
// This implements the optimistic concurrency control logic shared by all adapters.
func CheckVersion(streamID string, expected, current int64, exists bool) error {
	switch expected {
	case AnyVersion:
		return nil
	case NoStream:
		if exists {
			return NewConcurrencyError(streamID, expected, current)
		}
		return nil
	case StreamExists:
		if !exists {
			return NewStreamNotFoundError(streamID)
		}
		return nil
	default:
		if expected < 0 {
			return ErrInvalidVersion
		}
		if current != expected {
			return NewConcurrencyError(streamID, expected, current)
		}
		return nil
	}
}

// CheckRange validates the bounds of a range read.
func CheckRange(fromVersion, toVersion int64) error {
	if fromVersion < 0 || toVersion < fromVersion {
		return fmt.Errorf("%w: (%d, %d]", ErrInvalidRange, fromVersion, toVersion)
	}
	return nil
}

// CopySnapshotRecord returns a copy of record whose Data does not share
// memory with the original.
func CopySnapshotRecord(record *SnapshotRecord) *SnapshotRecord {
	if record == nil {
		return nil
	}
	data := make([]byte, len(record.Data))
	copy(data, record.Data)
	return &SnapshotRecord{
		StreamID:  record.StreamID,
		Version:   record.Version,
		Data:      data,
		CreatedAt: record.CreatedAt,
	}
}
