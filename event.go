package snapmink

import (
	"fmt"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

// Version constants for optimistic concurrency control.
const (
	// AnyVersion skips version checking, allowing append regardless of current version.
	AnyVersion = adapters.AnyVersion

	// NoStream indicates the stream must not exist (for creating new streams).
	NoStream = adapters.NoStream

	// StreamExists indicates the stream must exist (for appending to existing streams).
	StreamExists = adapters.StreamExists
)

// StreamID uniquely identifies an event stream.
// It consists of a category (aggregate type) and an instance ID.
type StreamID struct {
	// Category represents the aggregate type (e.g., "Account").
	Category string

	// ID is the unique identifier within the category (e.g., "acc-123").
	ID string
}

// NewStreamID creates a new StreamID from category and ID.
func NewStreamID(category, id string) StreamID {
	return StreamID{Category: category, ID: id}
}

// ParseStreamID parses a stream ID string in the format "Category-ID".
func ParseStreamID(s string) (StreamID, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return StreamID{}, fmt.Errorf("snapmink: invalid stream ID format %q, expected 'Category-ID'", s)
	}
	return StreamID{Category: parts[0], ID: parts[1]}, nil
}

// String returns the stream ID as "Category-ID".
func (s StreamID) String() string {
	return s.Category + "-" + s.ID
}

// Validate checks if the StreamID is valid.
func (s StreamID) Validate() error {
	if s.Category == "" {
		return fmt.Errorf("snapmink: stream category is required")
	}
	if s.ID == "" {
		return ErrEmptyStreamID
	}
	return nil
}

// Metadata contains contextual information about an event.
type Metadata struct {
	CorrelationID string            `json:"correlationId,omitempty"`
	CausationID   string            `json:"causationId,omitempty"`
	UserID        string            `json:"userId,omitempty"`
	TenantID      string            `json:"tenantId,omitempty"`
	Custom        map[string]string `json:"custom,omitempty"`
}

// IsEmpty reports whether no metadata field is set.
func (m Metadata) IsEmpty() bool {
	return m.CorrelationID == "" && m.CausationID == "" && m.UserID == "" &&
		m.TenantID == "" && len(m.Custom) == 0
}

// WithCorrelationID returns a copy with the correlation ID set.
func (m Metadata) WithCorrelationID(id string) Metadata {
	m.CorrelationID = id
	return m
}

// WithCausationID returns a copy with the causation ID set.
func (m Metadata) WithCausationID(id string) Metadata {
	m.CausationID = id
	return m
}

// WithCustom returns a copy with an additional custom key.
func (m Metadata) WithCustom(key, value string) Metadata {
	custom := make(map[string]string, len(m.Custom)+1)
	for k, v := range m.Custom {
		custom[k] = v
	}
	custom[key] = value
	m.Custom = custom
	return m
}

// EventData represents an event to be stored.
type EventData struct {
	// Type is the event type identifier (e.g., "MoneyDeposited").
	Type string

	// Data is the serialized event payload.
	Data []byte

	// Metadata contains optional contextual information.
	Metadata Metadata
}

// StoredEvent represents a persisted event with all storage metadata.
type StoredEvent struct {
	ID             string
	StreamID       string
	Type           string
	Data           []byte
	Metadata       Metadata
	Version        int64
	GlobalPosition uint64
	Timestamp      time.Time
}

// Event represents a deserialized event with its data as a Go type.
type Event struct {
	// ID is the globally unique event identifier.
	ID string

	// StreamID identifies the stream this event belongs to.
	StreamID string

	// Type is the event type identifier.
	Type string

	// Data is the deserialized event payload.
	Data interface{}

	// Metadata contains contextual information.
	Metadata Metadata

	// Version is the playhead position within the stream (1-based, gapless).
	Version int64

	// GlobalPosition is the position across all streams.
	GlobalPosition uint64

	// Timestamp is when the event was stored.
	Timestamp time.Time
}

// EventFromStored creates an Event from a StoredEvent with deserialized data.
func EventFromStored(stored StoredEvent, data interface{}) Event {
	return Event{
		ID:             stored.ID,
		StreamID:       stored.StreamID,
		Type:           stored.Type,
		Data:           data,
		Metadata:       stored.Metadata,
		Version:        stored.Version,
		GlobalPosition: stored.GlobalPosition,
		Timestamp:      stored.Timestamp,
	}
}

func convertMetadataToAdapter(m Metadata) adapters.Metadata {
	return adapters.Metadata{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		UserID:        m.UserID,
		TenantID:      m.TenantID,
		Custom:        m.Custom,
	}
}

func convertMetadataFromAdapter(m adapters.Metadata) Metadata {
	return Metadata{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		UserID:        m.UserID,
		TenantID:      m.TenantID,
		Custom:        m.Custom,
	}
}

func convertStoredEventFromAdapter(s adapters.StoredEvent) StoredEvent {
	return StoredEvent{
		ID:             s.ID,
		StreamID:       s.StreamID,
		Type:           s.Type,
		Data:           s.Data,
		Metadata:       convertMetadataFromAdapter(s.Metadata),
		Version:        s.Version,
		GlobalPosition: s.GlobalPosition,
		Timestamp:      s.Timestamp,
	}
}
