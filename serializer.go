package snapmink

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Serializer handles event payload serialization and deserialization.
type Serializer interface {
	// Serialize converts an event to bytes.
	Serialize(event interface{}) ([]byte, error)

	// Deserialize converts bytes back to an event.
	// The eventType is used to determine the target type.
	Deserialize(data []byte, eventType string) (interface{}, error)
}

// StateCodec encodes aggregate state for snapshots. DecodeState must fill
// v, a pointer to a freshly constructed aggregate, from data alone.
type StateCodec interface {
	EncodeState(v interface{}) ([]byte, error)
	DecodeState(data []byte, v interface{}) error
}

// EventRegistry maps event type names to Go types.
type EventRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewEventRegistry creates a new empty EventRegistry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{
		types: make(map[string]reflect.Type),
	}
}

// Register adds a mapping from eventType to the Go type of the example.
func (r *EventRegistry) Register(eventType string, example interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[eventType] = valueType(example)
}

// RegisterAll registers multiple events using their struct names as type names.
func (r *EventRegistry) RegisterAll(examples ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, example := range examples {
		t := valueType(example)
		r.types[t.Name()] = t
	}
}

// Lookup returns the Go type for the given event type name.
func (r *EventRegistry) Lookup(eventType string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[eventType]
	return t, ok
}

// RegisteredTypes returns the registered event type names in sorted order.
func (r *EventRegistry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for t := range r.types {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count returns the number of registered event types.
func (r *EventRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// New returns a pointer to a zero value of the registered type.
func (r *EventRegistry) New(eventType string) (interface{}, bool) {
	t, ok := r.Lookup(eventType)
	if !ok {
		return nil, false
	}
	return reflect.New(t).Interface(), true
}

func valueType(example interface{}) reflect.Type {
	t := reflect.TypeOf(example)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// JSONSerializer is the default Serializer implementation using JSON encoding.
// It also implements StateCodec.
type JSONSerializer struct {
	registry *EventRegistry
	strict   bool
}

// JSONOption configures a JSONSerializer.
type JSONOption func(*JSONSerializer)

// WithStrictTypes makes Deserialize fail with ErrEventTypeNotRegistered
// instead of falling back to map[string]interface{}.
func WithStrictTypes() JSONOption {
	return func(s *JSONSerializer) {
		s.strict = true
	}
}

// WithRegistry shares an existing registry.
func WithRegistry(registry *EventRegistry) JSONOption {
	return func(s *JSONSerializer) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// NewJSONSerializer creates a new JSONSerializer.
func NewJSONSerializer(opts ...JSONOption) *JSONSerializer {
	s := &JSONSerializer{registry: NewEventRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds an event type to the serializer's registry.
func (s *JSONSerializer) Register(eventType string, example interface{}) {
	s.registry.Register(eventType, example)
}

// RegisterAll registers multiple events using their struct names as type names.
func (s *JSONSerializer) RegisterAll(examples ...interface{}) {
	s.registry.RegisterAll(examples...)
}

// Registry returns the underlying EventRegistry.
func (s *JSONSerializer) Registry() *EventRegistry {
	return s.registry
}

// Serialize converts an event to JSON bytes.
func (s *JSONSerializer) Serialize(event interface{}) ([]byte, error) {
	if event == nil {
		return nil, NewSerializationError("nil", "serialize", fmt.Errorf("event cannot be nil"))
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, NewSerializationError(GetEventType(event), "serialize", err)
	}

	return data, nil
}

// Deserialize converts JSON bytes back to an event value of the registered type.
// Unregistered types decode to map[string]interface{} unless strict.
func (s *JSONSerializer) Deserialize(data []byte, eventType string) (interface{}, error) {
	if len(data) == 0 {
		return nil, NewSerializationError(eventType, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	ptr, ok := s.registry.New(eventType)
	if !ok {
		if s.strict {
			return nil, NewEventTypeNotRegisteredError(eventType)
		}
		var result map[string]interface{}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, NewSerializationError(eventType, "deserialize", err)
		}
		return result, nil
	}

	if err := json.Unmarshal(data, ptr); err != nil {
		return nil, NewSerializationError(eventType, "deserialize", err)
	}

	return reflect.ValueOf(ptr).Elem().Interface(), nil
}

// EncodeState encodes aggregate state as JSON.
func (s *JSONSerializer) EncodeState(v interface{}) ([]byte, error) {
	return JSONStateCodec{}.EncodeState(v)
}

// DecodeState decodes JSON aggregate state into v.
func (s *JSONSerializer) DecodeState(data []byte, v interface{}) error {
	return JSONStateCodec{}.DecodeState(data, v)
}

// JSONStateCodec encodes aggregate state with encoding/json. Only exported
// fields survive a round trip; aggregate identity and playhead are restored
// separately.
type JSONStateCodec struct{}

// EncodeState implements StateCodec.
func (JSONStateCodec) EncodeState(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, NewSerializationError(GetEventType(v), "encode state", err)
	}
	return data, nil
}

// DecodeState implements StateCodec.
func (JSONStateCodec) DecodeState(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return NewSerializationError(GetEventType(v), "decode state", err)
	}
	return nil
}

// GetEventType returns the event type name for the given event.
// It uses the struct name as the type name.
func GetEventType(event interface{}) string {
	if event == nil {
		return ""
	}
	return valueType(event).Name()
}

// SerializeEvent serializes an event and returns EventData.
func SerializeEvent(serializer Serializer, event interface{}, metadata Metadata) (EventData, error) {
	eventType := GetEventType(event)
	if eventType == "" {
		return EventData{}, NewSerializationError("", "serialize", fmt.Errorf("cannot determine event type"))
	}

	data, err := serializer.Serialize(event)
	if err != nil {
		return EventData{}, err
	}

	return EventData{
		Type:     eventType,
		Data:     data,
		Metadata: metadata,
	}, nil
}

// DeserializeEvent deserializes a StoredEvent to an Event.
func DeserializeEvent(serializer Serializer, stored StoredEvent) (Event, error) {
	data, err := serializer.Deserialize(stored.Data, stored.Type)
	if err != nil {
		return Event{}, err
	}

	return EventFromStored(stored, data), nil
}

var (
	_ Serializer = (*JSONSerializer)(nil)
	_ StateCodec = (*JSONSerializer)(nil)
	_ StateCodec = JSONStateCodec{}
)
