// Package msgpack provides MessagePack encodings for snapmink events and
// snapshot state.
//
// MessagePack produces smaller payloads than JSON, which matters most for
// snapshots of large aggregates:
//
//	codec := msgpack.NewSerializer()
//	codec.RegisterAll(Deposited{}, Withdrawn{})
//
//	store := snapmink.New(adapter, snapmink.WithSerializer(codec))
//	repo := snapmink.NewSnapshottingRepositoryFromStore(store, snapshots, factory,
//	    snapmink.WithStateCodec(codec))
package msgpack

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/AshkanYarmoradi/go-snapmink"
)

// Serializer is a MessagePack implementation of snapmink.Serializer and
// snapmink.StateCodec.
type Serializer struct {
	registry *snapmink.EventRegistry
	tag      string
}

// SerializerOption configures a Serializer.
type SerializerOption func(*Serializer)

// WithRegistry shares an existing event registry.
func WithRegistry(registry *snapmink.EventRegistry) SerializerOption {
	return func(s *Serializer) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// WithStructTag makes the encoder read field names from the given struct
// tag, e.g. "json", so the same tags serve both encodings.
func WithStructTag(tag string) SerializerOption {
	return func(s *Serializer) {
		s.tag = tag
	}
}

// NewSerializer creates a new MessagePack Serializer.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{registry: snapmink.NewEventRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a mapping from eventType to the Go type of the example.
func (s *Serializer) Register(eventType string, example interface{}) {
	s.registry.Register(eventType, example)
}

// RegisterAll registers multiple events using their struct names as type names.
func (s *Serializer) RegisterAll(examples ...interface{}) {
	s.registry.RegisterAll(examples...)
}

// Registry returns the underlying event registry.
func (s *Serializer) Registry() *snapmink.EventRegistry {
	return s.registry
}

// Serialize converts an event to MessagePack bytes.
func (s *Serializer) Serialize(event interface{}) ([]byte, error) {
	if event == nil {
		return nil, snapmink.NewSerializationError("nil", "serialize", fmt.Errorf("event cannot be nil"))
	}

	data, err := s.marshal(event)
	if err != nil {
		return nil, snapmink.NewSerializationError(snapmink.GetEventType(event), "serialize", err)
	}
	return data, nil
}

// Deserialize converts MessagePack bytes back to an event.
// Unregistered types decode to map[string]interface{}.
func (s *Serializer) Deserialize(data []byte, eventType string) (interface{}, error) {
	if len(data) == 0 {
		return nil, snapmink.NewSerializationError(eventType, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	ptr, ok := s.registry.New(eventType)
	if !ok {
		var result map[string]interface{}
		if err := s.unmarshal(data, &result); err != nil {
			return nil, snapmink.NewSerializationError(eventType, "deserialize", err)
		}
		return result, nil
	}

	if err := s.unmarshal(data, ptr); err != nil {
		return nil, snapmink.NewSerializationError(eventType, "deserialize", err)
	}
	return reflect.ValueOf(ptr).Elem().Interface(), nil
}

// EncodeState implements snapmink.StateCodec.
func (s *Serializer) EncodeState(v interface{}) ([]byte, error) {
	data, err := s.marshal(v)
	if err != nil {
		return nil, snapmink.NewSerializationError(snapmink.GetEventType(v), "encode state", err)
	}
	return data, nil
}

// DecodeState implements snapmink.StateCodec.
func (s *Serializer) DecodeState(data []byte, v interface{}) error {
	if err := s.unmarshal(data, v); err != nil {
		return snapmink.NewSerializationError(snapmink.GetEventType(v), "decode state", err)
	}
	return nil
}

func (s *Serializer) marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if s.tag != "" {
		enc.SetCustomStructTag(s.tag)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Serializer) unmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	if s.tag != "" {
		dec.SetCustomStructTag(s.tag)
	}
	return dec.Decode(v)
}

var (
	_ snapmink.Serializer = (*Serializer)(nil)
	_ snapmink.StateCodec = (*Serializer)(nil)
)
