package remote

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Codec marshals and unmarshals one payload type for remote publication.
// The kernel treats payloads as opaque; only a registered Codec knows how
// to cross the wire, so an actor class that wants its published struct to
// reach a remote peer must register one under a stable type tag.
type Codec struct {
	Encode func(payload any) ([]byte, error)
	Decode func(data []byte) (any, error)
}

// Registry maps payload type tags to Codecs. The zero value is not usable;
// use NewRegistry. A Registry is safe for concurrent use: Register may run
// concurrently with Encode/Decode as actors initialize.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
	byType map[reflect.Type]string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Codec),
		byType: make(map[reflect.Type]string),
	}
}

// Register associates tag with codec. tag must not collide with a reserved
// control tag (TagSubscribe and friends); Register panics if it does,
// since that is a programming error in the registering actor class, not a
// runtime condition.
func (r *Registry) Register(tag string, codec Codec) {
	switch tag {
	case TagSubscribe, TagUnsubscribe, TagHeartbeat, TagProviderGone:
		panic(fmt.Sprintf("remote: %q is a reserved control type tag", tag))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[tag] = codec
}

// RegisterJSON registers a Codec for T backed by encoding/json. Most
// domain payloads cross the wire this way.
func RegisterJSON[T any](r *Registry, tag string) {
	r.Register(tag, Codec{
		Encode: func(payload any) ([]byte, error) {
			return json.Marshal(payload)
		},
		Decode: func(data []byte) (any, error) {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	})

	r.mu.Lock()
	r.byType[reflect.TypeFor[T]()] = tag
	r.mu.Unlock()
}

// TagFor looks up the type tag a payload's concrete type was registered
// under via RegisterJSON, used by the outbound side of a BusConnector to
// encode a local publication without the publisher naming a tag itself.
func (r *Registry) TagFor(payload any) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tag, ok := r.byType[reflect.TypeOf(payload)]
	return tag, ok
}

// Encode looks up the codec for tag and marshals payload, returning
// ErrUnserializablePayload if no codec is registered.
func (r *Registry) Encode(tag string, payload any) ([]byte, error) {
	r.mu.RLock()
	codec, ok := r.codecs[tag]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnserializablePayload, tag)
	}

	return codec.Encode(payload)
}

// Decode looks up the codec for tag and unmarshals data.
func (r *Registry) Decode(tag string, data []byte) (any, error) {
	r.mu.RLock()
	codec, ok := r.codecs[tag]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTypeTag, tag)
	}

	return codec.Decode(data)
}

// Has reports whether tag has a registered codec.
func (r *Registry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.codecs[tag]
	return ok
}
