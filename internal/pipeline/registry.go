package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Decoder turns the raw JSON of a tagged config into a validated value.
type Decoder[T any] func(raw json.RawMessage) (T, error)

// Registry maps a config's "type" tag to its decoder. Each component family
// (source, analyzer, sink) keeps one.
type Registry[T any] struct {
	component string

	mu       sync.RWMutex
	decoders map[string]Decoder[T]
}

func NewRegistry[T any](component string) *Registry[T] {
	return &Registry[T]{component: component, decoders: make(map[string]Decoder[T])}
}

func (r *Registry[T]) Register(kind string, d Decoder[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.decoders[kind]; dup {
		panic(fmt.Sprintf("%s: decoder %q registered twice", r.component, kind))
	}
	r.decoders[kind] = d
}

func (r *Registry[T]) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.decoders))
	for k := range r.decoders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Decode reads the "type" tag of raw and dispatches to the registered decoder.
func (r *Registry[T]) Decode(raw json.RawMessage) (T, error) {
	var zero T
	if IsEmpty(raw) {
		return zero, &ConfigError{Component: r.component, Reason: "config is missing"}
	}

	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return zero, InvalidField(r.component, "", fmt.Sprintf("malformed config: %v", err))
	}
	if tag.Type == "" {
		return zero, MissingField(r.component, "type")
	}

	r.mu.RLock()
	d, ok := r.decoders[tag.Type]
	r.mu.RUnlock()
	if !ok {
		return zero, InvalidField(r.component, "type", fmt.Sprintf("unknown type %q", tag.Type))
	}
	return d(raw)
}

// IsEmpty reports whether raw holds no config at all.
func IsEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// DecodeJSON unmarshals raw into v, reporting failures as configuration errors.
func DecodeJSON(component string, raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return InvalidField(component, "", fmt.Sprintf("malformed config: %v", err))
	}
	return nil
}
