package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// RawMetrics is the unmodified body of a Solax response. It keeps the field
// order of the upstream JSON object so normalization runs in payload order.
type RawMetrics struct {
	keys   []string
	values map[string]Value
}

// NewRawMetrics returns an empty RawMetrics.
func NewRawMetrics() RawMetrics {
	return RawMetrics{values: make(map[string]Value)}
}

// Set stores value under key. A key that already exists keeps its position.
func (r *RawMetrics) Set(key string, value Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key.
func (r RawMetrics) Get(key string) (Value, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in payload order.
func (r RawMetrics) Keys() []string {
	return append([]string(nil), r.keys...)
}

func (r RawMetrics) Len() int {
	return len(r.keys)
}

// Each calls fn for every field in payload order.
func (r RawMetrics) Each(fn func(key string, value Value)) {
	for _, k := range r.keys {
		fn(k, r.values[k])
	}
}

// Map returns an unordered copy of the fields.
func (r RawMetrics) Map() map[string]Value {
	m := make(map[string]Value, len(r.keys))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// MarshalJSON writes the fields in payload order.
func (r RawMetrics) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := r.values[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ErrNotObject is returned when decoding RawMetrics from anything but a JSON
// object.
var ErrNotObject = errors.New("json value is not an object")

// UnmarshalJSON decodes a JSON object while remembering key order.
func (r *RawMetrics) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return ErrNotObject
	}
	out := NewRawMetrics()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

// Metrics maps a target metric key to a Bool, Int or Float value.
type Metrics map[string]Value

// SortedKeys returns the metric keys in lexicographic order.
func (m Metrics) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
