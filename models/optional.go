package models

import (
	"bytes"
	"encoding/json"
)

// Optional is a JSON field that remembers whether it was present and
// whether it was an explicit null, so update payloads can tell
// "leave untouched" apart from "clear".
type Optional[T any] struct {
	Present bool
	Null    bool
	Value   T
}

// Some returns a present, non-null Optional.
func Some[T any](v T) Optional[T] { return Optional[T]{Present: true, Value: v} }

// Null returns a present Optional that was explicitly null.
func Null[T any]() Optional[T] { return Optional[T]{Present: true, Null: true} }

// IsSet reports a present, non-null value.
func (o Optional[T]) IsSet() bool { return o.Present && !o.Null }

// Cleared reports an explicit null.
func (o Optional[T]) Cleared() bool { return o.Present && o.Null }

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.IsSet() {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
