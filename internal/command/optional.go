package command

import (
	"bytes"
	"encoding/json"
)

// Optional carries a value together with whether it was supplied.
//
// The zero Optional is unset. JSON null and an absent field both decode to
// unset, and an unset Optional is skipped by encoding/json when the field is
// tagged omitzero.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an unset Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is set.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether a value was supplied.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// IsZero reports whether o is unset. It lets omitzero drop unset fields.
func (o Optional[T]) IsZero() bool {
	return !o.set
}

// MarshalJSON implements json.Marshaler.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// mapOptional converts a set value with fn and leaves an unset one unset.
func mapOptional[T, U any](o Optional[T], fn func(T) (U, error)) (Optional[U], error) {
	v, ok := o.Get()
	if !ok {
		return None[U](), nil
	}
	u, err := fn(v)
	if err != nil {
		return None[U](), err
	}
	return Some(u), nil
}

// mapSet converts a set value with fn and leaves an unset one unset.
func mapSet[T, U any](o Optional[T], fn func(T) U) Optional[U] {
	if v, ok := o.Get(); ok {
		return Some(fn(v))
	}
	return None[U]()
}
