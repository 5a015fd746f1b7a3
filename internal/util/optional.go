package util

import (
	"database/sql/driver"
	"encoding/json"
)

// Optional is a nullable value. Unset maps to null in JSON and NULL in SQL,
// both directions.
type Optional[T any] struct {
	Val   T
	IsSet bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Val: v, IsSet: true}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Ptr returns a pointer to the value, nil when unset. Query parameters that
// test ($n IS NULL) take this form.
func (o Optional[T]) Ptr() *T {
	if !o.IsSet {
		return nil
	}
	return &o.Val
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.IsSet {
		return []byte("null"), nil
	}
	return json.Marshal(o.Val)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// Scan reads a nullable column, delegating to T's own scanner when it has
// one.
func (o *Optional[T]) Scan(value any) error {
	if value == nil {
		*o = None[T]()
		return nil
	}
	var v T
	if scanner, ok := any(&v).(interface{ Scan(any) error }); ok {
		if err := scanner.Scan(value); err != nil {
			return err
		}
	} else {
		v = value.(T)
	}
	*o = Some(v)
	return nil
}

// Value writes a nullable parameter, delegating to T's own valuer when it
// has one.
func (o Optional[T]) Value() (driver.Value, error) {
	if !o.IsSet {
		return nil, nil
	}
	if valuer, ok := any(o.Val).(driver.Valuer); ok {
		return valuer.Value()
	}
	return o.Val, nil
}
