package database

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// JSON stores a value of type T in a single JSON column.
type JSON[T any] struct {
	Data T
}

// NewJSON wraps v for storage in a JSON column.
func NewJSON[T any](v T) JSON[T] {
	return JSON[T]{Data: v}
}

// Value implements driver.Valuer.
func (j JSON[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (j *JSON[T]) Scan(src any) error {
	var raw []byte
	switch s := src.(type) {
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	case nil:
		var zero T
		j.Data = zero
		return nil
	default:
		return fmt.Errorf("cannot scan %T into json column", src)
	}

	if err := json.Unmarshal(raw, &j.Data); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	return nil
}

// GormDataType tells gorm to create the column as json.
func (JSON[T]) GormDataType() string {
	return "json"
}

// MarshalJSON encodes the wrapped value only.
func (j JSON[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Data)
}

// UnmarshalJSON decodes into the wrapped value.
func (j *JSON[T]) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &j.Data)
}
