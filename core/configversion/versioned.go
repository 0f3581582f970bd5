package configversion

// Versioned pairs a value with the version it was read at.
type Versioned[T any] struct {
	Value   T
	Version ConfigVersion
}

// New wraps value with the given version.
func New[T any](value T, version ConfigVersion) Versioned[T] {
	return Versioned[T]{Value: value, Version: version}
}
