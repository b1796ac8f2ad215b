package codec

import "fmt"

// Optional holds a payload field that may be missing.
// The zero value is missing.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// Missing returns an absent Optional.
func Missing[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it was present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsMissing reports whether the field was absent from the payload.
func (o Optional[T]) IsMissing() bool {
	return !o.ok
}

// OrElse returns the value, or def when missing.
func (o Optional[T]) OrElse(def T) T {
	if !o.ok {
		return def
	}
	return o.value
}

func (o Optional[T]) String() string {
	if !o.ok {
		return "missing"
	}
	return fmt.Sprint(o.value)
}
