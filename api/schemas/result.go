package schemas

// Result is the tagged outcome every provider adapter returns. A provider
// either found something (Present) or did not, in which case Reason says why
// ("no match", "timed out", "http 500", ...). Adapters never surface Go errors
// to the collection layer; they fold them into an Absent result.
type Result[T any] struct {
	Value   T      `json:"value"`
	Present bool   `json:"present"`
	Reason  string `json:"reason,omitempty"`
}

// Found wraps a successful lookup.
func Found[T any](v T) Result[T] {
	return Result[T]{Value: v, Present: true}
}

// Absent records a lookup that produced nothing usable.
func Absent[T any](reason string) Result[T] {
	return Result[T]{Present: false, Reason: reason}
}

// Get returns the value and whether it is present.
func (r Result[T]) Get() (T, bool) {
	return r.Value, r.Present
}

// OrZero returns the value if present, otherwise the zero value of T.
func (r Result[T]) OrZero() T {
	if r.Present {
		return r.Value
	}
	var zero T
	return zero
}
