package persisted

// Update is either a literal next value or a function of the previous value.
// The zero Update is the literal zero value of T.
type Update[T any] struct {
	value T
	fn    func(T) T
}

// Literal replaces the current value with v.
func Literal[T any](v T) Update[T] {
	return Update[T]{value: v}
}

// Updater computes the next value from whatever is current when the update is
// applied, not from a snapshot the caller read earlier.
func Updater[T any](fn func(prev T) T) Update[T] {
	return Update[T]{fn: fn}
}

// Apply resolves the update against prev.
func (u Update[T]) Apply(prev T) T {
	if u.fn != nil {
		return u.fn(prev)
	}
	return u.value
}

// IsUpdater reports whether u was built with Updater.
func (u Update[T]) IsUpdater() bool {
	return u.fn != nil
}
