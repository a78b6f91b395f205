package static

import "sync"

// Once holds a value that is computed at most one time, by whichever
// caller gets to it first.
type Once[T any] struct {
	creator func() (T, error)

	once  sync.Once
	value T
	err   error
}

func CreateOnce[T any](creator func() (T, error)) *Once[T] {
	return &Once[T]{creator: creator}
}

func (o *Once[T]) GetValue() (T, error) {
	o.once.Do(func() {
		o.value, o.err = o.creator()
	})

	return o.value, o.err
}
