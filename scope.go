package asyncarray

// Scoped calls fn with b and releases b when fn returns or panics.
//
//	err := asyncarray.Scoped(asyncarray.New(src, opts...), func(b *asyncarray.Buffer[float64]) error {
//	    return launch(b.Data())
//	})
func Scoped[T any](b *Buffer[T], fn func(*Buffer[T]) error) error {
	defer b.Release()
	return fn(b)
}
