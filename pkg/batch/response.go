package batch

// Response is the successful outcome of one batch fetch. Upstreams asked for a
// single key commonly answer with the bare item instead of a one-element list,
// so both shapes are representable.
type Response[T any] struct {
	items  []T
	single bool
}

// Items returns a Response holding a list of items.
func Items[T any](items ...T) Response[T] {
	return Response[T]{items: items}
}

// One returns a Response holding a single bare item.
func One[T any](item T) Response[T] {
	return Response[T]{items: []T{item}, single: true}
}

// Single reports whether the response was a bare item rather than a list.
func (r Response[T]) Single() bool {
	return r.single
}

// Len returns the number of items in the response.
func (r Response[T]) Len() int {
	return len(r.items)
}

// List returns the response as a list, coercing a bare item into a
// one-element list.
func (r Response[T]) List() []T {
	return r.items
}
