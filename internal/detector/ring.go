package detector

// ring is a fixed-capacity FIFO; pushing into a full ring evicts the oldest value.
type ring[T any] struct {
	data []T
	pos  int
	full bool
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{data: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.data[r.pos] = v
	r.pos++
	if r.pos >= len(r.data) {
		r.pos = 0
		r.full = true
	}
}

func (r *ring[T]) len() int {
	if r.full {
		return len(r.data)
	}
	return r.pos
}

func (r *ring[T]) capacity() int { return len(r.data) }

// last returns the most recently pushed value.
func (r *ring[T]) last() (T, bool) {
	var zero T
	if r.len() == 0 {
		return zero, false
	}
	i := r.pos - 1
	if i < 0 {
		i = len(r.data) - 1
	}
	return r.data[i], true
}

// slice returns the contents oldest first.
func (r *ring[T]) slice() []T {
	out := make([]T, r.len())
	if r.full {
		n := copy(out, r.data[r.pos:])
		copy(out[n:], r.data[:r.pos])
	} else {
		copy(out, r.data[:r.pos])
	}
	return out
}

func (r *ring[T]) reset() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.pos = 0
	r.full = false
}
