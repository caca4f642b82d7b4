package memory

// ring is a fixed-capacity FIFO that overwrites its oldest element when full.
type ring[T any] struct {
	buf  []T
	head int
	size int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	idx := (r.head + r.size) % len(r.buf)
	r.buf[idx] = v
	if r.size < len(r.buf) {
		r.size++
		return
	}
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring[T]) len() int {
	return r.size
}

func (r *ring[T]) at(i int) T {
	return r.buf[(r.head+i)%len(r.buf)]
}

// last returns up to n newest elements, oldest first.
func (r *ring[T]) last(n int) []T {
	if n > r.size {
		n = r.size
	}
	out := make([]T, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.at(i))
	}
	return out
}

// after returns up to n elements, oldest first, starting at the first element
// for which keep reports true. keep must be monotonic over the buffer order.
func (r *ring[T]) after(n int, keep func(T) bool) []T {
	lo, hi := 0, r.size
	for lo < hi {
		mid := (lo + hi) / 2
		if keep(r.at(mid)) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	end := r.size
	if n > 0 && lo+n < end {
		end = lo + n
	}
	out := make([]T, 0, end-lo)
	for i := lo; i < end; i++ {
		out = append(out, r.at(i))
	}
	return out
}
