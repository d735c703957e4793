package latent

import (
	"sync"
)

type pool[T any] struct {
	pool sync.Pool
}

func newPool[T any](fn func() T) *pool[T] {
	return &pool[T]{
		pool: sync.Pool{New: func() any { return fn() }},
	}
}

func (p *pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *pool[T]) Put(x T) {
	p.pool.Put(x)
}

var scratch = newPool(func() *[]float64 { return new([]float64) })

// Borrow returns a zeroed scratch tensor. Hand it back with Release once it is no longer
// referenced so the next iteration can reuse the storage.
func Borrow(shape ...int) *Tensor {
	buf := scratch.Get()
	n := numel(shape)
	if cap(*buf) < n {
		*buf = make([]float64, n)
	}
	data := (*buf)[:n]
	clear(data)
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}
}

func Release(ts ...*Tensor) {
	for _, t := range ts {
		if t == nil {
			continue
		}
		data := t.Data[:0]
		t.Data = nil
		scratch.Put(&data)
	}
}
