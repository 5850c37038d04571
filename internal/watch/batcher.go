package watch

import (
	"context"
	"io"
	"time"
)

// Batcher groups values from a channel. A batch opens with the first value
// and closes window later, collecting everything that arrived meanwhile.
type Batcher[T any] struct {
	src    <-chan T
	window time.Duration
	closed bool
}

// NewBatcher batches src with the given window.
func NewBatcher[T any](src <-chan T, window time.Duration) *Batcher[T] {
	return &Batcher[T]{src: src, window: window}
}

// Next blocks for the next non-empty batch. It returns io.EOF once src is
// closed and drained, and ctx.Err() if ctx ends first.
func (b *Batcher[T]) Next(ctx context.Context) ([]T, error) {
	if b.closed {
		return nil, io.EOF
	}

	var batch []T
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case v, ok := <-b.src:
		if !ok {
			b.closed = true
			return nil, io.EOF
		}
		batch = append(batch, v)
	}

	timer := time.NewTimer(b.window)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return batch, nil
		case v, ok := <-b.src:
			if !ok {
				b.closed = true
				return batch, nil
			}
			batch = append(batch, v)
		}
	}
}
