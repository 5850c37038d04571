package watch

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatcherGroupsWithinWindow(t *testing.T) {
	src := make(chan int, 10)
	b := NewBatcher(src, 50*time.Millisecond)
	src <- 1
	src <- 2
	src <- 3

	batch, err := b.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, batch)
}

func TestBatcherSplitsAfterWindow(t *testing.T) {
	src := make(chan int)
	b := NewBatcher(src, 20*time.Millisecond)

	go func() {
		src <- 1
		time.Sleep(100 * time.Millisecond)
		src <- 2
	}()

	first, err := b.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, first)

	second, err := b.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, second)
}

func TestBatcherClose(t *testing.T) {
	src := make(chan int, 2)
	b := NewBatcher(src, time.Hour)
	src <- 7
	close(src)

	batch, err := b.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{7}, batch)

	_, err = b.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestBatcherContext(t *testing.T) {
	b := NewBatcher(make(chan int), time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
