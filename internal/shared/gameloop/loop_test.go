package gameloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTasksRunInPostOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := New(16)
	go loop.Run(ctx)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		loop.Post(func() { got = append(got, i) })
	}
	loop.Call(func() {})

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestCallWaitsForCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := New(4)
	go loop.Run(ctx)

	done := false
	loop.Call(func() { done = true })
	assert.True(t, done)
}

func TestRunDrainsQueuedTasksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	loop := New(16)
	ran := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		loop.Post(func() { ran <- struct{}{} })
	}
	cancel()
	loop.Run(ctx)

	assert.Len(t, ran, 4)
}
