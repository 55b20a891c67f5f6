package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopFIFOOrder(t *testing.T) {
	q := NewQueue(8)
	for i := byte(0); i < 5; i++ {
		require.NoError(t, q.Push(i))
	}
	for i := byte(0); i < 5; i++ {
		b, err := q.Pop()
		require.NoError(t, err)
		assert.Equal(t, i, b)
	}
}

func TestPopEmptyFails(t *testing.T) {
	q := NewQueue(4)
	_, err := q.Pop()
	require.Error(t, err)
}

func TestOverflowIsSticky(t *testing.T) {
	q := NewQueue(4)
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Push(byte(i)))
	}
	require.Error(t, q.Push(0xFF))
	assert.True(t, q.Overflowed())

	_, err := q.Pop()
	require.NoError(t, err)
	assert.True(t, q.Overflowed(), "overflow must stay set until Reset even after draining")

	q.Reset()
	assert.False(t, q.Overflowed())
}

func TestNonPowerOfTwoCapacityRoundsUp(t *testing.T) {
	q := NewQueue(100)
	assert.Equal(t, 128, q.Cap())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	q := NewQueue(64)
	const total = 10000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			for q.Push(byte(i)) != nil {
			}
		}
	}()

	received := 0
	go func() {
		defer wg.Done()
		for received < total {
			if _, err := q.Pop(); err == nil {
				received++
			}
		}
	}()

	wg.Wait()
	assert.Equal(t, total, received)
}
