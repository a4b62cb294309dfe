package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSliceQueue(t *testing.T) {
	require := require.New(t)

	t.Run("EnqueueDequeue", func(t *testing.T) {
		q := NewSliceQueue[int](4)
		require.True(q.IsEmpty())
		require.Equal(0, q.Length())

		q.Enqueue(1)
		q.Enqueue(2)
		q.Enqueue(3)
		require.False(q.IsEmpty())
		require.Equal(3, q.Length())

		item, ok := q.Dequeue()
		require.True(ok)
		require.Equal(1, item)

		item, ok = q.Dequeue()
		require.True(ok)
		require.Equal(2, item)

		item, ok = q.Dequeue()
		require.True(ok)
		require.Equal(3, item)

		require.True(q.IsEmpty())
	})

	t.Run("DequeueEmpty", func(t *testing.T) {
		q := NewSliceQueue[string](0)

		item, ok := q.Dequeue()
		require.False(ok)
		require.Empty(item)
	})

	t.Run("Peek", func(t *testing.T) {
		q := NewSliceQueue[int](4)

		_, ok := q.Peek()
		require.False(ok)

		q.Enqueue(42)
		item, ok := q.Peek()
		require.True(ok)
		require.Equal(42, item)
		require.Equal(1, q.Length())
	})

	t.Run("Reset", func(t *testing.T) {
		q := NewSliceQueue[int](4)
		q.Enqueue(1)
		q.Enqueue(2)

		q.Reset()
		require.True(q.IsEmpty())

		q.Enqueue(3)
		item, ok := q.Dequeue()
		require.True(ok)
		require.Equal(3, item)
	})

	t.Run("PointerItemsReleased", func(t *testing.T) {
		q := NewSliceQueue[*int](1)
		v := 7
		q.Enqueue(&v)

		item, ok := q.Dequeue()
		require.True(ok)
		require.Equal(&v, item)

		item, ok = q.Dequeue()
		require.False(ok)
		require.Nil(item)
	})
}
