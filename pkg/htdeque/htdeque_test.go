package htdeque

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashtableDeque_PushBackPopFrontFIFO(t *testing.T) {
	d := New[int](0)
	require.NoError(t, d.PushBack(1))
	require.NoError(t, d.PushBack(2))
	require.NoError(t, d.PushBack(3))
	require.Equal(t, 3, d.Len())

	k, err := d.PopFront()
	require.NoError(t, err)
	require.Equal(t, 1, k)

	k, err = d.PopFront()
	require.NoError(t, err)
	require.Equal(t, 2, k)

	require.Equal(t, 1, d.Len())
}

func TestHashtableDeque_PushFrontPopBack(t *testing.T) {
	d := New[string](0)
	require.NoError(t, d.PushFront("a"))
	require.NoError(t, d.PushFront("b"))
	require.NoError(t, d.PushFront("c"))

	k, err := d.PopBack()
	require.NoError(t, err)
	require.Equal(t, "a", k)

	k, err = d.PopBack()
	require.NoError(t, err)
	require.Equal(t, "b", k)
}

func TestHashtableDeque_RejectsDuplicatePush(t *testing.T) {
	d := New[int](0)
	require.NoError(t, d.PushBack(5))
	err := d.PushBack(5)
	require.Error(t, err)
	var derr *Error[int]
	require.ErrorAs(t, err, &derr)
	require.Equal(t, AlreadyContains, derr.Kind)

	err = d.PushFront(5)
	require.Error(t, err)
	require.ErrorAs(t, err, &derr)
	require.Equal(t, AlreadyContains, derr.Kind)
}

func TestHashtableDeque_PopEmptyReportsEmpty(t *testing.T) {
	d := New[int](0)
	_, err := d.PopFront()
	require.Error(t, err)
	var derr *Error[int]
	require.ErrorAs(t, err, &derr)
	require.Equal(t, Empty, derr.Kind)

	_, err = d.PopBack()
	require.Error(t, err)
	require.ErrorAs(t, err, &derr)
	require.Equal(t, Empty, derr.Kind)
}

func TestHashtableDeque_RemoveFromMiddle(t *testing.T) {
	d := New[int](0)
	require.NoError(t, d.PushBack(1))
	require.NoError(t, d.PushBack(2))
	require.NoError(t, d.PushBack(3))
	require.NoError(t, d.PushBack(4))

	require.NoError(t, d.Remove(2))
	require.False(t, d.Contains(2))
	require.Equal(t, 3, d.Len())

	// Order should now be 1, 3, 4.
	k, err := d.PopFront()
	require.NoError(t, err)
	require.Equal(t, 1, k)
	k, err = d.PopFront()
	require.NoError(t, err)
	require.Equal(t, 3, k)
	k, err = d.PopFront()
	require.NoError(t, err)
	require.Equal(t, 4, k)
}

func TestHashtableDeque_RemoveHeadAndTail(t *testing.T) {
	d := New[int](0)
	require.NoError(t, d.PushBack(1))
	require.NoError(t, d.PushBack(2))
	require.NoError(t, d.PushBack(3))

	require.NoError(t, d.Remove(1)) // head
	require.NoError(t, d.Remove(3)) // tail

	front, ok := d.Front()
	require.True(t, ok)
	require.Equal(t, 2, front)
	require.Equal(t, 1, d.Len())
}

func TestHashtableDeque_RemoveUnknownKeyReportsNotContained(t *testing.T) {
	d := New[int](0)
	require.NoError(t, d.PushBack(1))

	err := d.Remove(42)
	require.Error(t, err)
	var derr *Error[int]
	require.ErrorAs(t, err, &derr)
	require.Equal(t, NotContained, derr.Kind)
}

func TestHashtableDeque_RemoveLastElementEmptiesDeque(t *testing.T) {
	d := New[int](0)
	require.NoError(t, d.PushBack(7))
	require.NoError(t, d.Remove(7))

	require.Equal(t, 0, d.Len())
	_, ok := d.Front()
	require.False(t, ok)

	_, err := d.PopFront()
	require.Error(t, err)
}

func TestHashtableDeque_ErrorCarriesContext(t *testing.T) {
	d := New[int](0)
	require.NoError(t, d.PushBack(1))
	require.NoError(t, d.PushBack(2))

	err := d.PushBack(1)
	var derr *Error[int]
	require.ErrorAs(t, err, &derr)
	require.Equal(t, 2, derr.Size)
	require.Equal(t, 1, derr.Front)
	require.Equal(t, 2, derr.Back)
	require.Equal(t, 1, derr.Key)
	require.Contains(t, derr.Error(), "already_contains")
}
