package pkg

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSpill[T any](t *testing.T) FileSpill[T] {
	t.Helper()

	spill, err := CreateFileSpill[T](filepath.Join(t.TempDir(), "spill.gob"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = spill.Close() })

	return spill
}

func collect[T any](t *testing.T, spill FileSpill[T]) []T {
	t.Helper()

	var items []T
	require.NoError(t, spill.Range(func(_ uint64, item T) error {
		items = append(items, item)
		return nil
	}))

	return items
}

func TestFileSpill(t *testing.T) {
	t.Run("Len returns correct count", func(t *testing.T) {
		spill := newTestSpill[uint64](t)

		require.Equal(t, uint64(0), spill.Len())

		require.NoError(t, spill.Append(0x401000))
		require.Equal(t, uint64(1), spill.Len())

		require.NoError(t, spill.AppendBatch([]uint64{0x401004, 0x401008}))
		require.Equal(t, uint64(3), spill.Len())
	})

	t.Run("Range iterates all items in order", func(t *testing.T) {
		spill := newTestSpill[uint64](t)

		expected := []uint64{0x100, 0x104, 0x108}
		require.NoError(t, spill.AppendBatch(expected))
		require.Equal(t, expected, collect(t, spill))
	})

	t.Run("Range callback error stops iteration", func(t *testing.T) {
		spill := newTestSpill[int](t)
		require.NoError(t, spill.AppendBatch([]int{1, 2, 3}))

		count := 0
		rangeErr := spill.Range(func(index uint64, _ int) error {
			count++
			if index == 1 {
				return errors.New("stop at index 1")
			}
			return nil
		})

		require.Error(t, rangeErr)
		require.Equal(t, 2, count)
	})

	t.Run("Close is idempotent", func(t *testing.T) {
		spill := newTestSpill[int](t)

		require.NoError(t, spill.Close())
		require.NoError(t, spill.Close())
	})
}

func TestCreateAndOpenFileSpill(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "trace.gob")

	spill, err := CreateFileSpill[uint64](path)
	require.NoError(t, err)
	require.Equal(t, path, spill.Path())
	require.NoError(t, spill.AppendBatch([]uint64{0x10, 0x20, math.MaxUint64}))
	require.NoError(t, spill.Close())

	reopened, err := OpenFileSpill[uint64](path)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint64(3), reopened.Len())
	require.Equal(t, []uint64{0x10, 0x20, math.MaxUint64}, collect(t, reopened))

	err = reopened.Append(0x30)
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestOpenFileSpill_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := OpenFileSpill[uint64](filepath.Join(t.TempDir(), "missing.gob"))
		require.Error(t, err)
	})

	t.Run("empty file has no items", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.gob")
		spill, err := CreateFileSpill[uint64](path)
		require.NoError(t, err)
		require.NoError(t, spill.Close())

		reopened, err := OpenFileSpill[uint64](path)
		require.NoError(t, err)
		require.Equal(t, uint64(0), reopened.Len())
	})
}

func TestEdgeCases(t *testing.T) {
	t.Run("empty filespill range returns no items", func(t *testing.T) {
		spill := newTestSpill[int](t)

		called := false
		err := spill.Range(func(_ uint64, _ int) error {
			called = true
			return nil
		})

		require.NoError(t, err)
		require.False(t, called)
	})

	t.Run("append zero values", func(t *testing.T) {
		spill := newTestSpill[uint64](t)

		require.NoError(t, spill.Append(0))
		require.Equal(t, []uint64{0}, collect(t, spill))
	})

	t.Run("range with struct items", func(t *testing.T) {
		type hit struct {
			Address uint64
			Line    uint32
		}

		spill := newTestSpill[hit](t)

		require.NoError(t, spill.Append(hit{Address: 0x100, Line: 2}))
		require.NoError(t, spill.Append(hit{Address: 0x108, Line: 3}))

		require.Equal(t, []hit{{Address: 0x100, Line: 2}, {Address: 0x108, Line: 3}}, collect(t, spill))
	})
}
