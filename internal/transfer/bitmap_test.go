package transfer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitmapBasics(t *testing.T) {
	b := NewBitmap(10)
	require.Equal(t, uint64(10), b.Len())

	require.True(t, b.Set(0))
	require.True(t, b.Set(3))
	require.True(t, b.Set(9))
	require.False(t, b.Set(3), "repeated Set reports an existing bit")
	require.False(t, b.Set(10), "out-of-range Set is ignored")

	for _, i := range []uint64{0, 3, 9} {
		require.True(t, b.Get(i), "bit %d", i)
	}
	for _, i := range []uint64{1, 8, 100} {
		require.False(t, b.Get(i), "bit %d", i)
	}
	require.Equal(t, uint64(3), b.CountSet())
	require.False(t, b.Complete())
}

func TestBitmapMissing(t *testing.T) {
	b := NewBitmap(20)
	for i := uint64(0); i < 20; i++ {
		if i != 2 && i != 11 && i != 19 {
			b.Set(i)
		}
	}

	require.Equal(t, []uint64{2, 11, 19}, b.Missing(0))
	require.Equal(t, []uint64{2, 11}, b.Missing(2))

	b.Set(2)
	b.Set(11)
	b.Set(19)
	require.True(t, b.Complete())
	require.Empty(t, b.Missing(0))
}

func TestBitmapEmptyAndNil(t *testing.T) {
	require.True(t, NewBitmap(0).Complete(), "zero-length bitmap is complete")

	var nilMap *Bitmap
	require.Zero(t, nilMap.Len())
	require.Zero(t, nilMap.CountSet())
	require.False(t, nilMap.Get(0))
	require.False(t, nilMap.Set(0))
	require.Nil(t, nilMap.Missing(0))
}
