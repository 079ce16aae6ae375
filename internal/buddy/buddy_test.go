package buddy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, poolSize uint64) *Allocator {
	t.Helper()
	a := &Allocator{}
	Init(a, 0x1000_0000, poolSize, 0xFFFF_8000_0000_0000)
	return a
}

func TestInitRejectsTooSmallPool(t *testing.T) {
	require.Panics(t, func() {
		a := &Allocator{}
		Init(a, 0, BlockSize(MinOrder)-1, 0)
	})
}

func TestInitRejectsZeroPool(t *testing.T) {
	require.Panics(t, func() {
		a := &Allocator{}
		Init(a, 0, 0, 0)
	})
}

func TestAllocSplitsAndReturnsDistinctAddresses(t *testing.T) {
	a := newTestAllocator(t, 16*1024*1024)

	p1 := a.Alloc(BlockSize(MinOrder))
	p2 := a.Alloc(BlockSize(MinOrder))
	require.NotZero(t, p1)
	require.NotZero(t, p2)
	require.NotEqual(t, p1, p2)
}

func TestAllocConservationAfterFree(t *testing.T) {
	a := newTestAllocator(t, 16*1024*1024)
	before := a.FreeBytes()

	addrs := make([]uint64, 0, 8)
	for i := 0; i < 8; i++ {
		addr := a.Alloc(BlockSize(MinOrder))
		require.NotZero(t, addr)
		addrs = append(addrs, addr)
	}
	for _, addr := range addrs {
		a.Free(addr, MinOrder)
	}

	require.Equal(t, before, a.FreeBytes())
}

func TestAllocZeroSizeReturnsNull(t *testing.T) {
	a := newTestAllocator(t, 16*1024*1024)
	require.Zero(t, a.Alloc(0))
}

func TestAllocOversizedRequestReturnsNull(t *testing.T) {
	a := newTestAllocator(t, 16*1024*1024)
	require.Zero(t, a.Alloc(a.TotalBytes()*2))
}

func TestFreeMergesBuddiesBackToMaxOrder(t *testing.T) {
	a := newTestAllocator(t, 16*1024*1024)
	total := a.TotalBytes()

	addr := a.Alloc(BlockSize(MinOrder))
	require.NotZero(t, addr)
	a.Free(addr, MinOrder)

	require.Equal(t, total, a.FreeBytes())
}

func TestNoOverlapBetweenConcurrentAllocations(t *testing.T) {
	a := newTestAllocator(t, 16*1024*1024)

	size := BlockSize(MinOrder)
	seen := map[uint64]bool{}
	for i := 0; i < 32; i++ {
		addr := a.Alloc(size)
		require.NotZero(t, addr)
		require.False(t, seen[addr], "address %d allocated twice", addr)
		seen[addr] = true
	}
}
