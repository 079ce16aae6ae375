// Package buddy implements the physical-memory buddy allocator: a
// contiguous region carved from the largest usable memory-map entry, split
// on demand and eagerly merged on free, tracked by one bit-per-block bitmap
// per order.
package buddy

import (
	"github.com/novariaos/novariaos-src/internal/ioport"
	"github.com/novariaos/novariaos-src/internal/klog"
)

const (
	MinOrder = 12 // 4 KiB
	MaxOrder = 28 // 256 MiB
)

// BlockSize returns 1<<order, the byte size of a block at order.
func BlockSize(order uint32) uint64 {
	return uint64(1) << order
}

// Allocator is the Go counterpart of buddy_allocator_t. Addresses handed
// out by Alloc are absolute (Base plus the block's offset); At maps such an
// address to its slice of Mem — there is no raw physical memory in a
// hosted Go process, so Mem is the simulated pool.
type Allocator struct {
	lock ioport.Spinlock

	Base       uint64
	PoolSize   uint64 // usable size, after bitmap storage is carved from the tail
	HHDMOffset uint64
	Mem        []byte // backing storage for [Base, Base+PoolSize); len == PoolSize

	maxBlocks [MaxOrder + 1]uint64
	freeBits  [MaxOrder + 1][]uint32 // one bit per block; 1 = allocated/nonexistent, 0 = free
	freeCount [MaxOrder + 1]uint64
}

func bitmapWords(blocks uint64) uint64 {
	return (blocks + 31) / 32
}

func testBit(bm []uint32, i uint64) bool {
	return bm[i/32]&(1<<(i%32)) != 0
}

func setBit(bm []uint32, i uint64) {
	bm[i/32] |= 1 << (i % 32)
}

func clearBit(bm []uint32, i uint64) {
	bm[i/32] &^= 1 << (i % 32)
}

func findFirstFree(bm []uint32, max uint64) (uint64, bool) {
	for i := uint64(0); i < max; i++ {
		if !testBit(bm, i) {
			return i, true
		}
	}
	return 0, false
}

// Init mirrors buddy_init exactly: bitmap sizes are computed from the raw
// pool size, carved off the tail, all bits start allocated, and only the
// maximal-order blocks that fit in what remains are marked free.
func Init(a *Allocator, base uint64, poolSize uint64, hhdmOffset uint64) {
	if poolSize == 0 {
		klog.Panic("Buddy allocator initialization failed: zero pool_size")
	}
	if poolSize < BlockSize(MinOrder) {
		klog.Panic("Buddy allocator initialization failed: pool too small")
	}

	a.lock.Init()
	a.lock.Acquire()
	defer a.lock.Release()

	a.Base = base
	a.HHDMOffset = hhdmOffset
	size := poolSize - poolSize%BlockSize(MinOrder)

	prelimMax := make([]uint64, MaxOrder+1)
	var totalBitmapBytes uint64
	for order := uint32(MinOrder); order <= MaxOrder; order++ {
		prelimMax[order] = size / BlockSize(order)
		totalBitmapBytes += bitmapWords(prelimMax[order]) * 4
	}

	if size <= totalBitmapBytes {
		klog.Panic("Pool too small for buddy allocator bitmaps")
	}
	size -= totalBitmapBytes

	for order := uint32(MinOrder); order <= MaxOrder; order++ {
		a.maxBlocks[order] = size / BlockSize(order)
		words := bitmapWords(a.maxBlocks[order])
		bm := make([]uint32, words)
		for i := range bm {
			bm[i] = 0xFFFFFFFF
		}
		a.freeBits[order] = bm
		a.freeCount[order] = 0
	}

	maxOrder := uint32(MaxOrder)
	for maxOrder > MinOrder && a.maxBlocks[maxOrder] == 0 {
		maxOrder--
	}
	if a.maxBlocks[maxOrder] == 0 {
		klog.Panic("No suitable order found for buddy allocator")
	}

	blockSize := BlockSize(maxOrder)
	if size%blockSize != 0 {
		size = (size / blockSize) * blockSize
		a.maxBlocks[maxOrder] = size / blockSize
	}
	for i := uint64(0); i < a.maxBlocks[maxOrder]; i++ {
		clearBit(a.freeBits[maxOrder], i)
		a.freeCount[maxOrder]++
	}

	a.PoolSize = size
	a.Mem = make([]byte, size)
}

func minimumOrder(size uint64) uint32 {
	order := uint32(MinOrder)
	blockSize := BlockSize(order)
	for blockSize < size && order < MaxOrder {
		order++
		blockSize <<= 1
	}
	return order
}

// Alloc requests a block sized at least n bytes, returning its address
// (Base plus the block's offset) or 0 ("null") on exhaustion or an
// oversized request.
func (a *Allocator) Alloc(n uint64) uint64 {
	if n == 0 || n > a.PoolSize {
		return 0
	}
	a.lock.Acquire()
	defer a.lock.Release()
	order := minimumOrder(n)
	idx, ok := a.allocBlock(order)
	if !ok {
		return 0
	}
	return a.Base + idx*BlockSize(order)
}

// allocBlock mirrors alloc_block: take an existing free block of order, or
// recurse upward and split a coarser one, always handing back the left
// half unless it falls outside bounds.
func (a *Allocator) allocBlock(order uint32) (uint64, bool) {
	if order > MaxOrder {
		return 0, false
	}
	if a.freeCount[order] == 0 {
		largerIdx, ok := a.allocBlock(order + 1)
		if !ok {
			return 0, false
		}
		a.splitBlock(order+1, largerIdx)

		leftIdx := largerIdx * 2
		rightIdx := largerIdx*2 + 1
		chosen := leftIdx
		if chosen >= a.maxBlocks[order] {
			if rightIdx >= a.maxBlocks[order] {
				return largerIdx, true
			}
			chosen = rightIdx
		}
		setBit(a.freeBits[order], chosen)
		a.freeCount[order]--
		return chosen, true
	}

	idx, ok := findFirstFree(a.freeBits[order], a.maxBlocks[order])
	if !ok {
		return 0, false
	}
	setBit(a.freeBits[order], idx)
	a.freeCount[order]--
	return idx, true
}

func (a *Allocator) splitBlock(order uint32, index uint64) {
	newOrder := order - 1
	left := index * 2
	right := index*2 + 1
	if left >= a.maxBlocks[newOrder] || right >= a.maxBlocks[newOrder] {
		klog.Error("split_block: invalid indices for new order %d: left=%d right=%d max=%d", newOrder, left, right, a.maxBlocks[newOrder])
		return
	}
	clearBit(a.freeBits[newOrder], left)
	clearBit(a.freeBits[newOrder], right)
	a.freeCount[newOrder] += 2
}

func (a *Allocator) isValidBlock(addr uint64, order uint32) bool {
	if addr < a.Base || addr >= a.Base+a.PoolSize {
		return false
	}
	return (addr-a.Base)%BlockSize(order) == 0
}

func (a *Allocator) blockIndex(addr uint64, order uint32) uint64 {
	return (addr - a.Base) / BlockSize(order)
}

func (a *Allocator) buddyAddress(addr uint64, order uint32) uint64 {
	offset := addr - a.Base
	return a.Base + (offset ^ BlockSize(order))
}

// Free returns a block to the allocator, eagerly merging with its buddy at
// every order where the buddy is also free. An invalid pointer, order, or
// misaligned address is logged and ignored rather than corrupting state.
func (a *Allocator) Free(addr uint64, order uint32) {
	if addr == 0 {
		return
	}
	if order < MinOrder || order > MaxOrder {
		klog.Error("buddy_free: invalid order %d", order)
		return
	}
	if !a.isValidBlock(addr, order) {
		klog.Error("buddy_free: invalid block addr=%d order=%d", addr, order)
		return
	}

	a.lock.Acquire()
	defer a.lock.Release()

	index := a.blockIndex(addr, order)
	clearBit(a.freeBits[order], index)
	a.freeCount[order]++

	curAddr := addr
	curOrder := order
	for curOrder < MaxOrder {
		buddyAddr := a.buddyAddress(curAddr, curOrder)
		if !a.isValidBlock(buddyAddr, curOrder) {
			break
		}
		buddyIdx := a.blockIndex(buddyAddr, curOrder)
		if testBit(a.freeBits[curOrder], buddyIdx) {
			break
		}

		setBit(a.freeBits[curOrder], index)
		setBit(a.freeBits[curOrder], buddyIdx)
		a.freeCount[curOrder] -= 2

		mergedAddr := curAddr
		if buddyAddr < curAddr {
			mergedAddr = buddyAddr
		}
		mergedIdx := a.blockIndex(mergedAddr, curOrder+1)
		if mergedIdx >= a.maxBlocks[curOrder+1] {
			break
		}
		clearBit(a.freeBits[curOrder+1], mergedIdx)
		a.freeCount[curOrder+1]++

		curAddr = mergedAddr
		curOrder++
		index = mergedIdx
	}
}

// FreeBytes sums free_area_size[order] * block_size(order) across all orders.
func (a *Allocator) FreeBytes() uint64 {
	a.lock.Acquire()
	defer a.lock.Release()
	var total uint64
	for order := uint32(MinOrder); order <= MaxOrder; order++ {
		total += a.freeCount[order] * BlockSize(order)
	}
	return total
}

// TotalBytes returns the usable pool size after bitmap carve-out.
func (a *Allocator) TotalBytes() uint64 {
	return a.PoolSize
}

// At returns a slice over the block's backing storage, for callers (kalloc)
// that need to read or write through the allocation.
func (a *Allocator) At(addr uint64, length uint64) []byte {
	off := addr - a.Base
	return a.Mem[off : off+length]
}
