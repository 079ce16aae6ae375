// Package kalloc is the thin header-tagged allocator above buddy: every
// allocation is preceded by a header recording the order it was carved at,
// a magic guard word, and the caller's requested size.
package kalloc

import (
	"encoding/binary"

	"github.com/dustin/go-humanize"

	"github.com/novariaos/novariaos-src/internal/buddy"
	"github.com/novariaos/novariaos-src/internal/ioport"
	"github.com/novariaos/novariaos-src/internal/klog"
)

const magic uint32 = 0xA110C123

// headerSize is encoding/binary.Size of {order u32, magic u32, userSize u64}.
const headerSize = 4 + 4 + 8

// Heap wraps a buddy.Allocator with the kmalloc/kfree accounting layer.
type Heap struct {
	lock ioport.Spinlock

	buddy *buddy.Allocator

	AllocatedBytes uint64
	AllocCount     uint64
	FreeCount      uint64
}

func NewHeap(b *buddy.Allocator) *Heap {
	h := &Heap{buddy: b}
	h.lock.Init()
	return h
}

func putHeader(buf []byte, order uint32, userSize uint64) {
	binary.LittleEndian.PutUint32(buf[0:4], order)
	binary.LittleEndian.PutUint32(buf[4:8], magic)
	binary.LittleEndian.PutUint64(buf[8:16], userSize)
}

func getHeader(buf []byte) (order uint32, gotMagic uint32, userSize uint64) {
	order = binary.LittleEndian.Uint32(buf[0:4])
	gotMagic = binary.LittleEndian.Uint32(buf[4:8])
	userSize = binary.LittleEndian.Uint64(buf[8:16])
	return
}

// Kmalloc requests n+headerSize from the buddy allocator, writes the
// header, and returns the payload address (0 == null on exhaustion).
func (h *Heap) Kmalloc(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	h.lock.Acquire()
	defer h.lock.Release()

	total := n + headerSize
	addr := h.buddy.Alloc(total)
	if addr == 0 {
		return 0
	}
	order := orderFor(total)
	hdr := h.buddy.At(addr, headerSize)
	putHeader(hdr, order, n)

	h.AllocatedBytes += n
	h.AllocCount++
	return addr + headerSize
}

// Kfree subtracts the header, verifies the magic and order range, and
// returns the block to the buddy allocator. A corrupted header panics,
// matching the original's "Invalid free" fatal path.
func (h *Heap) Kfree(ptr uint64) {
	if ptr == 0 {
		return
	}
	h.lock.Acquire()
	defer h.lock.Release()

	addr := ptr - headerSize
	hdr := h.buddy.At(addr, headerSize)
	order, gotMagic, userSize := getHeader(hdr)

	if gotMagic != magic {
		klog.Panic("Invalid free: corrupted allocation info")
	}
	if order < buddy.MinOrder || order > buddy.MaxOrder {
		klog.Panic("Invalid free: invalid order in allocation info")
	}

	h.buddy.Free(addr, order)
	h.AllocatedBytes -= userSize
	h.FreeCount++
}

// CheckLeaks reports whether every Kmalloc has been matched by a Kfree, the
// Go counterpart of check_memory_leaks.
func (h *Heap) CheckLeaks() bool {
	return h.AllocCount == h.FreeCount
}

// FormatSize renders a byte count the way the boot log and leak report do,
// using go-humanize in place of the original's hand-rolled KB/MB/GB switch.
func FormatSize(n uint64) string {
	return humanize.IBytes(n)
}

func orderFor(size uint64) uint32 {
	order := uint32(buddy.MinOrder)
	blockSize := buddy.BlockSize(order)
	for blockSize < size && order < buddy.MaxOrder {
		order++
		blockSize <<= 1
	}
	return order
}
