// Package blockdev is the named registry of block devices and their
// read_blocks/write_blocks vtables.
package blockdev

import (
	"github.com/novariaos/novariaos-src/internal/ioport"
	"github.com/novariaos/novariaos-src/internal/vfs"
)

const MaxDevices = 16

// Ops is the driver vtable. ReadOnly devices reject WriteBlocks with EROFS;
// drivers enforce this themselves, matching the original's convention of
// having the driver (not the registry) own the policy.
type Ops interface {
	ReadBlocks(lba, count uint64, buf []byte) vfs.Errno
	WriteBlocks(lba, count uint64, buf []byte) vfs.Errno
}

// Device is one registered block device.
type Device struct {
	Name        string
	BlockSize   uint32
	TotalBlocks uint64
	Ops         Ops
}

type slot struct {
	used bool
	dev  Device
}

// Registry is the fixed-capacity block device table.
type Registry struct {
	lock  ioport.Spinlock
	slots [MaxDevices]slot
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.lock.Init()
	return r
}

// Register fills the first free slot. It returns EEXIST if the name is
// already registered and ENOSPC if the table is full.
func (r *Registry) Register(name string, blockSize uint32, totalBlocks uint64, ops Ops) vfs.Errno {
	r.lock.Acquire()
	defer r.lock.Release()

	for i := range r.slots {
		if r.slots[i].used && r.slots[i].dev.Name == name {
			return vfs.EEXIST
		}
	}
	for i := range r.slots {
		if !r.slots[i].used {
			r.slots[i] = slot{used: true, dev: Device{Name: name, BlockSize: blockSize, TotalBlocks: totalBlocks, Ops: ops}}
			return vfs.OK
		}
	}
	return vfs.ENOSPC
}

// Find is a linear lookup by name.
func (r *Registry) Find(name string) (*Device, bool) {
	r.lock.Acquire()
	defer r.lock.Release()
	for i := range r.slots {
		if r.slots[i].used && r.slots[i].dev.Name == name {
			return &r.slots[i].dev, true
		}
	}
	return nil, false
}

// List returns every registered device, for the VFS shim's `/dev/<name>`
// installation pass.
func (r *Registry) List() []Device {
	r.lock.Acquire()
	defer r.lock.Release()
	out := make([]Device, 0, MaxDevices)
	for i := range r.slots {
		if r.slots[i].used {
			out = append(out, r.slots[i].dev)
		}
	}
	return out
}
