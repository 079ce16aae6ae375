// Package vfs is the virtual filesystem core: a legacy flat file table for
// pseudo and in-memory files, plus a mount-based abstraction that dispatches
// to registered filesystem drivers by longest-prefix path match.
package vfs

import (
	"strings"

	"github.com/google/uuid"

	"github.com/novariaos/novariaos-src/internal/ioport"
	"github.com/novariaos/novariaos-src/internal/klog"
)

const (
	MaxFiles         = 1024
	MaxHandles       = 64
	MaxMounts        = 32
	MaxRegisteredFS  = 16
	MaxFilename      = 256
	MaxFileSize      = 1 << 20

	DevNullFD   = 1000
	DevZeroFD   = 1001
	DevFullFD   = 1002
	DevStdinFD  = 1003
	DevStdoutFD = 1004
	DevStderrFD = 1005
)

var reservedFDs = [...]int{DevNullFD, DevZeroFD, DevFullFD, DevStdinFD, DevStdoutFD, DevStderrFD}

func isReservedFD(fd int) bool {
	for _, r := range reservedFDs {
		if fd == r {
			return true
		}
	}
	return false
}

// FileType distinguishes legacy slot kinds.
type FileType int

const (
	TypeFile FileType = iota
	TypeDir
	TypeDevice
)

// ReadFunc/WriteFunc/SeekFunc/IoctlFunc are the legacy pseudo-file
// callbacks, the Go counterpart of vfs_dev_read_t and friends.
type ReadFunc func(devData interface{}, buf []byte, pos int64) (int, Errno)
type WriteFunc func(devData interface{}, buf []byte, pos int64) (int, Errno)
type SeekFunc func(devData interface{}, offset int64, whence int) (int64, Errno)
type IoctlFunc func(devData interface{}, req int, arg uintptr) (int, Errno)

type devOps struct {
	read  ReadFunc
	write WriteFunc
	seek  SeekFunc
	ioctl IoctlFunc
}

// legacyFile is one slot of the flat file table (vfs_file_t).
type legacyFile struct {
	used    bool
	name    string
	typ     FileType
	size    int
	data    []byte
	ops     devOps
	devData interface{}
}

// handle is one slot of the legacy descriptor table (vfs_handle_t).
type handle struct {
	used     bool
	fd       int
	file     *legacyFile
	position int64
	flags    int
}

const (
	FlagRead  = 1
	FlagWrite = 2
)

// Dirent mirrors vfs_dirent_t.
type Dirent struct {
	Name string
	Type FileType
}

// Stat mirrors the VFS stat output.
type Stat struct {
	Size int64
	Type FileType
}

// FSOps is a filesystem driver's vtable (vfs_fs_ops). Drivers that do not
// implement an operation return ENOSYS; there are no null function
// pointers in this port.
type FSOps interface {
	Mount(mnt *Mount, device string, data interface{}) Errno
	Unmount(mnt *Mount) Errno
	Open(mnt *Mount, path string, flags int) (fsPrivate interface{}, errno Errno)
	Close(mnt *Mount, priv interface{}) Errno
	Read(mnt *Mount, priv interface{}, buf []byte, pos int64) (int, Errno)
	Write(mnt *Mount, priv interface{}, buf []byte, pos int64) (int, Errno)
	Seek(mnt *Mount, priv interface{}, offset int64, whence int) (int64, Errno)
	Mkdir(mnt *Mount, path string) Errno
	Rmdir(mnt *Mount, path string) Errno
	Readdir(mnt *Mount, path string) ([]Dirent, Errno)
	Stat(mnt *Mount, path string) (Stat, Errno)
	Unlink(mnt *Mount, path string) Errno
	Ioctl(mnt *Mount, priv interface{}, req int, arg uintptr) (int, Errno)
	Sync(mnt *Mount) Errno
}

// UnsupportedFSOps embeds into a driver to default every operation to
// ENOSYS; drivers override only the operations they implement.
type UnsupportedFSOps struct{}

func (UnsupportedFSOps) Mount(*Mount, string, interface{}) Errno      { return ENOSYS }
func (UnsupportedFSOps) Unmount(*Mount) Errno                          { return ENOSYS }
func (UnsupportedFSOps) Open(*Mount, string, int) (interface{}, Errno) { return nil, ENOSYS }
func (UnsupportedFSOps) Close(*Mount, interface{}) Errno               { return ENOSYS }
func (UnsupportedFSOps) Read(*Mount, interface{}, []byte, int64) (int, Errno) {
	return 0, ENOSYS
}
func (UnsupportedFSOps) Write(*Mount, interface{}, []byte, int64) (int, Errno) {
	return 0, ENOSYS
}
func (UnsupportedFSOps) Seek(*Mount, interface{}, int64, int) (int64, Errno) {
	return 0, ENOSYS
}
func (UnsupportedFSOps) Mkdir(*Mount, string) Errno   { return ENOSYS }
func (UnsupportedFSOps) Rmdir(*Mount, string) Errno   { return ENOSYS }
func (UnsupportedFSOps) Readdir(*Mount, string) ([]Dirent, Errno) {
	return nil, ENOSYS
}
func (UnsupportedFSOps) Stat(*Mount, string) (Stat, Errno) { return Stat{}, ENOSYS }
func (UnsupportedFSOps) Unlink(*Mount, string) Errno       { return ENOSYS }
func (UnsupportedFSOps) Ioctl(*Mount, interface{}, int, uintptr) (int, Errno) {
	return 0, ENOSYS
}
func (UnsupportedFSOps) Sync(*Mount) Errno { return ENOSYS }

// driverEntry is one slot of the registered-filesystem-driver table.
type driverEntry struct {
	registered bool
	name       string
	ops        FSOps
	flags      int
}

const (
	FSReadOnly = 1 << iota
	FSNoDev
	FSVirtual
)

// Mount is one active mount point.
type Mount struct {
	ID         uuid.UUID
	Mounted    bool
	MountPoint string
	FSName     string
	Device     string
	Ops        FSOps
	FSPrivate  interface{}
	RefCount   int
}

// fileHandle is a mount-backed open-file handle (vfs_file_handle_t).
type fileHandle struct {
	used      bool
	fd        int
	mount     *Mount
	privData  interface{}
	flags     int
	position  int64
}

// VFS is the kernel state record threading every VFS table through
// construction, replacing the C original's implicit global singletons.
type VFS struct {
	lock ioport.Spinlock

	files   [MaxFiles]legacyFile
	handles [MaxHandles]handle
	nextFD  int

	drivers [MaxRegisteredFS]driverEntry
	mounts  [MaxMounts]Mount
	mountTree *mountIndex

	fileHandles [MaxHandles]fileHandle
}

// New constructs and initializes the VFS state, mirroring vfs_init: zero
// tables, preoccupy fd 0/1/2, create the standard directory skeleton. The
// caller is responsible for invoking devfs/procfs initialization afterward
// (this package does not import them, to avoid a dependency cycle).
func New() *VFS {
	v := &VFS{nextFD: 3}
	v.lock.Init()
	v.mountTree = newMountIndex()

	v.handles[0] = handle{used: true, fd: 0, flags: FlagRead}
	v.handles[1] = handle{used: true, fd: 1, flags: FlagWrite}
	v.handles[2] = handle{used: true, fd: 2, flags: FlagWrite}

	for _, dir := range []string{"/home", "/tmp", "/var", "/var/log", "/var/cache", "/dev", "/proc"} {
		if errno := v.Mkdir(dir); errno != OK && errno != EEXIST {
			klog.Panicf("vfs: failed to create %s: %v", dir, errno)
		}
	}

	return v
}

func normalize(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func (v *VFS) findLegacyByName(name string) (*legacyFile, int) {
	for i := range v.files {
		if v.files[i].used && v.files[i].name == name {
			return &v.files[i], i
		}
	}
	return nil, -1
}

func (v *VFS) getHandle(fd int) *handle {
	for i := range v.handles {
		if v.handles[i].used && v.handles[i].fd == fd {
			return &v.handles[i]
		}
	}
	return nil
}

func (v *VFS) getFileHandle(fd int) *fileHandle {
	for i := range v.fileHandles {
		if v.fileHandles[i].used && v.fileHandles[i].fd == fd {
			return &v.fileHandles[i]
		}
	}
	return nil
}

// allocateFD mirrors allocate_fd: scan from nextFD to MaxHandles+3, then
// wrap around to 3, skipping the reserved 1000-1005 block and fds already
// in use in either handle table.
func (v *VFS) allocateFD() int {
	inUse := func(fd int) bool {
		return v.getHandle(fd) != nil || v.getFileHandle(fd) != nil
	}

	try := func(lo, hi int) int {
		for i := lo; i < hi; i++ {
			if isReservedFD(i) || inUse(i) {
				continue
			}
			return i
		}
		return -1
	}

	if fd := try(v.nextFD, MaxHandles+3); fd != -1 {
		v.nextFD = fd + 1
		if v.nextFD >= MaxHandles+3 {
			v.nextFD = 3
		}
		return fd
	}
	if fd := try(3, MaxHandles+3); fd != -1 {
		v.nextFD = fd + 1
		return fd
	}
	return -1
}
