package blockdev

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/novariaos/novariaos-src/internal/vfs"
)

// FileDisk mmaps a real disk-image file and exposes it as a block device,
// the host-backed counterpart to MemDisk: cmd/kernel uses it to attach the
// image given with --disk.
type FileDisk struct {
	mem       []byte
	blockSize uint32
	readOnly  bool
}

// OpenFileDisk mmaps path read-write unless readOnly is set.
func OpenFileDisk(path string, blockSize uint32, readOnly bool) (*FileDisk, error) {
	flags := os.O_RDWR
	prot := unix.PROT_READ | unix.PROT_WRITE
	if readOnly {
		flags = os.O_RDONLY
		prot = unix.PROT_READ
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	return &FileDisk{mem: mem, blockSize: blockSize, readOnly: readOnly}, nil
}

func (d *FileDisk) Close() error {
	return unix.Munmap(d.mem)
}

func (d *FileDisk) ReadBlocks(lba, count uint64, buf []byte) vfs.Errno {
	off := lba * uint64(d.blockSize)
	n := count * uint64(d.blockSize)
	if off+n > uint64(len(d.mem)) {
		return vfs.EIO
	}
	copy(buf, d.mem[off:off+n])
	return vfs.OK
}

func (d *FileDisk) WriteBlocks(lba, count uint64, buf []byte) vfs.Errno {
	if d.readOnly {
		return vfs.EROFS
	}
	off := lba * uint64(d.blockSize)
	n := count * uint64(d.blockSize)
	if off+n > uint64(len(d.mem)) {
		return vfs.EIO
	}
	copy(d.mem[off:off+n], buf[:n])
	return vfs.OK
}
