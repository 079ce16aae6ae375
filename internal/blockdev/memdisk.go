package blockdev

import (
	"os"

	"github.com/spf13/afero"

	"github.com/novariaos/novariaos-src/internal/vfs"
)

// MemDisk is a RAM-backed block device whose storage lives in an
// afero.MemMapFs file rather than a bare byte slice, so the same read/write
// path exercised here can be pointed at a real afero.OsFs in integration
// tests without touching driver code.
type MemDisk struct {
	fs        afero.Fs
	path      string
	blockSize uint32
	readOnly  bool
}

func NewMemDisk(blockSize uint32, totalBlocks uint64, readOnly bool) (*MemDisk, error) {
	fs := afero.NewMemMapFs()
	const path = "/disk.img"
	if err := afero.WriteFile(fs, path, make([]byte, blockSize*uint32(totalBlocks)), 0o644); err != nil {
		return nil, err
	}
	return &MemDisk{fs: fs, path: path, blockSize: blockSize, readOnly: readOnly}, nil
}

func (d *MemDisk) ReadBlocks(lba, count uint64, buf []byte) vfs.Errno {
	f, err := d.fs.Open(d.path)
	if err != nil {
		return vfs.EIO
	}
	defer f.Close()

	off := int64(lba) * int64(d.blockSize)
	n := int(count) * int(d.blockSize)
	if n > len(buf) {
		n = len(buf)
	}
	if _, err := f.ReadAt(buf[:n], off); err != nil {
		return vfs.EIO
	}
	return vfs.OK
}

func (d *MemDisk) WriteBlocks(lba, count uint64, buf []byte) vfs.Errno {
	if d.readOnly {
		return vfs.EROFS
	}
	f, err := d.fs.OpenFile(d.path, os.O_RDWR, 0o644)
	if err != nil {
		return vfs.EIO
	}
	defer f.Close()

	off := int64(lba) * int64(d.blockSize)
	n := int(count) * int(d.blockSize)
	if n > len(buf) {
		n = len(buf)
	}
	if _, err := f.WriteAt(buf[:n], off); err != nil {
		return vfs.EIO
	}
	return vfs.OK
}
