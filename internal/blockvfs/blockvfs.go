// Package blockvfs is the glue layer between the block device registry and
// the VFS, creating one /dev/<name> pseudo file per registered block
// device: reads translate byte offsets to LBA+offset and truncate at the
// device's end, writes forward to the driver's WriteBlocks (which itself
// rejects read-only devices with EROFS), grounded on block_dev_vfs.c.
package blockvfs

import (
	"github.com/novariaos/novariaos-src/internal/blockdev"
	"github.com/novariaos/novariaos-src/internal/vfs"
)

// Init registers every device currently in the registry as /dev/<name>.
// Unlike the original, which only registered devices present at boot,
// devices may be added later by calling RegisterDevice directly.
func Init(v *vfs.VFS, reg *blockdev.Registry) vfs.Errno {
	for _, dev := range reg.List() {
		if errno := RegisterDevice(v, dev); errno != vfs.OK {
			return errno
		}
	}
	return vfs.OK
}

// RegisterDevice installs a single /dev/<name> pseudo file backed by dev.
func RegisterDevice(v *vfs.VFS, dev blockdev.Device) vfs.Errno {
	d := dev
	read := func(devData interface{}, buf []byte, pos int64) (int, vfs.Errno) {
		return readDevice(&d, buf, pos)
	}
	write := func(devData interface{}, buf []byte, pos int64) (int, vfs.Errno) {
		return writeDevice(&d, buf, pos)
	}
	return v.PseudoRegister("/dev/"+dev.Name, read, write, nil, nil, nil)
}

// readDevice walks one block at a time, copying the overlap between
// [pos, pos+len(buf)) and the device, stopping at the device's total size.
func readDevice(dev *blockdev.Device, buf []byte, pos int64) (int, vfs.Errno) {
	if dev.Ops == nil || dev.BlockSize == 0 {
		return 0, vfs.EINVAL
	}

	totalBytes := int64(dev.TotalBlocks) * int64(dev.BlockSize)
	if pos >= totalBytes {
		return 0, vfs.OK
	}

	totalRead := 0
	remaining := buf
	current := pos

	for len(remaining) > 0 && current < totalBytes {
		lba := uint64(current) / uint64(dev.BlockSize)
		offsetInBlock := uint64(current) % uint64(dev.BlockSize)
		if lba >= dev.TotalBlocks {
			break
		}

		block := make([]byte, dev.BlockSize)
		if errno := dev.Ops.ReadBlocks(lba, 1, block); errno != vfs.OK {
			if totalRead > 0 {
				break
			}
			return 0, errno
		}

		toCopy := uint64(dev.BlockSize) - offsetInBlock
		if toCopy > uint64(len(remaining)) {
			toCopy = uint64(len(remaining))
		}
		if current+int64(toCopy) > totalBytes {
			toCopy = uint64(totalBytes - current)
		}

		n := copy(remaining, block[offsetInBlock:offsetInBlock+toCopy])
		totalRead += n
		current += int64(n)
		remaining = remaining[n:]

		if n == 0 {
			break
		}
	}

	return totalRead, vfs.OK
}

// writeDevice translates the byte range covering buf into whole-block writes via a read-modify-
// write per block, deferring the read-only rejection to the driver.
func writeDevice(dev *blockdev.Device, buf []byte, pos int64) (int, vfs.Errno) {
	if dev.Ops == nil || dev.BlockSize == 0 {
		return 0, vfs.EINVAL
	}

	totalBytes := int64(dev.TotalBlocks) * int64(dev.BlockSize)
	totalWritten := 0
	remaining := buf
	current := pos

	for len(remaining) > 0 && current < totalBytes {
		lba := uint64(current) / uint64(dev.BlockSize)
		offsetInBlock := uint64(current) % uint64(dev.BlockSize)
		if lba >= dev.TotalBlocks {
			break
		}

		block := make([]byte, dev.BlockSize)
		if errno := dev.Ops.ReadBlocks(lba, 1, block); errno != vfs.OK {
			if totalWritten > 0 {
				break
			}
			return 0, errno
		}

		toCopy := uint64(dev.BlockSize) - offsetInBlock
		if toCopy > uint64(len(remaining)) {
			toCopy = uint64(len(remaining))
		}

		n := copy(block[offsetInBlock:offsetInBlock+toCopy], remaining)
		if errno := dev.Ops.WriteBlocks(lba, 1, block); errno != vfs.OK {
			if totalWritten > 0 {
				break
			}
			return 0, errno
		}

		totalWritten += n
		current += int64(n)
		remaining = remaining[n:]
	}

	return totalWritten, vfs.OK
}
