// Package fat32 is a read-only FAT32 reader: BPB parsing, FAT entry
// pack/unpack, cluster-chain traversal, 8.3 + LFN directory parsing, and
// path resolution, mounted over a blockdev.Device through the VFS mount
// abstraction. Grounded on fat32.c/fat32.h, with naming and the
// sector-window idiom borrowed from the pack's soypat/fat port (lba type,
// a disk-access "window" scratch buffer, BlockDevice as a narrow seam).
package fat32

import (
	"encoding/binary"
	"errors"

	"github.com/novariaos/novariaos-src/internal/vfs"
)

const bootSignature = 0xAA55

// BPB is the subset of the FAT32 BIOS Parameter Block this reader needs,
// decoded from the first sector.
type BPB struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	FATSize32         uint32
	RootCluster       uint32
	TotalSectors16    uint16
	TotalSectors32    uint32
	VolumeLabel       string
	FSType            string
	Signature         uint16
}

var errBadSignature = errors.New("fat32: invalid boot signature")

// ParseBPB decodes a raw boot sector. Field offsets follow the packed
// fat32_bpb_t layout exactly.
func ParseBPB(sector []byte) (*BPB, error) {
	if len(sector) < 512 {
		return nil, errors.New("fat32: boot sector shorter than 512 bytes")
	}

	b := &BPB{
		BytesPerSector:    binary.LittleEndian.Uint16(sector[11:13]),
		SectorsPerCluster: sector[13],
		ReservedSectors:   binary.LittleEndian.Uint16(sector[14:16]),
		NumFATs:           sector[16],
		TotalSectors16:    binary.LittleEndian.Uint16(sector[19:21]),
		FATSize32:         binary.LittleEndian.Uint32(sector[36:40]),
		RootCluster:       binary.LittleEndian.Uint32(sector[44:48]),
		TotalSectors32:    binary.LittleEndian.Uint32(sector[32:36]),
		VolumeLabel:       trimPadded(sector[71:82]),
		FSType:            trimPadded(sector[82:90]),
		Signature:         binary.LittleEndian.Uint16(sector[510:512]),
	}
	if b.Signature != bootSignature {
		return nil, errBadSignature
	}
	return b, nil
}

func trimPadded(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return string(b[:end])
}

// FS is the mounted FAT32 volume state (fat32_fs_t), plus the block device
// it reads through.
type FS struct {
	dev BlockReader

	BytesPerSector    uint32
	SectorsPerCluster uint32
	BytesPerCluster   uint32
	ReservedSectors   uint32
	NumFATs           uint32
	FATSize           uint32
	RootCluster       uint32
	TotalSectors      uint32
	DataStartSector   uint32
	TotalClusters     uint32
}

// BlockReader is the narrow seam onto a block device this package needs;
// satisfied directly by blockdev.Device's embedded Ops.
type BlockReader interface {
	ReadBlocks(lba, count uint64, buf []byte) vfs.Errno
	WriteBlocks(lba, count uint64, buf []byte) vfs.Errno
}

const minFAT32Clusters = 65525

// newFS computes the derived layout fields from a validated BPB, matching
// fat32_mount's arithmetic exactly (including its total_sectors fallback
// between the 16- and 32-bit fields).
func newFS(dev BlockReader, bpb *BPB) (*FS, error) {
	fs := &FS{
		dev:               dev,
		BytesPerSector:    uint32(bpb.BytesPerSector),
		SectorsPerCluster: uint32(bpb.SectorsPerCluster),
		ReservedSectors:   uint32(bpb.ReservedSectors),
		NumFATs:           uint32(bpb.NumFATs),
		FATSize:           bpb.FATSize32,
		RootCluster:       bpb.RootCluster,
	}
	fs.BytesPerCluster = fs.BytesPerSector * fs.SectorsPerCluster

	if bpb.TotalSectors16 != 0 {
		fs.TotalSectors = uint32(bpb.TotalSectors16)
	} else {
		fs.TotalSectors = bpb.TotalSectors32
	}

	fs.DataStartSector = fs.ReservedSectors + fs.NumFATs*fs.FATSize
	dataSectors := fs.TotalSectors - fs.DataStartSector
	if fs.SectorsPerCluster == 0 {
		return nil, errors.New("fat32: sectors per cluster is zero")
	}
	fs.TotalClusters = dataSectors / fs.SectorsPerCluster

	if fs.TotalClusters < minFAT32Clusters {
		return nil, errors.New("fat32: too few clusters for FAT32")
	}
	return fs, nil
}

func (fs *FS) readSector(sector uint32, buf []byte) vfs.Errno {
	return fs.dev.ReadBlocks(uint64(sector), 1, buf)
}
