package fat32

import (
	"encoding/binary"

	"github.com/novariaos/novariaos-src/internal/vfs"
)

const (
	fatEntryMask = 0x0FFFFFFF
	fatBadEntry  = 0x0FFFFFF7
	fatEOCMin    = 0x0FFFFFF8
	fatFreeEntry = 0
)

// ClusterToSector mirrors cluster_to_sector: c=0/1 are reserved, the data
// region starts at cluster 2.
func (fs *FS) ClusterToSector(cluster uint32) uint32 {
	return fs.DataStartSector + (cluster-2)*fs.SectorsPerCluster
}

func (fs *FS) validCluster(cluster uint32) bool {
	return cluster >= 2 && cluster < fs.TotalClusters+2
}

// ReadFATEntry loads the 32-bit little-endian FAT entry for cluster,
// masked to the low 28 bits.
func (fs *FS) ReadFATEntry(cluster uint32) (uint32, vfs.Errno) {
	fatOffset := cluster * 4
	sector := fs.ReservedSectors + fatOffset/fs.BytesPerSector
	offsetInSector := fatOffset % fs.BytesPerSector

	buf := make([]byte, fs.BytesPerSector)
	if errno := fs.readSector(sector, buf); errno != vfs.OK {
		return 0, errno
	}
	raw := binary.LittleEndian.Uint32(buf[offsetInSector : offsetInSector+4])
	return raw & fatEntryMask, vfs.OK
}

// WriteFATEntry writes value (masked to 28 bits) into every FAT copy,
// preserving each copy's upper 4 bits, per the spec's write-fan-out rule.
// Unused by any read-only VFS op but kept for AllocateCluster / future
// write support.
func (fs *FS) WriteFATEntry(cluster, value uint32) vfs.Errno {
	fatOffset := cluster * 4
	sectorInFAT := fatOffset / fs.BytesPerSector
	offsetInSector := fatOffset % fs.BytesPerSector

	for fatIdx := uint32(0); fatIdx < fs.NumFATs; fatIdx++ {
		sector := fs.ReservedSectors + fatIdx*fs.FATSize + sectorInFAT

		buf := make([]byte, fs.BytesPerSector)
		if errno := fs.readSector(sector, buf); errno != vfs.OK {
			return errno
		}
		raw := binary.LittleEndian.Uint32(buf[offsetInSector : offsetInSector+4])
		raw = (raw &^ fatEntryMask) | (value & fatEntryMask)
		binary.LittleEndian.PutUint32(buf[offsetInSector:offsetInSector+4], raw)

		if errno := fs.dev.WriteBlocks(uint64(sector), 1, buf); errno != vfs.OK {
			return errno
		}
	}
	return vfs.OK
}

func isEndOfChain(entry uint32) bool {
	return entry == fatBadEntry || entry >= fatEOCMin
}

// ReadChain follows a cluster chain from start, bounded by TotalClusters
// iterations so a corrupted FAT cannot cause an infinite walk.
func (fs *FS) ReadChain(start uint32) ([]uint32, vfs.Errno) {
	if !fs.validCluster(start) {
		return nil, vfs.EINVAL
	}

	var clusters []uint32
	cur := start
	for i := uint32(0); i < fs.TotalClusters; i++ {
		clusters = append(clusters, cur)

		next, errno := fs.ReadFATEntry(cur)
		if errno != vfs.OK {
			return nil, errno
		}
		if isEndOfChain(next) || !fs.validCluster(next) {
			return clusters, vfs.OK
		}
		cur = next
	}
	return clusters, vfs.OK
}

// ReadCluster reads the full contents of one cluster into a freshly
// allocated buffer.
func (fs *FS) ReadCluster(cluster uint32) ([]byte, vfs.Errno) {
	buf := make([]byte, fs.BytesPerCluster)
	sector := fs.ClusterToSector(cluster)
	for i := uint32(0); i < fs.SectorsPerCluster; i++ {
		if errno := fs.readSector(sector+i, buf[i*fs.BytesPerSector:(i+1)*fs.BytesPerSector]); errno != vfs.OK {
			return nil, errno
		}
	}
	return buf, vfs.OK
}

// AllocateCluster performs the linear free-entry scan from cluster 2 and
// marks it end-of-chain. Not reachable from any VFS op (writes to FAT32
// are a non-goal) but grounded on fat32.c's described algorithm and
// exercised directly by tests.
func (fs *FS) AllocateCluster() (uint32, vfs.Errno) {
	for c := uint32(2); c < fs.TotalClusters+2; c++ {
		entry, errno := fs.ReadFATEntry(c)
		if errno != vfs.OK {
			return 0, errno
		}
		if entry == fatFreeEntry {
			if errno := fs.WriteFATEntry(c, fatEOCMin); errno != vfs.OK {
				return 0, errno
			}
			return c, vfs.OK
		}
	}
	return 0, vfs.ENOSPC
}

// ExtendChain writes newCluster's number into last's entry, making
// newCluster the chain's new tail.
func (fs *FS) ExtendChain(last, newCluster uint32) vfs.Errno {
	return fs.WriteFATEntry(last, newCluster)
}
