// Package bootinfo models the three Limine-style boot responses spec.md §6
// treats as external collaborators (memory map, HHDM offset, modules) and
// the classification/parsing glue around them: picking the buddy pool's
// backing region from the memory map, sniffing a module's container
// format, and decoding the initramfs's length-prefixed record stream.
// Modules are read through an afero.Fs so the same loading code serves a
// real host path (cmd/kernel) and an in-memory fixture (tests) alike.
package bootinfo

import (
	"encoding/binary"
	"errors"

	"github.com/spf13/afero"
)

// MemRegion is one Limine memmap entry.
type MemRegion struct {
	Base   uint64
	Length uint64
	Usable bool
}

// MemoryMap is the full list of regions reported by the loader.
type MemoryMap []MemRegion

// LargestUsable returns the base and length of the largest usable region,
// the source the buddy pool is carved from.
func (m MemoryMap) LargestUsable() (base, length uint64, ok bool) {
	for _, r := range m {
		if r.Usable && r.Length > length {
			base, length, ok = r.Base, r.Length, true
		}
	}
	return
}

// ModuleKind classifies a raw boot module blob.
type ModuleKind int

const (
	ModuleInitramfs ModuleKind = iota
	ModuleISO9660
	ModuleMBRDisk
)

func (k ModuleKind) String() string {
	switch k {
	case ModuleISO9660:
		return "iso9660"
	case ModuleMBRDisk:
		return "mbr-disk"
	default:
		return "initramfs"
	}
}

const (
	iso9660SigOffset = 0x8001
	iso9660Sig       = "CD001"
	mbrSigOffset     = 510
)

// ClassifyModule mirrors the boot glue's module sniffing: an ISO9660
// signature at offset 0x8001, an MBR 0x55AA signature at bytes 510-511,
// else initramfs.
func ClassifyModule(data []byte) ModuleKind {
	if len(data) >= iso9660SigOffset+len(iso9660Sig) &&
		string(data[iso9660SigOffset:iso9660SigOffset+len(iso9660Sig)]) == iso9660Sig {
		return ModuleISO9660
	}
	if len(data) >= mbrSigOffset+2 && data[mbrSigOffset] == 0x55 && data[mbrSigOffset+1] == 0xAA {
		return ModuleMBRDisk
	}
	return ModuleInitramfs
}

// InitramfsRecord is one decoded (size, payload) pair from the initramfs
// blob.
type InitramfsRecord struct {
	Data []byte
}

var errTruncatedInitramfs = errors.New("bootinfo: truncated initramfs record")

// ParseInitramfs decodes the concatenation of big-endian u32 size prefixes
// and payloads, each record padded to a 4-byte boundary.
func ParseInitramfs(blob []byte) ([]InitramfsRecord, error) {
	var records []InitramfsRecord
	pos := 0
	for pos < len(blob) {
		if pos+4 > len(blob) {
			return nil, errTruncatedInitramfs
		}
		size := binary.BigEndian.Uint32(blob[pos : pos+4])
		pos += 4

		if uint64(pos)+uint64(size) > uint64(len(blob)) {
			return nil, errTruncatedInitramfs
		}
		payload := blob[pos : pos+int(size)]
		pos += int(size)

		if pad := pos % 4; pad != 0 {
			pos += 4 - pad
		}

		records = append(records, InitramfsRecord{Data: payload})
	}
	return records, nil
}

// LoadModule reads a module file through fs, so the host CLI and tests
// share the same loading path over an afero.Fs (OsFs in production,
// MemMapFs in tests).
func LoadModule(fs afero.Fs, path string) ([]byte, error) {
	return afero.ReadFile(fs, path)
}

// BootInfo aggregates the three boot responses plus the classified modules,
// the Go counterpart of whatever scratch struct the Limine glue would
// assemble before handing memory-map/hhdm data to the buddy allocator.
type BootInfo struct {
	MemoryMap   MemoryMap
	HHDMOffset  uint64
	ModulePaths []string
	Modules     [][]byte
}

// Load reads every module path through fs; ClassifiedModules classifies
// the loaded modules.
func Load(fs afero.Fs, memmap MemoryMap, hhdmOffset uint64, modulePaths []string) (*BootInfo, error) {
	bi := &BootInfo{MemoryMap: memmap, HHDMOffset: hhdmOffset, ModulePaths: modulePaths}
	for _, p := range modulePaths {
		data, err := LoadModule(fs, p)
		if err != nil {
			return nil, err
		}
		bi.Modules = append(bi.Modules, data)
	}
	return bi, nil
}

// ClassifiedModules pairs each loaded module with its classification.
func (bi *BootInfo) ClassifiedModules() []ModuleKind {
	kinds := make([]ModuleKind, len(bi.Modules))
	for i, m := range bi.Modules {
		kinds[i] = ClassifyModule(m)
	}
	return kinds
}
