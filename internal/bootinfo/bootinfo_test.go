package bootinfo

import (
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestLargestUsableRegionPicksBiggestUsable(t *testing.T) {
	m := MemoryMap{
		{Base: 0, Length: 4096, Usable: true},
		{Base: 0x100000, Length: 1 << 20, Usable: true},
		{Base: 0x200000, Length: 1 << 30, Usable: false},
	}
	base, length, ok := m.LargestUsable()
	require.True(t, ok)
	require.EqualValues(t, 0x100000, base)
	require.EqualValues(t, 1<<20, length)
}

func TestLargestUsableRegionNoneUsable(t *testing.T) {
	m := MemoryMap{{Base: 0, Length: 4096, Usable: false}}
	_, _, ok := m.LargestUsable()
	require.False(t, ok)
}

func TestClassifyModuleDetectsISO9660(t *testing.T) {
	data := make([]byte, iso9660SigOffset+8)
	copy(data[iso9660SigOffset:], iso9660Sig)
	require.Equal(t, ModuleISO9660, ClassifyModule(data))
}

func TestClassifyModuleDetectsMBRDisk(t *testing.T) {
	data := make([]byte, 512)
	data[510] = 0x55
	data[511] = 0xAA
	require.Equal(t, ModuleMBRDisk, ClassifyModule(data))
}

func TestClassifyModuleFallsBackToInitramfs(t *testing.T) {
	require.Equal(t, ModuleInitramfs, ClassifyModule([]byte("hello")))
}

func buildInitramfsRecord(payload []byte) []byte {
	var buf []byte
	size := make([]byte, 4)
	binary.BigEndian.PutUint32(size, uint32(len(payload)))
	buf = append(buf, size...)
	buf = append(buf, payload...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func TestParseInitramfsDecodesMultipleRecords(t *testing.T) {
	var blob []byte
	blob = append(blob, buildInitramfsRecord([]byte("hi"))...)
	blob = append(blob, buildInitramfsRecord([]byte("three"))...)

	records, err := ParseInitramfs(blob)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "hi", string(records[0].Data))
	require.Equal(t, "three", string(records[1].Data))
}

func TestParseInitramfsRejectsTruncatedRecord(t *testing.T) {
	blob := []byte{0, 0, 0, 10, 'a', 'b'}
	_, err := ParseInitramfs(blob)
	require.Error(t, err)
}

func TestLoadReadsAndClassifiesModulesThroughAferoFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	isoData := make([]byte, iso9660SigOffset+8)
	copy(isoData[iso9660SigOffset:], iso9660Sig)
	require.NoError(t, afero.WriteFile(fs, "/boot/disk.iso", isoData, 0o644))

	initData := buildInitramfsRecord([]byte("payload"))
	require.NoError(t, afero.WriteFile(fs, "/boot/initramfs.img", initData, 0o644))

	bi, err := Load(fs, MemoryMap{{Base: 0, Length: 1 << 20, Usable: true}}, 0xFFFF800000000000,
		[]string{"/boot/disk.iso", "/boot/initramfs.img"})
	require.NoError(t, err)
	require.Len(t, bi.Modules, 2)

	kinds := bi.ClassifiedModules()
	require.Equal(t, ModuleISO9660, kinds[0])
	require.Equal(t, ModuleInitramfs, kinds[1])
}
