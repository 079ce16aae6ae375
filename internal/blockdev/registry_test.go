package blockdev

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novariaos/novariaos-src/internal/vfs"
)

func TestRegisterAndFind(t *testing.T) {
	r := NewRegistry()
	d, err := NewMemDisk(512, 64, false)
	require.NoError(t, err)

	require.Equal(t, vfs.OK, r.Register("ram0", 512, 64, d))

	got, ok := r.Find("ram0")
	require.True(t, ok)
	require.EqualValues(t, 512, got.BlockSize)
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := NewRegistry()
	d, _ := NewMemDisk(512, 64, false)
	require.Equal(t, vfs.OK, r.Register("ram0", 512, 64, d))
	require.Equal(t, vfs.EEXIST, r.Register("ram0", 512, 64, d))
}

func TestRegisterFillsUpToCapacity(t *testing.T) {
	r := NewRegistry()
	d, _ := NewMemDisk(512, 64, false)
	for i := 0; i < MaxDevices; i++ {
		name := string(rune('a' + i))
		require.Equal(t, vfs.OK, r.Register(name, 512, 64, d))
	}
	require.Equal(t, vfs.ENOSPC, r.Register("overflow", 512, 64, d))
}

func TestFindMissingDevice(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Find("nope")
	require.False(t, ok)
}

func TestReadOnlyDeviceRejectsWrite(t *testing.T) {
	d, err := NewMemDisk(512, 4, true)
	require.NoError(t, err)

	buf := make([]byte, 512)
	require.Equal(t, vfs.EROFS, d.WriteBlocks(0, 1, buf))
}

func TestMemDiskReadWriteRoundTrip(t *testing.T) {
	d, err := NewMemDisk(512, 4, false)
	require.NoError(t, err)

	payload := make([]byte, 512)
	copy(payload, []byte("hello block"))
	require.Equal(t, vfs.OK, d.WriteBlocks(1, 1, payload))

	out := make([]byte, 512)
	require.Equal(t, vfs.OK, d.ReadBlocks(1, 1, out))
	require.Equal(t, payload, out)
}
