package blockvfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novariaos/novariaos-src/internal/blockdev"
	"github.com/novariaos/novariaos-src/internal/vfs"
)

func newMemRegistry(t *testing.T, name string, blockSize uint32, blocks uint64, readOnly bool) *blockdev.Registry {
	t.Helper()
	reg := blockdev.NewRegistry()
	disk, err := blockdev.NewMemDisk(blockSize, blocks, readOnly)
	require.NoError(t, err)
	require.Equal(t, vfs.OK, reg.Register(name, blockSize, blocks, disk))
	return reg
}

func TestRegisterDeviceExposesDevPath(t *testing.T) {
	reg := newMemRegistry(t, "sda", 512, 4, false)
	v := vfs.New()
	require.Equal(t, vfs.OK, Init(v, reg))

	fd, errno := v.Open("/dev/sda", vfs.OpenRead|vfs.OpenWrite)
	require.Equal(t, vfs.OK, errno)
	require.True(t, fd >= 0)
}

func TestReadTruncatesAtDeviceEnd(t *testing.T) {
	reg := newMemRegistry(t, "sda", 512, 1, false)
	dev, ok := reg.Find("sda")
	require.True(t, ok)

	buf := make([]byte, 1024)
	n, errno := readDevice(dev, buf, 0)
	require.Equal(t, vfs.OK, errno)
	require.Equal(t, 512, n)
}

func TestReadPastEndReturnsZero(t *testing.T) {
	reg := newMemRegistry(t, "sda", 512, 1, false)
	dev, ok := reg.Find("sda")
	require.True(t, ok)

	buf := make([]byte, 16)
	n, errno := readDevice(dev, buf, 512)
	require.Equal(t, vfs.OK, errno)
	require.Equal(t, 0, n)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	reg := newMemRegistry(t, "sda", 512, 2, false)
	dev, ok := reg.Find("sda")
	require.True(t, ok)

	payload := []byte("hello block device")
	n, errno := writeDevice(dev, payload, 10)
	require.Equal(t, vfs.OK, errno)
	require.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	n, errno = readDevice(dev, buf, 10)
	require.Equal(t, vfs.OK, errno)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, buf)
}

func TestWriteToReadOnlyDeviceFails(t *testing.T) {
	reg := newMemRegistry(t, "cdrom", 2048, 1, true)
	dev, ok := reg.Find("cdrom")
	require.True(t, ok)

	_, errno := writeDevice(dev, []byte("x"), 0)
	require.NotEqual(t, vfs.OK, errno)
}
