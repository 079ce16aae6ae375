package devfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novariaos/novariaos-src/internal/vfs"
)

func newTestVFS(t *testing.T) *vfs.VFS {
	t.Helper()
	v := vfs.New()
	require.Equal(t, vfs.OK, Init(v, func() uint64 { return 42 }))
	return v
}

func TestDevNullReadsZeroBytes(t *testing.T) {
	v := newTestVFS(t)
	buf := make([]byte, 16)
	n, errno := v.ReadFd(vfs.DevNullFD, buf)
	require.Equal(t, vfs.OK, errno)
	require.Zero(t, n)
}

func TestDevNullWriteSwallowsInput(t *testing.T) {
	v := newTestVFS(t)
	n, errno := v.WriteFd(vfs.DevNullFD, []byte("hello"))
	require.Equal(t, vfs.OK, errno)
	require.Equal(t, 5, n)
}

func TestDevZeroFillsBuffer(t *testing.T) {
	v := newTestVFS(t)
	buf := []byte{1, 2, 3, 4}
	n, errno := v.ReadFd(vfs.DevZeroFD, buf)
	require.Equal(t, vfs.OK, errno)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{0, 0, 0, 0}, buf)
}

func TestDevFullWriteFailsWithENOSPC(t *testing.T) {
	v := newTestVFS(t)
	_, errno := v.WriteFd(vfs.DevFullFD, []byte("x"))
	require.Equal(t, vfs.ENOSPC, errno)
}

func TestDevURandomWriteFailsWithEACCES(t *testing.T) {
	v := newTestVFS(t)
	fd, errno := v.Open("/dev/urandom", vfs.OpenRead|vfs.OpenWrite)
	require.Equal(t, vfs.OK, errno)

	_, werrno := v.WriteFd(fd, []byte("x"))
	require.Equal(t, vfs.EACCES, werrno)
}

func TestDevURandomProducesBytes(t *testing.T) {
	v := newTestVFS(t)
	fd, errno := v.Open("/dev/urandom", vfs.OpenRead)
	require.Equal(t, vfs.OK, errno)

	buf := make([]byte, 32)
	n, rerrno := v.ReadFd(fd, buf)
	require.Equal(t, vfs.OK, rerrno)
	require.Equal(t, 32, n)
}

func TestStdFdsLinkedToDevFilesHaveNoBackingIO(t *testing.T) {
	// /dev/stdin, /dev/stdout, /dev/stderr are registered with no
	// read/write callbacks (the real terminal is an external
	// collaborator out of this kernel core's scope); linking fd 1 to
	// /dev/stdout just gives it a named backing file, not I/O behavior.
	v := newTestVFS(t)
	_, errno := v.WriteFd(1, []byte("boot ok\n"))
	require.Equal(t, vfs.ENOSYS, errno)
}
