package vfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSeedsStandardDirectoriesAndReservedFds(t *testing.T) {
	v := New()

	for _, dir := range []string{"/home", "/tmp", "/var", "/var/log", "/var/cache", "/dev", "/proc"} {
		st, errno := v.Stat(dir)
		require.Equal(t, OK, errno, dir)
		require.Equal(t, TypeDir, st.Type)
	}

	require.NotNil(t, v.getHandle(0))
	require.NotNil(t, v.getHandle(1))
	require.NotNil(t, v.getHandle(2))
}

func TestMkdirIsIdempotentButRejectsFileCollision(t *testing.T) {
	v := New()
	require.Equal(t, OK, v.Mkdir("/work"))
	require.Equal(t, OK, v.Mkdir("/work"))

	require.Equal(t, OK, v.Create("/work/f", nil))
	require.Equal(t, EEXIST, v.Mkdir("/work/f"))
}

func TestCreateOpenWriteReadRoundTrip(t *testing.T) {
	v := New()
	require.Equal(t, OK, v.Create("/greeting", nil))

	fd, errno := v.Open("/greeting", OpenRead|OpenWrite)
	require.Equal(t, OK, Errno(errno))
	require.GreaterOrEqual(t, fd, 3)

	n, errno := v.WriteFd(fd, []byte("hello"))
	require.Equal(t, OK, errno)
	require.Equal(t, 5, n)

	_, errno = v.SeekFd(fd, 0, SeekSet)
	require.Equal(t, OK, errno)

	buf := make([]byte, 5)
	n, errno = v.ReadFd(fd, buf)
	require.Equal(t, OK, errno)
	require.Equal(t, "hello", string(buf[:n]))

	require.Equal(t, OK, v.Close(fd))
}

func TestOpenWithoutCreatOnMissingPathFails(t *testing.T) {
	v := New()
	_, errno := v.Open("/nope", OpenRead)
	require.Equal(t, ENOENT, errno)
}

func TestOpenWithCreatMakesNewFile(t *testing.T) {
	v := New()
	fd, errno := v.Open("/new", OpenRead|OpenWrite|OpenCreat)
	require.Equal(t, OK, Errno(errno))
	require.NotEqual(t, -1, fd)
}

func TestDeleteRejectsDirectoriesAndRmdirRejectsNonEmpty(t *testing.T) {
	v := New()
	require.Equal(t, EISDIR, v.Delete("/tmp"))

	require.Equal(t, OK, v.Mkdir("/tmp/sub"))
	require.Equal(t, ENOTEMPTY, v.Rmdir("/tmp"))
	require.Equal(t, OK, v.Rmdir("/tmp/sub"))
	require.Equal(t, OK, v.Rmdir("/tmp"))
}

func TestReaddirListsImmediateChildrenOnly(t *testing.T) {
	v := New()
	require.Equal(t, OK, v.Create("/var/log/a.log", nil))
	require.Equal(t, OK, v.Create("/var/log/b.log", nil))

	entries, errno := v.Readdir("/var/log")
	require.Equal(t, OK, errno)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	require.True(t, names["a.log"])
	require.True(t, names["b.log"])
}

func TestPseudoRegisterWithFdBindsFixedDescriptor(t *testing.T) {
	v := New()
	read := func(devData interface{}, buf []byte, pos int64) (int, Errno) {
		for i := range buf {
			buf[i] = 0
		}
		return len(buf), OK
	}
	errno := v.PseudoRegisterWithFd("/dev/zero", DevZeroFD, read, nil, nil, nil, nil)
	require.Equal(t, OK, errno)

	buf := make([]byte, 4)
	n, errno := v.ReadFd(DevZeroFD, buf)
	require.Equal(t, OK, errno)
	require.Equal(t, 4, n)
}

type stubFSOps struct {
	UnsupportedFSOps
	mounted bool
}

func (s *stubFSOps) Mount(mnt *Mount, device string, data interface{}) Errno {
	s.mounted = true
	return OK
}
func (s *stubFSOps) Unmount(mnt *Mount) Errno { s.mounted = false; return OK }
func (s *stubFSOps) Stat(mnt *Mount, path string) (Stat, Errno) {
	if path == "present.txt" {
		return Stat{Size: 3, Type: TypeFile}, OK
	}
	return Stat{}, ENOENT
}
func (s *stubFSOps) Readdir(mnt *Mount, path string) ([]Dirent, Errno) {
	return []Dirent{{Name: "present.txt", Type: TypeFile}}, OK
}

func TestMountFSDispatchesStatAndReaddirByLongestPrefix(t *testing.T) {
	v := New()
	ops := &stubFSOps{}
	require.Equal(t, OK, v.RegisterFilesystem("stubfs", ops, 0))
	require.Equal(t, OK, v.MountFS("stubfs", "/mnt", "dev0", 0, nil))
	require.True(t, ops.mounted)

	st, errno := v.Stat("/mnt/present.txt")
	require.Equal(t, OK, errno)
	require.EqualValues(t, 3, st.Size)

	entries, errno := v.Readdir("/mnt")
	require.Equal(t, OK, errno)
	require.Len(t, entries, 1)

	_, errno = v.Stat("/mnt/missing.txt")
	require.Equal(t, ENOENT, errno)
}

func TestUnmountRefusesWhileMountIsBusy(t *testing.T) {
	v := New()
	ops := &stubFSOps{}
	require.Equal(t, OK, v.RegisterFilesystem("stubfs", ops, 0))
	require.Equal(t, OK, v.MountFS("stubfs", "/mnt", "dev0", 0, nil))

	mnt, _, ok := v.FindMount("/mnt")
	require.True(t, ok)
	mnt.RefCount = 1

	require.Equal(t, EBUSY, v.Unmount("/mnt"))
	mnt.RefCount = 0
	require.Equal(t, OK, v.Unmount("/mnt"))
}

func TestFindMountRespectsPathBoundaries(t *testing.T) {
	v := New()
	ops := &stubFSOps{}
	require.Equal(t, OK, v.RegisterFilesystem("stubfs", ops, 0))
	require.Equal(t, OK, v.MountFS("stubfs", "/dev", "dev0", 0, nil))

	_, _, ok := v.FindMount("/devfoo")
	require.False(t, ok, "a mount at /dev must not match the unrelated sibling /devfoo")
}
