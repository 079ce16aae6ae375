package procfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/novariaos/novariaos-src/internal/nvm"
	"github.com/novariaos/novariaos-src/internal/vfs"
)

type fakeMem struct{ total, free uint64 }

func (m fakeMem) TotalBytes() uint64 { return m.total }
func (m fakeMem) FreeBytes() uint64  { return m.free }

func TestInitRegistersStaticFiles(t *testing.T) {
	v := vfs.New()
	_, errno := Init(v, fakeMem{total: 1 << 20, free: 1 << 19}, nil, time.Unix(0, 0))
	require.Equal(t, vfs.OK, errno)

	fd, errno := v.Open("/proc/meminfo", vfs.OpenRead)
	require.Equal(t, vfs.OK, errno)
	buf := make([]byte, 256)
	n, errno := v.ReadFd(fd, buf)
	require.Equal(t, vfs.OK, errno)
	require.Contains(t, string(buf[:n]), "MemTotal")
}

func TestAttachPoolRegistersAndUnregistersProcessDirectory(t *testing.T) {
	v := vfs.New()
	p, errno := Init(v, fakeMem{total: 1, free: 1}, nil, time.Unix(0, 0))
	require.Equal(t, vfs.OK, errno)

	pool := nvm.NewPool()
	p.AttachPool(pool)

	pid, ok := pool.CreateProcess([]byte{0x4E, 0x56, 0x4D, 0x30, 0x00}, nil)
	require.True(t, ok)

	fd, errno := v.Open("/proc/"+itoa(pid)+"/status", vfs.OpenRead)
	require.Equal(t, vfs.OK, errno)
	buf := make([]byte, 256)
	n, errno := v.ReadFd(fd, buf)
	require.Equal(t, vfs.OK, errno)
	require.Contains(t, string(buf[:n]), "pid: ")

	pool.Terminate(&pool.Processes[pid], 0)

	_, errno = v.Open("/proc/"+itoa(pid)+"/status", vfs.OpenRead)
	require.Equal(t, vfs.ENOENT, errno)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
