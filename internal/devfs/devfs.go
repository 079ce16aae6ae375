// Package devfs registers the kernel's pseudo device files with the VFS
// legacy table: null, zero, full, urandom, tty/console, and stdin/stdout/stderr.
package devfs

import (
	"github.com/novariaos/novariaos-src/internal/vfs"
)

// EntropySource stands in for the hardware entropy collector the ChaCha20
// RNG reseeds from; tests supply a deterministic one.
type EntropySource func() uint64

func nullRead(interface{}, []byte, int64) (int, vfs.Errno)  { return 0, vfs.OK }
func nullWrite(_ interface{}, buf []byte, _ int64) (int, vfs.Errno) {
	return len(buf), vfs.OK
}
func nullSeek(interface{}, int64, int) (int64, vfs.Errno) { return 0, vfs.OK }

func zeroRead(_ interface{}, buf []byte, _ int64) (int, vfs.Errno) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), vfs.OK
}
func zeroWrite(_ interface{}, buf []byte, _ int64) (int, vfs.Errno) {
	return len(buf), vfs.OK
}

func fullRead(_ interface{}, buf []byte, _ int64) (int, vfs.Errno) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), vfs.OK
}
func fullWrite(interface{}, []byte, int64) (int, vfs.Errno) { return 0, vfs.ENOSPC }

func consoleRead(interface{}, []byte, int64) (int, vfs.Errno) { return 1, vfs.OK }
func consoleWrite(_ interface{}, buf []byte, _ int64) (int, vfs.Errno) {
	// The console's backing terminal is an external collaborator; this
	// kernel core only needs the write to succeed with zero bytes
	// consumed into a file, matching kprint's fire-and-forget contract.
	return 0, vfs.OK
}

// Init registers every devfs entry with v, mirroring devfs_init's
// registration order and fixed-fd assignments exactly.
func Init(v *vfs.VFS, entropy EntropySource) vfs.Errno {
	rng := newURandom(entropy)

	if errno := v.PseudoRegisterWithFd("/dev/null", vfs.DevNullFD, nullRead, nullWrite, nullSeek, nil, nil); errno != vfs.OK {
		return errno
	}
	if errno := v.PseudoRegisterWithFd("/dev/zero", vfs.DevZeroFD, zeroRead, zeroWrite, nil, nil, nil); errno != vfs.OK {
		return errno
	}
	if errno := v.PseudoRegisterWithFd("/dev/full", vfs.DevFullFD, fullRead, fullWrite, nil, nil, nil); errno != vfs.OK {
		return errno
	}
	if errno := v.PseudoRegister("/dev/urandom", rng.read, rng.write, nil, nil, nil); errno != vfs.OK {
		return errno
	}
	if errno := v.PseudoRegister("/dev/console", consoleRead, consoleWrite, nil, nil, nil); errno != vfs.OK {
		return errno
	}
	if errno := v.PseudoRegister("/dev/tty", consoleRead, consoleWrite, nil, nil, nil); errno != vfs.OK {
		return errno
	}

	if errno := v.PseudoRegisterWithFd("/dev/stdin", vfs.DevStdinFD, nil, nil, nil, nil, nil); errno != vfs.OK {
		return errno
	}
	if errno := v.PseudoRegisterWithFd("/dev/stdout", vfs.DevStdoutFD, nil, nil, nil, nil, nil); errno != vfs.OK {
		return errno
	}
	if errno := v.PseudoRegisterWithFd("/dev/stderr", vfs.DevStderrFD, nil, nil, nil, nil, nil); errno != vfs.OK {
		return errno
	}

	v.LinkStdFd(0, "/dev/stdin")
	v.LinkStdFd(1, "/dev/stdout")
	v.LinkStdFd(2, "/dev/stderr")
	return vfs.OK
}
