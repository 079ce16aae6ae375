package devfs

import (
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/chacha20"

	"github.com/novariaos/novariaos-src/internal/vfs"
)

// urandom drives golang.org/x/crypto/chacha20 over an all-zero key, reseeding
// the nonce's low 64 bits from the hardware entropy source once on first
// read — the Go counterpart of the hand-rolled chacha20_rng_t, replacing a
// from-scratch block-function implementation with the standard library's
// stream cipher per the spec's "ChaCha20 RNG" requirement.
type urandom struct {
	mu      sync.Mutex
	entropy EntropySource
	cipher  *chacha20.Cipher
}

func newURandom(entropy EntropySource) *urandom {
	if entropy == nil {
		entropy = func() uint64 { return 0x9E3779B97F4A7C15 }
	}
	return &urandom{entropy: entropy}
}

func (u *urandom) ensureInit() {
	if u.cipher != nil {
		return
	}
	var key [32]byte
	var nonce [12]byte
	binary.LittleEndian.PutUint64(nonce[0:8], u.entropy())
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		// Only possible with a malformed key/nonce length, which never
		// happens here since both are fixed-size arrays.
		panic(err)
	}
	u.cipher = c
}

func (u *urandom) read(_ interface{}, buf []byte, _ int64) (int, vfs.Errno) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ensureInit()
	zero := make([]byte, len(buf))
	u.cipher.XORKeyStream(buf, zero)
	return len(buf), vfs.OK
}

func (u *urandom) write(interface{}, []byte, int64) (int, vfs.Errno) {
	return 0, vfs.EACCES
}
