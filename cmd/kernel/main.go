// Command kernel hosts the novariaos kernel core as an ordinary process,
// standing in for the Limine boot chain spec.md §6 treats as an external
// collaborator: --memmap/--hhdm-offset/--initramfs/--iso/--disk are the
// host-process equivalent of the three Limine request responses, letting
// every subsystem from the buddy allocator up through the NVM scheduler
// run end-to-end without real hardware.
package main

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/novariaos/novariaos-src/internal/blockdev"
	"github.com/novariaos/novariaos-src/internal/blockvfs"
	"github.com/novariaos/novariaos-src/internal/bootinfo"
	"github.com/novariaos/novariaos-src/internal/buddy"
	"github.com/novariaos/novariaos-src/internal/devfs"
	"github.com/novariaos/novariaos-src/internal/fat32"
	"github.com/novariaos/novariaos-src/internal/ioport"
	"github.com/novariaos/novariaos-src/internal/kalloc"
	"github.com/novariaos/novariaos-src/internal/klog"
	"github.com/novariaos/novariaos-src/internal/nvm"
	"github.com/novariaos/novariaos-src/internal/procfs"
	"github.com/novariaos/novariaos-src/internal/vfs"
)

// memmapRegion is the JSON shape a --memmap file is decoded into; the host
// process has no real Limine memmap response, so this file is its
// substitute.
type memmapRegion struct {
	Base   uint64 `json:"base"`
	Length uint64 `json:"length"`
	Usable bool   `json:"usable"`
}

func main() {
	app := cli.NewApp()
	app.Name = "kernel"
	app.Usage = "host novariaos's kernel core outside a real Limine boot chain"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "memmap", Usage: "path to a JSON memory map file"},
		cli.Uint64Flag{Name: "hhdm-offset", Usage: "higher-half direct map offset", Value: 0xFFFF800000000000},
		cli.StringFlag{Name: "initramfs", Usage: "path to an initramfs module blob"},
		cli.StringFlag{Name: "iso", Usage: "path to an ISO9660 module blob"},
		cli.StringFlag{Name: "disk", Usage: "path to a FAT32-formatted disk image to mount at /mnt"},
		cli.StringFlag{Name: "log-level", Value: "info"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		klog.Error("kernel: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	klog.SetLevel(c.String("log-level"))
	bootTime := time.Now()

	memmap, err := loadMemoryMap(c.String("memmap"))
	if err != nil {
		return fmt.Errorf("loading memory map: %w", err)
	}

	var modulePaths []string
	if p := c.String("initramfs"); p != "" {
		modulePaths = append(modulePaths, p)
	}
	if p := c.String("iso"); p != "" {
		modulePaths = append(modulePaths, p)
	}

	osFs := afero.NewOsFs()
	boot, err := bootinfo.Load(osFs, memmap, c.Uint64("hhdm-offset"), modulePaths)
	if err != nil {
		return fmt.Errorf("loading boot modules: %w", err)
	}

	base, poolSize, ok := boot.MemoryMap.LargestUsable()
	if !ok {
		return fmt.Errorf("no usable memory region in memory map")
	}
	klog.Info("kernel: buddy pool base=0x%x size=%d hhdm=0x%x", base, poolSize, boot.HHDMOffset)

	var alloc buddy.Allocator
	buddy.Init(&alloc, base, poolSize, boot.HHDMOffset)
	heap := kalloc.NewHeap(&alloc)

	registry := blockdev.NewRegistry()
	ports := ioport.NewSpace()

	if diskPath := c.String("disk"); diskPath != "" {
		disk, err := blockdev.OpenFileDisk(diskPath, 512, false)
		if err != nil {
			return fmt.Errorf("opening disk image: %w", err)
		}
		defer disk.Close()
		if errno := registry.Register("disk0", 512, diskBlocks(diskPath), disk); errno != vfs.OK {
			return fmt.Errorf("registering disk0: %v", errno)
		}
	}

	v := vfs.New()

	entropy := entropySource()
	if errno := devfs.Init(v, entropy); errno != vfs.OK {
		return fmt.Errorf("devfs init: %v", errno)
	}
	if errno := blockvfs.Init(v, registry); errno != vfs.OK {
		return fmt.Errorf("blockvfs init: %v", errno)
	}
	pfs, errno := procfs.Init(v, &alloc, heap, bootTime)
	if errno != vfs.OK {
		return fmt.Errorf("procfs init: %v", errno)
	}

	if errno := fat32.Register(v, registry); errno != vfs.OK {
		return fmt.Errorf("fat32 register: %v", errno)
	}
	if c.String("disk") != "" {
		if errno := v.Mkdir("/mnt"); errno != vfs.OK && errno != vfs.EEXIST {
			return fmt.Errorf("mkdir /mnt: %v", errno)
		}
		if errno := v.MountFS(fat32.Name, "/mnt", "disk0", 0, nil); errno != vfs.OK {
			klog.Warn("kernel: mounting disk0 at /mnt failed: %v", errno)
		}
	}

	pool := nvm.NewPool()
	pfs.AttachPool(pool)

	syscalls := &nvm.Syscalls{
		Pool:    pool,
		FS:      fsAdapter{v},
		Ports:   ports,
		Console: stdoutConsole{},
	}

	for _, rec := range initramfsPrograms(boot) {
		if pid, ok := pool.CreateProcess(rec, []nvm.Capability{nvm.CapFSRead, nvm.CapFSWrite, nvm.CapDrvAccess}); ok {
			klog.Info("kernel: loaded initramfs program as pid %d", pid)
		}
	}

	abs := newAbsMemory()
	for tick := 0; tick < 1_000_000; tick++ {
		pool.Tick(syscalls.Handle, abs)
	}

	return nil
}

func loadMemoryMap(path string) (bootinfo.MemoryMap, error) {
	if path == "" {
		return bootinfo.MemoryMap{{Base: 0x100000, Length: 64 << 20, Usable: true}}, nil
	}
	data, err := afero.ReadFile(afero.NewOsFs(), path)
	if err != nil {
		return nil, err
	}
	var regions []memmapRegion
	if err := json.Unmarshal(data, &regions); err != nil {
		return nil, err
	}
	mm := make(bootinfo.MemoryMap, len(regions))
	for i, r := range regions {
		mm[i] = bootinfo.MemRegion{Base: r.Base, Length: r.Length, Usable: r.Usable}
	}
	return mm, nil
}

func diskBlocks(path string) uint64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return uint64(info.Size()) / 512
}

func initramfsPrograms(boot *bootinfo.BootInfo) [][]byte {
	var programs [][]byte
	for i, data := range boot.Modules {
		if boot.ClassifiedModules()[i] != bootinfo.ModuleInitramfs {
			continue
		}
		records, err := bootinfo.ParseInitramfs(data)
		if err != nil {
			klog.Warn("kernel: bad initramfs module: %v", err)
			continue
		}
		for _, rec := range records {
			programs = append(programs, rec.Data)
		}
	}
	return programs
}

func entropySource() devfs.EntropySource {
	return func() uint64 {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return uint64(time.Now().UnixNano())
		}
		return binary.LittleEndian.Uint64(buf[:])
	}
}

// fsAdapter narrows *vfs.VFS to the interface the nvm syscall layer
// expects, converting its Errno return into the plain int SYS_OPEN wants.
type fsAdapter struct{ v *vfs.VFS }

func (f fsAdapter) Open(path string, flags int) (int, int) {
	fd, errno := f.v.Open(path, flags)
	return fd, int(errno)
}
func (f fsAdapter) ReadFd(fd int, buf []byte) (int, vfs.Errno)  { return f.v.ReadFd(fd, buf) }
func (f fsAdapter) WriteFd(fd int, buf []byte) (int, vfs.Errno) { return f.v.WriteFd(fd, buf) }

type stdoutConsole struct{}

func (stdoutConsole) WriteByte(b byte) { os.Stdout.Write([]byte{b}) }

// absMemory backs LOAD_ABS/STORE_ABS over a sparse map standing in for the
// guarded physical/VGA windows, since a hosted process has no real
// physical address space to index into.
type absMemory struct {
	words map[uint32]uint32
}

func newAbsMemory() *absMemory { return &absMemory{words: make(map[uint32]uint32)} }

func (m *absMemory) Load32(addr uint32) uint32        { return m.words[addr] }
func (m *absMemory) Store32(addr uint32, value uint32) { m.words[addr] = value }

// Store16 is exercised by STORE_ABS writes into the text-VGA window; the
// sparse map backing this stand-in address space just narrows the stored
// value the same way a real uint16_t write would.
func (m *absMemory) Store16(addr uint32, value uint16) { m.words[addr] = uint32(value) }
