// Package procfs exposes kernel and process state as a tree of read-only
// pseudo files under /proc, the Go counterpart of procfs.c. Static system
// tables (vendor strings, CPUID frequency decoding) have no meaningful
// equivalent hosted outside real hardware, so cpuinfo is synthesized from
// the Go runtime instead; everything memory- and process-shaped is backed
// by the real buddy/kalloc/nvm state.
package procfs

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/novariaos/novariaos-src/internal/kalloc"
	"github.com/novariaos/novariaos-src/internal/nvm"
	"github.com/novariaos/novariaos-src/internal/vfs"
)

const kernelVersion = "novariaos 0.1.0"

// MemInfo is the narrow view of the allocator stack meminfo needs.
type MemInfo interface {
	TotalBytes() uint64
	FreeBytes() uint64
}

// ProcFS owns /proc's static files and the per-pid subtree lifecycle driven
// by nvm.Pool's OnProcessBirth/OnProcessDeath hooks.
type ProcFS struct {
	v        *vfs.VFS
	mem      MemInfo
	heap     *kalloc.Heap
	bootTime time.Time
}

// Init mounts /proc's static files, mirroring procfs_init: cpuinfo,
// meminfo, pci, uptime, plus a version file the original source exposed as
// a prototype (procfs_version) but never wired into procfs_init.
func Init(v *vfs.VFS, mem MemInfo, heap *kalloc.Heap, bootTime time.Time) (*ProcFS, vfs.Errno) {
	p := &ProcFS{v: v, mem: mem, heap: heap, bootTime: bootTime}

	if errno := v.Mkdir("/proc"); errno != vfs.OK && errno != vfs.EEXIST {
		return nil, errno
	}

	if errno := v.PseudoRegister("/proc/cpuinfo", p.readCPUInfo, nil, nil, nil, nil); errno != vfs.OK {
		return nil, errno
	}
	if errno := v.PseudoRegister("/proc/meminfo", p.readMemInfo, nil, nil, nil, nil); errno != vfs.OK {
		return nil, errno
	}
	if errno := v.PseudoRegister("/proc/pci", readEmpty, nil, nil, nil, nil); errno != vfs.OK {
		return nil, errno
	}
	if errno := v.PseudoRegister("/proc/uptime", p.readUptime, nil, nil, nil, nil); errno != vfs.OK {
		return nil, errno
	}
	if errno := v.PseudoRegister("/proc/version", readVersion, nil, nil, nil, nil); errno != vfs.OK {
		return nil, errno
	}
	return p, vfs.OK
}

// AttachPool wires process birth/death to /proc/<pid> creation/removal, the
// Go analogue of procfs_register/procfs_unregister being called from
// nvm_create_process and the exit/fault paths.
func (p *ProcFS) AttachPool(pool *nvm.Pool) {
	pool.OnProcessBirth = func(proc *nvm.Process) { p.register(proc) }
	pool.OnProcessDeath = func(proc *nvm.Process) { p.unregister(proc.PID) }
}

func (p *ProcFS) register(proc *nvm.Process) {
	dir := procDir(proc.PID)
	if errno := p.v.Mkdir(dir); errno != vfs.OK && errno != vfs.EEXIST {
		return
	}
	p.v.PseudoRegister(dir+"/status", statusReader(proc), nil, nil, nil, proc)
	p.v.PseudoRegister(dir+"/stack", stackReader(proc), nil, nil, nil, proc)
	p.v.PseudoRegister(dir+"/bytecode", bytecodeReader(proc), nil, nil, nil, proc)
}

func (p *ProcFS) unregister(pid int) {
	dir := procDir(pid)
	p.v.Unlink(dir + "/status")
	p.v.Unlink(dir + "/stack")
	p.v.Unlink(dir + "/bytecode")
	p.v.Rmdir(dir)
}

func procDir(pid int) string { return fmt.Sprintf("/proc/%d", pid) }

func readEmpty(devData interface{}, buf []byte, pos int64) (int, vfs.Errno) { return 0, vfs.OK }

func readVersion(devData interface{}, buf []byte, pos int64) (int, vfs.Errno) {
	return readString(kernelVersion+"\n", buf, pos)
}

func (p *ProcFS) readUptime(devData interface{}, buf []byte, pos int64) (int, vfs.Errno) {
	up := time.Since(p.bootTime).Seconds()
	return readString(fmt.Sprintf("%.2f 0.00\n", up), buf, pos)
}

func (p *ProcFS) readMemInfo(devData interface{}, buf []byte, pos int64) (int, vfs.Errno) {
	total := p.mem.TotalBytes()
	free := p.mem.FreeBytes()
	used := total - free
	allocated := uint64(0)
	if p.heap != nil {
		allocated = p.heap.AllocatedBytes
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "MemTotal       : %s\n", humanize.IBytes(total))
	fmt.Fprintf(&sb, "MemUsed        : %s\n", humanize.IBytes(used))
	fmt.Fprintf(&sb, "MemFree        : %s\n", humanize.IBytes(free))
	fmt.Fprintf(&sb, "KmallocBytes   : %s\n", humanize.IBytes(allocated))
	return readString(sb.String(), buf, pos)
}

// readCPUInfo reports what the host Go runtime actually knows instead of
// decoding CPUID leaves this module has no business reading directly.
func (p *ProcFS) readCPUInfo(devData interface{}, buf []byte, pos int64) (int, vfs.Errno) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "vendor_id       : %s\n", runtime.Compiler)
	fmt.Fprintf(&sb, "architecture    : %s\n", runtime.GOARCH)
	fmt.Fprintf(&sb, "cpu cores       : %d\n", runtime.NumCPU())
	fmt.Fprintf(&sb, "go runtime      : %s\n", runtime.Version())
	return readString(sb.String(), buf, pos)
}

func readString(s string, buf []byte, pos int64) (int, vfs.Errno) {
	if pos >= int64(len(s)) {
		return 0, vfs.OK
	}
	n := copy(buf, s[pos:])
	return n, vfs.OK
}

func statusReader(proc *nvm.Process) vfs.ReadFunc {
	return func(devData interface{}, buf []byte, pos int64) (int, vfs.Errno) {
		var sb strings.Builder
		fmt.Fprintf(&sb, "pid: %d\n", proc.PID)
		fmt.Fprintf(&sb, "active: %s\n", yesNo(proc.Active))
		fmt.Fprintf(&sb, "blocked: %s\n", yesNo(proc.Blocked))
		fmt.Fprintf(&sb, "sp: %d\n", proc.SP)
		fmt.Fprintf(&sb, "ip: %d\n", proc.IP)
		fmt.Fprintf(&sb, "size: %d\n", proc.Size)
		fmt.Fprintf(&sb, "exit_code: %d\n", proc.ExitCode)
		fmt.Fprintf(&sb, "wakeup_reason: %d\n", proc.WakeupReason)
		fmt.Fprintf(&sb, "caps_count: %d\n", proc.CapsCount)
		fmt.Fprintf(&sb, "generation: %s\n", proc.Generation)
		return readString(sb.String(), buf, pos)
	}
}

func stackReader(proc *nvm.Process) vfs.ReadFunc {
	return func(devData interface{}, buf []byte, pos int64) (int, vfs.Errno) {
		var sb strings.Builder
		sb.WriteString("Stack dump (hex):\n")
		for i := uint32(0); i < proc.SP; i++ {
			if i > 0 && i%8 == 0 {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "0x%08x ", uint32(proc.Stack[i]))
		}
		sb.WriteByte('\n')
		return readString(sb.String(), buf, pos)
	}
}

func bytecodeReader(proc *nvm.Process) vfs.ReadFunc {
	return func(devData interface{}, buf []byte, pos int64) (int, vfs.Errno) {
		var sb strings.Builder
		sb.WriteString("Bytecode (hex):\n")
		const perLine = 16
		for i := 0; i < len(proc.Bytecode); i += perLine {
			end := i + perLine
			if end > len(proc.Bytecode) {
				end = len(proc.Bytecode)
			}
			line := proc.Bytecode[i:end]
			for _, b := range line {
				fmt.Fprintf(&sb, "%02x ", b)
			}
			for pad := len(line); pad < perLine; pad++ {
				sb.WriteString("   ")
			}
			sb.WriteString(" |")
			for _, b := range line {
				if b >= 32 && b <= 126 {
					sb.WriteByte(b)
				} else {
					sb.WriteByte('.')
				}
			}
			sb.WriteString("|\n")
		}
		fmt.Fprintf(&sb, "\nBytecode size: %d bytes\n", len(proc.Bytecode))
		return readString(sb.String(), buf, pos)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ListProcesses is a small convenience for tooling/tests: the live
// directory list under /proc that are process subtrees, sorted by pid.
func ListProcesses(v *vfs.VFS) []string {
	entries, errno := v.Readdir("/proc")
	if errno != vfs.OK {
		return nil
	}
	var pids []string
	for _, e := range entries {
		if e.Type == vfs.TypeDir {
			pids = append(pids, e.Name)
		}
	}
	sort.Strings(pids)
	return pids
}
