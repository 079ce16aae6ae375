package nvm

import (
	"github.com/novariaos/novariaos-src/internal/ioport"
	"github.com/novariaos/novariaos-src/internal/klog"
	"github.com/novariaos/novariaos-src/internal/vfs"
)

// Syscall identifiers. The retrieved original headers that define these
// numerically did not survive distillation; the values below follow the
// declaration order of syscall_handler's switch in the reference
// implementation.
const (
	SysExit = iota
	SysSpawn
	SysOpen
	SysRead
	SysWrite
	SysMsgSend
	SysMsgReceive
	SysPortInByte
	SysPortOutByte
	SysPrint
)

// FS is the narrow slice of vfs.VFS the syscall layer depends on, kept as
// an interface so this package does not require a concrete VFS in tests
// that don't exercise file-backed syscalls.
type FS interface {
	Open(path string, flags int) (int, int)
	ReadFd(fd int, buf []byte) (int, vfs.Errno)
	WriteFd(fd int, buf []byte) (int, vfs.Errno)
}

// Console receives the characters fds 1/2 and SYS_PRINT emit.
type Console interface {
	WriteByte(b byte)
}

// Syscalls wires the pool to its external collaborators (VFS, ports,
// console) and implements SyscallHandler.
type Syscalls struct {
	Pool    *Pool
	FS      FS
	Ports   *ioport.Space
	Console Console
}

func (s *Syscalls) Handle(p *Process, id uint8) bool {
	switch int(id) {
	case SysExit:
		code := int32(0)
		if v, ok := p.pop(); ok {
			code = v
		}
		s.Pool.Terminate(p, code)
		p.Bytecode = nil
		return false

	case SysSpawn:
		s.sysSpawn(p)
		return true

	case SysOpen:
		s.sysOpen(p)
		return true

	case SysRead:
		s.sysRead(p)
		return true

	case SysWrite:
		s.sysWrite(p)
		return true

	case SysMsgSend:
		s.sysMsgSend(p)
		return true

	case SysMsgReceive:
		s.sysMsgReceive(p)
		return true

	case SysPortInByte:
		s.sysPortIn(p)
		return true

	case SysPortOutByte:
		s.sysPortOut(p)
		return true

	case SysPrint:
		s.sysPrint(p)
		return true

	default:
		klog.Warn("nvm: unknown syscall id %d", id)
		return true
	}
}

func pushResult(p *Process, v int32) {
	if p.SP < StackSize {
		p.Stack[p.SP] = v
		p.SP++
	}
}

func (s *Syscalls) sysOpen(p *Process) {
	if !p.HasCapability(CapFSRead) || p.SP < 1 {
		pushResult(p, -1)
		return
	}

	startPos := int(p.SP)
	nullPos := -1
	for i := startPos - 1; i >= 0; i-- {
		if p.Stack[i]&0xFF == 0 {
			nullPos = i
			break
		}
	}
	if nullPos == -1 {
		pushResult(p, -1)
		return
	}

	buf := make([]byte, 0, vfs.MaxFilename)
	for i := nullPos + 1; i < startPos && len(buf) < vfs.MaxFilename-1; i++ {
		buf = append(buf, byte(p.Stack[i]&0xFF))
	}
	p.SP = uint32(nullPos)

	fd, errno := s.FS.Open(string(buf), vfs.OpenRead|vfs.OpenWrite)
	if errno != int(vfs.OK) {
		fd = -1
	}
	pushResult(p, int32(fd))
}

func (s *Syscalls) sysRead(p *Process) {
	if !p.HasCapability(CapFSRead) || p.SP < 1 {
		pushResult(p, -1)
		return
	}
	fd, _ := p.pop()
	if fd < 0 {
		pushResult(p, -1)
		return
	}
	var b [1]byte
	n, errno := s.FS.ReadFd(int(fd), b[:])
	switch {
	case errno != vfs.OK:
		pushResult(p, -1)
	case n == 0:
		pushResult(p, 0)
	default:
		pushResult(p, int32(b[0]))
	}
}

func (s *Syscalls) sysWrite(p *Process) {
	if !p.HasCapability(CapFSWrite) || p.SP < 2 {
		pushResult(p, -1)
		return
	}
	byteVal, _ := p.pop()
	fd, _ := p.pop()

	switch {
	case fd < 0:
		pushResult(p, -1)
	case fd == 1 || fd == 2:
		if s.Console != nil {
			s.Console.WriteByte(byte(byteVal))
		}
		pushResult(p, 1)
	default:
		n, errno := s.FS.WriteFd(int(fd), []byte{byte(byteVal)})
		if errno != vfs.OK {
			pushResult(p, -1)
		} else {
			pushResult(p, int32(n))
		}
	}
}

func (s *Syscalls) sysMsgSend(p *Process) {
	if p.SP < 2 {
		return
	}
	content, _ := p.pop()
	recipient, _ := p.pop()
	if !s.Pool.Queue.Send(p.PID, int(uint16(recipient)), byte(content)) {
		return
	}
	for i := range s.Pool.Processes {
		other := &s.Pool.Processes[i]
		if other.Active && other.PID == int(uint16(recipient)) && other.Blocked {
			other.Blocked = false
			other.WakeupReason = 1
			break
		}
	}
}

func (s *Syscalls) sysMsgReceive(p *Process) {
	msg, ok := s.Pool.Queue.Receive(p.PID)
	if !ok {
		p.Blocked = true
		return
	}
	if p.SP+1 >= StackSize {
		return
	}
	p.Stack[p.SP] = int32(msg.Sender)
	p.Stack[p.SP+1] = int32(msg.Content)
	p.SP += 2
}

func (s *Syscalls) sysPortIn(p *Process) {
	if !p.HasCapability(CapDrvAccess) || p.SP == 0 {
		return
	}
	port := uint16(p.Stack[p.SP-1])
	var val byte
	if s.Ports != nil {
		val = s.Ports.InByte(port)
	}
	p.Stack[p.SP-1] = int32(val)
}

func (s *Syscalls) sysPortOut(p *Process) {
	if !p.HasCapability(CapDrvAccess) || p.SP < 2 {
		return
	}
	val := byte(p.Stack[p.SP-1] & 0xFF)
	port := uint16(p.Stack[p.SP-2] & 0xFFFF)
	p.SP -= 2
	if s.Ports != nil {
		s.Ports.OutByte(port, val)
	}
}

func (s *Syscalls) sysPrint(p *Process) {
	if p.SP < 1 {
		return
	}
	val := byte(p.Stack[p.SP-1] & 0xFF)
	p.SP--
	if s.Console != nil {
		s.Console.WriteByte(val)
	}
}

// sysSpawn reads argc and a target fd off the stack, reads the child's
// bytecode from that fd into an owned buffer, copies each argv string
// reversed into the child's initial stack so its pop-order reads it
// forward, and creates the child
// with CAPS_NONE before copying the parent's capabilities onto it.
func (s *Syscalls) sysSpawn(p *Process) {
	if !p.HasCapability(CapFSRead) || p.SP < 2 {
		pushResult(p, -1)
		return
	}

	targetFD, _ := p.top(0)
	argc, _ := p.top(1)
	if argc < 0 || argc > 32 {
		pushResult(p, -1)
		return
	}
	p.SP -= 2

	argv := make([][]byte, 0, argc)
	stackPos := int(p.SP) - 1
	for len(argv) < int(argc) && stackPos >= 0 {
		endPos := stackPos
		startPos := -1
		for stackPos >= 0 {
			if p.Stack[stackPos] == 0 {
				startPos = stackPos + 1
				break
			}
			stackPos--
		}
		if startPos == -1 || startPos > endPos {
			pushResult(p, -1)
			return
		}
		arg := make([]byte, endPos-startPos+1)
		for i := range arg {
			arg[i] = byte(p.Stack[startPos+i])
		}
		argv = append(argv, arg)
		stackPos = startPos - 2
	}
	p.SP = uint32(stackPos + 1)

	bytecode := make([]byte, 0, 1024)
	for {
		var b [1]byte
		n, errno := s.FS.ReadFd(int(targetFD), b[:])
		if errno != vfs.OK || n != 1 {
			break
		}
		bytecode = append(bytecode, b[0])
	}

	totalStringLen := 0
	for _, a := range argv {
		totalStringLen += len(a) + 1
	}
	stackSize := 1 + int(argc) + totalStringLen
	initialStack := make([]int32, 1, stackSize)
	initialStack[0] = argc

	argvPointersStart := len(initialStack)
	for range argv {
		initialStack = append(initialStack, 0)
	}
	for i, arg := range argv {
		initialStack[argvPointersStart+i] = int32(len(initialStack))
		for j := len(arg) - 1; j >= 0; j-- {
			initialStack = append(initialStack, int32(arg[j]))
		}
		initialStack = append(initialStack, 0)
	}

	childPID, ok := s.Pool.CreateProcessWithStack(bytecode, []Capability{CapsNone}, initialStack)
	if !ok {
		pushResult(p, -1)
		return
	}

	child := &s.Pool.Processes[childPID]
	n := int(p.CapsCount)
	if n > MaxCaps {
		n = MaxCaps
	}
	copy(child.Capabilities[:n], p.Capabilities[:n])
	child.CapsCount = p.CapsCount

	pushResult(p, int32(childPID))
}
