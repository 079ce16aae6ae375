// Package nvm implements the byte-code interpreter: a fixed pool of
// cooperatively scheduled stack-machine processes, their capability-gated
// syscalls, and the round-robin scheduler driving them.
package nvm

import (
	"github.com/google/uuid"

	"github.com/novariaos/novariaos-src/internal/ioport"
	"github.com/novariaos/novariaos-src/internal/klog"
)

const (
	MaxProcesses = 64
	StackSize    = 256
	MaxLocals    = 32

	sigByte0, sigByte1, sigByte2, sigByte3 = 0x4E, 0x56, 0x4D, 0x30 // "NVM0"
)

// Process is one slot of the fixed process pool (nvm_process_t). Generation
// is a design-note addition: two incarnations that reuse the same pid slot
// are distinguishable in logs even though the wire-visible pid is the bare
// slot index.
type Process struct {
	Generation uuid.UUID

	Bytecode []byte
	IP       uint32
	Size     uint32

	Stack [StackSize]int32
	SP    uint32
	FP    int32

	Locals [MaxLocals]int32

	Capabilities [MaxCaps]Capability
	CapsCount    uint8

	PID       int
	Active    bool
	Blocked   bool
	WakeupReason int
	ExitCode  int32
}

// Pool is the kernel state record for the NVM process table, replacing the
// C original's global `processes[MAX_PROCESSES]` array.
type Pool struct {
	lock ioport.Spinlock

	Processes      [MaxProcesses]Process
	CurrentProcess uint8
	TimerTicks     uint32

	Queue *MessageQueue

	OnProcessBirth func(*Process)
	OnProcessDeath func(*Process)
}

func NewPool() *Pool {
	p := &Pool{Queue: NewMessageQueue()}
	p.lock.Init()
	return p
}

func validSignature(bytecode []byte) bool {
	return len(bytecode) >= 4 &&
		bytecode[0] == sigByte0 && bytecode[1] == sigByte1 &&
		bytecode[2] == sigByte2 && bytecode[3] == sigByte3
}

// CreateProcess mirrors nvm_create_process: validate signature, claim the
// first inactive slot, seed capabilities, and register with procfs via the
// OnProcessBirth hook.
func (p *Pool) CreateProcess(bytecode []byte, caps []Capability) (int, bool) {
	if !validSignature(bytecode) {
		klog.Warn("nvm: invalid NVM signature")
		return -1, false
	}

	p.lock.Acquire()
	defer p.lock.Release()

	for i := range p.Processes {
		if p.Processes[i].Active {
			continue
		}
		proc := &p.Processes[i]
		*proc = Process{
			Generation: uuid.New(),
			Bytecode:   bytecode,
			IP:         4,
			Size:       uint32(len(bytecode)),
			Active:     true,
			PID:        i,
			FP:         -1,
		}
		n := len(caps)
		if n > MaxCaps {
			n = MaxCaps
		}
		copy(proc.Capabilities[:n], caps[:n])
		proc.CapsCount = uint8(n)

		if p.OnProcessBirth != nil {
			p.OnProcessBirth(proc)
		}
		return i, true
	}

	klog.Warn("nvm: no free process slots")
	return -1, false
}

// CreateProcessWithStack mirrors nvm_create_process_with_stack: seeds the
// stack with a flat main(argc, argv) encoding before the process's first
// instruction runs. stackValues is copied verbatim; the argv character
// reversal required by the encoding is performed by the caller (syscall.go
// for SYS_SPAWN) since only it knows which offsets are string payloads.
func (p *Pool) CreateProcessWithStack(bytecode []byte, caps []Capability, stackValues []int32) (int, bool) {
	if !validSignature(bytecode) {
		klog.Warn("nvm: invalid NVM signature")
		return -1, false
	}
	if len(stackValues) > StackSize {
		klog.Warn("nvm: initial stack count %d exceeds StackSize %d", len(stackValues), StackSize)
		return -1, false
	}

	p.lock.Acquire()
	defer p.lock.Release()

	for i := range p.Processes {
		if p.Processes[i].Active {
			continue
		}
		proc := &p.Processes[i]
		*proc = Process{
			Generation: uuid.New(),
			Bytecode:   bytecode,
			IP:         4,
			Size:       uint32(len(bytecode)),
			Active:     true,
			PID:        i,
			FP:         -1,
		}
		n := len(caps)
		if n > MaxCaps {
			n = MaxCaps
		}
		copy(proc.Capabilities[:n], caps[:n])
		proc.CapsCount = uint8(n)

		copy(proc.Stack[:len(stackValues)], stackValues)
		proc.SP = uint32(len(stackValues))

		if p.OnProcessBirth != nil {
			p.OnProcessBirth(proc)
		}
		return i, true
	}

	klog.Warn("nvm: no free process slots")
	return -1, false
}

// Terminate marks the process inactive and invokes OnProcessDeath, the
// counterpart of procfs_unregister at EXIT/fault time.
func (p *Pool) Terminate(proc *Process, exitCode int32) {
	proc.Active = false
	proc.ExitCode = exitCode
	if p.OnProcessDeath != nil {
		p.OnProcessDeath(proc)
	}
}

func (p *Pool) fault(proc *Process) bool {
	proc.Active = false
	proc.ExitCode = -1
	if p.OnProcessDeath != nil {
		p.OnProcessDeath(proc)
	}
	return false
}
