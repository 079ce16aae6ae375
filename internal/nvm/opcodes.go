package nvm

import "github.com/novariaos/novariaos-src/internal/klog"

const (
	opHalt      = 0x00
	opNop       = 0x01
	opPush      = 0x02
	opPop       = 0x04
	opDup       = 0x05
	opSwap      = 0x06
	opAdd       = 0x10
	opSub       = 0x11
	opMul       = 0x12
	opDiv       = 0x13
	opMod       = 0x14
	opCmp       = 0x20
	opEq        = 0x21
	opNeq       = 0x22
	opGt        = 0x23
	opLt        = 0x24
	opJmp       = 0x30
	opJz        = 0x31
	opJnz       = 0x32
	opCall      = 0x33
	opRet       = 0x34
	opEnter     = 0x35
	opLeave     = 0x36
	opLoadArg   = 0x37
	opStoreArg  = 0x38
	opLoad      = 0x40
	opStore     = 0x41
	opLoadRel   = 0x42
	opStoreRel  = 0x43
	opLoadAbs   = 0x44
	opStoreAbs  = 0x45
	opSyscall   = 0x50
	opBreak     = 0x51
)

func (p *Process) fetchByte() (byte, bool) {
	if p.IP >= p.Size {
		return 0, false
	}
	b := p.Bytecode[p.IP]
	p.IP++
	return b, true
}

func (p *Process) fetchU32BE() (uint32, bool) {
	if p.IP+4 > p.Size {
		return 0, false
	}
	v := uint32(p.Bytecode[p.IP])<<24 | uint32(p.Bytecode[p.IP+1])<<16 |
		uint32(p.Bytecode[p.IP+2])<<8 | uint32(p.Bytecode[p.IP+3])
	p.IP += 4
	return v, true
}

func (p *Process) push(v int32) bool {
	if p.SP >= StackSize {
		return false
	}
	p.Stack[p.SP] = v
	p.SP++
	return true
}

func (p *Process) pop() (int32, bool) {
	if p.SP == 0 {
		return 0, false
	}
	p.SP--
	return p.Stack[p.SP], true
}

func (p *Process) top(depthFromTop uint32) (int32, bool) {
	if p.SP < depthFromTop+1 {
		return 0, false
	}
	return p.Stack[p.SP-1-depthFromTop], true
}

// abs32Addr enforces the guarded LOAD_ABS/STORE_ABS address ranges.
func abs32Addr(addr uint32) bool {
	if addr >= 0x100000 && addr < 0xFFFFFFFF {
		return true
	}
	if isVGAWindow(addr) {
		return true
	}
	return false
}

// isVGAWindow reports whether addr falls in the text-VGA window, where
// STORE_ABS writes 16 bits instead of 32.
func isVGAWindow(addr uint32) bool {
	return addr >= 0xB8000 && addr <= 0xB8FA0
}

// SyscallHandler is injected by the owning kernel (it needs VFS, the message
// queue, and I/O ports, none of which this package depends on directly) so
// opcodes.go stays a pure stack machine.
type SyscallHandler func(p *Process, id uint8) bool

// ExecuteInstruction decodes and runs one instruction, implementing the
// uniform fault policy: any guarded violation sets active=false,
// exit_code=-1, and returns false.
func (pool *Pool) ExecuteInstruction(proc *Process, syscall SyscallHandler, abs AbsMemory) bool {
	if proc.IP >= proc.Size {
		pool.Terminate(proc, 0)
		return false
	}

	op, ok := proc.fetchByte()
	if !ok {
		return pool.fault(proc)
	}

	switch op {
	case opHalt:
		pool.Terminate(proc, 0)
		return false

	case opNop:
		return true

	case opPush:
		imm, ok := proc.fetchU32BE()
		if !ok {
			return pool.fault(proc)
		}
		if !proc.push(int32(imm)) {
			return pool.fault(proc)
		}
		return true

	case opPop:
		if _, ok := proc.pop(); !ok {
			return pool.fault(proc)
		}
		return true

	case opDup:
		v, ok := proc.top(0)
		if !ok || !proc.push(v) {
			return pool.fault(proc)
		}
		return true

	case opSwap:
		a, ok1 := proc.pop()
		b, ok2 := proc.pop()
		if !ok1 || !ok2 {
			return pool.fault(proc)
		}
		proc.push(a)
		proc.push(b)
		return true

	case opAdd, opSub, opMul, opDiv, opMod:
		return pool.binArith(proc, op)

	case opCmp, opEq, opNeq, opGt, opLt:
		return pool.binCompare(proc, op)

	case opJmp:
		addr, ok := proc.fetchU32BE()
		if !ok || addr < 4 || addr >= proc.Size {
			return pool.fault(proc)
		}
		proc.IP = addr
		return true

	case opJz, opJnz:
		addr, ok := proc.fetchU32BE()
		if !ok {
			return pool.fault(proc)
		}
		v, ok := proc.pop()
		if !ok {
			return pool.fault(proc)
		}
		take := (op == opJz && v == 0) || (op == opJnz && v != 0)
		if take {
			if addr < 4 || addr >= proc.Size {
				return pool.fault(proc)
			}
			proc.IP = addr
		}
		return true

	case opCall:
		addr, ok := proc.fetchU32BE()
		if !ok {
			return pool.fault(proc)
		}
		if !proc.push(int32(proc.IP)) {
			return pool.fault(proc)
		}
		if addr < 4 || addr >= proc.Size {
			return pool.fault(proc)
		}
		proc.IP = addr
		return true

	case opRet:
		addr, ok := proc.pop()
		if !ok {
			return pool.fault(proc)
		}
		if uint32(addr) >= proc.Size {
			return pool.fault(proc)
		}
		proc.IP = uint32(addr)
		return true

	case opEnter:
		n, ok := proc.fetchByte()
		if !ok {
			return pool.fault(proc)
		}
		if !proc.push(proc.FP) {
			return pool.fault(proc)
		}
		proc.FP = int32(proc.SP) - 1
		for i := byte(0); i < n; i++ {
			if !proc.push(0) {
				return pool.fault(proc)
			}
		}
		return true

	case opLeave:
		if proc.FP < 0 {
			return pool.fault(proc)
		}
		proc.SP = uint32(proc.FP) + 1
		oldFP, ok := proc.pop()
		if !ok {
			return pool.fault(proc)
		}
		proc.FP = oldFP
		return true

	case opLoadArg, opStoreArg:
		off, ok := proc.fetchByte()
		if !ok || proc.FP < 2 {
			return pool.fault(proc)
		}
		idx := proc.FP - 2 - int32(off)
		if idx < 0 || idx >= int32(StackSize) {
			return pool.fault(proc)
		}
		if op == opLoadArg {
			if !proc.push(proc.Stack[idx]) {
				return pool.fault(proc)
			}
		} else {
			v, ok := proc.pop()
			if !ok {
				return pool.fault(proc)
			}
			proc.Stack[idx] = v
		}
		return true

	case opLoad, opStore:
		idx, ok := proc.fetchByte()
		if !ok || int(idx) >= MaxLocals {
			return pool.fault(proc)
		}
		if op == opLoad {
			if !proc.push(proc.Locals[idx]) {
				return pool.fault(proc)
			}
		} else {
			v, ok := proc.pop()
			if !ok {
				return pool.fault(proc)
			}
			proc.Locals[idx] = v
		}
		return true

	case opLoadRel, opStoreRel:
		off, ok := proc.fetchByte()
		if !ok || proc.FP < 0 {
			return pool.fault(proc)
		}
		idx := proc.FP + 1 + int32(off)
		if idx < 0 || idx >= int32(StackSize) {
			return pool.fault(proc)
		}
		if op == opLoadRel {
			if !proc.push(proc.Stack[idx]) {
				return pool.fault(proc)
			}
		} else {
			v, ok := proc.pop()
			if !ok {
				return pool.fault(proc)
			}
			proc.Stack[idx] = v
		}
		return true

	case opLoadAbs:
		if !proc.HasCapability(CapDrvAccess) {
			return pool.fault(proc)
		}
		// An out-of-range address is not a fault: it's a silent no-op
		// that leaves the address on top of the stack, matching the
		// original's "if in range" guard around the load.
		if addr, ok := proc.top(0); ok && abs32Addr(uint32(addr)) {
			proc.Stack[proc.SP-1] = int32(abs.Load32(uint32(addr)))
		}
		return true

	case opStoreAbs:
		if !proc.HasCapability(CapDrvAccess) {
			return pool.fault(proc)
		}
		// Same no-op-on-out-of-range contract as LOAD_ABS: both operands
		// stay on the stack and sp is untouched unless the address is
		// actually written.
		value, ok1 := proc.top(0)
		addr, ok2 := proc.top(1)
		if ok1 && ok2 && abs32Addr(uint32(addr)) {
			if isVGAWindow(uint32(addr)) {
				abs.Store16(uint32(addr), uint16(value))
			} else {
				abs.Store32(uint32(addr), uint32(value))
			}
			proc.SP -= 2
		}
		return true

	case opSyscall:
		id, ok := proc.fetchByte()
		if !ok {
			return pool.fault(proc)
		}
		if syscall == nil {
			return pool.fault(proc)
		}
		return syscall(proc, id)

	case opBreak:
		klog.Info("nvm: BREAK at pid=%d ip=%d", proc.PID, proc.IP)
		return true

	default:
		return pool.fault(proc)
	}
}

func (pool *Pool) binArith(proc *Process, op byte) bool {
	b, ok1 := proc.pop()
	a, ok2 := proc.pop()
	if !ok1 || !ok2 {
		return pool.fault(proc)
	}
	var result int32
	switch op {
	case opAdd:
		result = a + b
	case opSub:
		result = a - b
	case opMul:
		result = a * b
	case opDiv:
		if b == 0 {
			return pool.fault(proc)
		}
		result = a / b
	case opMod:
		if b == 0 {
			return pool.fault(proc)
		}
		result = a % b
	}
	if !proc.push(result) {
		return pool.fault(proc)
	}
	return true
}

func (pool *Pool) binCompare(proc *Process, op byte) bool {
	top, ok1 := proc.pop()
	second, ok2 := proc.pop()
	if !ok1 || !ok2 {
		return pool.fault(proc)
	}
	var result int32
	switch op {
	case opCmp:
		switch {
		case second < top:
			result = -1
		case second > top:
			result = 1
		default:
			result = 0
		}
	case opEq:
		if second == top {
			result = 1
		}
	case opNeq:
		if second != top {
			result = 1
		}
	case opGt:
		if second > top {
			result = 1
		}
	case opLt:
		if second < top {
			result = 1
		}
	}
	if !proc.push(result) {
		return pool.fault(proc)
	}
	return true
}

// AbsMemory backs LOAD_ABS/STORE_ABS; the kernel supplies a concrete
// implementation over its simulated physical address space and VGA text
// window, keeping opcodes.go free of hardware/board specifics.
type AbsMemory interface {
	Load32(addr uint32) uint32
	Store32(addr uint32, value uint32)
	// Store16 backs STORE_ABS writes that land in the text-VGA window
	// (0xB8000-0xB8FA0), where the original writes a uint16_t instead of
	// a full int32_t.
	Store16(addr uint32, value uint16)
}
