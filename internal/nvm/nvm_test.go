package nvm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sig() []byte { return []byte{0x4E, 0x56, 0x4D, 0x30} }

func TestCreateProcessRejectsBadSignature(t *testing.T) {
	p := NewPool()
	_, ok := p.CreateProcess([]byte{0, 0, 0, 0}, nil)
	require.False(t, ok)
}

func TestCreateProcessAssignsSlotAsPID(t *testing.T) {
	p := NewPool()
	pid, ok := p.CreateProcess(sig(), nil)
	require.True(t, ok)
	require.Equal(t, pid, p.Processes[pid].PID)
	require.EqualValues(t, 4, p.Processes[pid].IP)
	require.EqualValues(t, -1, p.Processes[pid].FP)
}

func TestHaltSetsInactiveWithZeroExitCode(t *testing.T) {
	p := NewPool()
	pid, _ := p.CreateProcess(append(sig(), opHalt), nil)
	proc := &p.Processes[pid]

	cont := p.ExecuteInstruction(proc, nil, nil)
	require.False(t, cont)
	require.False(t, proc.Active)
	require.EqualValues(t, 0, proc.ExitCode)
}

func TestStackUnderflowFaults(t *testing.T) {
	p := NewPool()
	pid, _ := p.CreateProcess(append(sig(), opPop), nil)
	proc := &p.Processes[pid]

	cont := p.ExecuteInstruction(proc, nil, nil)
	require.False(t, cont)
	require.False(t, proc.Active)
	require.EqualValues(t, -1, proc.ExitCode)
}

func TestPushAddProducesSum(t *testing.T) {
	bc := append(sig(),
		opPush, 0, 0, 0, 2,
		opPush, 0, 0, 0, 3,
		opAdd,
		opHalt,
	)
	p := NewPool()
	pid, _ := p.CreateProcess(bc, nil)
	proc := &p.Processes[pid]

	for proc.Active {
		if !p.ExecuteInstruction(proc, nil, nil) {
			break
		}
	}
	require.EqualValues(t, 5, proc.Stack[0])
}

func TestDivideByZeroFaults(t *testing.T) {
	bc := append(sig(),
		opPush, 0, 0, 0, 1,
		opPush, 0, 0, 0, 0,
		opDiv,
	)
	p := NewPool()
	pid, _ := p.CreateProcess(bc, nil)
	proc := &p.Processes[pid]

	for {
		if !p.ExecuteInstruction(proc, nil, nil) {
			break
		}
	}
	require.False(t, proc.Active)
	require.EqualValues(t, -1, proc.ExitCode)
}

func TestCapabilityGateBlocksAbsAccessWithoutCapDrvAccess(t *testing.T) {
	bc := append(sig(),
		opPush, 0, 0x10, 0, 0,
		opLoadAbs,
	)
	p := NewPool()
	pid, _ := p.CreateProcess(bc, nil)
	proc := &p.Processes[pid]

	for {
		if !p.ExecuteInstruction(proc, nil, nil) {
			break
		}
	}
	require.False(t, proc.Active)
	require.EqualValues(t, -1, proc.ExitCode)
}

func TestCapabilityGateAllowsAbsAccessWithCapDrvAccess(t *testing.T) {
	bc := append(sig(),
		opPush, 0, 0x10, 0, 0,
		opLoadAbs,
		opHalt,
	)
	p := NewPool()
	pid, _ := p.CreateProcess(bc, []Capability{CapDrvAccess})
	proc := &p.Processes[pid]

	mem := &fakeAbsMemory{}
	for {
		if !p.ExecuteInstruction(proc, nil, mem) {
			break
		}
	}
	require.True(t, proc.ExitCode == 0)
}

type fakeAbsMemory struct{ data map[uint32]uint32 }

func (m *fakeAbsMemory) Load32(addr uint32) uint32 {
	if m.data == nil {
		return 0
	}
	return m.data[addr]
}
func (m *fakeAbsMemory) Store32(addr uint32, value uint32) {
	if m.data == nil {
		m.data = map[uint32]uint32{}
	}
	m.data[addr] = value
}
func (m *fakeAbsMemory) Store16(addr uint32, value uint16) {
	m.Store32(addr, uint32(value))
}

func TestMessageSendWakesBlockedRecipient(t *testing.T) {
	p := NewPool()
	senderPID, _ := p.CreateProcess(sig(), nil)
	recvPID, _ := p.CreateProcess(sig(), nil)
	p.Processes[recvPID].Blocked = true

	s := &Syscalls{Pool: p}
	sender := &p.Processes[senderPID]
	sender.Stack[0] = int32(recvPID)
	sender.Stack[1] = 42
	sender.SP = 2

	s.sysMsgSend(sender)

	require.False(t, p.Processes[recvPID].Blocked)
	require.Equal(t, 1, p.Processes[recvPID].WakeupReason)
}

func TestMessageReceiveBlocksWhenEmpty(t *testing.T) {
	p := NewPool()
	pid, _ := p.CreateProcess(sig(), nil)
	proc := &p.Processes[pid]

	s := &Syscalls{Pool: p}
	s.sysMsgReceive(proc)

	require.True(t, proc.Blocked)
}

func TestSchedulerRoundRobinAdvancesCursor(t *testing.T) {
	p := NewPool()
	_, _ = p.CreateProcess(append(sig(), opNop, opNop), nil)
	_, _ = p.CreateProcess(append(sig(), opNop, opNop), nil)

	p.RunQuantum(nil, nil)
	first := p.CurrentProcess
	p.RunQuantum(nil, nil)
	require.NotEqual(t, first, p.CurrentProcess)
}

func TestLoadAbsOutOfRangeAddressIsNoOpNotFault(t *testing.T) {
	bc := append(sig(),
		opPush, 0, 0, 0, 0x50, // addr = 0x50, below the guarded range
		opLoadAbs,
	)
	p := NewPool()
	pid, _ := p.CreateProcess(bc, []Capability{CapDrvAccess})
	proc := &p.Processes[pid]
	mem := &fakeAbsMemory{}

	require.True(t, p.ExecuteInstruction(proc, nil, mem)) // PUSH
	require.True(t, p.ExecuteInstruction(proc, nil, mem)) // LOAD_ABS
	require.True(t, proc.Active)
	require.EqualValues(t, 1, proc.SP)
	require.EqualValues(t, 0x50, proc.Stack[0])
}

func TestStoreAbsOutOfRangeAddressIsNoOpNotFault(t *testing.T) {
	bc := append(sig(),
		opPush, 0, 0, 0, 0x50, // addr, out of range
		opPush, 0, 0, 0, 7, // value
		opStoreAbs,
	)
	p := NewPool()
	pid, _ := p.CreateProcess(bc, []Capability{CapDrvAccess})
	proc := &p.Processes[pid]
	mem := &fakeAbsMemory{}

	require.True(t, p.ExecuteInstruction(proc, nil, mem)) // PUSH addr
	require.True(t, p.ExecuteInstruction(proc, nil, mem)) // PUSH value
	require.True(t, p.ExecuteInstruction(proc, nil, mem)) // STORE_ABS
	require.True(t, proc.Active)
	require.EqualValues(t, 2, proc.SP, "out-of-range STORE_ABS must leave both operands on the stack")
	require.EqualValues(t, 0x50, proc.Stack[0])
	require.EqualValues(t, 7, proc.Stack[1])
	require.Empty(t, mem.data)
}

func TestStoreAbsVGAWindowWritesSixteenBits(t *testing.T) {
	bc := append(sig(),
		opPush, 0x00, 0x0B, 0x80, 0x00, // addr = 0xB8000, inside the VGA window
		opPush, 0x00, 0x01, 0x02, 0x03, // value = 0x00010203
		opStoreAbs,
	)
	p := NewPool()
	pid, _ := p.CreateProcess(bc, []Capability{CapDrvAccess})
	proc := &p.Processes[pid]
	mem := &fakeAbsMemory{}

	require.True(t, p.ExecuteInstruction(proc, nil, mem)) // PUSH addr
	require.True(t, p.ExecuteInstruction(proc, nil, mem)) // PUSH value
	require.True(t, p.ExecuteInstruction(proc, nil, mem)) // STORE_ABS

	require.EqualValues(t, 0, proc.SP, "a successful STORE_ABS consumes both operands")
	require.EqualValues(t, 0x0203, mem.data[0xB8000], "VGA-window writes must truncate to 16 bits")
}
