package kernel

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/evanphx/jos/memory"
)

type Kind uint32

const (
	KindKernel Kind = iota
	KindUser
	KindFS
)

func (k Kind) String() string {
	switch k {
	case KindKernel:
		return "kernel"
	case KindUser:
		return "user"
	case KindFS:
		return "fs"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "kernel":
		return KindKernel, nil
	case "user", "":
		return KindUser, nil
	case "fs":
		return KindFS, nil
	default:
		return 0, errors.Wrapf(ErrBadKind, "unknown environment kind %q", s)
	}
}

type Status uint32

const (
	Free Status = iota
	Dying
	Runnable
	Running
	NotRunnable
)

var statusNames = [...]string{"FREE", "DYING", "RUNNABLE", "RUNNING", "NOT_RUNNABLE"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}

	return fmt.Sprintf("STATUS(%d)", uint32(s))
}

// Segment selectors and flag bits used when building an initial frame.
const (
	GDKernelText = 0x08
	GDKernelData = 0x10
	GDUserText   = 0x18
	GDUserData   = 0x20

	FlagIF    = 0x200
	FlagIOPL3 = 0x3000
)

type PushRegs struct {
	R15, R14, R13, R12 uint64
	R11, R10, R9, R8   uint64
	RSI, RDI, RBP      uint64
	RDX, RCX, RBX, RAX uint64
}

// Trapframe is the register state saved on kernel entry and restored verbatim
// on dispatch.
type Trapframe struct {
	Regs   PushRegs
	ES     uint16
	DS     uint16
	Trapno uint64
	Err    uint64
	RIP    uint64
	CS     uint16
	RFLAGS uint64
	RSP    uint64
	SS     uint16
}

// Env is an environment control block. Blocks live in the kernel's table and
// are never copied out of it.
type Env struct {
	ID       EnvID
	ParentID EnvID
	Kind     Kind
	Status   Status
	Runs     uint32

	Tf Trapframe

	PgFaultUpcall uint64
	IPCRecving    bool

	Space *memory.AddressSpace
	Image []byte

	slot int
}

func (e *Env) Slot() int {
	return e.slot
}

func (e *Env) String() string {
	return fmt.Sprintf("env %08x (%s, %s)", uint32(e.ID), e.Kind, e.Status)
}
