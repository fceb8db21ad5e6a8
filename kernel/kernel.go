package kernel

import (
	"fmt"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/evanphx/jos/loader"
	"github.com/evanphx/jos/log"
	"github.com/evanphx/jos/memory"
	"github.com/evanphx/jos/pkg/waiter"
)

// AddressSpaces creates, switches, releases and populates address spaces.
// memory.Manager is the implementation used outside of tests.
type AddressSpaces interface {
	Kernel() *memory.AddressSpace
	Active() *memory.AddressSpace
	Create() (*memory.AddressSpace, error)
	Switch(as *memory.AddressSpace) *memory.AddressSpace
	Release(as *memory.AddressSpace)
	Map(as *memory.AddressSpace, addr, size uint64, backing []byte, prot memory.Prot) error
}

// CPU restores a saved frame and transfers control to it. Resume does not
// return.
type CPU interface {
	Resume(tf *Trapframe)
}

// Scheduler picks some runnable environment and dispatches it. Yield does not
// return.
type Scheduler interface {
	Yield()
}

type SymbolResolver interface {
	Resolve(name string) (uint64, bool)
}

// ArgBuilder writes an argument vector onto the stack ending at top and
// returns the new stack top.
type ArgBuilder interface {
	BuildArgs(as *memory.AddressSpace, top uint64) (uint64, error)
}

const (
	_ waiter.EventType = 1 << iota
	EnvAllocated
	EnvFreed
	EnvDispatched
)

// Kernel is the single owner of the environment table, the free slots and the
// current environment. None of it is locked: the core assumes one processor
// with interrupts off while it runs. A multi-core build must guard envs, free
// and cur with a lock.
type Kernel struct {
	L hclog.Logger

	cfg    Config
	mode   Mode
	spaces AddressSpaces
	cpu    CPU
	sched  Scheduler
	syms   SymbolResolver
	args   ArgBuilder
	loader *loader.Loader
	events waiter.Waiter

	envs []Env

	// Free slots; the last element is handed out next.
	free []int

	cur *Env

	inPageFault bool

	uenvs []byte
}

func NewKernel(cfg Config, spaces AddressSpaces, cpu CPU) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		L:      log.L.Named("kernel"),
		cfg:    cfg,
		mode:   cfg.Mode,
		spaces: spaces,
		cpu:    cpu,
		syms:   SymbolTable{},
		args:   DefaultFSArgs(),
		loader: loader.NewLoader(nil),
	}

	if err := k.initTable(); err != nil {
		return nil, err
	}

	k.L.Debug("kernel initialized", "mode", k.mode.Name(), "envs", cfg.MaxEnvs)

	return k, nil
}

// initTable marks every slot free so that allocation hands out slot 0 first,
// then 1 and so on, and maps the read-only table view.
func (k *Kernel) initTable() error {
	n := k.cfg.MaxEnvs

	k.envs = make([]Env, n)
	k.free = make([]int, 0, n)

	for i := n - 1; i >= 0; i-- {
		k.envs[i].slot = i
		k.free = append(k.free, i)
	}

	k.uenvs = make([]byte, memory.RoundUp(uint64(n*EnvRecordSize)))

	err := k.spaces.Map(k.spaces.Kernel(), UEnvsBase, uint64(len(k.uenvs)), k.uenvs, memory.ProtR|memory.ProtUser)
	if err != nil {
		return err
	}

	for i := range k.envs {
		k.publish(&k.envs[i])
	}

	return nil
}

func (k *Kernel) SetScheduler(s Scheduler) {
	k.sched = s
}

func (k *Kernel) SetSymbols(r SymbolResolver) {
	k.syms = r
}

func (k *Kernel) SetArgBuilder(a ArgBuilder) {
	k.args = a
}

func (k *Kernel) SetLoader(l *loader.Loader) {
	k.loader = l
}

func (k *Kernel) Config() Config {
	return k.cfg
}

func (k *Kernel) Mode() Mode {
	return k.mode
}

func (k *Kernel) Spaces() AddressSpaces {
	return k.spaces
}

func (k *Kernel) Events() *waiter.Waiter {
	return &k.events
}

// Current is the environment most recently dispatched, or nil before the
// first dispatch.
func (k *Kernel) Current() *Env {
	return k.cur
}

func (k *Kernel) NumEnvs() int {
	return len(k.envs)
}

func (k *Kernel) Env(slot int) *Env {
	return &k.envs[slot]
}

func (k *Kernel) NumFree() int {
	return len(k.free)
}

func (k *Kernel) InPageFault() bool {
	return k.inPageFault
}

func (k *Kernel) SetInPageFault(v bool) {
	k.inPageFault = v
}

func (k *Kernel) curID() EnvID {
	if k.cur == nil {
		return 0
	}

	return k.cur.ID
}

func (k *Kernel) trace(format string, args ...interface{}) {
	if k.cfg.TraceEnvs {
		k.L.Info(fmt.Sprintf(format, args...))
	}
}

func fmtEnvEvent(e *Env, what string) string {
	return fmt.Sprintf("[%08X] env %s: %s", uint32(e.ID), what, e.Status)
}
