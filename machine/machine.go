// Package machine simulates the processor the kernel core runs on.
//
// On hardware, resuming an environment pops its frame with iretq and the
// kernel is only entered again through a trap. Here Resume records the frame
// and unwinds the Go stack back to the boot loop as a timer interrupt, which
// then re-enters the kernel through its trap handler. That keeps every
// dispatch a true non-returning call without the stack growing per switch.
package machine

import (
	"github.com/davecgh/go-spew/spew"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/jos/kernel"
	"github.com/evanphx/jos/log"
)

const TrapTimer = 32

var ErrReturned = errors.New("control returned to the boot loop")

type interrupt struct {
	frame kernel.Trapframe
}

type halted struct{}

type Machine struct {
	L hclog.Logger

	// MaxTicks bounds how many timer interrupts Boot delivers; 0 is unlimited.
	MaxTicks int

	handler func(tf *kernel.Trapframe)

	ticks   int
	resumes []kernel.Trapframe
}

func New(handler func(tf *kernel.Trapframe)) *Machine {
	return &Machine{
		L:       log.L.Named("machine"),
		handler: handler,
	}
}

func (m *Machine) SetHandler(h func(tf *kernel.Trapframe)) {
	m.handler = h
}

func (m *Machine) Ticks() int {
	return m.ticks
}

// Resumes returns every frame the machine was asked to resume, oldest first.
func (m *Machine) Resumes() []kernel.Trapframe {
	return m.resumes
}

// Resume restores tf and runs until the next timer tick.
func (m *Machine) Resume(tf *kernel.Trapframe) {
	m.resumes = append(m.resumes, *tf)

	if m.L.IsTrace() {
		m.L.Trace("iretq", "rip", hclog.Fmt("%#x", tf.RIP), "frame", spew.Sdump(tf))
	}

	frame := *tf
	frame.Trapno = TrapTimer

	panic(&interrupt{frame: frame})
}

func (m *Machine) Halt() {
	panic(halted{})
}

// Boot runs entry and then services interrupts until the machine halts, the
// tick budget runs out or the kernel panics. A kernel panic is returned as a
// *kernel.Fault.
func (m *Machine) Boot(entry func()) error {
	next := entry

	for next != nil {
		var err error

		next, err = m.step(next)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *Machine) step(f func()) (next func(), err error) {
	defer func() {
		r := recover()

		switch v := r.(type) {
		case nil:
		case *interrupt:
			m.ticks++

			if m.MaxTicks != 0 && m.ticks >= m.MaxTicks {
				m.L.Debug("tick budget exhausted", "ticks", m.ticks)
				next, err = nil, nil
				return
			}

			next, err = func() { m.handler(&v.frame) }, nil
		case halted:
			m.L.Debug("halted", "ticks", m.ticks)
			next, err = nil, nil
		case *kernel.Fault:
			next, err = nil, v
		default:
			panic(r)
		}
	}()

	f()

	return nil, ErrReturned
}
