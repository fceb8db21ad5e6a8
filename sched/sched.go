package sched

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/evanphx/jos/kernel"
	"github.com/evanphx/jos/log"
)

// Halter stops the processor once nothing is left to run. Halt does not
// return.
type Halter interface {
	Halt()
}

// RoundRobin walks the table circularly starting after the current
// environment and runs the first runnable one it finds.
type RoundRobin struct {
	L hclog.Logger

	k    *kernel.Kernel
	halt Halter
}

func NewRoundRobin(k *kernel.Kernel, h Halter) *RoundRobin {
	return &RoundRobin{
		L:    log.L.Named("sched"),
		k:    k,
		halt: h,
	}
}

// Next returns the environment Yield would dispatch, or nil if it would halt.
func (r *RoundRobin) Next() *kernel.Env {
	n := r.k.NumEnvs()

	start := 0
	cur := r.k.Current()
	if cur != nil {
		start = cur.Slot() + 1
	}

	for i := 0; i < n; i++ {
		e := r.k.Env((start + i) % n)
		if e.Status == kernel.Runnable {
			return e
		}
	}

	if cur != nil && cur.Status == kernel.Running {
		return cur
	}

	return nil
}

func (r *RoundRobin) Yield() {
	e := r.Next()
	if e == nil {
		r.L.Debug("no runnable environments, halting")
		r.halt.Halt()
		panic("sched: halt returned")
	}

	if e == r.k.Current() {
		// Still ours; make it eligible again before redispatching.
		e.Status = kernel.Runnable
	}

	r.k.Run(e)
}
