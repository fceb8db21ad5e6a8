package kernel

// Create seeds a new environment from image during bootstrap. There is no one
// to report a failure to, so any failure halts the kernel.
func (k *Kernel) Create(image []byte, kind Kind) *Env {
	e, err := k.Allocate(0, kind)
	if err != nil {
		k.fatalf("create: no free environment: %v", err)
	}

	if err := k.Load(e, image); err != nil {
		k.Free(e)
		k.fatalf("create: failed to load executable: %v", err)
	}

	e.Image = image

	if kind == KindUser || kind == KindFS {
		e.Tf.RFLAGS |= FlagIOPL3
	}

	return e
}

// Free returns e and its address space. The id stays in the slot so stale
// handles keep failing until the slot is reused.
func (k *Kernel) Free(e *Env) {
	if e.Status == Free {
		k.fatalf("freeing free env %08x", uint32(e.ID))
	}

	k.trace("[%08x] free env %08x", uint32(k.curID()), uint32(e.ID))
	k.L.Trace("env-free", "id", e.ID, "slot", e.slot)

	// Never tear down the page tables we are running on.
	if e.Space == k.spaces.Active() {
		k.spaces.Switch(k.spaces.Kernel())
	}

	k.mode.ReleaseSpace(k, e)

	e.Status = Free
	e.Space = nil
	e.Image = nil

	k.free = append(k.free, e.slot)

	k.publish(e)

	k.events.Notify(EnvFreed)
}

// Destroy frees e. When e is the current environment the scheduler takes over
// and Destroy does not return.
func (k *Kernel) Destroy(e *Env) {
	k.Free(e)

	// A faulting environment being torn down must not leave the fault
	// recovery state armed.
	k.inPageFault = false

	if k.cur == e {
		k.yield()
	}
}

// Exit destroys the current environment.
func (k *Kernel) Exit() {
	if k.cur == nil {
		k.fatalf("exit with no current environment")
	}

	k.Destroy(k.cur)
}

// Trap records tf as the current environment's state after it entered the
// kernel and gives the processor to the scheduler.
func (k *Kernel) Trap(tf *Trapframe) {
	if k.cur == nil {
		k.fatalf("trap with no current environment")
	}

	if k.cur.Status == Running {
		k.cur.Tf = *tf
	}

	k.yield()
}

func (k *Kernel) yield() {
	if k.sched == nil {
		k.fatalf("no scheduler installed")
	}

	k.sched.Yield()

	k.fatalf("scheduler returned")
}
