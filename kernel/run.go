package kernel

// Run switches the processor to e. It does not return.
func (k *Kernel) Run(e *Env) {
	if e == nil {
		k.fatalf("run: nil environment")
	}

	if k.cfg.TraceEnvsMore {
		if k.cur != nil {
			k.L.Info(fmtEnvEvent(k.cur, "stopped"))
		}
		k.L.Info(fmtEnvEvent(e, "started"))
	}

	if k.cur != nil && k.cur.Status == Running {
		k.cur.Status = Runnable
		k.publish(k.cur)
	}

	if e.Status != Runnable {
		k.fatalf("run: env %08x is not runnable (%s)", uint32(e.ID), e.Status)
	}

	k.cur = e
	e.Status = Running
	e.Runs++

	k.publish(e)
	k.events.Notify(EnvDispatched)

	k.spaces.Switch(e.Space)

	k.cpu.Resume(&e.Tf)

	k.fatalf("run: resume returned for env %08x", uint32(e.ID))
}
