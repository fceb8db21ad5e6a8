package kernel

import (
	"github.com/pkg/errors"
)

// Lookup resolves id to an environment on behalf of requestor. Id 0 always
// names requestor itself and fails when there is none. With checkPerm set, the target must be requestor or
// one of its immediate children.
func (k *Kernel) Lookup(id EnvID, requestor *Env, checkPerm bool) (*Env, error) {
	if id == 0 {
		if requestor == nil {
			return nil, errors.Wrap(ErrBadEnv, "no calling environment")
		}

		return requestor, nil
	}

	slot := id.Slot()
	if slot >= len(k.envs) {
		return nil, errors.Wrapf(ErrBadEnv, "env %08x: slot out of range", uint32(id))
	}

	e := &k.envs[slot]

	// Comparing the full id rejects handles to a previous occupant.
	if e.Status == Free || e.ID != id {
		return nil, errors.Wrapf(ErrBadEnv, "env %08x: stale or free", uint32(id))
	}

	if checkPerm && e != requestor && (requestor == nil || e.ParentID != requestor.ID) {
		return nil, errors.Wrapf(ErrBadEnv, "env %08x: permission denied", uint32(id))
	}

	return e, nil
}

// Allocate takes the next free slot and prepares a runnable environment in it
// with a fresh address space and a clean register frame.
func (k *Kernel) Allocate(parent EnvID, kind Kind) (*Env, error) {
	if len(k.free) == 0 {
		return nil, errors.Wrapf(ErrNoFreeEnv, "all %d slots in use", len(k.envs))
	}

	slot := k.free[len(k.free)-1]
	e := &k.envs[slot]

	// The slot stays on the free list until nothing else can fail.
	space, err := k.mode.NewSpace(k)
	if err != nil {
		return nil, errors.Wrapf(err, "allocating address space for slot %d", slot)
	}

	*e = Env{
		ID:       nextEnvID(e.ID, slot),
		ParentID: parent,
		Kind:     k.mode.Kind(kind),
		Status:   Runnable,
		Space:    space,
		slot:     slot,
	}

	e.Tf.RFLAGS = FlagIF
	if kind == KindFS {
		e.Tf.RFLAGS |= FlagIOPL3
	}

	k.mode.InitFrame(k, e)

	k.free = k.free[:len(k.free)-1]

	k.publish(e)

	k.trace("[%08x] new env %08x", uint32(k.curID()), uint32(e.ID))
	k.L.Trace("env-alloc", "id", e.ID, "parent", parent, "kind", e.Kind, "slot", slot)

	k.events.Notify(EnvAllocated)

	return e, nil
}
