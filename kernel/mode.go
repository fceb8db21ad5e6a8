package kernel

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/evanphx/jos/loader"
	"github.com/evanphx/jos/memory"
)

// Mode captures how environments relate to the kernel's address space. It is
// chosen once at startup.
type Mode interface {
	Name() string

	// Kind returns the kind an environment requested as kind actually gets.
	Kind(kind Kind) Kind

	NewSpace(k *Kernel) (*memory.AddressSpace, error)
	ReleaseSpace(k *Kernel, e *Env)

	InitFrame(k *Kernel, e *Env)

	// Stack returns the top and size of e's initial stack.
	Stack(k *Kernel, e *Env) (top, size uint64)

	// Bind runs after an image's segments are in place.
	Bind(k *Kernel, e *Env, img *loader.Image, b loader.Bounds) error
}

// Isolated gives every environment its own address space running at user
// privilege.
type Isolated struct{}

func (Isolated) Name() string { return "isolated" }

func (Isolated) Kind(kind Kind) Kind { return kind }

func (Isolated) NewSpace(k *Kernel) (*memory.AddressSpace, error) {
	as, err := k.spaces.Create()
	if err != nil {
		return nil, err
	}

	err = k.spaces.Map(as, UEnvsBase, uint64(len(k.uenvs)), k.uenvs, memory.ProtR|memory.ProtUser)
	if err != nil {
		k.spaces.Release(as)
		return nil, err
	}

	return as, nil
}

func (Isolated) ReleaseSpace(k *Kernel, e *Env) {
	k.spaces.Release(e.Space)
}

func (Isolated) InitFrame(k *Kernel, e *Env) {
	e.Tf.DS = GDUserData | 3
	e.Tf.ES = GDUserData | 3
	e.Tf.SS = GDUserData | 3
	e.Tf.CS = GDUserText | 3
	e.Tf.RSP = k.cfg.UserStackTop
}

func (Isolated) Stack(k *Kernel, e *Env) (uint64, uint64) {
	return k.cfg.UserStackTop, k.cfg.UserStackSize
}

func (Isolated) Bind(k *Kernel, e *Env, img *loader.Image, b loader.Bounds) error {
	return nil
}

// Static runs every environment at kernel privilege inside the kernel's own
// address space. Images are linked against the kernel at load time: global
// pointer variables named after kernel functions receive their addresses.
type Static struct{}

func (Static) Name() string { return "static" }

func (Static) Kind(Kind) Kind { return KindKernel }

func (Static) NewSpace(k *Kernel) (*memory.AddressSpace, error) {
	return k.spaces.Kernel(), nil
}

func (Static) ReleaseSpace(*Kernel, *Env) {}

func (Static) InitFrame(k *Kernel, e *Env) {
	e.Tf.DS = GDKernelData
	e.Tf.ES = GDKernelData
	e.Tf.SS = GDKernelData
	e.Tf.CS = GDKernelText
	e.Tf.RSP = StaticStackTop - StaticStackSize*uint64(e.slot)
}

func (Static) Stack(k *Kernel, e *Env) (uint64, uint64) {
	return StaticStackTop - StaticStackSize*uint64(e.slot), StaticStackSize
}

// Bind only writes variables that lie inside the image's own segments; the
// addresses come from the image and are not otherwise trusted.
func (Static) Bind(k *Kernel, e *Env, img *loader.Image, b loader.Bounds) error {
	syms, err := img.ObjectSymbols()
	if err != nil {
		return err
	}

	for _, sym := range syms {
		addr, ok := k.syms.Resolve(sym.Name)
		if !ok {
			continue
		}

		if !b.Contains(sym.Value, sym.Size) {
			k.L.Warn("symbol outside image, not bound",
				"name", sym.Name, "addr", sym.Value, "image-start", b.Start, "image-end", b.End)
			continue
		}

		mem, err := e.Space.Project(sym.Value, sym.Size)
		if err != nil {
			return errors.Wrapf(err, "binding %s", sym.Name)
		}

		binary.LittleEndian.PutUint64(mem, addr)

		k.L.Trace("bound symbol", "name", sym.Name, "var", sym.Value, "func", addr)
	}

	return nil
}
