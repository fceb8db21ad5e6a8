package kernel

import (
	"github.com/pkg/errors"

	"github.com/evanphx/jos/memory"
)

// Load places image into e's address space, maps its initial stack and points
// its frame at the image entry. A failure may leave some segments mapped; e
// itself stays allocated.
func (k *Kernel) Load(e *Env, image []byte) error {
	img, err := k.loader.Parse(image)
	if err != nil {
		return err
	}

	prev := k.spaces.Switch(e.Space)
	defer k.spaces.Switch(prev)

	bounds, err := img.Place(k.spaces, e.Space)
	if err != nil {
		return errors.Wrapf(err, "loading env %08x", uint32(e.ID))
	}

	top, size := k.mode.Stack(k, e)

	err = k.spaces.Map(e.Space, top-size, size, nil, memory.ProtR|memory.ProtW|memory.ProtUser)
	if err != nil {
		return errors.Wrapf(err, "mapping stack for env %08x", uint32(e.ID))
	}

	e.Tf.RIP = img.Entry()

	if err := k.mode.Bind(k, e, img, bounds); err != nil {
		return err
	}

	if e.Kind == KindFS {
		rsp, err := k.args.BuildArgs(e.Space, e.Tf.RSP)
		if err != nil {
			return errors.Wrapf(err, "building fs arguments")
		}

		e.Tf.RSP = rsp
	}

	k.L.Debug("loaded image",
		"env", e.ID,
		"entry", e.Tf.RIP,
		"image-start", bounds.Start,
		"image-end", bounds.End)

	return nil
}
