package kernel

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/evanphx/jos/loader"
	"github.com/evanphx/jos/memory"
)

var (
	ErrBadEnv       = errors.New("bad environment")
	ErrNoFreeEnv    = errors.New("no free environment")
	ErrBadKind      = errors.New("bad environment kind")
	ErrNoMem        = memory.ErrNoMem
	ErrInvalidImage = loader.ErrInvalidImage
)

// Fault is the value the kernel panics with when one of its own invariants is
// violated. Nothing recovers from it except the machine's boot loop.
type Fault struct {
	Msg string
}

func (f *Fault) Error() string {
	return "kernel panic: " + f.Msg
}

func (k *Kernel) fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	k.L.Error("kernel panic", "msg", msg)
	panic(&Fault{Msg: msg})
}
