package kernel

import (
	"github.com/pkg/errors"

	"github.com/evanphx/jos/memory"
)

const (
	DefaultUserStackTop  = 0x7ffff7000000
	DefaultUserStackSize = 16 * memory.PageSize

	// UEnvsBase is where the read-only view of the environment table is
	// mapped in every address space.
	UEnvsBase = 0x7ffff0000000

	// Static mode carves per-slot stacks downward from here.
	StaticStackTop  = 0x2000000
	StaticStackSize = 2 * memory.PageSize
)

type Config struct {
	MaxEnvs int

	Mode Mode

	UserStackTop  uint64
	UserStackSize uint64

	// TraceEnvs logs allocation and destruction, TraceEnvsMore also logs
	// every dispatch.
	TraceEnvs     bool
	TraceEnvsMore bool
}

func DefaultConfig() Config {
	return Config{
		MaxEnvs:       1024,
		Mode:          Isolated{},
		UserStackTop:  DefaultUserStackTop,
		UserStackSize: DefaultUserStackSize,
	}
}

var ErrBadConfig = errors.New("bad kernel config")

func (c *Config) Validate() error {
	if c.MaxEnvs <= 0 || c.MaxEnvs > MaxEnvs {
		return errors.Wrapf(ErrBadConfig, "max envs must be in 1..%d, got %d", MaxEnvs, c.MaxEnvs)
	}

	if c.Mode == nil {
		return errors.Wrap(ErrBadConfig, "no mode selected")
	}

	if c.UserStackSize == 0 || c.UserStackSize%memory.PageSize != 0 {
		return errors.Wrapf(ErrBadConfig, "stack size %#x is not a page multiple", c.UserStackSize)
	}

	if c.UserStackTop%memory.PageSize != 0 || c.UserStackTop < c.UserStackSize {
		return errors.Wrapf(ErrBadConfig, "bad stack top %#x", c.UserStackTop)
	}

	return nil
}

func ParseMode(name string) (Mode, error) {
	switch name {
	case "isolated", "":
		return Isolated{}, nil
	case "static":
		return Static{}, nil
	default:
		return nil, errors.Wrapf(ErrBadConfig, "unknown mode %q", name)
	}
}
