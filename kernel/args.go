package kernel

import (
	"encoding/binary"

	"github.com/evanphx/jos/memory"
)

// FSArgs lays out argc and argv for the filesystem server. From the new stack
// top upward: argc, argv[0..argc-1], NULL, then the NUL-terminated strings.
type FSArgs struct {
	Args []string
}

func DefaultFSArgs() *FSArgs {
	return &FSArgs{Args: []string{"fs"}}
}

func (a *FSArgs) BuildArgs(as *memory.AddressSpace, top uint64) (uint64, error) {
	strSize := uint64(0)
	for _, str := range a.Args {
		strSize += uint64(len(str) + 1)
	}

	strStart := (top - strSize) &^ 7

	base := strStart - 8*uint64(len(a.Args)+2)
	base &^= 15

	mem, err := as.Project(base, top-base)
	if err != nil {
		return 0, err
	}

	for i := range mem {
		mem[i] = 0
	}

	le := binary.LittleEndian

	le.PutUint64(mem, uint64(len(a.Args)))

	ptr := mem[8:]
	next := strStart

	for _, str := range a.Args {
		off := next - base

		le.PutUint64(ptr, next)
		copy(mem[off:], str)
		mem[off+uint64(len(str))] = 0

		next += uint64(len(str) + 1)
		ptr = ptr[8:]
	}

	le.PutUint64(ptr, 0) // null after argv

	return base, nil
}
