package memory

import (
	"github.com/pkg/errors"
)

const PageSize = 4096

type Prot uint8

const (
	ProtR Prot = 1 << iota
	ProtW
	ProtX
	ProtUser

	ProtRWX = ProtR | ProtW | ProtX
)

func (p Prot) String() string {
	b := []byte("----")
	if p&ProtR != 0 {
		b[0] = 'r'
	}
	if p&ProtW != 0 {
		b[1] = 'w'
	}
	if p&ProtX != 0 {
		b[2] = 'x'
	}
	if p&ProtUser != 0 {
		b[3] = 'u'
	}
	return string(b)
}

func RoundDown(x uint64) uint64 {
	return x &^ (PageSize - 1)
}

func RoundUp(x uint64) uint64 {
	return RoundDown(x + PageSize - 1)
}

type Region struct {
	Start, Size uint64
	Prot        Prot

	linear []byte
	shared bool
}

func (reg *Region) End() uint64 {
	return reg.Start + reg.Size
}

func (reg *Region) Contains(x uint64) bool {
	if x < reg.Start {
		return false
	}

	if x >= reg.End() {
		return false
	}

	return true
}

// Shared reports whether the region aliases memory owned outside the space.
func (reg *Region) Shared() bool {
	return reg.shared
}

func (reg *Region) overlaps(start, end uint64) bool {
	return start < reg.End() && reg.Start < end
}

// Project returns the bytes backing [addr, addr+sz). The range must lie inside
// the region.
func (reg *Region) Project(addr, sz uint64) []byte {
	offset := addr - reg.Start
	return reg.linear[offset : offset+sz]
}

var (
	ErrInvalidMemoryAccess = errors.New("invalid memory access via projection")
	ErrBadRegionRequest    = errors.New("bad region request")
	ErrReleased            = errors.New("address space already released")
)

// AddressSpace is a set of non-overlapping page-granular regions. It stands in
// for a page table root.
type AddressSpace struct {
	id       int
	regions  []*Region
	pages    uint64
	released bool
}

func (as *AddressSpace) ID() int {
	return as.id
}

// Pages is the number of pages this space has mapped with private backing.
func (as *AddressSpace) Pages() uint64 {
	return as.pages
}

func (as *AddressSpace) Released() bool {
	return as.released
}

func (as *AddressSpace) Regions() []*Region {
	return as.regions
}

func (as *AddressSpace) FindRegion(addr uint64) (*Region, bool) {
	for _, reg := range as.regions {
		if reg.Contains(addr) {
			return reg, true
		}
	}

	return nil, false
}

func (as *AddressSpace) Project(addr, sz uint64) ([]byte, error) {
	if as.released {
		return nil, ErrReleased
	}

	reg, ok := as.FindRegion(addr)
	if !ok || addr+sz > reg.End() || addr+sz < addr {
		return nil, errors.Wrapf(ErrInvalidMemoryAccess, "error projecting address=%x, size=%x", addr, sz)
	}

	return reg.Project(addr, sz), nil
}

func (as *AddressSpace) ReadAt(b []byte, off int64) (int, error) {
	mem, err := as.Project(uint64(off), uint64(len(b)))
	if err != nil {
		return 0, err
	}

	return copy(b, mem), nil
}

func (as *AddressSpace) WriteAt(b []byte, off int64) (int, error) {
	mem, err := as.Project(uint64(off), uint64(len(b)))
	if err != nil {
		return 0, err
	}

	if reg, _ := as.FindRegion(uint64(off)); reg.Prot&ProtW == 0 {
		return 0, errors.Wrapf(ErrInvalidMemoryAccess, "write to read-only region at %x", off)
	}

	return copy(mem, b), nil
}

// mapRegion installs [start, start+size). A private request that lies entirely
// within an existing private region reuses it. Any other overlap is rejected,
// so shared regions never gain protection or private writes.
func (as *AddressSpace) mapRegion(start, size uint64, backing []byte, prot Prot) (*Region, bool, error) {
	end := start + size

	for _, reg := range as.regions {
		if !reg.overlaps(start, end) {
			continue
		}

		if backing == nil && !reg.shared && start >= reg.Start && end <= reg.End() {
			reg.Prot |= prot
			return reg, false, nil
		}

		return nil, false, errors.Wrapf(ErrBadRegionRequest,
			"range %x-%x overlaps region %x-%x", start, end, reg.Start, reg.End())
	}

	reg := &Region{
		Start: start,
		Size:  size,
		Prot:  prot,
	}

	if backing != nil {
		if uint64(len(backing)) < size {
			return nil, false, errors.Wrapf(ErrBadRegionRequest,
				"backing of %d bytes too small for %x bytes", len(backing), size)
		}
		reg.linear = backing[:size]
		reg.shared = true
	} else {
		reg.linear = make([]byte, size)
	}

	as.regions = append(as.regions, reg)

	return reg, true, nil
}
