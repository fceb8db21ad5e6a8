package memory

import (
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/jos/log"
)

var ErrNoMem = errors.New("out of memory")

// Manager owns every address space and the page budget they draw from. The
// kernel space is created with the manager and is never released.
//
// Like the rest of the kernel core it assumes a single processor; a multi-core
// build needs a lock around the page accounting and the active pointer.
type Manager struct {
	L hclog.Logger

	maxPages  uint64
	usedPages uint64
	nextID    int

	kernel *AddressSpace
	active *AddressSpace
}

// NewManager returns a manager limited to maxPages private pages. A zero limit
// means unlimited.
func NewManager(maxPages uint64) *Manager {
	m := &Manager{
		L:        log.L.Named("memory"),
		maxPages: maxPages,
	}

	m.kernel = m.newSpace()
	m.active = m.kernel

	return m
}

func (m *Manager) newSpace() *AddressSpace {
	m.nextID++
	return &AddressSpace{id: m.nextID}
}

func (m *Manager) Kernel() *AddressSpace {
	return m.kernel
}

func (m *Manager) Active() *AddressSpace {
	return m.active
}

func (m *Manager) UsedPages() uint64 {
	return m.usedPages
}

func (m *Manager) charge(as *AddressSpace, pages uint64) error {
	if m.maxPages != 0 && m.usedPages+pages > m.maxPages {
		return errors.Wrapf(ErrNoMem, "need %d pages, %d of %d in use", pages, m.usedPages, m.maxPages)
	}

	m.usedPages += pages
	as.pages += pages

	return nil
}

// Create allocates a fresh address space. The root table costs one page.
func (m *Manager) Create() (*AddressSpace, error) {
	as := m.newSpace()

	if err := m.charge(as, 1); err != nil {
		return nil, err
	}

	m.L.Trace("address-space-create", "id", as.id)

	return as, nil
}

// Switch makes as the active space and returns the previous one.
func (m *Manager) Switch(as *AddressSpace) *AddressSpace {
	prev := m.active
	m.active = as
	return prev
}

// Release returns every private page of as to the budget. Releasing the kernel
// space or the active space is a bug in the caller.
func (m *Manager) Release(as *AddressSpace) {
	if as == m.kernel {
		panic("memory: releasing kernel address space")
	}

	if as == m.active {
		panic("memory: releasing active address space")
	}

	if as.released {
		return
	}

	m.L.Trace("address-space-release", "id", as.id, "pages", as.pages)

	m.usedPages -= as.pages
	as.pages = 0
	as.regions = nil
	as.released = true
}

// Map installs [addr, addr+size) rounded out to whole pages. With a nil backing
// the pages are freshly zeroed and charged against the budget; otherwise the
// region aliases backing, which must cover the rounded size.
func (m *Manager) Map(as *AddressSpace, addr, size uint64, backing []byte, prot Prot) error {
	if as.released {
		return ErrReleased
	}

	start := RoundDown(addr)
	end := RoundUp(addr + size)

	if end <= start {
		return errors.Wrapf(ErrBadRegionRequest, "empty mapping at %x", addr)
	}

	if backing == nil {
		// Charge first so a failed map leaves the space untouched.
		if _, ok := as.FindRegion(start); !ok {
			if err := m.charge(as, (end-start)/PageSize); err != nil {
				return err
			}

			if _, _, err := as.mapRegion(start, end-start, nil, prot); err != nil {
				m.usedPages -= (end - start) / PageSize
				as.pages -= (end - start) / PageSize
				return err
			}

			m.L.Trace("map", "space", as.id, "start", hclog.Fmt("%x", start), "end", hclog.Fmt("%x", end), "prot", prot)
			return nil
		}
	}

	_, _, err := as.mapRegion(start, end-start, backing, prot)
	if err != nil {
		return err
	}

	m.L.Trace("map", "space", as.id, "start", hclog.Fmt("%x", start), "end", hclog.Fmt("%x", end), "prot", prot, "shared", backing != nil)

	return nil
}
