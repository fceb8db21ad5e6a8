package memory

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestAddressSpace(t *testing.T) {
	n := neko.Modern(t)

	n.It("maps zeroed page-rounded regions", func(t *testing.T) {
		m := NewManager(0)

		as, err := m.Create()
		require.NoError(t, err)

		err = m.Map(as, 0x800010, 0x1000, nil, ProtRWX|ProtUser)
		require.NoError(t, err)

		reg, ok := as.FindRegion(0x800000)
		require.True(t, ok)

		require.Equal(t, uint64(0x800000), reg.Start)
		require.Equal(t, uint64(0x2000), reg.Size)

		mem, err := as.Project(0x800000, 0x2000)
		require.NoError(t, err)

		for _, b := range mem {
			require.Equal(t, byte(0), b)
		}

		require.Equal(t, uint64(3), as.Pages())
	})

	n.It("rejects projections outside a region", func(t *testing.T) {
		m := NewManager(0)

		as, err := m.Create()
		require.NoError(t, err)

		require.NoError(t, m.Map(as, 0x1000, 0x1000, nil, ProtR|ProtW))

		_, err = as.Project(0x1ff0, 0x20)
		require.Equal(t, ErrInvalidMemoryAccess, errors.Cause(err))

		_, err = as.Project(0x5000, 1)
		require.Equal(t, ErrInvalidMemoryAccess, errors.Cause(err))
	})

	n.It("refuses writes to read-only regions", func(t *testing.T) {
		m := NewManager(0)

		backing := make([]byte, PageSize)
		require.NoError(t, m.Map(m.Kernel(), 0x10000, PageSize, backing, ProtR|ProtUser))

		_, err := m.Kernel().WriteAt([]byte{1}, 0x10000)
		require.Equal(t, ErrInvalidMemoryAccess, errors.Cause(err))

		backing[3] = 7

		var b [1]byte
		_, err = m.Kernel().ReadAt(b[:], 0x10003)
		require.NoError(t, err)
		require.Equal(t, byte(7), b[0])
	})

	n.It("rejects partially overlapping maps", func(t *testing.T) {
		m := NewManager(0)

		as, err := m.Create()
		require.NoError(t, err)

		require.NoError(t, m.Map(as, 0x4000, 0x2000, nil, ProtR))
		require.NoError(t, m.Map(as, 0x5000, 0x1000, nil, ProtW))

		err = m.Map(as, 0x5000, 0x2000, nil, ProtR)
		require.Equal(t, ErrBadRegionRequest, errors.Cause(err))
	})

	n.It("enforces the page budget", func(t *testing.T) {
		m := NewManager(4)

		as, err := m.Create()
		require.NoError(t, err)

		err = m.Map(as, 0, 4*PageSize, nil, ProtR)
		require.Equal(t, ErrNoMem, errors.Cause(err))
		require.Equal(t, uint64(1), m.UsedPages())

		require.NoError(t, m.Map(as, 0, 3*PageSize, nil, ProtR))

		_, err = m.Create()
		require.Equal(t, ErrNoMem, errors.Cause(err))

		m.Release(as)
		require.Equal(t, uint64(0), m.UsedPages())
		require.True(t, as.Released())

		_, err = m.Create()
		require.NoError(t, err)
	})

	n.It("tracks the active space", func(t *testing.T) {
		m := NewManager(0)

		as, err := m.Create()
		require.NoError(t, err)

		prev := m.Switch(as)
		require.Equal(t, m.Kernel(), prev)
		require.Equal(t, as, m.Active())

		require.Panics(t, func() { m.Release(as) })

		m.Switch(m.Kernel())
		m.Release(as)
	})

	n.It("keeps shared regions out of private maps", func(t *testing.T) {
		m := NewManager(0)

		as, err := m.Create()
		require.NoError(t, err)

		table := make([]byte, PageSize)

		require.NoError(t, m.Map(as, 0x10000, PageSize, table, ProtR|ProtUser))

		err = m.Map(as, 0x10000, 0x40, nil, ProtRWX|ProtUser)
		require.Equal(t, ErrBadRegionRequest, errors.Cause(err))

		reg, ok := as.FindRegion(0x10000)
		require.True(t, ok)
		require.True(t, reg.Shared())
		require.Equal(t, ProtR|ProtUser, reg.Prot)

		_, err = as.WriteAt([]byte{0xff}, 0x10000)
		require.Error(t, err)
		require.Equal(t, byte(0), table[0])
	})

	n.It("reuses private regions for maps inside them", func(t *testing.T) {
		m := NewManager(0)

		as, err := m.Create()
		require.NoError(t, err)

		require.NoError(t, m.Map(as, 0x10000, 2*PageSize, nil, ProtR))

		used := m.UsedPages()

		require.NoError(t, m.Map(as, 0x11000, 0x10, nil, ProtW))

		require.Len(t, as.Regions(), 1)
		require.Equal(t, ProtR|ProtW, as.Regions()[0].Prot)
		require.Equal(t, used, m.UsedPages())
	})

	n.Meow()
}
