package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestLifecycle(t *testing.T) {
	n := neko.Modern(t)

	n.It("creates runnable environments from an image", func(t *testing.T) {
		tk := newTestKernel(t, 4, Isolated{}, 0)

		image := codeAndData()

		e := tk.Create(image, KindUser)

		require.Equal(t, Runnable, e.Status)
		require.Equal(t, EnvID(0), e.ParentID)
		require.Equal(t, uint64(0x800010), e.Tf.RIP)
		require.Equal(t, uint64(FlagIF|FlagIOPL3), e.Tf.RFLAGS)
		require.Same(t, &image[0], &e.Image[0])
	})

	n.It("halts when a bootstrap image is invalid", func(t *testing.T) {
		tk := newTestKernel(t, 4, Isolated{}, 0)

		image := codeAndData()
		image[2] = 'X'

		fault := expectFault(t, func() { tk.Create(image, KindUser) })
		require.Contains(t, fault.Msg, "failed to load executable")

		require.Equal(t, 4, tk.NumFree())
		require.Equal(t, Free, tk.Env(0).Status)
		require.Equal(t, uint64(0), tk.mem.UsedPages())
	})

	n.It("halts when no slot is free", func(t *testing.T) {
		tk := newTestKernel(t, 1, Isolated{}, 0)

		tk.Create(codeAndData(), KindUser)

		fault := expectFault(t, func() { tk.Create(codeAndData(), KindUser) })
		require.Contains(t, fault.Msg, "no free environment")
	})

	n.It("releases the address space on free", func(t *testing.T) {
		tk := newTestKernel(t, 4, Isolated{}, 0)

		e := tk.Create(codeAndData(), KindUser)
		space := e.Space

		require.NotZero(t, tk.mem.UsedPages())

		tk.Free(e)

		require.True(t, space.Released())
		require.Equal(t, uint64(0), tk.mem.UsedPages())
		require.Equal(t, Free, e.Status)
		require.NotEqual(t, EnvID(0), e.ID)
	})

	n.It("switches away from a space before releasing it", func(t *testing.T) {
		tk := newTestKernel(t, 4, Isolated{}, 0)

		e := tk.Create(codeAndData(), KindUser)
		tk.run(t, e)

		require.Equal(t, e.Space, tk.mem.Active())

		tk.expectYield(t, func() { tk.Destroy(e) })

		require.Equal(t, tk.mem.Kernel(), tk.mem.Active())
	})

	n.It("refuses to free an environment twice", func(t *testing.T) {
		tk := newTestKernel(t, 4, Isolated{}, 0)

		e, err := tk.Allocate(0, KindUser)
		require.NoError(t, err)

		tk.Free(e)

		expectFault(t, func() { tk.Free(e) })
	})

	n.It("returns to the caller when destroying another environment", func(t *testing.T) {
		tk := newTestKernel(t, 4, Isolated{}, 0)

		a := tk.Create(codeAndData(), KindUser)
		b := tk.Create(codeAndData(), KindUser)

		tk.run(t, a)

		tk.SetInPageFault(true)
		tk.Destroy(b)

		require.Equal(t, 0, tk.sched.calls)
		require.Equal(t, Free, b.Status)
		require.False(t, tk.InPageFault())
		require.Equal(t, Running, a.Status)
	})

	n.It("yields when destroying the current environment", func(t *testing.T) {
		tk := newTestKernel(t, 4, Isolated{}, 0)

		e := tk.Create(codeAndData(), KindUser)
		tk.run(t, e)

		tk.SetInPageFault(true)

		tk.expectYield(t, func() { tk.Exit() })

		require.Equal(t, 1, tk.sched.calls)
		require.Equal(t, Free, e.Status)
		require.False(t, tk.InPageFault())
	})

	n.It("saves the trapped frame and yields", func(t *testing.T) {
		tk := newTestKernel(t, 4, Isolated{}, 0)

		e := tk.Create(codeAndData(), KindUser)
		tk.run(t, e)

		tf := e.Tf
		tf.RIP = 0x800042
		tf.Regs.RAX = 7

		tk.expectYield(t, func() { tk.Trap(&tf) })

		require.Equal(t, uint64(0x800042), e.Tf.RIP)
		require.Equal(t, uint64(7), e.Tf.Regs.RAX)
	})

	n.It("faults on exit without a current environment", func(t *testing.T) {
		tk := newTestKernel(t, 4, Isolated{}, 0)

		expectFault(t, func() { tk.Exit() })
	})

	n.Meow()
}
