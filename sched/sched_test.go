package sched

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/evanphx/jos/kernel"
	"github.com/evanphx/jos/memory"
)

type stop struct{}

type stopCPU struct{}

func (stopCPU) Resume(*kernel.Trapframe) { panic(stop{}) }

type stopHalt struct {
	halted bool
}

func (h *stopHalt) Halt() {
	h.halted = true
	panic(stop{})
}

func catch(f func()) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(stop); !ok {
				panic(r)
			}
		}
	}()

	f()
}

func newKernel(t *testing.T, n int) (*kernel.Kernel, *RoundRobin, *stopHalt) {
	cfg := kernel.DefaultConfig()
	cfg.MaxEnvs = n

	k, err := kernel.NewKernel(cfg, memory.NewManager(0), stopCPU{})
	require.NoError(t, err)

	h := &stopHalt{}
	rr := NewRoundRobin(k, h)
	k.SetScheduler(rr)

	return k, rr, h
}

func TestRoundRobin(t *testing.T) {
	n := neko.Modern(t)

	n.It("starts from the first slot", func(t *testing.T) {
		k, rr, _ := newKernel(t, 4)

		a, err := k.Allocate(0, kernel.KindUser)
		require.NoError(t, err)

		_, err = k.Allocate(0, kernel.KindUser)
		require.NoError(t, err)

		require.Equal(t, a, rr.Next())
	})

	n.It("picks the next runnable slot after the current one", func(t *testing.T) {
		k, rr, _ := newKernel(t, 4)

		var envs []*kernel.Env
		for i := 0; i < 3; i++ {
			e, err := k.Allocate(0, kernel.KindUser)
			require.NoError(t, err)
			envs = append(envs, e)
		}

		catch(func() { k.Run(envs[0]) })

		require.Equal(t, envs[1], rr.Next())

		envs[1].Status = kernel.NotRunnable
		require.Equal(t, envs[2], rr.Next())

		catch(func() { k.Run(envs[2]) })

		require.Equal(t, envs[0], rr.Next())
	})

	n.It("keeps running the current environment when it is alone", func(t *testing.T) {
		k, rr, _ := newKernel(t, 4)

		e, err := k.Allocate(0, kernel.KindUser)
		require.NoError(t, err)

		catch(func() { k.Run(e) })

		require.Equal(t, e, rr.Next())

		catch(rr.Yield)

		require.Equal(t, uint32(2), e.Runs)
		require.Equal(t, kernel.Running, e.Status)
	})

	n.It("halts when nothing can run", func(t *testing.T) {
		k, rr, h := newKernel(t, 4)

		e, err := k.Allocate(0, kernel.KindUser)
		require.NoError(t, err)

		catch(func() { k.Run(e) })
		catch(func() { k.Destroy(e) })

		require.True(t, h.halted)
		require.Nil(t, rr.Next())
	})

	n.Meow()
}
