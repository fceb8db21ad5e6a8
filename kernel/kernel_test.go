package kernel

import (
	"bytes"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/evanphx/jos/internal/elftest"
	"github.com/evanphx/jos/memory"
)

type resumed struct {
	tf Trapframe
}

type fakeCPU struct {
	frames []Trapframe
}

func (c *fakeCPU) Resume(tf *Trapframe) {
	c.frames = append(c.frames, *tf)
	panic(resumed{tf: *tf})
}

type yielded struct{}

type fakeSched struct {
	calls int
}

func (s *fakeSched) Yield() {
	s.calls++
	panic(yielded{})
}

type testKernel struct {
	*Kernel

	mem   *memory.Manager
	cpu   *fakeCPU
	sched *fakeSched
	out   *bytes.Buffer
}

func newTestKernel(t *testing.T, envs int, mode Mode, maxPages uint64) *testKernel {
	cfg := DefaultConfig()
	cfg.MaxEnvs = envs
	cfg.Mode = mode
	cfg.TraceEnvs = true

	mem := memory.NewManager(maxPages)
	cpu := &fakeCPU{}

	k, err := NewKernel(cfg, mem, cpu)
	require.NoError(t, err)

	var out bytes.Buffer
	k.L = hclog.New(&hclog.LoggerOptions{
		Output: &out,
		Level:  hclog.Info,
	})

	s := &fakeSched{}
	k.SetScheduler(s)

	return &testKernel{Kernel: k, mem: mem, cpu: cpu, sched: s, out: &out}
}

// run dispatches e and returns once the CPU has been handed its frame.
func (tk *testKernel) run(t *testing.T, e *Env) {
	defer func() {
		r := recover()
		_, ok := r.(resumed)
		require.True(t, ok, "expected resume, got %#v", r)
	}()

	tk.Run(e)
}

// expectYield runs f and requires that it ended in the scheduler.
func (tk *testKernel) expectYield(t *testing.T, f func()) {
	defer func() {
		r := recover()
		_, ok := r.(yielded)
		require.True(t, ok, "expected yield, got %#v", r)
	}()

	f()
}

func expectFault(t *testing.T, f func()) *Fault {
	var fault *Fault

	func() {
		defer func() {
			r := recover()
			v, ok := r.(*Fault)
			require.True(t, ok, "expected kernel fault, got %#v", r)
			fault = v
		}()

		f()
	}()

	return fault
}

func codeAndData() []byte {
	return elftest.Build(elftest.Spec{
		Entry: 0x800010,
		Segments: []elftest.Segment{
			{Vaddr: 0x800000, Data: bytes.Repeat([]byte{0xcc}, 0x80)},
			{Vaddr: 0x801000, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}, Memsz: 0x400},
		},
		Symbols: []elftest.Symbol{
			{Name: "sys_yield", Value: 0x801100, Size: 8},
			{Name: "sys_exit", Value: 0x801500, Size: 8},
			{Name: "missing", Value: 0x801108, Size: 8},
		},
	})
}
