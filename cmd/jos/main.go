package main

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/evanphx/jos/kernel"
	"github.com/evanphx/jos/loader"
	clog "github.com/evanphx/jos/log"
	"github.com/evanphx/jos/machine"
	"github.com/evanphx/jos/memory"
	"github.com/evanphx/jos/sched"
)

var (
	fManifest  = pflag.StringP("manifest", "m", "", "TOML boot manifest")
	fMode      = pflag.String("mode", "", "environment mode: isolated or static")
	fMaxEnvs   = pflag.Int("max-envs", 0, "size of the environment table")
	fPages     = pflag.Uint64("pages", 0, "physical page budget, 0 for unlimited")
	fKind      = pflag.StringP("kind", "k", "user", "kind for images given on the command line")
	fKSyms     = pflag.String("kernel-symbols", "", "kernel ELF to resolve bindings against")
	fTicks     = pflag.Int("ticks", 1000, "stop after this many timer interrupts")
	fRuns      = pflag.Uint32("runs", 3, "environments exit after this many dispatches")
	fTrace     = pflag.Bool("trace-envs", false, "log environment allocation and destruction")
	fTraceMore = pflag.Bool("trace-envs-more", false, "also log every dispatch")
	fDump      = pflag.Bool("dump", false, "print the environment table on exit")
	fDebug     = pflag.BoolP("debug", "d", false, "enable debug logging")
)

func main() {
	cpuprofile := os.Getenv("CPUPROFILE")
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		fmt.Printf("pprof: profiling started\n")
	}

	pflag.Parse()

	if *fDebug {
		clog.EnableDebug()
	}

	man := &Manifest{}

	if *fManifest != "" {
		m, err := loadManifest(*fManifest)
		if err != nil {
			log.Fatal(err)
		}

		man = m
	}

	if err := man.addImages(pflag.Args(), *fKind); err != nil {
		log.Fatal(err)
	}

	if len(man.Envs) == 0 {
		fmt.Fprintf(os.Stderr, "usage: jos [flags] image...\n")
		pflag.PrintDefaults()
		os.Exit(2)
	}

	cfg := kernel.DefaultConfig()
	cfg.TraceEnvs = *fTrace || *fTraceMore
	cfg.TraceEnvsMore = *fTraceMore

	mode := man.Mode
	if *fMode != "" {
		mode = *fMode
	}

	var err error

	cfg.Mode, err = kernel.ParseMode(mode)
	if err != nil {
		log.Fatal(err)
	}

	if man.MaxEnvs != 0 {
		cfg.MaxEnvs = man.MaxEnvs
	}

	if *fMaxEnvs != 0 {
		cfg.MaxEnvs = *fMaxEnvs
	}

	pages := man.MemoryPages
	if *fPages != 0 {
		pages = *fPages
	}

	m := machine.New(nil)
	m.MaxTicks = *fTicks

	k, err := kernel.NewKernel(cfg, memory.NewManager(pages), m)
	if err != nil {
		log.Fatal(err)
	}

	k.SetLoader(loader.NewLoader(loader.NewLoaderCache()))

	rr := sched.NewRoundRobin(k, m)
	k.SetScheduler(rr)

	if len(man.FSArgs) != 0 {
		k.SetArgBuilder(&kernel.FSArgs{Args: man.FSArgs})
	}

	ksyms := man.KernelSyms
	if *fKSyms != "" {
		ksyms = *fKSyms
	}

	if ksyms != "" {
		st, err := readSymbols(ksyms)
		if err != nil {
			log.Fatal(err)
		}

		k.SetSymbols(st)
	}

	readImage, err := man.imageReader()
	if err != nil {
		log.Fatal(err)
	}

	runs := *fRuns

	m.SetHandler(func(tf *kernel.Trapframe) {
		if k.Current().Runs >= runs {
			k.Exit()
		}

		k.Trap(tf)
	})

	err = m.Boot(func() {
		for _, env := range man.Envs {
			image, err := readImage(env.Path)
			if err != nil {
				log.Fatal(err)
			}

			kind, err := kernel.ParseKind(env.Kind)
			if err != nil {
				log.Fatal(err)
			}

			for i := 0; i < env.Count; i++ {
				k.Create(image, kind)
			}
		}

		rr.Yield()
	})

	if cpuprofile != "" {
		pprof.StopCPUProfile()
		fmt.Printf("pprof: profiling finished\n")
	}

	if *fDump {
		dump(k)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func dump(k *kernel.Kernel) {
	tr := tabwriter.NewWriter(os.Stdout, 4, 8, 1, ' ', 0)

	fmt.Fprintf(tr, "slot\tid\tparent\tkind\tstatus\truns\n")

	for i := 0; i < k.NumEnvs(); i++ {
		e := k.Env(i)
		if e.ID == 0 {
			continue
		}

		fmt.Fprintf(tr, "%d\t%08x\t%08x\t%s\t%s\t%d\n",
			i, uint32(e.ID), uint32(e.ParentID), e.Kind, e.Status, e.Runs)
	}

	tr.Flush()
}
