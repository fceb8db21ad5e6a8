package main

import (
	"debug/elf"
	"fmt"
	"io/ioutil"
	"os"
	"text/tabwriter"

	"github.com/evanphx/jos/loader"
)

func dump(path string, syms bool) error {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}

	img, err := loader.Parse(raw)
	if err != nil {
		return err
	}

	fmt.Printf("%s: entry=%#x\n", path, img.Entry())

	fmt.Printf("\n[program headers]\n")

	tr := tabwriter.NewWriter(os.Stdout, 4, 8, 1, ' ', 0)
	for i, ph := range img.Progs {
		fmt.Fprintf(tr, "%d\t%s\toff=%#x\tva=%#x\tfilesz=%#x\tmemsz=%#x\n",
			i, elf.ProgType(ph.Type), ph.Off, ph.Vaddr, ph.Filesz, ph.Memsz)
	}

	tr.Flush()

	segs, err := img.Segments()
	if err != nil {
		return err
	}

	fmt.Printf("\n[loadable segments]\n")

	tr = tabwriter.NewWriter(os.Stdout, 4, 8, 1, ' ', 0)
	for _, seg := range segs {
		fmt.Fprintf(tr, "%#x\t%#x\tbss=%#x\n", seg.Vaddr, seg.Memsz, seg.Memsz-seg.Filesz)
	}

	tr.Flush()

	if !syms {
		return nil
	}

	objs, err := img.ObjectSymbols()
	if err != nil {
		return err
	}

	fmt.Printf("\n[bindable symbols]\n")

	tr = tabwriter.NewWriter(os.Stdout, 4, 8, 1, ' ', 0)
	for _, sym := range objs {
		fmt.Fprintf(tr, "%#x\t%s\n", sym.Value, sym.Name)
	}

	tr.Flush()

	return nil
}
