package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

var (
	fSyms = pflag.BoolP("symbols", "s", false, "list bindable pointer variables")
)

func main() {
	pflag.Parse()

	if pflag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: colin [-s] image...\n")
		os.Exit(2)
	}

	for _, path := range pflag.Args() {
		if err := dump(path, *fSyms); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, err)
			os.Exit(1)
		}
	}
}
