package kernel

import (
	"debug/elf"
	"io"
)

// SymbolTable maps kernel function names to their addresses.
type SymbolTable map[string]uint64

func (s SymbolTable) Resolve(name string) (uint64, bool) {
	addr, ok := s[name]
	if !ok || addr == 0 {
		return 0, false
	}

	return addr, true
}

// ReadSymbolTable collects the function symbols of a kernel ELF.
func ReadSymbolTable(r io.ReaderAt) (SymbolTable, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		return nil, err
	}

	st := SymbolTable{}

	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Value == 0 {
			continue
		}

		st[sym.Name] = sym.Value
	}

	return st, nil
}
