// Package elftest builds small ELF64 executables for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

type Segment struct {
	Type  elf.ProgType
	Vaddr uint64
	Data  []byte
	Memsz uint64
}

type Symbol struct {
	Name  string
	Value uint64
	Size  uint64
	Bind  elf.SymBind
	Type  elf.SymType
}

type Spec struct {
	Entry    uint64
	Segments []Segment
	Symbols  []Symbol
}

const (
	ehdrSize = 64
	phdrSize = 56
	shdrSize = 64
	symSize  = 24
)

func align(b *bytes.Buffer, n int) {
	for b.Len()%n != 0 {
		b.WriteByte(0)
	}
}

// Build lays out the header, program headers, segment bytes, string and symbol
// tables, then the section headers.
func Build(s Spec) []byte {
	var body bytes.Buffer

	dataStart := ehdrSize + phdrSize*len(s.Segments)

	progs := make([]elf.Prog64, len(s.Segments))

	for i, seg := range s.Segments {
		typ := seg.Type
		if typ == elf.PT_NULL {
			typ = elf.PT_LOAD
		}

		memsz := seg.Memsz
		if memsz == 0 {
			memsz = uint64(len(seg.Data))
		}

		progs[i] = elf.Prog64{
			Type:   uint32(typ),
			Flags:  uint32(elf.PF_R | elf.PF_W | elf.PF_X),
			Off:    uint64(dataStart + body.Len()),
			Vaddr:  seg.Vaddr,
			Paddr:  seg.Vaddr,
			Filesz: uint64(len(seg.Data)),
			Memsz:  memsz,
			Align:  0x1000,
		}

		body.Write(seg.Data)
	}

	align(&body, 8)

	shstr := []byte("\x00.shstrtab\x00.strtab\x00.symtab\x00")
	shstrOff := dataStart + body.Len()
	body.Write(shstr)

	var strtab bytes.Buffer
	strtab.WriteByte(0)

	syms := []elf.Sym64{{}}
	for _, sym := range s.Symbols {
		bind, typ := sym.Bind, sym.Type
		if bind == elf.STB_LOCAL {
			bind = elf.STB_GLOBAL
		}
		if typ == elf.STT_NOTYPE {
			typ = elf.STT_OBJECT
		}

		syms = append(syms, elf.Sym64{
			Name:  uint32(strtab.Len()),
			Info:  elf.ST_INFO(bind, typ),
			Shndx: 1,
			Value: sym.Value,
			Size:  sym.Size,
		})

		strtab.WriteString(sym.Name)
		strtab.WriteByte(0)
	}

	strOff := dataStart + body.Len()
	body.Write(strtab.Bytes())

	align(&body, 8)

	symOff := dataStart + body.Len()
	binary.Write(&body, binary.LittleEndian, syms)

	align(&body, 8)

	sections := []elf.Section64{
		{},
		{Name: 1, Type: uint32(elf.SHT_STRTAB), Off: uint64(shstrOff), Size: uint64(len(shstr)), Addralign: 1},
		{Name: 11, Type: uint32(elf.SHT_STRTAB), Off: uint64(strOff), Size: uint64(strtab.Len()), Addralign: 1},
		{Name: 19, Type: uint32(elf.SHT_SYMTAB), Off: uint64(symOff), Size: uint64(len(syms) * symSize),
			Link: 2, Info: 1, Addralign: 8, Entsize: symSize},
	}

	shOff := dataStart + body.Len()

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     s.Entry,
		Phoff:     ehdrSize,
		Shoff:     uint64(shOff),
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(len(progs)),
		Shentsize: shdrSize,
		Shnum:     uint16(len(sections)),
		Shstrndx:  1,
	}

	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var out bytes.Buffer

	binary.Write(&out, binary.LittleEndian, &hdr)
	binary.Write(&out, binary.LittleEndian, progs)
	out.Write(body.Bytes())
	binary.Write(&out, binary.LittleEndian, sections)

	return out.Bytes()
}
