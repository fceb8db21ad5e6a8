package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/evanphx/jos/memory"
)

var ErrInvalidImage = errors.New("invalid executable image")

const (
	headerSize  = 64
	progSize    = 56
	sectionSize = 64
	symSize     = 24
)

var magic = []byte{0x7f, 'E', 'L', 'F'}

// Image is a validated ELF64 executable. Raw is retained, not copied.
type Image struct {
	Raw      []byte
	Header   elf.Header64
	Progs    []elf.Prog64
	Sections []elf.Section64
}

type Segment struct {
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
	Data   []byte
}

type Symbol struct {
	Name  string
	Value uint64
	Size  uint64
}

// Bounds is the half-open virtual range covered by an image's loaded segments.
type Bounds struct {
	Start, End uint64
}

func (b Bounds) Contains(addr, size uint64) bool {
	return addr >= b.Start && addr+size >= addr && addr+size <= b.End
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidImage, format, args...)
}

func decode(raw []byte, off, size uint64, v interface{}) error {
	if size == 0 {
		return nil
	}

	if off > uint64(len(raw)) || size > uint64(len(raw))-off {
		return invalid("structure at %#x+%#x past end of image (%#x)", off, size, len(raw))
	}

	return binary.Read(bytes.NewReader(raw[off:off+size]), binary.LittleEndian, v)
}

// Parse validates the ELF header and decodes the program and section header
// tables.
func Parse(raw []byte) (*Image, error) {
	img := &Image{Raw: raw}

	if len(raw) < headerSize {
		return nil, invalid("image too short (%d bytes)", len(raw))
	}

	if !bytes.Equal(raw[:4], magic) {
		return nil, invalid("bad magic %x", raw[:4])
	}

	if err := decode(raw, 0, headerSize, &img.Header); err != nil {
		return nil, err
	}

	h := &img.Header

	if h.Shentsize != sectionSize {
		return nil, invalid("section header size %d", h.Shentsize)
	}

	if h.Shstrndx >= h.Shnum {
		return nil, invalid("section name table index %d out of %d", h.Shstrndx, h.Shnum)
	}

	if h.Phentsize != progSize {
		return nil, invalid("program header size %d", h.Phentsize)
	}

	img.Progs = make([]elf.Prog64, h.Phnum)
	if err := decode(raw, h.Phoff, uint64(h.Phnum)*progSize, img.Progs); err != nil {
		return nil, err
	}

	img.Sections = make([]elf.Section64, h.Shnum)
	if err := decode(raw, h.Shoff, uint64(h.Shnum)*sectionSize, img.Sections); err != nil {
		return nil, err
	}

	return img, nil
}

func (img *Image) Entry() uint64 {
	return img.Header.Entry
}

// Segments returns the loadable segments. A segment whose file bytes are not
// all inside the image is skipped rather than failing the load.
func (img *Image) Segments() ([]Segment, error) {
	var segs []Segment

	for i, ph := range img.Progs {
		if elf.ProgType(ph.Type) != elf.PT_LOAD {
			continue
		}

		if ph.Filesz > ph.Memsz {
			return nil, invalid("segment %d: filesz %#x exceeds memsz %#x", i, ph.Filesz, ph.Memsz)
		}

		if ph.Off > uint64(len(img.Raw)) || ph.Filesz > uint64(len(img.Raw))-ph.Off {
			continue
		}

		segs = append(segs, Segment{
			Vaddr:  ph.Vaddr,
			Filesz: ph.Filesz,
			Memsz:  ph.Memsz,
			Data:   img.Raw[ph.Off : ph.Off+ph.Filesz],
		})
	}

	return segs, nil
}

type Mapper interface {
	Map(as *memory.AddressSpace, addr, size uint64, backing []byte, prot memory.Prot) error
}

// Place maps every loadable segment into as, copies the file-backed bytes and
// zeroes the rest of each segment up to its memory size. Segments may not share
// a page with one another unless one lies wholly inside the other's pages, and
// may not land on memory the space already maps from elsewhere; such images are
// reported as ErrInvalidImage.
func (img *Image) Place(m Mapper, as *memory.AddressSpace) (Bounds, error) {
	segs, err := img.Segments()
	if err != nil {
		return Bounds{}, err
	}

	var (
		b     Bounds
		first = true
	)

	for _, seg := range segs {
		if seg.Memsz == 0 {
			continue
		}

		err := m.Map(as, seg.Vaddr, seg.Memsz, nil, memory.ProtRWX|memory.ProtUser)
		if err != nil {
			if errors.Cause(err) == memory.ErrBadRegionRequest {
				return b, errors.Wrapf(ErrInvalidImage, "segment at %x: %s", seg.Vaddr, err)
			}

			return b, err
		}

		dst, err := as.Project(seg.Vaddr, seg.Memsz)
		if err != nil {
			return b, err
		}

		n := copy(dst, seg.Data)
		for i := range dst[n:] {
			dst[n+i] = 0
		}

		if first || seg.Vaddr < b.Start {
			b.Start = seg.Vaddr
		}

		if end := seg.Vaddr + seg.Memsz; end > b.End {
			b.End = end
		}

		first = false
	}

	return b, nil
}

func (img *Image) section(idx int) ([]byte, error) {
	sh := img.Sections[idx]

	if sh.Off > uint64(len(img.Raw)) || sh.Size > uint64(len(img.Raw))-sh.Off {
		return nil, invalid("section %d outside image", idx)
	}

	return img.Raw[sh.Off : sh.Off+sh.Size], nil
}

func cstring(tab []byte, off uint32) string {
	if int(off) >= len(tab) {
		return ""
	}

	s := tab[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}

	return string(s)
}

// ObjectSymbols returns the global data symbols exactly one pointer wide.
func (img *Image) ObjectSymbols() ([]Symbol, error) {
	shstr, err := img.section(int(img.Header.Shstrndx))
	if err != nil {
		return nil, err
	}

	symtab, strtab := -1, -1

	for i, sh := range img.Sections {
		switch elf.SectionType(sh.Type) {
		case elf.SHT_SYMTAB:
			symtab = i
		case elf.SHT_STRTAB:
			if cstring(shstr, sh.Name) == ".strtab" {
				strtab = i
			}
		}
	}

	if symtab == -1 {
		return nil, invalid("no symbol table")
	}

	if strtab == -1 {
		return nil, invalid("no .strtab")
	}

	syms, err := img.section(symtab)
	if err != nil {
		return nil, err
	}

	names, err := img.section(strtab)
	if err != nil {
		return nil, err
	}

	var out []Symbol

	for off := 0; off+symSize <= len(syms); off += symSize {
		var sym elf.Sym64

		if err := decode(syms, uint64(off), symSize, &sym); err != nil {
			return nil, err
		}

		if elf.ST_BIND(sym.Info) != elf.STB_GLOBAL {
			continue
		}

		if elf.ST_TYPE(sym.Info) != elf.STT_OBJECT {
			continue
		}

		if sym.Size != 8 {
			continue
		}

		out = append(out, Symbol{
			Name:  cstring(names, sym.Name),
			Value: sym.Value,
			Size:  sym.Size,
		})
	}

	return out, nil
}
