package tarfs

import (
	"archive/tar"
	"io"
	"io/ioutil"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("no such file in archive")

// TarFS is a read-only set of boot images unpacked from a tar stream. Image
// bytes are kept for the life of the archive so environments can retain them.
type TarFS struct {
	files map[string][]byte
}

func clean(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

func NewTarFS(r io.Reader) (*TarFS, error) {
	tr := tar.NewReader(r)

	t := &TarFS{files: make(map[string][]byte)}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeRegA {
			continue
		}

		data, err := ioutil.ReadAll(tr)
		if err != nil {
			return nil, err
		}

		t.files[clean(hdr.Name)] = data
	}

	return t, nil
}

func Open(path string) (*TarFS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	return NewTarFS(f)
}

func (t *TarFS) ReadFile(name string) ([]byte, error) {
	data, ok := t.files[clean(name)]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}

	return data, nil
}

func (t *TarFS) Names() []string {
	names := make([]string, 0, len(t.files))
	for name := range t.files {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
