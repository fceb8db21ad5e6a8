package main

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/evanphx/jos/fs/tarfs"
	"github.com/evanphx/jos/kernel"
)

// Manifest describes what to boot. Paths are relative to the manifest.
type Manifest struct {
	Mode        string   `toml:"mode"`
	MaxEnvs     int      `toml:"max_envs"`
	MemoryPages uint64   `toml:"memory_pages"`
	KernelSyms  string   `toml:"kernel_symbols"`
	Archive     string   `toml:"archive"`
	FSArgs      []string `toml:"fs_args"`

	Envs []ManifestEnv `toml:"env"`
}

type ManifestEnv struct {
	Path  string `toml:"path"`
	Kind  string `toml:"kind"`
	Count int    `toml:"count"`
}

func loadManifest(path string) (*Manifest, error) {
	var m Manifest

	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}

	dir := filepath.Dir(path)

	for i := range m.Envs {
		// Images inside an archive are named by their archive path.
		if m.Archive == "" && !filepath.IsAbs(m.Envs[i].Path) {
			m.Envs[i].Path = filepath.Join(dir, m.Envs[i].Path)
		}

		if m.Envs[i].Count == 0 {
			m.Envs[i].Count = 1
		}

		if _, err := kernel.ParseKind(m.Envs[i].Kind); err != nil {
			return nil, errors.Wrapf(err, "env %d", i)
		}
	}

	if m.KernelSyms != "" && !filepath.IsAbs(m.KernelSyms) {
		m.KernelSyms = filepath.Join(dir, m.KernelSyms)
	}

	if m.Archive != "" && !filepath.IsAbs(m.Archive) {
		m.Archive = filepath.Join(dir, m.Archive)
	}

	return &m, nil
}

// addImages appends one env of the given kind per path.
func (m *Manifest) addImages(paths []string, kind string) error {
	if len(paths) == 0 {
		return nil
	}

	if _, err := kernel.ParseKind(kind); err != nil {
		return err
	}

	for _, path := range paths {
		m.Envs = append(m.Envs, ManifestEnv{Path: path, Kind: kind, Count: 1})
	}

	return nil
}

func readSymbols(path string) (kernel.SymbolTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	return kernel.ReadSymbolTable(f)
}

// imageReader returns how to fetch the manifest's images: from its archive
// when one is named, otherwise from the host filesystem.
func (m *Manifest) imageReader() (func(string) ([]byte, error), error) {
	if m.Archive == "" {
		return ioutil.ReadFile, nil
	}

	fs, err := tarfs.Open(m.Archive)
	if err != nil {
		return nil, errors.Wrapf(err, "opening archive %s", m.Archive)
	}

	return fs.ReadFile, nil
}
