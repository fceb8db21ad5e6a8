package loader

import (
	"encoding/base64"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/blake2b"

	"github.com/evanphx/jos/log"
)

// LoaderCache keeps recently parsed images keyed by a hash of their bytes.
type LoaderCache struct {
	mu sync.RWMutex

	cache *lru.ARCCache
}

func NewLoaderCache() *LoaderCache {
	cache, err := lru.NewARC(100)
	if err != nil {
		panic(err)
	}

	return &LoaderCache{cache: cache}
}

func (l *LoaderCache) Lookup(key string) (*Image, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	val, ok := l.cache.Get(key)
	if !ok {
		return nil, false
	}

	return val.(*Image), true
}

func (l *LoaderCache) Set(key string, img *Image) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache.Add(key, img)
}

func (l *LoaderCache) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.cache.Len()
}

func NewLoader(cache *LoaderCache) *Loader {
	return &Loader{
		L:     log.L.Named("loader"),
		cache: cache,
	}
}

type Loader struct {
	L     hclog.Logger
	cache *LoaderCache
}

// Parse validates raw, consulting the cache first when one is configured. The
// returned image always refers to raw.
func (l *Loader) Parse(raw []byte) (*Image, error) {
	var cacheKey string

	if l.cache != nil {
		sum := blake2b.Sum256(raw)
		cacheKey = base64.URLEncoding.EncodeToString(sum[:])

		l.L.Trace("looking for cached image", "key", cacheKey)

		if img, ok := l.cache.Lookup(cacheKey); ok {
			dup := *img
			dup.Raw = raw
			return &dup, nil
		}
	}

	img, err := Parse(raw)
	if err != nil {
		l.L.Debug("rejected image", "error", err)
		return nil, err
	}

	l.L.Trace("parsed image",
		"entry", hclog.Fmt("%#x", img.Entry()),
		"progs", len(img.Progs),
		"sections", len(img.Sections))

	if l.cache != nil {
		l.L.Trace("cached image", "key", cacheKey)
		l.cache.Set(cacheKey, img)
	}

	return img, nil
}
