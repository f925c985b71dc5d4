package pongo

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-viewrender/pkg/render/template"
)

// trackingLoader sits between the pongo2 TemplateSet and the Loader. It
// applies the escaping strategy to every source and, while a compilation is
// being recorded, remembers which files were read and the first loader error.
// pongo2 replaces loader errors with a generic message, so the recorded error
// is what lets callers match ErrTemplateNotFound and friends.
type trackingLoader struct {
	loader   *Loader
	strategy template.Autoescape

	mu        sync.Mutex
	recording bool
	recorded  []CacheFile
	failure   error
}

var _ pongo2.TemplateLoader = (*trackingLoader)(nil)

func (t *trackingLoader) Abs(base, name string) string {
	return t.loader.Abs(base, name)
}

func (t *trackingLoader) Get(ref string) (io.Reader, error) {
	src, data, err := t.loader.Read(ref)
	if err != nil {
		t.fail(err)
		return nil, err
	}
	t.record(src, data)
	return bytes.NewReader(applyEscaping(t.strategy, src.Name, data)), nil
}

func (t *trackingLoader) start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recording = true
	t.recorded = nil
	t.failure = nil
}

func (t *trackingLoader) stop() ([]CacheFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	files, failure := t.recorded, t.failure
	t.recording = false
	t.recorded = nil
	t.failure = nil
	return files, failure
}

func (t *trackingLoader) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.recording && t.failure == nil {
		t.failure = err
	}
}

func (t *trackingLoader) record(src Source, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.recording {
		return
	}
	for _, existing := range t.recorded {
		if existing.Reference == src.Reference {
			return
		}
	}
	t.recorded = append(t.recorded, CacheFile{
		Reference: src.Reference,
		Path:      src.Path,
		ModTime:   src.ModTime,
		Size:      src.Size,
		Checksum:  fmt.Sprintf("%016x", xxhash.Sum64(data)),
	})
}
