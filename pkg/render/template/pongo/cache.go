package pongo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/flosch/pongo2/v6"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the name of the manifest written into the cache directory.
const ManifestFile = "manifest.yaml"

// CacheFile is one source file read while compiling a template.
type CacheFile struct {
	Reference string    `yaml:"reference"`
	Path      string    `yaml:"path,omitempty"`
	ModTime   time.Time `yaml:"mod_time"`
	Size      int64     `yaml:"size"`
	Checksum  string    `yaml:"checksum"`
}

// CacheEntry describes a compiled template and the files it depends on.
type CacheEntry struct {
	Reference  string      `yaml:"reference"`
	CompiledAt time.Time   `yaml:"compiled_at"`
	Files      []CacheFile `yaml:"files"`
}

type manifestDocument struct {
	Engine    string       `yaml:"engine"`
	Templates []CacheEntry `yaml:"templates"`
}

type compiled struct {
	tmpl  *pongo2.Template
	entry CacheEntry
}

// fresh reports whether every recorded file still resolves to the same file
// with the same size and modification time.
func (c *compiled) fresh(loader *Loader) bool {
	for _, file := range c.entry.Files {
		src, err := loader.Resolve(file.Reference)
		if err != nil {
			return false
		}
		if src.Path != file.Path || src.Size != file.Size || !src.ModTime.Equal(file.ModTime) {
			return false
		}
	}
	return true
}

func (c *compiled) dependsOn(path string) bool {
	for _, file := range c.entry.Files {
		if file.Path == path {
			return true
		}
	}
	return false
}

func prepareCacheDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pongo: create cache directory: %w", err)
	}
	return nil
}

func sortEntries(entries []CacheEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Reference < entries[j].Reference
	})
}

func writeManifest(dir string, entries []CacheEntry) error {
	payload, err := yaml.Marshal(manifestDocument{
		Engine:    "pongo2",
		Templates: entries,
	})
	if err != nil {
		return fmt.Errorf("pongo: encode cache manifest: %w", err)
	}

	target := filepath.Join(dir, ManifestFile)
	tmp, err := os.CreateTemp(dir, ManifestFile+".*")
	if err != nil {
		return fmt.Errorf("pongo: write cache manifest: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("pongo: write cache manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("pongo: write cache manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("pongo: write cache manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest from a cache directory.
func ReadManifest(dir string) ([]CacheEntry, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("pongo: read cache manifest: %w", err)
	}
	var doc manifestDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("pongo: decode cache manifest: %w", err)
	}
	return doc.Templates, nil
}
