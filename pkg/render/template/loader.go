package template

import (
	"path/filepath"
	"strings"
)

// LoaderOptions are forwarded to Factory.NewLoader.
type LoaderOptions struct {
	// Paths are the main namespace directories.
	Paths []string `yaml:"paths,omitempty"`
	// RootPath is the base for relative directories.
	RootPath string `yaml:"root_path,omitempty"`
	// Namespaces holds extra directories per namespace. They are searched
	// after the directories supplied by the host.
	Namespaces map[string][]string `yaml:"namespaces,omitempty"`
}

// ResolveDir makes dir absolute against RootPath when it is relative.
func (o LoaderOptions) ResolveDir(dir string) string {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) || o.RootPath == "" {
		return filepath.Clean(trimmed)
	}
	return filepath.Join(o.RootPath, trimmed)
}
