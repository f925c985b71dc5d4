package host

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNamespaceRequired is returned when registering an empty namespace id.
var ErrNamespaceRequired = errors.New("host: namespace is required")

// Registry stores view directories by namespace. It satisfies
// ViewPathProvider and is safe for concurrent use, so hosts can add
// namespaces while renders are in flight.
type Registry struct {
	mu    sync.RWMutex
	paths map[string]string
}

var _ ViewPathProvider = (*Registry)(nil)

// NewRegistry creates an empty registry instance.
func NewRegistry() *Registry {
	return &Registry{
		paths: make(map[string]string),
	}
}

// NewDefaultRegistry registers the built-in namespaces as subdirectories of
// root, e.g. <root>/views, <root>/layouts, <root>/partials, <root>/components.
func NewDefaultRegistry(root string) *Registry {
	r := NewRegistry()
	for _, ns := range DefaultNamespaces() {
		r.paths[ns] = filepath.Join(root, ns+"s")
	}
	return r
}

// Register binds a namespace to a directory, replacing any previous binding.
// Re-registering the same pair is a no-op.
func (r *Registry) Register(namespace, dir string) error {
	name := strings.TrimSpace(namespace)
	if name == "" {
		return ErrNamespaceRequired
	}
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("host: directory for namespace %q is required", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.paths[name] = filepath.Clean(dir)
	return nil
}

// MustRegister panics on registration failure. Useful for init-time wiring.
func (r *Registry) MustRegister(namespace, dir string) {
	if err := r.Register(namespace, dir); err != nil {
		panic(err)
	}
}

// Remove drops a namespace. Removing an unknown namespace is a no-op.
func (r *Registry) Remove(namespace string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.paths, namespace)
}

// Get retrieves the directory bound to a namespace.
func (r *Registry) Get(namespace string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dir, ok := r.paths[namespace]
	if !ok {
		return "", fmt.Errorf("host: namespace %q not registered", namespace)
	}
	return dir, nil
}

// Has reports whether a namespace is registered.
func (r *Registry) Has(namespace string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.paths[namespace]
	return ok
}

// List returns a sorted list of namespace ids.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.paths))
	for name := range r.paths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ViewPaths returns a snapshot of the current registrations.
func (r *Registry) ViewPaths() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.paths))
	for ns, dir := range r.paths {
		out[ns] = dir
	}
	return out
}
