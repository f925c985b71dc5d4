package template

import (
	"context"
	"io"
)

// MainNamespace is the namespace used for template names without an explicit
// namespace prefix.
const MainNamespace = "__main__"

// FilterFunc is the engine-neutral filter signature accepted by
// Engine.RegisterFilter.
type FilterFunc func(input any, param any) (any, error)

// Engine is the render engine handle. Implementations must be safe for
// concurrent Render calls once constructed.
type Engine interface {
	// Render renders name, treating it as inline template content when it
	// contains template delimiters.
	Render(name string, data any, out ...io.Writer) (string, error)
	// RenderTemplate always resolves name through the loader.
	RenderTemplate(name string, data any, out ...io.Writer) (string, error)
	RenderString(templateContent string, data any, out ...io.Writer) (string, error)
	RegisterFilter(name string, fn FilterFunc) error
	GlobalContext(data any) error
	// ClearCache drops every compiled template.
	ClearCache()
}

// Watcher is implemented by engines that can invalidate compiled templates
// when their sources change. Watch blocks until ctx is cancelled.
type Watcher interface {
	Watch(ctx context.Context) error
}

// Loader maps namespaces to template directories.
type Loader interface {
	// AddPath appends dir to the namespace search list. Adding a directory
	// that is already registered for the namespace is a no-op.
	AddPath(dir, namespace string) error
	// PrependPath inserts dir at the front of the namespace search list.
	PrependPath(dir, namespace string) error
	// SetPaths replaces the namespace search list.
	SetPaths(namespace string, dirs ...string) error
	Paths(namespace string) []string
	Namespaces() []string
	Exists(name string) bool
}

// Factory builds the loader and engine for an adapter. It replaces the
// overridable initLoader/initEnvironment hooks of hook-based hosts.
type Factory interface {
	NewLoader(options LoaderOptions) (Loader, error)
	NewEngine(loader Loader, config EnvironmentConfig) (Engine, error)
}
