package render

import (
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-viewrender/pkg/render/template"
)

// Option customises the adapter configuration.
type Option func(*Adapter)

// WithFactory injects the factory that builds the loader and engine. It
// replaces the overridable initLoader/initEnvironment hooks.
func WithFactory(factory template.Factory) Option {
	return func(a *Adapter) {
		if factory != nil {
			a.factory = factory
		}
	}
}

// WithName overrides the adapter identifier used to name the cache
// directory under the host cache root.
func WithName(name string) Option {
	return func(a *Adapter) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			a.name = trimmed
		}
	}
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithExtension overrides the default view file extension.
func WithExtension(ext string) Option {
	return func(a *Adapter) {
		if trimmed := normalizeExtension(ext); trimmed != "" {
			a.ext = trimmed
		}
	}
}

// Settings are the Init inputs.
type Settings struct {
	// Extension replaces the view file extension when set.
	Extension string `yaml:"extension,omitempty"`
	// Loader is forwarded to Factory.NewLoader.
	Loader template.LoaderOptions `yaml:"loader,omitempty"`
	// Environment is merged over the host-derived defaults.
	Environment template.EnvironmentOptions `yaml:"environment,omitempty"`
}

func normalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.TrimSpace(ext), ".")
}
