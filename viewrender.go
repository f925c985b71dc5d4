// Package viewrender exposes the render adapter and its host contracts from
// the module root.
package viewrender

import (
	"github.com/goliatone/go-viewrender/pkg/config"
	"github.com/goliatone/go-viewrender/pkg/host"
	"github.com/goliatone/go-viewrender/pkg/render"
	"github.com/goliatone/go-viewrender/pkg/render/template"
)

// Host aliases host.Host for callers wiring their own collaborators.
type Host = host.Host

// Adapter aliases render.Adapter.
type Adapter = render.Adapter

// Settings aliases render.Settings, the Init inputs.
type Settings = render.Settings

// Option aliases render.Option.
type Option = render.Option

// LoaderOptions configures the template loader.
type LoaderOptions = template.LoaderOptions

// EnvironmentOptions overrides the engine environment defaults.
type EnvironmentOptions = template.EnvironmentOptions

// Namespace identifiers registered by most hosts.
const (
	NamespaceView      = host.NamespaceView
	NamespaceLayout    = host.NamespaceLayout
	NamespacePartial   = host.NamespacePartial
	NamespaceComponent = host.NamespaceComponent
)

// New exposes the adapter constructor from the top-level module.
func New(h Host, options ...Option) *Adapter {
	return render.New(h, options...)
}

// NewFromConfig loads the configuration file at path and returns an
// initialised adapter for it.
func NewFromConfig(path string, options ...Option) (*Adapter, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return render.New(cfg.Host(), options...).Init(cfg.Settings())
}
