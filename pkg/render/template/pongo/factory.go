package pongo

import (
	"fmt"

	"github.com/goliatone/go-viewrender/pkg/render/template"
)

// Factory builds pongo loaders and engines for the render adapter.
type Factory struct {
	options []Option
}

var _ template.Factory = (*Factory)(nil)

// NewFactory returns a Factory passing options to every engine it builds.
func NewFactory(options ...Option) *Factory {
	return &Factory{options: options}
}

// NewLoader implements template.Factory.
func (f *Factory) NewLoader(options template.LoaderOptions) (template.Loader, error) {
	loader, err := NewLoader(options)
	if err != nil {
		return nil, err
	}
	return loader, nil
}

// NewEngine implements template.Factory. The loader must come from NewLoader.
func (f *Factory) NewEngine(loader template.Loader, cfg template.EnvironmentConfig) (template.Engine, error) {
	l, ok := loader.(*Loader)
	if !ok {
		return nil, fmt.Errorf("pongo: unsupported loader %T", loader)
	}
	engine, err := New(l, cfg, f.options...)
	if err != nil {
		return nil, err
	}
	return engine, nil
}
