// Package render implements the render adapter: it binds the host's named
// view directories to a template engine built by a template.Factory and
// exposes a single Render entry point.
package render

// Renderer renders a view of a registered namespace with the given context.
type Renderer interface {
	Render(kind, view string, data map[string]any) (string, error)
}
