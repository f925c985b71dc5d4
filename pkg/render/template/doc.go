// Package template defines the engine-agnostic contracts the render adapter
// programs against: the Engine handle, the namespace-aware Loader, the
// Factory that builds both, and the typed environment configuration with its
// defaults and merge rules. Concrete engines live in subpackages (see pongo).
package template
