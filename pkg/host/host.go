package host

// Default namespace identifiers registered by most hosts.
const (
	NamespaceView      = "view"
	NamespaceLayout    = "layout"
	NamespacePartial   = "partial"
	NamespaceComponent = "component"
)

// DefaultNamespaces lists the built-in namespace identifiers in their
// conventional order.
func DefaultNamespaces() []string {
	return []string{NamespaceView, NamespaceLayout, NamespacePartial, NamespaceComponent}
}

// ViewPathProvider exposes the host's namespace to directory mapping. Callers
// treat the returned map as read-only; implementations return a fresh copy on
// every call so it reflects the current registrations.
type ViewPathProvider interface {
	ViewPaths() map[string]string
}

// CachePathProvider exposes the host cache root.
type CachePathProvider interface {
	CachePath() string
}

// DebugFlagProvider exposes the host debug flag.
type DebugFlagProvider interface {
	Debug() bool
}

// Host bundles the collaborators a renderer needs from the surrounding
// application.
type Host interface {
	ViewPathProvider
	CachePathProvider
	DebugFlagProvider
}

// Static is a fixed Host implementation.
type Static struct {
	Paths     map[string]string
	CacheRoot string
	DebugMode bool
}

var _ Host = Static{}

// ViewPaths returns a copy of the configured namespace mapping.
func (s Static) ViewPaths() map[string]string {
	out := make(map[string]string, len(s.Paths))
	for ns, dir := range s.Paths {
		out[ns] = dir
	}
	return out
}

// CachePath returns the configured cache root.
func (s Static) CachePath() string {
	return s.CacheRoot
}

// Debug returns the configured debug flag.
func (s Static) Debug() bool {
	return s.DebugMode
}

// Compose builds a Host from separate providers. Nil cache or debug providers
// resolve to an empty cache root and debug disabled.
func Compose(paths ViewPathProvider, cache CachePathProvider, debug DebugFlagProvider) Host {
	return composed{paths: paths, cache: cache, debug: debug}
}

type composed struct {
	paths ViewPathProvider
	cache CachePathProvider
	debug DebugFlagProvider
}

func (c composed) ViewPaths() map[string]string {
	if c.paths == nil {
		return map[string]string{}
	}
	return c.paths.ViewPaths()
}

func (c composed) CachePath() string {
	if c.cache == nil {
		return ""
	}
	return c.cache.CachePath()
}

func (c composed) Debug() bool {
	if c.debug == nil {
		return false
	}
	return c.debug.Debug()
}
