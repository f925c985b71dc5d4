package render

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/goliatone/go-viewrender/pkg/host"
	"github.com/goliatone/go-viewrender/pkg/render/template"
	"github.com/goliatone/go-viewrender/pkg/render/template/pongo"
)

const (
	// DefaultName identifies the adapter and names its cache directory.
	DefaultName = "viewrender"
	// DefaultExtension is the view file extension reported before any
	// override.
	DefaultExtension = "twig"
)

// Adapter forwards render calls for registered namespaces to a template
// engine. Render is safe for concurrent use; Init is not and must not race
// with Render.
type Adapter struct {
	host    host.Host
	factory template.Factory
	name    string
	logger  *zap.Logger

	mu         sync.RWMutex
	ext        string
	settings   Settings
	loader     template.Loader
	engine     template.Engine
	registered map[string]string
}

var _ Renderer = (*Adapter)(nil)

// New constructs an adapter bound to h. The pongo factory is used unless
// WithFactory supplies another.
func New(h host.Host, options ...Option) *Adapter {
	if h == nil {
		h = host.Static{}
	}
	a := &Adapter{
		host:   h,
		name:   DefaultName,
		logger: zap.NewNop(),
		ext:    DefaultExtension,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(a)
	}
	if a.factory == nil {
		a.factory = pongo.NewFactory(pongo.WithLogger(a.logger.Named("pongo")))
	}
	return a
}

// Init builds the loader and engine. A non-empty settings.Extension replaces
// the stored extension once both are built; a failed Init leaves the adapter
// unchanged. Calling Init again replaces the loader and engine. Factory errors
// are returned unmodified.
func (a *Adapter) Init(settings Settings) (*Adapter, error) {
	loader, registered, err := a.initLoader(settings.Loader)
	if err != nil {
		return nil, err
	}
	engine, err := a.initEnvironment(loader, settings.Environment)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if ext := normalizeExtension(settings.Extension); ext != "" {
		a.ext = ext
	}
	a.settings = settings
	a.loader = loader
	a.engine = engine
	a.registered = registered
	a.mu.Unlock()

	a.logger.Info("view renderer initialized",
		zap.String("name", a.name),
		zap.Strings("namespaces", sortedKeys(registered)),
	)
	return a, nil
}

func (a *Adapter) initLoader(options template.LoaderOptions) (template.Loader, map[string]string, error) {
	loader, err := a.factory.NewLoader(options)
	if err != nil {
		return nil, nil, err
	}

	// Host directories take priority over the extra loader namespaces.
	paths := a.host.ViewPaths()
	for _, ns := range sortedKeys(paths) {
		if err := loader.PrependPath(paths[ns], ns); err != nil {
			return nil, nil, err
		}
		a.logger.Debug("view namespace registered",
			zap.String("namespace", ns),
			zap.String("dir", paths[ns]),
		)
	}
	return loader, paths, nil
}

func (a *Adapter) initEnvironment(loader template.Loader, overrides template.EnvironmentOptions) (template.Engine, error) {
	cfg := template.Merge(a.defaults(), overrides)
	a.logger.Debug("view environment configured",
		zap.String("autoescape", string(cfg.Autoescape)),
		zap.Bool("auto_reload", cfg.AutoReload),
		zap.String("cache", cfg.Cache),
		zap.Bool("debug", cfg.Debug),
	)
	return a.factory.NewEngine(loader, cfg)
}

func (a *Adapter) defaults() template.EnvironmentConfig {
	cache := ""
	if root := strings.TrimSpace(a.host.CachePath()); root != "" {
		cache = filepath.Join(root, a.name)
	}
	return template.Defaults(cache, a.host.Debug())
}

// Render renders view from the kind namespace with data. kind must be a
// namespace the host currently registers. The view name is passed to the
// engine as is; no extension is appended.
func (a *Adapter) Render(kind, view string, data map[string]any) (string, error) {
	live := a.host.ViewPaths()
	if _, ok := live[kind]; !ok {
		return "", &InvalidTypeError{Type: kind, Known: sortedKeys(live)}
	}

	engine, err := a.sync(live)
	if err != nil {
		return "", err
	}
	return engine.RenderTemplate(Reference(kind, view), data)
}

// sync points the loader at the host's current directories and clears the
// engine cache when they differ from what was registered.
func (a *Adapter) sync(live map[string]string) (template.Engine, error) {
	a.mu.RLock()
	engine := a.engine
	stale := a.staleLocked(live)
	a.mu.RUnlock()

	if engine == nil {
		return nil, ErrNotInitialized
	}
	if len(stale) == 0 {
		return engine, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	stale = a.staleLocked(live)
	if len(stale) == 0 {
		return a.engine, nil
	}
	for _, ns := range stale {
		extras := a.settings.Loader.Namespaces[ns]
		dirs := make([]string, 0, len(extras)+1)
		if dir, ok := live[ns]; ok {
			dirs = append(dirs, dir)
		}
		dirs = append(dirs, extras...)
		if err := a.loader.SetPaths(ns, dirs...); err != nil {
			return nil, err
		}

		if dir, ok := live[ns]; ok {
			a.registered[ns] = dir
		} else {
			delete(a.registered, ns)
		}
		a.logger.Info("view namespace refreshed",
			zap.String("namespace", ns),
			zap.String("dir", live[ns]),
		)
	}
	a.engine.ClearCache()
	return a.engine, nil
}

func (a *Adapter) staleLocked(live map[string]string) []string {
	var stale []string
	for ns, dir := range live {
		if current, ok := a.registered[ns]; !ok || current != dir {
			stale = append(stale, ns)
		}
	}
	for ns := range a.registered {
		if _, ok := live[ns]; !ok {
			stale = append(stale, ns)
		}
	}
	sort.Strings(stale)
	return stale
}

// SetExtension stores the view file extension and returns the adapter.
func (a *Adapter) SetExtension(ext string) *Adapter {
	a.mu.Lock()
	a.ext = normalizeExtension(ext)
	a.mu.Unlock()
	return a
}

// Extension returns the stored view file extension.
func (a *Adapter) Extension() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ext
}

// Filename appends the stored extension to view unless it already ends with
// it. Render does not call it.
func (a *Adapter) Filename(view string) string {
	ext := a.Extension()
	if ext == "" || strings.HasSuffix(view, "."+ext) {
		return view
	}
	return view + "." + ext
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string {
	return a.name
}

// Loader returns the loader built by Init, or nil.
func (a *Adapter) Loader() template.Loader {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loader
}

// Engine returns the engine built by Init, or nil.
func (a *Adapter) Engine() template.Engine {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.engine
}

// Watch invalidates compiled templates as their files change until ctx is
// cancelled.
func (a *Adapter) Watch(ctx context.Context) error {
	engine := a.Engine()
	if engine == nil {
		return ErrNotInitialized
	}
	watcher, ok := engine.(template.Watcher)
	if !ok {
		return ErrWatchUnsupported
	}
	a.logger.Debug("watching view namespaces", zap.String("name", a.name))
	if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Reference builds the namespaced template reference for view in kind.
func Reference(kind, view string) string {
	return "@" + kind + "/" + strings.TrimPrefix(view, "/")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
