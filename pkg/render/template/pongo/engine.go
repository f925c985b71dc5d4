package pongo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/flosch/pongo2/v6"
	"go.uber.org/zap"

	"github.com/goliatone/go-viewrender/pkg/render/template"
)

// Option configures the engine and factory.
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

// WithLogger sets the logger used for compile, reload and watcher events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(o)
	}
	return o
}

// Engine is the pongo2-backed render engine handle.
type Engine struct {
	mu sync.RWMutex

	loader      *Loader
	source      *trackingLoader
	templateSet *pongo2.TemplateSet
	templates   map[string]*compiled
	config      template.EnvironmentConfig
	logger      *zap.Logger
	now         func() time.Time
}

var (
	_ template.Engine  = (*Engine)(nil)
	_ template.Watcher = (*Engine)(nil)
)

// New constructs an Engine over loader configured by cfg. When cfg.Cache is
// set the directory is created up front and construction fails if it cannot
// be.
func New(loader *Loader, cfg template.EnvironmentConfig, opts ...Option) (*Engine, error) {
	if loader == nil {
		return nil, errors.New("pongo: loader is required")
	}
	o := newOptions(opts)

	if cfg.Autoescape == "" {
		cfg.Autoescape = template.AutoescapeName
	}
	if cfg.Cache != "" {
		if err := prepareCacheDir(cfg.Cache); err != nil {
			return nil, err
		}
	}

	source := &trackingLoader{loader: loader, strategy: cfg.Autoescape}
	set := pongo2.NewSet("viewrender", source)
	set.Debug = cfg.Debug
	if set.Options != nil {
		set.Options.TrimBlocks = cfg.TrimBlocks
		set.Options.LStripBlocks = cfg.LStripBlocks
	}
	for _, tag := range cfg.BannedTags {
		if err := set.BanTag(tag); err != nil {
			return nil, fmt.Errorf("pongo: ban tag %q: %w", tag, err)
		}
	}
	for _, filter := range cfg.BannedFilters {
		if err := set.BanFilter(filter); err != nil {
			return nil, fmt.Errorf("pongo: ban filter %q: %w", filter, err)
		}
	}

	engine := &Engine{
		loader:      loader,
		source:      source,
		templateSet: set,
		templates:   make(map[string]*compiled),
		config:      cfg,
		logger:      o.logger,
		now:         o.now,
	}
	registerDefaultFilters()

	if cfg.Debug {
		if set.Globals == nil {
			set.Globals = make(pongo2.Context)
		}
		set.Globals["dump"] = dumpValue
	}
	if err := engine.GlobalContext(cfg.Globals); err != nil {
		return nil, fmt.Errorf("pongo: apply globals: %w", err)
	}
	for name, fn := range cfg.Filters {
		if err := engine.replaceFilter(name, fn); err != nil {
			return nil, fmt.Errorf("pongo: register filter %q: %w", name, err)
		}
	}

	engine.logger.Debug("template engine ready",
		zap.String("autoescape", string(cfg.Autoescape)),
		zap.Bool("auto_reload", cfg.AutoReload),
		zap.String("cache", cfg.Cache),
		zap.Bool("debug", cfg.Debug),
	)
	return engine, nil
}

// Config returns the resolved environment configuration.
func (e *Engine) Config() template.EnvironmentConfig {
	return e.config
}

// Render renders inline template content when name contains template
// delimiters, otherwise the named template.
func (e *Engine) Render(name string, data any, out ...io.Writer) (string, error) {
	if isTemplateContent(name) {
		return e.RenderString(name, data, out...)
	}
	return e.RenderTemplate(name, data, out...)
}

// RenderTemplate resolves name through the loader and renders it.
func (e *Engine) RenderTemplate(name string, data any, out ...io.Writer) (string, error) {
	if e == nil || e.templateSet == nil {
		return "", errors.New("pongo: engine is nil")
	}

	tmpl, err := e.getTemplate(name)
	if err != nil {
		return "", err
	}

	viewContext, err := convertToContext(data)
	if err != nil {
		return "", fmt.Errorf("pongo: convert data: %w", err)
	}

	var buf bytes.Buffer

	e.mu.RLock()
	err = tmpl.ExecuteWriter(viewContext, &buf)
	e.mu.RUnlock()

	if err != nil {
		return "", fmt.Errorf("pongo: execute template %q: %w", name, err)
	}
	return writeOutputs(buf.String(), out)
}

// RenderString compiles and renders templateContent. The result is not cached.
func (e *Engine) RenderString(templateContent string, data any, out ...io.Writer) (string, error) {
	if e == nil || e.templateSet == nil {
		return "", errors.New("pongo: engine is nil")
	}

	src := templateContent
	if e.config.Autoescape == template.AutoescapeOff {
		src = string(applyEscaping(template.AutoescapeOff, "", []byte(templateContent)))
	}
	tmpl, err := e.templateSet.FromString(src)
	if err != nil {
		return "", fmt.Errorf("pongo: parse template string: %w", err)
	}

	viewContext, err := convertToContext(data)
	if err != nil {
		return "", fmt.Errorf("pongo: convert data: %w", err)
	}

	var buf bytes.Buffer

	e.mu.RLock()
	err = tmpl.ExecuteWriter(viewContext, &buf)
	e.mu.RUnlock()

	if err != nil {
		return "", fmt.Errorf("pongo: execute template string: %w", err)
	}
	return writeOutputs(buf.String(), out)
}

// RegisterFilter registers a filter in pongo2's process-wide registry. It
// fails when a filter with the same name already exists.
func (e *Engine) RegisterFilter(name string, fn template.FilterFunc) error {
	if strings.TrimSpace(name) == "" || fn == nil {
		return errors.New("pongo: filter name and function required")
	}
	if pongo2.FilterExists(name) {
		return fmt.Errorf("pongo: filter %q already exists", name)
	}
	return pongo2.RegisterFilter(name, adaptFilter(fn))
}

func (e *Engine) replaceFilter(name string, fn template.FilterFunc) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || fn == nil {
		return errors.New("pongo: filter name and function required")
	}
	if pongo2.FilterExists(trimmed) {
		return pongo2.ReplaceFilter(trimmed, adaptFilter(fn))
	}
	return pongo2.RegisterFilter(trimmed, adaptFilter(fn))
}

func adaptFilter(fn template.FilterFunc) pongo2.FilterFunction {
	return func(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
		var paramVal any
		if param != nil {
			paramVal = param.Interface()
		}
		result, err := fn(in.Interface(), paramVal)
		if err != nil {
			return nil, &pongo2.Error{Sender: "custom_filter", OrigError: err}
		}
		return pongo2.AsValue(result), nil
	}
}

// GlobalContext seeds values available to every template of this engine.
// Callables become template functions.
func (e *Engine) GlobalContext(data any) error {
	if e == nil || e.templateSet == nil {
		return errors.New("pongo: engine is nil")
	}
	if data == nil {
		return nil
	}
	if rv := reflect.ValueOf(data); rv.Kind() == reflect.Map && rv.Len() == 0 {
		return nil
	}

	globalCtx, err := convertToContext(data)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.templateSet.Globals == nil {
		e.templateSet.Globals = make(pongo2.Context)
	}
	e.templateSet.Globals.Update(globalCtx)
	return nil
}

// ClearCache drops every compiled template.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.templates = make(map[string]*compiled)
	if err := e.persistLocked(); err != nil {
		e.logger.Warn("cache manifest not updated", zap.Error(err))
	}
	e.logger.Debug("template cache cleared")
}

// Manifest returns the compiled templates with the files each depends on,
// sorted by reference.
func (e *Engine) Manifest() []CacheEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.entriesLocked()
}

func (e *Engine) getTemplate(name string) (*pongo2.Template, error) {
	ref, err := e.loader.Reference(name)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	if c, ok := e.templates[ref]; ok && e.usable(c) {
		e.mu.RUnlock()
		return c.tmpl, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	previous, reload := e.templates[ref]
	if reload && e.usable(previous) {
		return previous.tmpl, nil
	}

	e.source.start()
	tmpl, err := e.templateSet.FromFile(ref)
	files, loadErr := e.source.stop()
	if err != nil {
		var perr *pongo2.Error
		if loadErr != nil && errors.As(err, &perr) && perr.Sender == "fromfile" {
			return nil, fmt.Errorf("pongo: load template %q: %w: %w", ref, loadErr, err)
		}
		return nil, fmt.Errorf("pongo: load template %q: %w", ref, err)
	}

	c := &compiled{
		tmpl: tmpl,
		entry: CacheEntry{
			Reference:  ref,
			CompiledAt: e.now(),
			Files:      files,
		},
	}
	e.templates[ref] = c

	if reload {
		e.logger.Debug("template reloaded", zap.String("template", ref), zap.Int("files", len(files)))
	} else {
		e.logger.Debug("template compiled", zap.String("template", ref), zap.Int("files", len(files)))
	}

	if err := e.persistLocked(); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func (e *Engine) usable(c *compiled) bool {
	return !e.config.AutoReload || c.fresh(e.loader)
}

// invalidate drops compiled templates depending on the file at path and
// reports how many were dropped.
func (e *Engine) invalidate(path string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	dropped := 0
	for ref, c := range e.templates {
		if c.dependsOn(path) {
			delete(e.templates, ref)
			dropped++
		}
	}
	if dropped > 0 {
		if err := e.persistLocked(); err != nil {
			e.logger.Warn("cache manifest not updated", zap.Error(err))
		}
	}
	return dropped
}

func (e *Engine) entriesLocked() []CacheEntry {
	entries := make([]CacheEntry, 0, len(e.templates))
	for _, c := range e.templates {
		entry := c.entry
		entry.Files = append([]CacheFile(nil), c.entry.Files...)
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries
}

func (e *Engine) persistLocked() error {
	if e.config.Cache == "" {
		return nil
	}
	return writeManifest(e.config.Cache, e.entriesLocked())
}

func writeOutputs(rendered string, out []io.Writer) (string, error) {
	for _, w := range out {
		if _, err := io.WriteString(w, rendered); err != nil {
			return "", err
		}
	}
	return rendered, nil
}

func isTemplateContent(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}
