package template

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Autoescape selects the escaping strategy applied to template output.
type Autoescape string

const (
	// AutoescapeName picks the strategy from the template file extension.
	AutoescapeName Autoescape = "name"
	// AutoescapeHTML escapes every template.
	AutoescapeHTML Autoescape = "html"
	// AutoescapeOff disables escaping.
	AutoescapeOff Autoescape = "off"
)

// ParseAutoescape accepts the strategy names plus boolean spellings:
// "false" disables escaping, "true" selects html.
func ParseAutoescape(raw string) (Autoescape, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "name":
		return AutoescapeName, nil
	case "html", "true", "on":
		return AutoescapeHTML, nil
	case "off", "false", "":
		return AutoescapeOff, nil
	default:
		return "", fmt.Errorf("template: unknown autoescape strategy %q", raw)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Autoescape) UnmarshalText(text []byte) error {
	parsed, err := ParseAutoescape(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// UnmarshalYAML accepts both `autoescape: name` and `autoescape: false`.
func (a *Autoescape) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("template: autoescape must be a scalar (line %d)", node.Line)
	}
	return a.UnmarshalText([]byte(node.Value))
}

// EnvironmentConfig is the resolved engine configuration.
type EnvironmentConfig struct {
	Autoescape Autoescape
	// AutoReload recompiles templates whose sources changed since compilation.
	AutoReload bool
	// Cache is the directory holding persisted cache state. Empty disables
	// persistence; compiled templates are still kept in memory.
	Cache         string
	Debug         bool
	TrimBlocks    bool
	LStripBlocks  bool
	Globals       map[string]any
	Filters       map[string]FilterFunc
	BannedTags    []string
	BannedFilters []string
}

// EnvironmentOptions overrides EnvironmentConfig fields. Nil pointers leave
// the default untouched.
type EnvironmentOptions struct {
	Autoescape    *Autoescape           `yaml:"autoescape,omitempty"`
	AutoReload    *bool                 `yaml:"auto_reload,omitempty"`
	Cache         *string               `yaml:"cache,omitempty"`
	Debug         *bool                 `yaml:"debug,omitempty"`
	TrimBlocks    *bool                 `yaml:"trim_blocks,omitempty"`
	LStripBlocks  *bool                 `yaml:"lstrip_blocks,omitempty"`
	Globals       map[string]any        `yaml:"globals,omitempty"`
	Filters       map[string]FilterFunc `yaml:"-"`
	BannedTags    []string              `yaml:"banned_tags,omitempty"`
	BannedFilters []string              `yaml:"banned_filters,omitempty"`
}

// Defaults returns the baseline environment: name-based escaping, auto-reload
// on, the given cache directory and debug flag.
func Defaults(cache string, debug bool) EnvironmentConfig {
	return EnvironmentConfig{
		Autoescape: AutoescapeName,
		AutoReload: true,
		Cache:      cache,
		Debug:      debug,
	}
}

// Merge applies overrides over base in order. Set scalars replace the base
// value, maps merge key by key with later values winning, and slices append
// without duplicates. base is not mutated.
func Merge(base EnvironmentConfig, overrides ...EnvironmentOptions) EnvironmentConfig {
	out := base
	out.Globals = cloneMap(base.Globals)
	out.Filters = cloneFilters(base.Filters)
	out.BannedTags = appendUnique(nil, base.BannedTags...)
	out.BannedFilters = appendUnique(nil, base.BannedFilters...)

	for _, o := range overrides {
		if o.Autoescape != nil {
			out.Autoescape = *o.Autoescape
		}
		if o.AutoReload != nil {
			out.AutoReload = *o.AutoReload
		}
		if o.Cache != nil {
			out.Cache = strings.TrimSpace(*o.Cache)
		}
		if o.Debug != nil {
			out.Debug = *o.Debug
		}
		if o.TrimBlocks != nil {
			out.TrimBlocks = *o.TrimBlocks
		}
		if o.LStripBlocks != nil {
			out.LStripBlocks = *o.LStripBlocks
		}
		for key, value := range o.Globals {
			if out.Globals == nil {
				out.Globals = make(map[string]any, len(o.Globals))
			}
			out.Globals[key] = value
		}
		for name, fn := range o.Filters {
			if out.Filters == nil {
				out.Filters = make(map[string]FilterFunc, len(o.Filters))
			}
			out.Filters[name] = fn
		}
		out.BannedTags = appendUnique(out.BannedTags, o.BannedTags...)
		out.BannedFilters = appendUnique(out.BannedFilters, o.BannedFilters...)
	}

	if out.Autoescape == "" {
		out.Autoescape = AutoescapeOff
	}
	return out
}

// Bool returns a pointer to v for use in EnvironmentOptions literals.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Escape returns a pointer to v.
func Escape(v Autoescape) *Autoescape { return &v }

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneFilters(in map[string]FilterFunc) map[string]FilterFunc {
	if in == nil {
		return nil
	}
	out := make(map[string]FilterFunc, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func appendUnique(dst []string, values ...string) []string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		seen := false
		for _, existing := range dst {
			if existing == trimmed {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, trimmed)
		}
	}
	return dst
}
