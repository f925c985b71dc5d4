// Package pongo implements the template contracts on top of
// github.com/flosch/pongo2/v6.
//
// Loader resolves namespaced references such as "@layout/base.twig" against
// the directories registered for each namespace. Engine compiles templates
// through a pongo2 TemplateSet, keeps them in memory, and tracks every file a
// compilation read so auto-reload and the change watcher can invalidate
// exactly what went stale. When a cache directory is configured the engine
// records compiled references and their source files in manifest.yaml.
package pongo
