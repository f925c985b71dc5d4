// Package config loads the view renderer configuration from a YAML file with
// VIEWRENDER_* environment variables layered on top.
package config
