// Package config defines the memflow configuration surface and its loader.
// Configuration is read once at construction: defaults, then an optional
// YAML file, then environment variable overrides under the MEMFLOW prefix.
// Components are reconfigured only through explicit calls, never by
// polling.
package config
