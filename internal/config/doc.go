// Package config defines the sidecar settings and provides helpers to load,
// validate and save them in YAML format.
//
// Every field has a sensible default, so the sidecar starts without a
// settings file at all. The shared secret is taken from the MANAGER_SECRET
// environment variable and never touches the YAML file.
package config
