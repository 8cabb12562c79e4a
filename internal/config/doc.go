// Package config loads, normalizes, and validates tilexfer configuration.
//
// The config file supplies operator defaults for worker timing and logging;
// command-line flags override individual values per invocation. Paths are
// expanded (including tilde shortcuts) so downstream code always receives
// absolute locations.
package config
